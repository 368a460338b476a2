package domain

import "context"

// ─── Service Interfaces ─────────────────────────────────────────────────────
// These interfaces define boundaries between layers.
// Infrastructure implements them; the application layer depends on them.

// GroupAPI abstracts the chat platform's guild-scoped role membership.
type GroupAPI interface {
	// ListHeld returns every group the member currently holds, tier or not.
	ListHeld(ctx context.Context, guildID, userID string) ([]string, error)

	Grant(ctx context.Context, guildID, userID, groupID string) error
	Revoke(ctx context.Context, guildID, userID, groupID string) error

	// GroupExists reports whether groupID resolves in the guild.
	GroupExists(ctx context.Context, guildID, groupID string) (bool, error)
}

// CountLookup is the platform-authoritative activity count. It is an
// independent source from ProgressRepository and the two are never merged.
type CountLookup interface {
	FetchCount(ctx context.Context, guildID, userID string) (int64, error)
}

// ProgressRepository abstracts durable storage for UserProgress records.
type ProgressRepository interface {
	// LoadProgress returns every stored record. An empty store is not an error.
	LoadProgress(ctx context.Context) ([]UserProgress, error)

	// SaveProgress writes the batch so that each record is either fully
	// visible afterwards or the previous value remains.
	SaveProgress(ctx context.Context, batch []UserProgress) error
}
