// Package discord adapts a Discord guild to the tier engine: roles are the
// tier groups, messages are activity, and buttons carry promotion tokens.
package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"github.com/vip-ladder/tierbot/internal/domain"
)

// memberAPI is the slice of *discordgo.Session the guild adapter calls.
type memberAPI interface {
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildMemberRoleRemove(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// roleCache is the gateway state's role lookup.
type roleCache interface {
	Role(guildID, roleID string) (*discordgo.Role, error)
}

// Guild implements domain.GroupAPI over guild roles.
type Guild struct {
	api   memberAPI
	state roleCache // optional
}

var _ domain.GroupAPI = (*Guild)(nil)

// NewGuild wraps a session. Role lookups hit the gateway cache first.
func NewGuild(s *discordgo.Session) *Guild {
	g := &Guild{api: s}
	if s.State != nil {
		g.state = s.State
	}
	return g
}

// ListHeld returns the member's role IDs.
func (g *Guild) ListHeld(ctx context.Context, guildID, userID string) ([]string, error) {
	m, err := g.api.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("get member %s: %w", userID, err)
	}
	return m.Roles, nil
}

// Grant adds a role to the member.
func (g *Guild) Grant(ctx context.Context, guildID, userID, groupID string) error {
	return g.api.GuildMemberRoleAdd(guildID, userID, groupID, discordgo.WithContext(ctx))
}

// Revoke removes a role from the member.
func (g *Guild) Revoke(ctx context.Context, guildID, userID, groupID string) error {
	return g.api.GuildMemberRoleRemove(guildID, userID, groupID, discordgo.WithContext(ctx))
}

// GroupExists reports whether roleID resolves in the guild.
func (g *Guild) GroupExists(ctx context.Context, guildID, groupID string) (bool, error) {
	if g.state != nil {
		r, err := g.state.Role(guildID, groupID)
		if err == nil && r != nil {
			return true, nil
		}
		if err != nil && !errors.Is(err, discordgo.ErrStateNotFound) {
			return false, err
		}
	}

	roles, err := g.api.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return false, fmt.Errorf("list roles: %w", err)
	}
	for _, r := range roles {
		if r.ID == groupID {
			return true, nil
		}
	}
	return false, nil
}
