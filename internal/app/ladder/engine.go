// Package ladder is the tier engine's data flow.
//
// Activity path (passive, failures only logged):
//
//	event → progress.Increment → TierTable.Resolve → above acknowledged?
//	   auto:    roles.Reconcile → SetAcknowledgedTier (retried on later events)
//	   confirm: promotion.Arm → adapter prompts the user on a fresh offer
//
// Status path: CountLookup.FetchCount → Resolve → report (never merged into
// the local counter).
package ladder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vip-ladder/tierbot/internal/app/progress"
	"github.com/vip-ladder/tierbot/internal/app/promotion"
	"github.com/vip-ladder/tierbot/internal/app/roles"
	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/infra/observability"
)

// Mode selects how a tier increase is applied.
type Mode string

const (
	ModeConfirm Mode = "confirm" // offer a promotion the user must accept
	ModeAuto    Mode = "auto"    // reconcile groups immediately
)

// ParseMode validates a configured mode string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeConfirm, ModeAuto:
		return Mode(s), nil
	case "":
		return ModeConfirm, nil
	}
	return "", fmt.Errorf("%w: unknown promotion mode %q", domain.ErrConfiguration, s)
}

// ActivityOutcome reports what one activity event did.
type ActivityOutcome struct {
	Progress   domain.UserProgress `json:"progress"`
	Resolution domain.Resolution   `json:"resolution"`
	Rose       bool                `json:"rose"`             // this increment crossed a threshold
	Offer      *promotion.Offer    `json:"offer,omitempty"`  // confirm mode: a fresh offer to prompt
	Result     *roles.Result       `json:"result,omitempty"` // auto mode: what reconcile did
}

// StatusReport answers a status query.
type StatusReport struct {
	UserID     string              `json:"user_id"`
	Resolution domain.Resolution   `json:"resolution"`
	Local      domain.UserProgress `json:"local"`
	HeldTier   int                 `json:"held_tier"`
	Offer      *promotion.Offer    `json:"offer,omitempty"`
}

// Engine wires the tier components together.
type Engine struct {
	mode     Mode
	table    *domain.TierTable
	store    *progress.Store
	sync     *roles.Synchronizer
	workflow *promotion.Workflow
	groups   domain.GroupAPI
	counts   domain.CountLookup
	logger   *slog.Logger

	mu      sync.Mutex
	settled map[string]int // confirm mode: user → tier already covered by a held group
}

// Deps groups the engine's collaborators.
type Deps struct {
	Table    *domain.TierTable
	Store    *progress.Store
	Sync     *roles.Synchronizer
	Workflow *promotion.Workflow
	Groups   domain.GroupAPI
	Counts   domain.CountLookup
	Logger   *slog.Logger
}

// New creates an engine.
func New(mode Mode, d Deps) *Engine {
	return &Engine{
		mode:     mode,
		table:    d.Table,
		store:    d.Store,
		sync:     d.Sync,
		workflow: d.Workflow,
		groups:   d.Groups,
		counts:   d.Counts,
		logger:   observability.Component(d.Logger, "ladder"),
		settled:  make(map[string]int),
	}
}

// Mode returns how tier increases are applied.
func (e *Engine) Mode() Mode { return e.mode }

// Table returns the tier table.
func (e *Engine) Table() *domain.TierTable { return e.table }

// Resolve maps a count onto the tier table.
func (e *Engine) Resolve(count int64) domain.Resolution { return e.table.Resolve(count) }

// Binding returns the tier/group lookup.
func (e *Engine) Binding() *roles.Binding { return e.sync.Binding() }

// Progress returns the local record for userID.
func (e *Engine) Progress(userID string) domain.UserProgress { return e.store.Get(userID) }

// Tracked returns how many users have a record and how many await a flush.
func (e *Engine) Tracked() (users, pending int) { return e.store.Len(), e.store.Pending() }

// HandleActivity counts one activity and acts whenever the computed tier is
// above the acknowledged one.
//
// Only the increment is guaranteed; the returned error describes a failed
// follow-up (group listing, reconcile, offer) that the caller should log and
// otherwise ignore. A failed follow-up is retried by the user's next event.
func (e *Engine) HandleActivity(ctx context.Context, ev domain.ActivityEvent) (ActivityOutcome, error) {
	p := e.store.Increment(ev.UserID)
	res := e.table.Resolve(p.ActivityCount)
	out := ActivityOutcome{
		Progress:   p,
		Resolution: res,
		Rose:       e.table.Rose(p.ActivityCount-1, p.ActivityCount),
	}
	if !res.Qualified || res.Index <= p.AcknowledgedTier {
		return out, nil
	}
	if e.mode == ModeAuto {
		return e.apply(ctx, ev, out)
	}
	return e.offer(ctx, ev, out)
}

func (e *Engine) apply(ctx context.Context, ev domain.ActivityEvent, out ActivityOutcome) (ActivityOutcome, error) {
	res := out.Resolution
	held, err := e.groups.ListHeld(ctx, ev.GuildID, ev.UserID)
	if err != nil {
		return out, fmt.Errorf("%w: list groups: %v", domain.ErrGroupOperation, err)
	}
	if res.Index <= e.sync.Binding().HighestHeld(held) {
		// Already at or above; only record it.
		e.store.SetAcknowledgedTier(ev.UserID, res.Index)
		return out, nil
	}

	r, err := e.sync.Reconcile(ctx, ev.GuildID, ev.UserID, res.Index, held)
	out.Result = &r
	if err != nil {
		return out, err
	}
	if !r.OK() {
		return out, fmt.Errorf("%w: %d operation(s) failed", domain.ErrGroupOperation, len(r.Failures))
	}
	e.store.SetAcknowledgedTier(ev.UserID, res.Index)
	observability.TierChanges.WithLabelValues(res.Name, string(ModeAuto)).Inc()
	e.logger.Info("tier applied", "user", ev.UserID, "tier", res.Name, "count", out.Progress.ActivityCount)
	return out, nil
}

func (e *Engine) offer(ctx context.Context, ev domain.ActivityEvent, out ActivityOutcome) (ActivityOutcome, error) {
	res := out.Resolution
	if e.workflow.Covers(ev.UserID, res.Index) || e.heldCovers(ev.UserID, res.Index) {
		return out, nil
	}

	held, err := e.groups.ListHeld(ctx, ev.GuildID, ev.UserID)
	if err != nil {
		return out, fmt.Errorf("%w: list groups: %v", domain.ErrGroupOperation, err)
	}
	highest := e.sync.Binding().HighestHeld(held)
	if res.Index <= highest {
		e.mu.Lock()
		e.settled[ev.UserID] = highest
		e.mu.Unlock()
		return out, nil
	}

	o, fresh, err := e.workflow.Arm(ev.GuildID, ev.UserID, res.Index, highest)
	if errors.Is(err, domain.ErrNotEligible) {
		return out, nil
	}
	if err != nil {
		return out, err
	}
	if fresh {
		out.Offer = &o
	}
	return out, nil
}

// heldCovers reports whether a group seen earlier already covers tier idx.
func (e *Engine) heldCovers(userID string, idx int) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	h, ok := e.settled[userID]
	return ok && idx <= h
}

// Status reports userID's tier from the authoritative count.
//
// A lookup failure wraps domain.ErrTransientLookup and changes nothing. In
// confirm mode a qualified user above their highest held tier gets a live
// offer attached to the report; no durable state is touched.
func (e *Engine) Status(ctx context.Context, guildID, userID string) (StatusReport, error) {
	count, err := e.counts.FetchCount(ctx, guildID, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrTransientLookup) {
			err = fmt.Errorf("%w: %v", domain.ErrTransientLookup, err)
		}
		return StatusReport{}, err
	}

	rep := StatusReport{
		UserID:     userID,
		Resolution: e.table.Resolve(count),
		Local:      e.store.Get(userID),
		HeldTier:   domain.NoTier,
	}
	if e.mode != ModeConfirm || !rep.Resolution.Qualified {
		return rep, nil
	}

	held, err := e.groups.ListHeld(ctx, guildID, userID)
	if err != nil {
		// The status itself is still answerable.
		e.logger.Warn("status: list groups failed", "user", userID, "error", err)
		return rep, nil
	}
	rep.HeldTier = e.sync.Binding().HighestHeld(held)

	o, err := e.workflow.Offer(guildID, userID, rep.Resolution.Index, rep.HeldTier)
	switch {
	case err == nil:
		rep.Offer = &o
	case !errors.Is(err, domain.ErrNotEligible):
		e.logger.Warn("status: offer failed", "user", userID, "error", err)
	}
	return rep, nil
}

// Confirm applies a promotion the user accepted.
func (e *Engine) Confirm(ctx context.Context, rawToken, requesterID string) (promotion.Confirmation, error) {
	return e.workflow.Confirm(ctx, rawToken, requesterID)
}

// PromptLost ends an offer whose prompt could not be delivered.
func (e *Engine) PromptLost(o promotion.Offer) {
	e.workflow.Expire(o.UserID, o.ID)
}
