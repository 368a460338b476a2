// Package promotion gates upward tier changes behind an explicit confirmation
// from the promoted user.
//
// Lifecycle of an offer:
//
//	IDLE → OFFERED → CONFIRMING → CONFIRMED
//	          │           └─(reconcile failed)→ OFFERED
//	          ├──(higher target armed)→ SUPERSEDED
//	          └──(TTL elapsed / prompt lost)→ EXPIRED
//
// At most one offer per user is live. Offers live only in memory, for as long
// as the prompt that carries them.
package promotion

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vip-ladder/tierbot/internal/app/roles"
	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/infra/observability"
)

// ─── Types ──────────────────────────────────────────────────────────────────

// State is an offer's position in the lifecycle.
type State string

const (
	StateOffered    State = "OFFERED"
	StateConfirming State = "CONFIRMING"
	StateConfirmed  State = "CONFIRMED"
	StateExpired    State = "EXPIRED"
	StateSuperseded State = "SUPERSEDED"
)

// Offer is a pending upward transition for one user.
type Offer struct {
	ID         uuid.UUID `json:"id"`
	UserID     string    `json:"user_id"`
	GuildID    string    `json:"guild_id"`
	Target     int       `json:"target"`
	TargetName string    `json:"target_name"`
	OfferedAt  time.Time `json:"offered_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	State      State     `json:"state"`
}

// Token returns the identifier a prompt carries back on confirmation.
func (o Offer) Token() domain.PromotionToken {
	return domain.PromotionToken{
		Kind:    domain.TokenPromote,
		UserID:  o.UserID,
		Target:  o.Target,
		OfferID: o.ID,
	}
}

// Confirmation is the outcome of a confirmation attempt that reached
// reconciliation.
type Confirmation struct {
	Offer  Offer        `json:"offer"`
	Result roles.Result `json:"result"`
}

// ProgressStore is the part of the progress store the workflow needs.
type ProgressStore interface {
	Get(userID string) domain.UserProgress
	SetAcknowledgedTier(userID string, idx int) bool
	Persist(ctx context.Context) error
}

// Reconciler applies a tier's group to a member.
type Reconciler interface {
	Reconcile(ctx context.Context, guildID, userID string, target int, held []string) (roles.Result, error)
}

// Config controls offer lifetime.
type Config struct {
	TTL time.Duration // How long a prompt stays confirmable (default: 15m)
}

// DefaultConfig returns the default offer lifetime.
func DefaultConfig() Config {
	return Config{TTL: 15 * time.Minute}
}

// ─── Workflow ───────────────────────────────────────────────────────────────

// Workflow holds the live offer table.
type Workflow struct {
	mu     sync.Mutex
	offers map[string]*Offer // user ID → live offer

	table    *domain.TierTable
	progress ProgressStore
	groups   domain.GroupAPI
	sync     Reconciler
	cfg      Config
	logger   *slog.Logger
	now      func() time.Time // injectable clock for testing
}

// New creates a workflow.
func New(cfg Config, table *domain.TierTable, progress ProgressStore, groups domain.GroupAPI, rec Reconciler, logger *slog.Logger) *Workflow {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultConfig().TTL
	}
	return &Workflow{
		offers:   make(map[string]*Offer),
		table:    table,
		progress: progress,
		groups:   groups,
		sync:     rec,
		cfg:      cfg,
		logger:   observability.Component(logger, "promotion"),
		now:      time.Now,
	}
}

// Offer arms a promotion of userID to target.
//
// highestHeld must come from the member's actual groups at offer time: a
// user already holding target or above (granted manually, or by another
// path) is never offered a regression. The acknowledged tier must also be
// below target. If a live offer already targets target or higher it is
// returned unchanged; a lower one is superseded.
func (w *Workflow) Offer(guildID, userID string, target, highestHeld int) (Offer, error) {
	o, _, err := w.Arm(guildID, userID, target, highestHeld)
	return o, err
}

// Arm is Offer that also reports whether the returned offer is new. A caller
// that prompts on every armed offer prompts only when fresh is true.
func (w *Workflow) Arm(guildID, userID string, target, highestHeld int) (o Offer, fresh bool, err error) {
	if !w.table.Valid(target) {
		return Offer{}, false, fmt.Errorf("%w: tier %d out of range", domain.ErrNotEligible, target)
	}
	if target <= highestHeld {
		return Offer{}, false, fmt.Errorf("%w: already holds tier %d", domain.ErrNotEligible, highestHeld)
	}
	ack := w.progress.Get(userID).AcknowledgedTier
	if target <= ack {
		return Offer{}, false, fmt.Errorf("%w: tier %d already acknowledged", domain.ErrNotEligible, ack)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if cur, ok := w.offers[userID]; ok {
		switch {
		case cur.State == StateOffered && !now.Before(cur.ExpiresAt):
			w.endLocked(cur, StateExpired)
		case cur.Target >= target:
			return *cur, false, nil
		default:
			w.endLocked(cur, StateSuperseded)
		}
	}

	next := &Offer{
		ID:         uuid.New(),
		UserID:     userID,
		GuildID:    guildID,
		Target:     target,
		TargetName: w.table.At(target).Name,
		OfferedAt:  now,
		ExpiresAt:  now.Add(w.cfg.TTL),
		State:      StateOffered,
	}
	w.offers[userID] = next
	observability.Offers.WithLabelValues("offered").Inc()
	observability.LiveOffers.Set(float64(len(w.offers)))
	w.logger.Info("promotion offered", "user", userID, "target", next.TargetName, "offer", next.ID)
	return *next, true, nil
}

// Covers reports whether userID has an unexpired offer for target or higher.
func (w *Workflow) Covers(userID string, target int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, ok := w.offers[userID]
	if !ok || cur.Target < target {
		return false
	}
	return cur.State == StateConfirming || w.now().Before(cur.ExpiresAt)
}

// Confirm applies the offer identified by raw on behalf of requesterID.
//
// Only the offer's subject may confirm, and only the offer that is live right
// now: a superseded, expired or already-claimed token fails with
// domain.ErrOfferInvalid. If reconciliation fails the offer stays confirmable
// and the returned Confirmation carries the per-operation failures.
func (w *Workflow) Confirm(ctx context.Context, raw, requesterID string) (Confirmation, error) {
	tok, err := domain.ParsePromotionToken(raw)
	if err != nil {
		observability.Offers.WithLabelValues("rejected").Inc()
		return Confirmation{}, err
	}
	if requesterID != tok.UserID {
		observability.Offers.WithLabelValues("rejected").Inc()
		w.logger.Info("confirmation by non-subject rejected", "user", tok.UserID, "requester", requesterID)
		return Confirmation{}, fmt.Errorf("%w: offer belongs to another user", domain.ErrUnauthorized)
	}

	claimed, err := w.claim(tok)
	if err != nil {
		return Confirmation{}, err
	}
	conf := Confirmation{Offer: claimed}

	// The offer may predate an operator's promotion.
	if ack := w.progress.Get(claimed.UserID).AcknowledgedTier; ack >= claimed.Target {
		w.finish(claimed, StateSuperseded)
		return conf, fmt.Errorf("%w: tier %d already acknowledged", domain.ErrOfferStale, ack)
	}

	held, err := w.groups.ListHeld(ctx, claimed.GuildID, claimed.UserID)
	if err != nil {
		w.release(claimed)
		return conf, fmt.Errorf("%w: list groups: %v", domain.ErrGroupOperation, err)
	}

	res, err := w.sync.Reconcile(ctx, claimed.GuildID, claimed.UserID, claimed.Target, held)
	conf.Result = res
	if err != nil {
		w.release(claimed)
		return conf, err
	}
	if !res.OK() {
		w.release(claimed)
		return conf, fmt.Errorf("%w: %d of %d operation(s) failed",
			domain.ErrGroupOperation, len(res.Failures), len(res.Failures)+res.Operations())
	}

	w.progress.SetAcknowledgedTier(claimed.UserID, claimed.Target)
	if err := w.progress.Persist(ctx); err != nil {
		// The grant already happened; the acknowledgment is retried by the next flush.
		w.logger.Warn("acknowledged tier not yet persisted", "user", claimed.UserID, "error", err)
	}
	observability.TierChanges.WithLabelValues(claimed.TargetName, "confirm").Inc()
	w.finish(claimed, StateConfirmed)
	conf.Offer.State = StateConfirmed
	w.logger.Info("promotion confirmed", "user", claimed.UserID, "target", claimed.TargetName)
	return conf, nil
}

// Expire ends offerID because its prompt is gone. It reports whether the
// offer was live.
func (w *Workflow) Expire(userID string, offerID uuid.UUID) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	cur, ok := w.offers[userID]
	if !ok || cur.ID != offerID || cur.State != StateOffered {
		return false
	}
	w.endLocked(cur, StateExpired)
	return true
}

// Sweep drops offers whose TTL has elapsed and returns how many it dropped.
func (w *Workflow) Sweep() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	n := 0
	for _, o := range w.offers {
		if o.State == StateOffered && !now.Before(o.ExpiresAt) {
			w.endLocked(o, StateExpired)
			n++
		}
	}
	return n
}

// Run sweeps expired offers every interval until ctx is done.
func (w *Workflow) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if n := w.Sweep(); n > 0 {
				w.logger.Debug("expired offers swept", "count", n)
			}
		}
	}
}

// Live returns userID's live offer.
func (w *Workflow) Live(userID string) (Offer, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	o, ok := w.offers[userID]
	if !ok {
		return Offer{}, false
	}
	return *o, true
}

// ─── Internals ──────────────────────────────────────────────────────────────

// claim moves the live offer matching tok to CONFIRMING.
func (w *Workflow) claim(tok domain.PromotionToken) (Offer, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	cur, ok := w.offers[tok.UserID]
	if !ok || cur.ID != tok.OfferID || cur.Target != tok.Target {
		observability.Offers.WithLabelValues("rejected").Inc()
		return Offer{}, fmt.Errorf("%w: no matching live offer", domain.ErrOfferInvalid)
	}
	if cur.State == StateConfirming {
		return Offer{}, fmt.Errorf("%w: confirmation already in progress", domain.ErrOfferInvalid)
	}
	if !w.now().Before(cur.ExpiresAt) {
		w.endLocked(cur, StateExpired)
		return Offer{}, fmt.Errorf("%w: offer expired", domain.ErrOfferInvalid)
	}
	cur.State = StateConfirming
	return *cur, nil
}

// release returns a claimed offer to OFFERED if it is still the live one.
func (w *Workflow) release(o Offer) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.offers[o.UserID]; ok && cur.ID == o.ID {
		cur.State = StateOffered
	}
	observability.Offers.WithLabelValues("failed").Inc()
}

// finish ends a claimed offer if it is still the live one.
func (w *Workflow) finish(o Offer, final State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if cur, ok := w.offers[o.UserID]; ok && cur.ID == o.ID {
		w.endLocked(cur, final)
		return
	}
	observability.Offers.WithLabelValues(outcome(final)).Inc()
}

func (w *Workflow) endLocked(o *Offer, final State) {
	o.State = final
	delete(w.offers, o.UserID)
	observability.Offers.WithLabelValues(outcome(final)).Inc()
	observability.LiveOffers.Set(float64(len(w.offers)))
}

func outcome(s State) string {
	switch s {
	case StateConfirmed:
		return "confirmed"
	case StateExpired:
		return "expired"
	case StateSuperseded:
		return "superseded"
	default:
		return "ended"
	}
}
