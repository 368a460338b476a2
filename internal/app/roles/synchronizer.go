package roles

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/infra/observability"
)

// Result reports what one reconciliation did.
type Result struct {
	Granted  []string                  `json:"granted,omitempty"`
	Revoked  []string                  `json:"revoked,omitempty"`
	Skipped  bool                      `json:"skipped"` // nothing was attempted
	Failures []domain.OperationFailure `json:"failures,omitempty"`
}

// OK reports whether every required operation was attempted and succeeded.
func (r Result) OK() bool { return !r.Skipped && len(r.Failures) == 0 }

// Operations returns how many grant/revoke calls succeeded.
func (r Result) Operations() int { return len(r.Granted) + len(r.Revoked) }

// Synchronizer applies the minimal grant/revoke set that leaves a member
// holding exactly the target tier's group.
type Synchronizer struct {
	binding *Binding
	groups  domain.GroupAPI
	logger  *slog.Logger
}

// NewSynchronizer creates a synchronizer.
func NewSynchronizer(binding *Binding, groups domain.GroupAPI, logger *slog.Logger) *Synchronizer {
	return &Synchronizer{
		binding: binding,
		groups:  groups,
		logger:  observability.Component(logger, "roles"),
	}
}

// Binding returns the tier/group lookup.
func (s *Synchronizer) Binding() *Binding { return s.binding }

// Reconcile moves userID from its held tier groups to target's group.
//
// Desired state is recomputed from held on every call, so an unchanged input
// issues no operations. Revokes run before the grant; each call is
// independent and failures are collected rather than aborting the rest. If
// the target group does not resolve in the guild nothing is attempted and the
// returned error wraps domain.ErrConfiguration.
func (s *Synchronizer) Reconcile(ctx context.Context, guildID, userID string, target int, held []string) (Result, error) {
	want, ok := s.binding.GroupFor(target)
	if !ok {
		observability.ReconcileSkipped.WithLabelValues("unbound").Inc()
		return Result{Skipped: true}, fmt.Errorf("%w: no group bound to tier %d", domain.ErrConfiguration, target)
	}

	exists, err := s.groups.GroupExists(ctx, guildID, want)
	if err != nil {
		observability.ReconcileSkipped.WithLabelValues("lookup_failed").Inc()
		return Result{Skipped: true}, fmt.Errorf("%w: resolve group %s: %v", domain.ErrGroupOperation, want, err)
	}
	if !exists {
		observability.ReconcileSkipped.WithLabelValues("missing").Inc()
		return Result{Skipped: true}, fmt.Errorf("%w: group %s not found in guild %s", domain.ErrConfiguration, want, guildID)
	}

	var res Result
	hasWant := false
	for _, g := range dedupe(s.binding.TierGroups(held)) {
		if g == want {
			hasWant = true
			continue
		}
		if err := s.groups.Revoke(ctx, guildID, userID, g); err != nil {
			res.Failures = append(res.Failures, domain.OperationFailure{Op: domain.OpRevoke, GroupID: g, Err: err})
			observability.GroupOperations.WithLabelValues(string(domain.OpRevoke), "error").Inc()
			s.logger.Warn("revoke failed", "user", userID, "group", g, "error", err)
			continue
		}
		res.Revoked = append(res.Revoked, g)
		observability.GroupOperations.WithLabelValues(string(domain.OpRevoke), "ok").Inc()
	}

	if !hasWant {
		if err := s.groups.Grant(ctx, guildID, userID, want); err != nil {
			res.Failures = append(res.Failures, domain.OperationFailure{Op: domain.OpGrant, GroupID: want, Err: err})
			observability.GroupOperations.WithLabelValues(string(domain.OpGrant), "error").Inc()
			s.logger.Warn("grant failed", "user", userID, "group", want, "error", err)
		} else {
			res.Granted = append(res.Granted, want)
			observability.GroupOperations.WithLabelValues(string(domain.OpGrant), "ok").Inc()
		}
	}

	s.logger.Debug("reconciled", "user", userID, "target", target,
		"granted", len(res.Granted), "revoked", len(res.Revoked), "failures", len(res.Failures))
	return res, nil
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0:0]
	for _, g := range in {
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}
