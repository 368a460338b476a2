// Package testutil provides in-memory fakes of the platform interfaces for
// tests across tierbot packages.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/vip-ladder/tierbot/internal/domain"
)

// ErrInjected is returned by fakes configured to fail.
var ErrInjected = errors.New("injected failure")

// Call records one mutating call on Groups.
type Call struct {
	Op      domain.GroupOp
	UserID  string
	GroupID string
}

// Groups is a guild membership fake implementing domain.GroupAPI.
type Groups struct {
	mu       sync.Mutex
	existing map[string]bool            // group IDs that resolve in the guild
	held     map[string]map[string]bool // user → groups
	calls    []Call

	FailGrant  map[string]bool // group IDs whose grant fails
	FailRevoke map[string]bool // group IDs whose revoke fails
	FailList   bool
	FailExists bool
}

var _ domain.GroupAPI = (*Groups)(nil)

// NewGroups creates a guild in which every group in existing resolves.
func NewGroups(existing ...string) *Groups {
	g := &Groups{
		existing:   make(map[string]bool),
		held:       make(map[string]map[string]bool),
		FailGrant:  make(map[string]bool),
		FailRevoke: make(map[string]bool),
	}
	for _, id := range existing {
		g.existing[id] = true
	}
	return g
}

// Give makes userID hold groups without recording a call.
func (g *Groups) Give(userID string, groups ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.held[userID] == nil {
		g.held[userID] = make(map[string]bool)
	}
	for _, id := range groups {
		g.held[userID][id] = true
	}
}

// Delete makes groupID stop resolving in the guild.
func (g *Groups) Delete(groupID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.existing, groupID)
}

// Held returns userID's groups sorted.
func (g *Groups) Held(userID string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.heldLocked(userID)
}

// Calls returns a copy of recorded grant/revoke calls.
func (g *Groups) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Call, len(g.calls))
	copy(out, g.calls)
	return out
}

// ResetCalls clears the call log.
func (g *Groups) ResetCalls() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

func (g *Groups) ListHeld(ctx context.Context, guildID, userID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailList {
		return nil, ErrInjected
	}
	return g.heldLocked(userID), nil
}

func (g *Groups) Grant(ctx context.Context, guildID, userID, groupID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: domain.OpGrant, UserID: userID, GroupID: groupID})
	if g.FailGrant[groupID] {
		return ErrInjected
	}
	if !g.existing[groupID] {
		return fmt.Errorf("unknown group %s", groupID)
	}
	if g.held[userID] == nil {
		g.held[userID] = make(map[string]bool)
	}
	g.held[userID][groupID] = true
	return nil
}

func (g *Groups) Revoke(ctx context.Context, guildID, userID, groupID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, Call{Op: domain.OpRevoke, UserID: userID, GroupID: groupID})
	if g.FailRevoke[groupID] {
		return ErrInjected
	}
	delete(g.held[userID], groupID)
	return nil
}

func (g *Groups) GroupExists(ctx context.Context, guildID, groupID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.FailExists {
		return false, ErrInjected
	}
	return g.existing[groupID], nil
}

func (g *Groups) heldLocked(userID string) []string {
	var out []string
	for id := range g.held[userID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Counts is a CountLookup fake.
type Counts struct {
	mu     sync.Mutex
	counts map[string]int64
	Fail   bool
}

var _ domain.CountLookup = (*Counts)(nil)

// NewCounts creates an empty lookup.
func NewCounts() *Counts {
	return &Counts{counts: make(map[string]int64)}
}

// Set fixes the authoritative count for userID.
func (c *Counts) Set(userID string, n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[userID] = n
}

func (c *Counts) FetchCount(ctx context.Context, guildID, userID string) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.Fail {
		return 0, fmt.Errorf("%w: %v", domain.ErrTransientLookup, ErrInjected)
	}
	return c.counts[userID], nil
}

// Count returns the recorded operations of one kind.
func Count(calls []Call, op domain.GroupOp) int {
	n := 0
	for _, c := range calls {
		if c.Op == op {
			n++
		}
	}
	return n
}
