// Package roles maps ladder tiers onto guild groups and reconciles a member's
// held tier groups with the tier they should hold.
package roles

import (
	"fmt"

	"github.com/vip-ladder/tierbot/internal/domain"
)

// TierGroupBinding ties one tier name to an external group ID.
type TierGroupBinding struct {
	TierName string `json:"tier_name"`
	GroupID  string `json:"group_id"`
}

// Binding is the tier-index ⇄ group-ID lookup. Groups are guild-scoped and
// resolved at use time; the binding itself is not.
type Binding struct {
	groups  []string       // tier index → group ID ("" when unbound)
	byGroup map[string]int // group ID → tier index
}

// NewBinding indexes bindings against table. Every binding must name a tier
// in the table and no group may serve two tiers. Tiers without a binding are
// allowed; reconciling to them fails as a configuration error.
func NewBinding(table *domain.TierTable, bindings []TierGroupBinding) (*Binding, error) {
	b := &Binding{
		groups:  make([]string, table.Len()),
		byGroup: make(map[string]int, len(bindings)),
	}
	for _, tb := range bindings {
		idx := table.IndexOf(tb.TierName)
		if idx < 0 {
			return nil, fmt.Errorf("%w: binding for unknown tier %q", domain.ErrConfiguration, tb.TierName)
		}
		if tb.GroupID == "" {
			return nil, fmt.Errorf("%w: tier %q has an empty group id", domain.ErrConfiguration, tb.TierName)
		}
		if prev, dup := b.byGroup[tb.GroupID]; dup && prev != idx {
			return nil, fmt.Errorf("%w: group %s bound to both %q and %q",
				domain.ErrConfiguration, tb.GroupID, table.At(prev).Name, tb.TierName)
		}
		b.groups[idx] = tb.GroupID
		b.byGroup[tb.GroupID] = idx
	}
	return b, nil
}

// GroupFor returns the group bound to tier idx.
func (b *Binding) GroupFor(idx int) (string, bool) {
	if idx < 0 || idx >= len(b.groups) || b.groups[idx] == "" {
		return "", false
	}
	return b.groups[idx], true
}

// TierOf returns the tier index bound to groupID.
func (b *Binding) TierOf(groupID string) (int, bool) {
	idx, ok := b.byGroup[groupID]
	return idx, ok
}

// TierGroups filters held down to the groups that belong to the ladder.
func (b *Binding) TierGroups(held []string) []string {
	var out []string
	for _, g := range held {
		if _, ok := b.byGroup[g]; ok {
			out = append(out, g)
		}
	}
	return out
}

// HighestHeld returns the highest tier index among held, or domain.NoTier.
func (b *Binding) HighestHeld(held []string) int {
	highest := domain.NoTier
	for _, g := range held {
		if idx, ok := b.byGroup[g]; ok && idx > highest {
			highest = idx
		}
	}
	return highest
}
