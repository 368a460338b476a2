// Package domain contains the pure tier-ladder types with ZERO infrastructure imports.
// This is the innermost ring: the resolver, progress records, interaction
// tokens and the interfaces the outer layers implement.
package domain

import (
	"fmt"
	"sort"
)

// ─── Tier Types ─────────────────────────────────────────────────────────────

// MaxTierName is reported as the next tier once a user sits on the last rung.
const MaxTierName = "max"

// TierDefinition is one rung of the loyalty ladder.
type TierDefinition struct {
	Name      string `json:"name" toml:"name"`
	Threshold int64  `json:"threshold" toml:"threshold"` // Activity count that unlocks the tier
}

// TierTable is the ordered, immutable ladder. Build it with NewTierTable.
type TierTable struct {
	tiers []TierDefinition
}

// NewTierTable validates defs and returns a table that owns a copy of them.
// Thresholds must be non-negative and strictly increasing; names must be
// unique and non-empty.
func NewTierTable(defs []TierDefinition) (*TierTable, error) {
	if len(defs) == 0 {
		return nil, fmt.Errorf("%w: no tiers defined", ErrInvalidTierTable)
	}
	seen := make(map[string]bool, len(defs))
	for i, d := range defs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", ErrInvalidTierTable, i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: duplicate tier name %q", ErrInvalidTierTable, d.Name)
		}
		seen[d.Name] = true
		if d.Threshold < 0 {
			return nil, fmt.Errorf("%w: tier %q has negative threshold %d", ErrInvalidTierTable, d.Name, d.Threshold)
		}
		if i > 0 && d.Threshold <= defs[i-1].Threshold {
			return nil, fmt.Errorf("%w: threshold of %q (%d) must exceed %q (%d)",
				ErrInvalidTierTable, d.Name, d.Threshold, defs[i-1].Name, defs[i-1].Threshold)
		}
	}
	out := make([]TierDefinition, len(defs))
	copy(out, defs)
	return &TierTable{tiers: out}, nil
}

// MustTierTable is NewTierTable for static ladders known to be valid.
func MustTierTable(defs []TierDefinition) *TierTable {
	t, err := NewTierTable(defs)
	if err != nil {
		panic(err)
	}
	return t
}

// Len returns the number of tiers.
func (t *TierTable) Len() int { return len(t.tiers) }

// At returns the tier at index i. It panics on an out-of-range index like a slice.
func (t *TierTable) At(i int) TierDefinition { return t.tiers[i] }

// Valid reports whether i names a tier in the table.
func (t *TierTable) Valid(i int) bool { return i >= 0 && i < len(t.tiers) }

// Definitions returns a copy of the ladder in order.
func (t *TierTable) Definitions() []TierDefinition {
	out := make([]TierDefinition, len(t.tiers))
	copy(out, t.tiers)
	return out
}

// IndexOf returns the index of the tier with the given name, or -1.
func (t *TierTable) IndexOf(name string) int {
	for i, d := range t.tiers {
		if d.Name == name {
			return i
		}
	}
	return -1
}

// ─── Resolver ───────────────────────────────────────────────────────────────

// Resolution is the outcome of mapping an activity count onto the ladder.
type Resolution struct {
	Count     int64  `json:"count"`
	Index     int    `json:"tier_index"`
	Name      string `json:"tier_name"`
	Threshold int64  `json:"threshold"`
	NextName  string `json:"next_tier"`        // MaxTierName at the top
	Remaining int64  `json:"remaining_to_next"` // 0 when AtMax
	AtMax     bool   `json:"at_max"`
	Qualified bool   `json:"qualified"` // false only under the floor-tier policy
}

// Resolve maps count onto the ladder.
//
// Index is the highest i with count >= threshold[i]. Floor-tier policy: a
// count below the first threshold still resolves to index 0, with Qualified
// false, so every active member sits on the lowest named tier. Callers must
// not grant the floor tier's group unless Qualified is true.
func (t *TierTable) Resolve(count int64) Resolution {
	if count < 0 {
		count = 0
	}
	// First index whose threshold exceeds count; the tier below it is ours.
	above := sort.Search(len(t.tiers), func(i int) bool {
		return t.tiers[i].Threshold > count
	})
	idx := above - 1
	qualified := true
	if idx < 0 {
		idx = 0
		qualified = false
	}

	r := Resolution{
		Count:     count,
		Index:     idx,
		Name:      t.tiers[idx].Name,
		Threshold: t.tiers[idx].Threshold,
		Qualified: qualified,
	}
	if idx == len(t.tiers)-1 {
		r.AtMax = true
		r.NextName = MaxTierName
		return r
	}
	next := t.tiers[idx+1]
	r.NextName = next.Name
	r.Remaining = next.Threshold - count
	return r
}

// Rose reports whether moving from prev to curr crossed into a higher
// qualified tier.
func (t *TierTable) Rose(prev, curr int64) bool {
	a, b := t.Resolve(prev), t.Resolve(curr)
	if !b.Qualified {
		return false
	}
	return !a.Qualified || b.Index > a.Index
}
