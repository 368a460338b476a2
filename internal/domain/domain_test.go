package domain

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func threeTiers(t *testing.T) *TierTable {
	t.Helper()
	table, err := NewTierTable([]TierDefinition{
		{Name: "T1", Threshold: 0},
		{Name: "T2", Threshold: 500},
		{Name: "T3", Threshold: 1000},
	})
	require.NoError(t, err)
	return table
}

// ─── TierTable Validation ───────────────────────────────────────────────────

func TestNewTierTable_Invalid(t *testing.T) {
	tests := []struct {
		name string
		defs []TierDefinition
	}{
		{"empty", nil},
		{"unnamed", []TierDefinition{{Name: "", Threshold: 0}}},
		{"duplicate", []TierDefinition{{Name: "A", Threshold: 0}, {Name: "A", Threshold: 5}}},
		{"negative", []TierDefinition{{Name: "A", Threshold: -1}}},
		{"equal thresholds", []TierDefinition{{Name: "A", Threshold: 5}, {Name: "B", Threshold: 5}}},
		{"decreasing", []TierDefinition{{Name: "A", Threshold: 10}, {Name: "B", Threshold: 5}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTierTable(tt.defs)
			assert.ErrorIs(t, err, ErrInvalidTierTable)
		})
	}
}

func TestTierTable_CopiesInput(t *testing.T) {
	defs := []TierDefinition{{Name: "A", Threshold: 0}, {Name: "B", Threshold: 10}}
	table, err := NewTierTable(defs)
	require.NoError(t, err)

	defs[1].Threshold = 99
	assert.Equal(t, int64(10), table.At(1).Threshold)
	assert.Equal(t, 1, table.IndexOf("B"))
	assert.Equal(t, -1, table.IndexOf("Z"))
}

// ─── Resolve ────────────────────────────────────────────────────────────────

func TestResolve_Scenario(t *testing.T) {
	table := threeTiers(t)

	r := table.Resolve(499)
	assert.Equal(t, 0, r.Index)
	assert.Equal(t, "T1", r.Name)
	assert.Equal(t, "T2", r.NextName)
	assert.Equal(t, int64(1), r.Remaining)

	r = table.Resolve(500)
	assert.Equal(t, 1, r.Index)
	assert.Equal(t, "T2", r.Name)
	assert.Equal(t, int64(500), r.Remaining)
	assert.False(t, r.AtMax)
}

func TestResolve_Boundaries(t *testing.T) {
	table := threeTiers(t)
	for i := 0; i < table.Len(); i++ {
		th := table.At(i).Threshold
		assert.Equal(t, i, table.Resolve(th).Index, "count == threshold[%d]", i)
		if th > 0 {
			assert.Equal(t, i-1, table.Resolve(th-1).Index, "count == threshold[%d]-1", i)
		}
	}
}

func TestResolve_Max(t *testing.T) {
	table, err := NewTierTable([]TierDefinition{
		{Name: "VIP1", Threshold: 500},
		{Name: "VIP11", Threshold: 35000},
		{Name: "VIP12", Threshold: 40000},
	})
	require.NoError(t, err)

	r := table.Resolve(40000)
	assert.Equal(t, 2, r.Index)
	assert.True(t, r.AtMax)
	assert.Equal(t, MaxTierName, r.NextName)
	assert.Zero(t, r.Remaining)

	r = table.Resolve(1 << 40)
	assert.Equal(t, "VIP12", r.Name)
}

func TestResolve_FloorPolicy(t *testing.T) {
	table, err := NewTierTable([]TierDefinition{
		{Name: "VIP1", Threshold: 500},
		{Name: "VIP2", Threshold: 1000},
	})
	require.NoError(t, err)

	r := table.Resolve(10)
	assert.Equal(t, 0, r.Index, "below first threshold resolves to the floor tier")
	assert.False(t, r.Qualified)
	assert.Equal(t, "VIP2", r.NextName)
	assert.Equal(t, int64(990), r.Remaining)

	assert.True(t, table.Resolve(500).Qualified)
	assert.Equal(t, 0, table.Resolve(-5).Index)
}

func TestResolve_Uniqueness(t *testing.T) {
	table := threeTiers(t)
	for count := int64(0); count <= 1200; count++ {
		r := table.Resolve(count)
		i := r.Index
		require.LessOrEqual(t, table.At(i).Threshold, count)
		if i < table.Len()-1 {
			require.Greater(t, table.At(i+1).Threshold, count)
		}
	}
}

func TestRose(t *testing.T) {
	table := threeTiers(t)
	assert.True(t, table.Rose(499, 500))
	assert.False(t, table.Rose(500, 501))
	assert.True(t, table.Rose(0, 1000))

	floor, err := NewTierTable([]TierDefinition{{Name: "A", Threshold: 2}, {Name: "B", Threshold: 4}})
	require.NoError(t, err)
	assert.False(t, floor.Rose(0, 1))
	assert.True(t, floor.Rose(1, 2), "reaching the floor threshold counts as a rise")
}

// ─── Tokens ─────────────────────────────────────────────────────────────────

func TestPromotionToken_RoundTrip(t *testing.T) {
	tok := PromotionToken{Kind: TokenPromote, UserID: "123456789", Target: 3, OfferID: uuid.New()}
	raw := tok.String()
	assert.True(t, IsTierToken(raw))

	got, err := ParsePromotionToken(raw)
	require.NoError(t, err)
	assert.Equal(t, tok, got)
}

func TestParsePromotionToken_Rejects(t *testing.T) {
	id := uuid.NewString()
	for _, raw := range []string{
		"",
		"vip_promote_1_2",
		"tier:promote:1:2",
		"tier:demote:1:2:" + id,
		"tier:promote:abc:2:" + id,
		"tier:promote::2:" + id,
		"tier:promote:1:-1:" + id,
		"tier:promote:1:x:" + id,
		"tier:promote:1:2:not-a-uuid",
		"tier:promote:1:2:" + id + ":extra",
	} {
		_, err := ParsePromotionToken(raw)
		assert.ErrorIs(t, err, ErrUnauthorized, "raw=%q", raw)
	}
}

func TestOperationFailure_Unwrap(t *testing.T) {
	cause := errors.New("discord 403")
	f := OperationFailure{Op: OpGrant, GroupID: "42", Err: cause}
	assert.ErrorIs(t, f, ErrGroupOperation)
	assert.ErrorIs(t, f, cause)
	assert.Contains(t, f.Error(), "grant 42")
}
