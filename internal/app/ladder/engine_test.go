package ladder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vip-ladder/tierbot/internal/app/progress"
	"github.com/vip-ladder/tierbot/internal/app/promotion"
	"github.com/vip-ladder/tierbot/internal/app/roles"
	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/testutil"
)

const guild = "g1"

type harness struct {
	engine *Engine
	store  *progress.Store
	repo   *testutil.Repo
	groups *testutil.Groups
	counts *testutil.Counts
}

func newHarness(t *testing.T, mode Mode) *harness {
	t.Helper()
	table, err := domain.NewTierTable([]domain.TierDefinition{
		{Name: "T1", Threshold: 0},
		{Name: "T2", Threshold: 3},
		{Name: "T3", Threshold: 6},
	})
	require.NoError(t, err)
	binding, err := roles.NewBinding(table, []roles.TierGroupBinding{
		{TierName: "T1", GroupID: "r1"},
		{TierName: "T2", GroupID: "r2"},
		{TierName: "T3", GroupID: "r3"},
	})
	require.NoError(t, err)

	h := &harness{
		repo:   testutil.NewRepo(),
		groups: testutil.NewGroups("r1", "r2", "r3"),
		counts: testutil.NewCounts(),
	}
	h.store = progress.New(h.repo, nil)
	syncer := roles.NewSynchronizer(binding, h.groups, nil)
	wf := promotion.New(promotion.DefaultConfig(), table, h.store, h.groups, syncer, nil)
	h.engine = New(mode, Deps{
		Table:    table,
		Store:    h.store,
		Sync:     syncer,
		Workflow: wf,
		Groups:   h.groups,
		Counts:   h.counts,
	})
	return h
}

func (h *harness) activity(t *testing.T, userID string, n int) ActivityOutcome {
	t.Helper()
	var out ActivityOutcome
	for i := 0; i < n; i++ {
		var err error
		out, err = h.engine.HandleActivity(context.Background(), domain.ActivityEvent{UserID: userID, GuildID: guild})
		require.NoError(t, err)
	}
	return out
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeConfirm, m)

	m, err = ParseMode("auto")
	require.NoError(t, err)
	assert.Equal(t, ModeAuto, m)

	_, err = ParseMode("manual")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

// ─── Activity ───────────────────────────────────────────────────────────────

func TestHandleActivity_ConfirmModeOffers(t *testing.T) {
	h := newHarness(t, ModeConfirm)

	out := h.activity(t, "u", 1)
	assert.True(t, out.Rose, "T1 starts at zero, so the first event qualifies")
	require.NotNil(t, out.Offer)
	assert.Equal(t, 0, out.Offer.Target)

	out = h.activity(t, "u", 1)
	assert.False(t, out.Rose)
	assert.Nil(t, out.Offer, "a live offer is prompted once")

	out = h.activity(t, "u", 1)
	assert.True(t, out.Rose)
	require.NotNil(t, out.Offer)
	assert.Equal(t, 1, out.Offer.Target)
	assert.Equal(t, int64(3), out.Progress.ActivityCount)
	assert.Empty(t, h.groups.Calls(), "confirm mode never mutates groups on activity")
	assert.Equal(t, domain.NoTier, h.store.Get("u").AcknowledgedTier)
}

func TestHandleActivity_NoOfferWhenHeldHigher(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	h.groups.Give("u", "r3")

	out := h.activity(t, "u", 3)
	assert.True(t, out.Rose)
	assert.Nil(t, out.Offer)
	assert.Empty(t, h.groups.Calls())
	assert.Equal(t, domain.NoTier, h.store.Get("u").AcknowledgedTier)
}

func TestHandleActivity_ConfirmModeReoffersAfterPromptLost(t *testing.T) {
	h := newHarness(t, ModeConfirm)

	out := h.activity(t, "u", 3)
	require.NotNil(t, out.Offer)
	h.engine.PromptLost(*out.Offer)

	out = h.activity(t, "u", 1)
	assert.False(t, out.Rose)
	require.NotNil(t, out.Offer, "a lost prompt is offered again on the next event")
	assert.Equal(t, 1, out.Offer.Target)
}

func TestHandleActivity_AutoModeGrants(t *testing.T) {
	h := newHarness(t, ModeAuto)

	out := h.activity(t, "u", 1)
	require.NotNil(t, out.Result)
	assert.Equal(t, []string{"r1"}, out.Result.Granted)
	assert.Equal(t, 0, h.store.Get("u").AcknowledgedTier)

	out = h.activity(t, "u", 2)
	require.NotNil(t, out.Result)
	assert.True(t, out.Result.OK())
	assert.Equal(t, []string{"r2"}, h.groups.Held("u"))
	assert.Equal(t, 1, h.store.Get("u").AcknowledgedTier)

	out = h.activity(t, "u", 3)
	require.NotNil(t, out.Result)
	assert.Equal(t, []string{"r2"}, out.Result.Revoked)
	assert.Equal(t, []string{"r3"}, h.groups.Held("u"))
	assert.Equal(t, 2, h.store.Get("u").AcknowledgedTier)
}

func TestHandleActivity_AutoModeZeroThresholdTier(t *testing.T) {
	h := newHarness(t, ModeAuto)

	out := h.activity(t, "u", 1)
	assert.True(t, out.Resolution.Qualified)
	assert.Equal(t, []string{"r1"}, h.groups.Held("u"))
	assert.Equal(t, 0, h.store.Get("u").AcknowledgedTier)
}

func TestHandleActivity_AutoModeKeepsHigherGroup(t *testing.T) {
	h := newHarness(t, ModeAuto)
	h.groups.Give("u", "r3")

	out := h.activity(t, "u", 3)
	assert.Nil(t, out.Result)
	assert.Empty(t, h.groups.Calls())
	assert.Equal(t, []string{"r3"}, h.groups.Held("u"))
	assert.Equal(t, 1, h.store.Get("u").AcknowledgedTier)
}

func TestHandleActivity_AutoModeFailureRetriedOnNextEvent(t *testing.T) {
	h := newHarness(t, ModeAuto)
	ctx := context.Background()
	ev := domain.ActivityEvent{UserID: "u", GuildID: guild}
	h.groups.FailGrant["r2"] = true

	h.activity(t, "u", 2)
	_, err := h.engine.HandleActivity(ctx, ev)
	assert.ErrorIs(t, err, domain.ErrGroupOperation)
	assert.Equal(t, int64(3), h.store.Get("u").ActivityCount, "increment survives")
	assert.Equal(t, 0, h.store.Get("u").AcknowledgedTier)

	delete(h.groups.FailGrant, "r2")
	out, err := h.engine.HandleActivity(ctx, ev)
	require.NoError(t, err)
	assert.False(t, out.Rose)
	require.NotNil(t, out.Result)
	assert.Equal(t, []string{"r2"}, out.Result.Granted)
	assert.Equal(t, []string{"r2"}, h.groups.Held("u"))
	assert.Equal(t, 1, h.store.Get("u").AcknowledgedTier)
}

func TestHandleActivity_ListFailure(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	h.groups.FailList = true

	_, err := h.engine.HandleActivity(context.Background(), domain.ActivityEvent{UserID: "u", GuildID: guild})
	assert.ErrorIs(t, err, domain.ErrGroupOperation)
	assert.Equal(t, int64(1), h.store.Get("u").ActivityCount)

	h.groups.FailList = false
	out := h.activity(t, "u", 1)
	assert.NotNil(t, out.Offer)
}

// ─── Status ─────────────────────────────────────────────────────────────────

func TestStatus_ReportsWithoutDurableMutation(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	h.counts.Set("u", 7)

	rep, err := h.engine.Status(context.Background(), guild, "u")
	require.NoError(t, err)
	assert.Equal(t, "T3", rep.Resolution.Name)
	assert.True(t, rep.Resolution.AtMax)
	assert.Equal(t, int64(0), rep.Local.ActivityCount, "authoritative count is not merged")
	assert.Equal(t, domain.NoTier, rep.HeldTier)
	require.NotNil(t, rep.Offer)
	assert.Equal(t, 2, rep.Offer.Target)

	assert.Zero(t, h.store.Len())
	assert.Zero(t, h.store.Pending())
	assert.Empty(t, h.groups.Calls())
}

func TestStatus_AutoModeNeverOffers(t *testing.T) {
	h := newHarness(t, ModeAuto)
	h.counts.Set("u", 7)

	rep, err := h.engine.Status(context.Background(), guild, "u")
	require.NoError(t, err)
	assert.Nil(t, rep.Offer)
}

func TestStatus_NoOfferWhenHeldAtTarget(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	h.counts.Set("u", 4)
	h.groups.Give("u", "r2")

	rep, err := h.engine.Status(context.Background(), guild, "u")
	require.NoError(t, err)
	assert.Equal(t, 1, rep.HeldTier)
	assert.Nil(t, rep.Offer)
}

func TestStatus_LookupFailure(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	h.counts.Fail = true

	_, err := h.engine.Status(context.Background(), guild, "u")
	assert.ErrorIs(t, err, domain.ErrTransientLookup)
	assert.Zero(t, h.store.Len())
}

// ─── Confirm ────────────────────────────────────────────────────────────────

func TestConfirm_FromTierOneToThree(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	ctx := context.Background()
	h.store.SetAcknowledgedTier("u", 0)
	h.groups.Give("u", "r1")
	h.counts.Set("u", 6)

	rep, err := h.engine.Status(ctx, guild, "u")
	require.NoError(t, err)
	require.NotNil(t, rep.Offer)

	conf, err := h.engine.Confirm(ctx, rep.Offer.Token().String(), "u")
	require.NoError(t, err)
	assert.Equal(t, promotion.StateConfirmed, conf.Offer.State)

	calls := h.groups.Calls()
	assert.Equal(t, 1, testutil.Count(calls, domain.OpRevoke))
	assert.Equal(t, 1, testutil.Count(calls, domain.OpGrant))
	assert.Equal(t, []string{"r3"}, h.groups.Held("u"))
	assert.Equal(t, 2, h.store.Get("u").AcknowledgedTier)
}

func TestConfirm_NonSubjectMutatesNothing(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	ctx := context.Background()
	h.counts.Set("u", 3)

	rep, err := h.engine.Status(ctx, guild, "u")
	require.NoError(t, err)
	require.NotNil(t, rep.Offer)

	_, err = h.engine.Confirm(ctx, rep.Offer.Token().String(), "someone-else")
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.Empty(t, h.groups.Calls())
	assert.Zero(t, h.store.Len())
}

func TestConfirm_SupersededTokenFails(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	ctx := context.Background()

	h.counts.Set("u", 3)
	first, err := h.engine.Status(ctx, guild, "u")
	require.NoError(t, err)
	require.NotNil(t, first.Offer)

	h.counts.Set("u", 6)
	second, err := h.engine.Status(ctx, guild, "u")
	require.NoError(t, err)
	require.NotNil(t, second.Offer)
	assert.NotEqual(t, first.Offer.ID, second.Offer.ID)

	_, err = h.engine.Confirm(ctx, first.Offer.Token().String(), "u")
	assert.ErrorIs(t, err, domain.ErrOfferInvalid)
	assert.Empty(t, h.groups.Calls())

	_, err = h.engine.Confirm(ctx, second.Offer.Token().String(), "u")
	require.NoError(t, err)
	assert.Equal(t, []string{"r3"}, h.groups.Held("u"))
}

func TestPromptLost(t *testing.T) {
	h := newHarness(t, ModeConfirm)
	ctx := context.Background()
	h.counts.Set("u", 3)

	rep, err := h.engine.Status(ctx, guild, "u")
	require.NoError(t, err)
	require.NotNil(t, rep.Offer)

	h.engine.PromptLost(*rep.Offer)
	_, err = h.engine.Confirm(ctx, rep.Offer.Token().String(), "u")
	assert.ErrorIs(t, err, domain.ErrOfferInvalid)
}
