package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vip-ladder/tierbot/internal/app/dispatch"
	"github.com/vip-ladder/tierbot/internal/app/ladder"
)

// ─── Tier API ───────────────────────────────────────────────────────────────
// Read-only views of the ladder and local progress.
//
// GET /api/tiers               the ladder with bound role IDs
// GET /api/resolve?count=N     resolve a count onto the ladder
// GET /api/progress/{userID}   local counter and acknowledged tier
// GET /api/stats               tracked users, pending flushes, dispatcher

// TierAPI holds the services the tier endpoints read from.
type TierAPI struct {
	Engine   *ladder.Engine
	Dispatch *dispatch.Dispatcher // optional
}

type tierEntry struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	Threshold int64  `json:"threshold"`
	RoleID    string `json:"role_id,omitempty"`
}

// HandleTiers lists the ladder.
// GET /api/tiers
func (t *TierAPI) HandleTiers(w http.ResponseWriter, r *http.Request) {
	table := t.Engine.Table()
	binding := t.Engine.Binding()

	tiers := make([]tierEntry, table.Len())
	for i, def := range table.Definitions() {
		role, _ := binding.GroupFor(i)
		tiers[i] = tierEntry{Index: i, Name: def.Name, Threshold: def.Threshold, RoleID: role}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"mode":  t.Engine.Mode(),
		"tiers": tiers,
	})
}

// HandleResolve maps a count onto the ladder.
// GET /api/resolve?count=N
func (t *TierAPI) HandleResolve(w http.ResponseWriter, r *http.Request) {
	count, err := strconv.ParseInt(r.URL.Query().Get("count"), 10, 64)
	if err != nil || count < 0 {
		writeError(w, http.StatusBadRequest, "count must be a non-negative integer")
		return
	}
	writeJSON(w, http.StatusOK, t.Engine.Resolve(count))
}

// HandleProgress returns a user's local record and the tier it resolves to.
// GET /api/progress/{userID}
func (t *TierAPI) HandleProgress(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "user id required")
		return
	}

	p := t.Engine.Progress(userID)
	acked := ""
	if t.Engine.Table().Valid(p.AcknowledgedTier) {
		acked = t.Engine.Table().At(p.AcknowledgedTier).Name
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"progress":          p,
		"resolution":        t.Engine.Resolve(p.ActivityCount),
		"acknowledged_name": acked,
	})
}

// HandleStats reports runtime counters.
// GET /api/stats
func (t *TierAPI) HandleStats(w http.ResponseWriter, r *http.Request) {
	users, pending := t.Engine.Tracked()
	resp := map[string]interface{}{
		"tracked_users":   users,
		"pending_records": pending,
	}
	if t.Dispatch != nil {
		resp["dispatch"] = t.Dispatch.Stats()
	}
	writeJSON(w, http.StatusOK, resp)
}
