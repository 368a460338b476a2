package cli

import (
	"log/slog"

	"github.com/vip-ladder/tierbot/internal/api"
	"github.com/vip-ladder/tierbot/internal/app/dispatch"
	"github.com/vip-ladder/tierbot/internal/app/ladder"
	"github.com/vip-ladder/tierbot/internal/app/progress"
	"github.com/vip-ladder/tierbot/internal/app/promotion"
	"github.com/vip-ladder/tierbot/internal/app/roles"
	"github.com/vip-ladder/tierbot/internal/daemon"
	"github.com/vip-ladder/tierbot/internal/domain"
)

// app is the wired tier engine.
type app struct {
	store    *progress.Store
	workflow *promotion.Workflow
	engine   *ladder.Engine
	dispatch *dispatch.Dispatcher
	server   *api.Server
}

// buildApp wires the engine from cfg over the given platform adapters.
func buildApp(cfg daemon.Config, repo domain.ProgressRepository, groups domain.GroupAPI, counts domain.CountLookup, logger *slog.Logger) (*app, error) {
	table, err := cfg.TierTable()
	if err != nil {
		return nil, err
	}
	binding, err := roles.NewBinding(table, cfg.Bindings())
	if err != nil {
		return nil, err
	}

	a := &app{}
	a.store = progress.New(repo, logger)
	syncer := roles.NewSynchronizer(binding, groups, logger)
	a.workflow = promotion.New(promotion.Config{TTL: cfg.OfferTTL()}, table, a.store, groups, syncer, logger)
	a.engine = ladder.New(cfg.Mode(), ladder.Deps{
		Table:    table,
		Store:    a.store,
		Sync:     syncer,
		Workflow: a.workflow,
		Groups:   groups,
		Counts:   counts,
		Logger:   logger,
	})
	a.dispatch = dispatch.New(dispatch.Config{
		MaxConcurrent:  cfg.Dispatch.MaxConcurrent,
		DefaultTimeout: cfg.DispatchTimeout(),
	}, logger)

	a.server = api.NewServer()
	a.server.EnableMetrics()
	a.server.SetTiers(&api.TierAPI{Engine: a.engine, Dispatch: a.dispatch})
	return a, nil
}
