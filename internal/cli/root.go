// Package cli implements the tierbot command line.
package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/vip-ladder/tierbot/internal/daemon"
	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/infra/observability"
	"github.com/vip-ladder/tierbot/internal/infra/redisstore"
	"github.com/vip-ladder/tierbot/internal/infra/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "tierbot",
	Short: "Activity-based VIP tiers for a Discord guild",
	Long: `tierbot counts each member's messages, maps the count onto a ladder of
VIP tiers, and keeps the member's tier role in sync. Promotions are offered
with a button the member presses, or applied automatically.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Config file (default $TIERBOT_HOME/config.toml or ~/.tierbot/config.toml)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// ─── Shared Helpers ─────────────────────────────────────────────────────────

func loadConfig() (daemon.Config, error) {
	return daemon.Load(configPath)
}

// newLogger builds the process logger. Long-running commands default to JSON
// when stderr is not a terminal.
func newLogger(cfg daemon.Config, w io.Writer, longRunning bool) *slog.Logger {
	format := observability.LogFormat(cfg.Log.Format)
	if format == "" {
		format = observability.LogText
		if longRunning && !isTerminal(w) {
			format = observability.LogJSON
		}
	}
	return observability.NewLogger(w, format, cfg.Log.Level)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// backend is a progress repository the CLI can also query and close.
type backend interface {
	domain.ProgressRepository
	GetProgress(ctx context.Context, userID string) (domain.UserProgress, error)
	Close() error
}

func openBackend(cfg daemon.Config) (backend, error) {
	switch cfg.Store.Backend {
	case daemon.BackendRedis:
		s, err := redisstore.New(cfg.Store.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		return s, nil
	default:
		db, err := sqlite.Open(cfg.StorePath())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrPersistence, err)
		}
		return db, nil
	}
}
