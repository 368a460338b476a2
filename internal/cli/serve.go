package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vip-ladder/tierbot/internal/domain"
	"github.com/vip-ladder/tierbot/internal/infra/discord"
)

func init() {
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Connect to Discord and start counting",
	Long: `Connect to the Discord gateway, count guild messages, answer the status
command, and serve /health, /metrics and the read-only tier API.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.Discord.Token == "" {
		return fmt.Errorf("%w: discord token required (DISCORD_TOKEN or [discord].token)", domain.ErrConfiguration)
	}

	logger := newLogger(cfg, os.Stderr, true)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, err := openBackend(cfg)
	if err != nil {
		return err
	}
	defer repo.Close()

	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	counter := discord.NewSearchCounter(discord.SearchConfig{
		APIBase: cfg.Discord.APIBase,
		Token:   cfg.Discord.Token,
		Rate:    cfg.Discord.SearchRate,
		Burst:   cfg.Discord.SearchBurst,
	})

	a, err := buildApp(cfg, repo, discord.NewGuild(session), counter, logger)
	if err != nil {
		return err
	}
	if err := a.store.Load(ctx); err != nil {
		return err
	}
	bot := discord.NewBot(discord.BotConfig{
		GuildID:       cfg.Discord.GuildID,
		StatusCommand: cfg.Discord.StatusCommand,
	}, a.engine, a.dispatch, logger)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("tierbot starting",
		"addr", srv.Addr,
		"backend", cfg.Store.Backend,
		"mode", a.engine.Mode(),
		"tiers", len(cfg.Tiers))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bot.Run(gctx, session) })
	g.Go(func() error { return a.store.Run(gctx, cfg.FlushInterval()) })
	g.Go(func() error { return a.workflow.Run(gctx, time.Minute) })
	g.Go(func() error {
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	runErr := g.Wait()

	// Activity drained by the bot after the flush loop exited.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.store.Persist(flushCtx); err != nil {
		logger.Error("final flush failed", "error", err)
	}

	logger.Info("tierbot stopped")
	return runErr
}
