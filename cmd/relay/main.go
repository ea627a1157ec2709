// relay accepts WebSocket connections from game servers and forwards quiz
// passes to the server that owns the quiz.
// Usage: go run ./cmd/relay --config configs/relay.local.yaml
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/autowhitelist/internal/config"
	"github.com/rickgao/autowhitelist/internal/httpapi"
	"github.com/rickgao/autowhitelist/internal/quiz"
	"github.com/rickgao/autowhitelist/internal/router"
	"github.com/rickgao/autowhitelist/internal/session"
	"github.com/rickgao/autowhitelist/internal/store"
	"github.com/rickgao/autowhitelist/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/relay.local.yaml", "path to config file")
	envPath := flag.String("env", ".env", "optional dotenv file loaded before the config")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	// Set up structured logging
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	logger.Info("starting relay",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	if err := config.LoadEnvFile(*envPath); err != nil {
		logger.Error("failed to load env file", "path", *envPath, "error", err)
		os.Exit(1)
	}

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
		"store", cfg.Store.Backend,
		"self_hosted", cfg.Quiz.SelfHosted,
	)

	if err := run(cfg, logger); err != nil {
		logger.Error("relay failed", "error", err)
		os.Exit(1)
	}

	logger.Info("relay stopped")
}

func run(cfg *config.RelayConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	r := router.NewRouter(router.Config{
		SweepInterval:      cfg.Router.SweepInterval,
		PendingTTL:         cfg.Router.PendingTTL,
		LookupTimeout:      cfg.Router.LookupTimeout,
		OutboundBufferSize: cfg.Router.OutboundBufferSize,
		InboxSize:          cfg.Router.InboxSize,
	}, st, logger)
	if err := r.Start(ctx); err != nil {
		return err
	}

	handler := httpapi.NewHandler(ctx, httpapi.Config{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		WebDir:         cfg.Server.WebDir,
		Session: session.Config{
			HeartbeatInterval: cfg.Session.HeartbeatInterval,
			HeartbeatTimeout:  cfg.Session.HeartbeatTimeout,
			WriteTimeout:      cfg.Session.WriteTimeout,
			MaxMessageSize:    cfg.Session.MaxMessageSize,
		},
	}, r, st, quiz.NewRepository(cfg.Quiz, logger), logger)

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown incomplete", "error", err)
		}
		// Stopping the router closes every outbound channel, ending sessions.
		if err := r.Stop(shutdownCtx); err != nil {
			logger.Warn("router stop incomplete", "error", err)
		}
		if err := handler.Wait(shutdownCtx); err != nil {
			logger.Warn("sessions still open at shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}
