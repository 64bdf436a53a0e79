// stockdesk runs the stock desk: quote stream, offline order queue and the
// HTTP API used by the host.
// Usage: go run ./cmd/stockdesk --config configs/stockdesk.example.yaml
//
// Variables in a .env file in the working directory are loaded before the
// config is read, so ${VAR} references in the YAML can use them.
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

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/stockdesk/internal/app"
	"github.com/rickgao/stockdesk/internal/config"
	"github.com/rickgao/stockdesk/internal/httpapi"
	"github.com/rickgao/stockdesk/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	logger.Info("starting stockdesk",
		"version", version.String(),
		"config", *configPath,
	)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"stream_url", cfg.Stream.URL,
		"storage", cfg.Storage.Backend,
		"execution", cfg.Execution.Mode,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("stockdesk failed", "error", err)
		os.Exit(1)
	}
	logger.Info("stockdesk stopped")
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Defaults(), nil
	}
	return config.LoadAndValidate(path)
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	desk, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if err := desk.Start(ctx); err != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		return errors.Join(err, desk.Shutdown(shutdownCtx))
	}

	srv := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           httpapi.New(desk, logger, httpapi.WithMetrics(cfg.Metrics.Path, desk.Metrics().Handler())),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()

		return errors.Join(srv.Shutdown(shutdownCtx), desk.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
