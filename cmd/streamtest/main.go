// streamtest connects to the quote stream and prints coalesced price batches
// to the console.
// Usage: go run ./cmd/streamtest --config configs/stockdesk.example.yaml --symbols AAPL,MSFT
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/rickgao/stockdesk/internal/config"
	"github.com/rickgao/stockdesk/internal/connection"
	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/quotes"
)

func main() {
	configPath := flag.String("config", "", "path to config file (defaults only when empty)")
	symbolList := flag.String("symbols", "", "comma-separated symbols (default: built-in set)")
	verbose := flag.Bool("verbose", false, "print full batch JSON")
	flag.Parse()

	// Setup logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("failed to load .env", "error", err)
	}

	cfg := config.Defaults()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadAndValidate(*configPath); err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
	}

	symbols := quotes.NewFallback().Symbols()
	if *symbolList != "" {
		symbols = strings.Split(*symbolList, ",")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dial := connection.NewDialer(connection.ClientConfig{
		URL:              cfg.Stream.URL,
		APIKey:           cfg.Stream.APIKey,
		HandshakeTimeout: connection.DefaultClientConfig().HandshakeTimeout,
		WriteTimeout:     connection.DefaultClientConfig().WriteTimeout,
		BufferSize:       cfg.Stream.BufferSize,
	}, logger)

	mgr := connection.NewManager(connection.ManagerConfig{
		HeartbeatInterval:    cfg.Stream.HeartbeatInterval,
		HeartbeatTimeout:     cfg.Stream.HeartbeatTimeout,
		ReconnectBaseDelay:   cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Stream.ReconnectMaxDelay,
		ReconnectJitter:      cfg.Stream.ReconnectJitter,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		FlushInterval:        cfg.Stream.FlushInterval,
	}, dial, logger)

	detachUpdates := mgr.OnUpdate(func(batch []model.PriceUpdate) {
		printBatch(batch, *verbose)
	})
	detachStatus := mgr.OnStatusChange(func(s model.ConnectionStatus) {
		fmt.Printf("[STATUS] %s\n", s)
	})

	if err := mgr.Subscribe(symbols...); err != nil {
		logger.Error("failed to subscribe", "error", err)
		os.Exit(1)
	}
	logger.Info("connecting", "url", cfg.Stream.URL, "symbols", len(symbols))
	if err := mgr.Connect(); err != nil {
		logger.Error("failed to connect", "error", err)
		os.Exit(1)
	}

	// Stats printer
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				stats := mgr.Stats()
				logger.Info("stats",
					"status", stats.Status,
					"reconnect_attempts", stats.ReconnectAttempts,
					"subscriptions", stats.Subscriptions,
					"batches", stats.BatchesDelivered,
					"updates", stats.UpdatesDelivered,
					"dropped", stats.FramesDropped,
				)
			}
		}
	}()

	logger.Info("streaming started - press Ctrl+C to stop")

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	detachUpdates()
	detachStatus()
	if err := mgr.Disconnect(); err != nil {
		logger.Warn("disconnect", "error", err)
	}
	mgr.Close()

	logger.Info("shutdown complete")
}

func printBatch(batch []model.PriceUpdate, verbose bool) {
	if verbose {
		data, _ := json.MarshalIndent(batch, "", "  ")
		fmt.Printf("[BATCH] %s\n", data)
		return
	}

	fmt.Printf("[BATCH] %d updates\n", len(batch))
	for _, u := range batch {
		fmt.Printf("  %-6s price=%.2f change=%.2f (%.2f%%) vol=%d\n",
			u.Symbol, u.Price, u.Change, u.ChangePercent, u.Volume)
	}
}
