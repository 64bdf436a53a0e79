package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/stockdesk/internal/config"
	"github.com/rickgao/stockdesk/internal/connection"
	"github.com/rickgao/stockdesk/internal/execution"
	"github.com/rickgao/stockdesk/internal/journal"
	"github.com/rickgao/stockdesk/internal/metrics"
	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/orderqueue"
	"github.com/rickgao/stockdesk/internal/poller"
	"github.com/rickgao/stockdesk/internal/quotes"
	"github.com/rickgao/stockdesk/internal/sealer"
	"github.com/rickgao/stockdesk/internal/storage"
	"github.com/rickgao/stockdesk/internal/store"
)

// QuoteSource provides quotes, candles and symbol search.
type QuoteSource interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]model.Quote, error)
	FetchQuote(ctx context.Context, symbol string) (model.Quote, bool)
	FetchCandles(ctx context.Context, symbol string, tf model.Timeframe) []model.Candle
	Search(ctx context.Context, query string) []model.SearchResult
}

// Option overrides a collaborator built from config.
type Option func(*options)

type options struct {
	dialer   connection.Dialer
	executor orderqueue.Executor
	backend  storage.Backend
	quotes   QuoteSource
	sealer   sealer.Sealer
}

// WithDialer replaces the stream dialer.
func WithDialer(d connection.Dialer) Option {
	return func(o *options) { o.dialer = d }
}

// WithExecutor replaces the order executor.
func WithExecutor(e orderqueue.Executor) Option {
	return func(o *options) { o.executor = e }
}

// WithBackend replaces the storage backend.
func WithBackend(b storage.Backend) Option {
	return func(o *options) { o.backend = b }
}

// WithQuoteSource replaces the quote source.
func WithQuoteSource(q QuoteSource) Option {
	return func(o *options) { o.quotes = q }
}

// WithSealer replaces the snapshot sealer.
func WithSealer(s sealer.Sealer) Option {
	return func(o *options) { o.sealer = s }
}

// App owns every component of a running instance.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	store        *store.Store
	quotes       QuoteSource
	manager      *connection.Manager
	processor    *orderqueue.Processor
	executor     orderqueue.Executor
	poller       *poller.Poller
	checkpointer *storage.Checkpointer
	backend      storage.Backend
	journal      *journal.Journal
	journalPool  *pgxpool.Pool
	metrics      *metrics.Metrics

	// Symbols always tracked, independent of the watch-list.
	tracked []string

	detach  []func()
	closers []func()

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds all components from cfg. Nothing runs until Start.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		cfg:     cfg,
		logger:  logger,
		store:   store.New(),
		metrics: metrics.New(),
		tracked: quotes.NewFallback().Symbols(),
	}

	// Quote source
	a.quotes = o.quotes
	if a.quotes == nil {
		qc, err := quotes.NewClient(cfg.API.RestURL, cfg.API.APIKey,
			quotes.WithLogger(logger),
			quotes.WithTimeout(cfg.API.Timeout),
			quotes.WithRetries(cfg.API.MaxRetries, quotes.DefaultRetryBackoff),
			quotes.WithConcurrency(cfg.API.Concurrency),
			quotes.WithNameTTL(cfg.API.NameTTL),
		)
		if err != nil {
			return nil, fmt.Errorf("create quote client: %w", err)
		}
		a.quotes = qc
		a.closers = append(a.closers, qc.Close)
		if qc.Offline() {
			logger.Warn("no quote api key configured, serving offline dataset")
		}
	}

	// Stream
	dial := o.dialer
	if dial == nil {
		dial = connection.NewDialer(connection.ClientConfig{
			URL:              cfg.Stream.URL,
			APIKey:           cfg.Stream.APIKey,
			HandshakeTimeout: connection.DefaultClientConfig().HandshakeTimeout,
			WriteTimeout:     connection.DefaultClientConfig().WriteTimeout,
			BufferSize:       cfg.Stream.BufferSize,
		}, logger)
	}
	a.manager = connection.NewManager(connection.ManagerConfig{
		HeartbeatInterval:    cfg.Stream.HeartbeatInterval,
		HeartbeatTimeout:     cfg.Stream.HeartbeatTimeout,
		ReconnectBaseDelay:   cfg.Stream.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.Stream.ReconnectMaxDelay,
		ReconnectJitter:      cfg.Stream.ReconnectJitter,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectAttempts,
		FlushInterval:        cfg.Stream.FlushInterval,
	}, dial, logger, connection.WithMetrics(a.metrics))

	// Order queue
	a.executor = o.executor
	if a.executor == nil {
		a.executor = newExecutor(cfg.Execution, logger)
	}
	a.processor = orderqueue.New(orderqueue.Config{
		MaxRetries:        cfg.Queue.MaxRetries,
		ConflictThreshold: cfg.Queue.ConflictThreshold,
		RetryBaseDelay:    cfg.Queue.RetryBaseDelay,
		RetryMaxDelay:     cfg.Queue.RetryMaxDelay,
	}, a.store, a.executor, logger, orderqueue.WithMetrics(a.metrics))

	// Poller
	a.poller = poller.New(poller.Config{
		Interval: cfg.Poller.Interval,
		Timeout:  cfg.Poller.Timeout,
	}, a.quotes, a.TrackedSymbols, a.store, logger)

	// Persistence
	seal := o.sealer
	if seal == nil {
		var err error
		if seal, err = sealer.FromFile(cfg.Storage.EncryptionKeyPath); err != nil {
			a.close()
			return nil, fmt.Errorf("load encryption key: %w", err)
		}
	}
	a.backend = o.backend
	if a.backend == nil {
		b, err := storage.Open(ctx, cfg.Storage)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("open storage: %w", err)
		}
		a.backend = b
	}
	a.checkpointer = storage.NewCheckpointer(a.backend, seal, a.store, cfg.Storage.Namespace, logger)

	// Journal
	if cfg.Journal.Enabled {
		pool, err := storage.Connect(ctx, cfg.Storage.Postgres)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connect journal database: %w", err)
		}
		a.journalPool = pool
		a.journal = journal.New(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
			BufferSize:    cfg.Journal.BufferSize,
		}, pool, logger)
		if err := a.journal.EnsureSchema(ctx); err != nil {
			a.close()
			return nil, fmt.Errorf("create journal schema: %w", err)
		}
	}

	return a, nil
}

func newExecutor(cfg config.ExecutionConfig, logger *slog.Logger) orderqueue.Executor {
	if cfg.Mode == config.ExecutionHTTP {
		return execution.NewHTTPExecutor(cfg.URL, cfg.APIKey,
			execution.WithHTTPClient(&http.Client{Timeout: cfg.Timeout}),
			execution.WithLogger(logger),
		)
	}
	opts := []execution.SimulatedOption{execution.WithLatency(cfg.Latency)}
	if cfg.FailureRate != nil {
		opts = append(opts, execution.WithFailureRate(*cfg.FailureRate))
	}
	return execution.NewSimulated(opts...)
}

// Start restores state, loads quotes, opens the stream and starts the
// background components.
func (a *App) Start(ctx context.Context) error {
	if err := a.checkpointer.Restore(ctx); err != nil {
		if !errors.Is(err, sealer.ErrCorrupt) {
			return fmt.Errorf("restore state: %w", err)
		}
		a.logger.Warn("persisted state is unreadable, starting empty", "error", err)
	}

	quotes, err := a.quotes.FetchQuotes(ctx, a.TrackedSymbols())
	if err != nil {
		return fmt.Errorf("load quotes: %w", err)
	}
	a.store.SetStocks(quotes)

	a.detach = append(a.detach,
		a.manager.OnUpdate(a.store.ApplyUpdates),
		a.manager.OnStatusChange(a.store.SetConnectionStatus),
		a.store.OnQueueChange(a.metrics.SetQueueDepth),
	)
	a.metrics.SetQueueDepth(a.store.QueueLen())

	if err := a.manager.Subscribe(a.TrackedSymbols()...); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	if err := a.manager.Connect(); err != nil {
		return fmt.Errorf("connect stream: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a.cancel = cancel

	a.detach = append(a.detach, a.processor.Watch())
	if err := a.poller.Start(runCtx); err != nil {
		return fmt.Errorf("start poller: %w", err)
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.checkpointer.Run(runCtx, a.cfg.Storage.CheckpointInterval); err != nil {
			a.logger.Error("final checkpoint failed", "error", err)
		}
	}()

	if a.journal != nil {
		if err := a.journal.Start(runCtx); err != nil {
			return fmt.Errorf("start journal: %w", err)
		}
		a.detach = append(a.detach, a.store.OnOrderChange(a.journal.Record))
	}

	// Launch counts as coming to the foreground.
	a.processor.OnResume()

	a.logger.Info("stockdesk started",
		"tracked", len(a.TrackedSymbols()),
		"queued", a.store.QueueLen(),
		"conflicts", len(a.store.Conflicts()),
	)
	return nil
}

// Shutdown stops the poller, disconnects the stream, waits for in-flight
// drains and writes a final checkpoint.
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error

	if err := a.poller.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop poller: %w", err))
	}

	if err := a.manager.Disconnect(); err != nil && !errors.Is(err, connection.ErrClosed) {
		errs = append(errs, fmt.Errorf("disconnect: %w", err))
	}
	a.manager.Close()

	for _, detach := range a.detach {
		detach()
	}
	a.detach = nil

	drained := make(chan struct{})
	go func() {
		a.processor.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
		errs = append(errs, fmt.Errorf("wait for drain: %w", ctx.Err()))
	}

	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()

	if a.journal != nil {
		if err := a.journal.Stop(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop journal: %w", err))
		}
	}

	a.close()
	a.logger.Info("stockdesk stopped")
	return errors.Join(errs...)
}

func (a *App) close() {
	if a.journalPool != nil {
		a.journalPool.Close()
	}
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.logger.Warn("close storage", "error", err)
		}
	}
	for _, c := range a.closers {
		c()
	}
}

// Store returns the state store.
func (a *App) Store() *store.Store { return a.store }

// Quotes returns the quote source.
func (a *App) Quotes() QuoteSource { return a.quotes }

// Manager returns the stream connection manager.
func (a *App) Manager() *connection.Manager { return a.manager }

// ConnectionStats returns a snapshot of the stream connection counters.
func (a *App) ConnectionStats() connection.ManagerStats { return a.manager.Stats() }

// Processor returns the order queue processor.
func (a *App) Processor() *orderqueue.Processor { return a.processor }

// Metrics returns the Prometheus metrics.
func (a *App) Metrics() *metrics.Metrics { return a.metrics }

// TrackedSymbols returns the default symbols followed by watch-list entries
// outside the default set.
func (a *App) TrackedSymbols() []string {
	out := slices.Clone(a.tracked)
	for _, s := range a.store.Watchlist() {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// OnResume is called by the host when it returns to the foreground.
func (a *App) OnResume() {
	a.processor.OnResume()
}
