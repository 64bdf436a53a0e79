package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

// QuoteSource fetches quotes for a set of symbols.
type QuoteSource interface {
	FetchQuotes(ctx context.Context, symbols []string) ([]model.Quote, error)
}

// SymbolSource returns the symbols to poll.
type SymbolSource func() []string

// Sink receives each full refresh.
type Sink interface {
	SetStocks(quotes []model.Quote)
}

// SinkFunc is a function adapter for Sink.
type SinkFunc func([]model.Quote)

func (f SinkFunc) SetStocks(q []model.Quote) {
	f(q)
}

// Config holds poller configuration.
type Config struct {
	Interval time.Duration // Poll interval (default: 1m)
	Timeout  time.Duration // Per-cycle timeout (default: 30s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval: time.Minute,
		Timeout:  30 * time.Second,
	}
}

// Poller periodically refreshes all quotes.
type Poller struct {
	cfg     Config
	source  QuoteSource
	symbols SymbolSource
	sink    Sink
	logger  *slog.Logger

	cycles atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, source QuoteSource, symbols SymbolSource, sink Sink, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:     cfg,
		source:  source,
		symbols: symbols,
		sink:    sink,
		logger:  logger.With("component", "poller"),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("quote poller started", "interval", p.cfg.Interval)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("quote poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cycles returns the number of completed refreshes.
func (p *Poller) Cycles() int64 {
	return p.cycles.Load()
}

// run is the main polling loop.
func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	// Poll immediately on start.
	p.poll(p.ctx)

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.poll(p.ctx)
		}
	}
}

// poll fetches all symbols and hands the result to the sink.
func (p *Poller) poll(ctx context.Context) {
	start := time.Now()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	var symbols []string
	if p.symbols != nil {
		symbols = p.symbols()
	}

	quotes, err := p.source.FetchQuotes(ctx, symbols)
	if err != nil {
		p.logger.Warn("quote refresh failed", "symbols", len(symbols), "err", err)
		return
	}

	p.sink.SetStocks(quotes)
	p.cycles.Add(1)

	p.logger.Debug("quote refresh complete",
		"symbols", len(quotes),
		"duration", time.Since(start),
	)
}
