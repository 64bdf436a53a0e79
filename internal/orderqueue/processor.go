package orderqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jpillora/backoff"
	"github.com/shopspring/decimal"

	"github.com/rickgao/stockdesk/internal/model"
)

// Option configures a Processor.
type Option func(*Processor)

// WithMetrics attaches a metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(p *Processor) {
		if metrics != nil {
			p.metrics = metrics
		}
	}
}

// WithSleep replaces the wait used between a failed execution and the next item.
func WithSleep(sleep func(time.Duration)) Option {
	return func(p *Processor) {
		p.sleep = sleep
	}
}

// WithClock overrides the millisecond clock used for order timestamps.
func WithClock(now func() int64) Option {
	return func(p *Processor) {
		p.now = now
	}
}

// Processor drains the offline queue.
type Processor struct {
	cfg      Config
	store    Store
	executor Executor
	logger   *slog.Logger
	metrics  Metrics
	backoff  *backoff.Backoff
	sleep    func(time.Duration)
	now      func() int64

	threshold decimal.Decimal

	running atomic.Bool
	rerun   atomic.Bool
	lastLen atomic.Int64
	wg      sync.WaitGroup
}

// New creates a QueueProcessor.
func New(cfg Config, store Store, executor Executor, logger *slog.Logger, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	d := DefaultConfig()
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = d.MaxRetries
	}
	if cfg.ConflictThreshold <= 0 {
		cfg.ConflictThreshold = d.ConflictThreshold
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = d.RetryBaseDelay
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = d.RetryMaxDelay
	}

	p := &Processor{
		cfg:      cfg,
		store:    store,
		executor: executor,
		logger:   logger.With("component", "orderqueue"),
		metrics:  nopMetrics{},
		backoff: &backoff.Backoff{
			Min:    cfg.RetryBaseDelay,
			Max:    cfg.RetryMaxDelay,
			Factor: 2,
		},
		sleep:     time.Sleep,
		now:       model.NowMillis,
		threshold: decimal.NewFromFloat(cfg.ConflictThreshold),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// InFlight reports whether a drain pass is running.
func (p *Processor) InFlight() bool {
	return p.running.Load()
}

// Drain runs one pass over a snapshot of the queue. A call made while another
// pass is running returns ErrDrainInFlight without side effects. Cancelling
// ctx does not stop a pass once started.
func (p *Processor) Drain(ctx context.Context) (Result, error) {
	if !p.running.CompareAndSwap(false, true) {
		return Result{}, ErrDrainInFlight
	}
	defer p.running.Store(false)

	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	snapshot := p.store.Queue()
	var res Result
	for _, item := range snapshot {
		p.process(ctx, item, &res)
	}

	elapsed := time.Since(start)
	p.metrics.DrainCompleted(elapsed)
	if len(snapshot) > 0 {
		p.logger.Info("drain pass complete",
			"items", len(snapshot),
			"filled", res.Filled,
			"failed", res.Failed,
			"conflicts", res.Conflicts,
			"retried", res.Retried,
			"elapsed", elapsed,
		)
	}
	return res, nil
}

func (p *Processor) process(ctx context.Context, item model.QueuedOrder, res *Result) {
	logger := p.logger.With("queued_id", item.ID, "symbol", item.Symbol)

	if item.RetryCount >= p.cfg.MaxRetries {
		failed := item.ToOrder(model.NewOrderID(model.FailedOrderIDPrefix), model.StatusFailed, item.Price, p.now())
		if p.store.CompleteQueued(item.ID, failed) {
			res.Failed++
			p.metrics.OrderOutcome(OutcomeFailed)
			logger.Warn("retry budget exhausted", "retries", item.RetryCount)
		}
		return
	}

	current, ok := p.store.CurrentPrice(item.Symbol)
	if !ok {
		current = item.Price
	}

	if diff := priceDiff(current, item.Price); diff.GreaterThan(p.threshold) {
		pct, _ := diff.Mul(decimal.NewFromInt(100)).Float64()
		record := model.ConflictRecord{
			Order:            item,
			QueuedPrice:      item.Price,
			CurrentPrice:     current,
			PriceDiffPercent: pct,
			DetectedAt:       p.now(),
		}
		if p.store.MoveToConflict(item.ID, record) {
			res.Conflicts++
			p.metrics.OrderOutcome(OutcomeConflict)
			logger.Info("price conflict", "queued", item.Price, "current", current, "diff_pct", pct)
		}
		return
	}

	executed, err := p.execute(ctx, item, current)
	if err != nil {
		if _, ok := p.store.IncrementRetryByID(item.ID); !ok {
			return
		}
		res.Retried++
		p.metrics.OrderOutcome(OutcomeRetried)

		wait := p.backoff.ForAttempt(float64(item.RetryCount))
		logger.Warn("execution failed", "error", err, "retry", item.RetryCount+1, "wait", wait)
		p.sleep(wait)
		return
	}

	filled := p.finalize(item, executed, current)
	if p.store.CompleteQueued(item.ID, filled) {
		res.Filled++
		p.metrics.OrderOutcome(OutcomeFilled)
		logger.Info("queued order filled", "order_id", filled.ID, "price", filled.Price)
	} else {
		logger.Warn("queued order removed during execution, outcome discarded", "order_id", filled.ID)
	}
}

// execute calls the executor, converting a panic into an error.
func (p *Processor) execute(ctx context.Context, item model.QueuedOrder, price float64) (o model.Order, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("executor panic: %v", r)
		}
	}()
	return p.executor.Execute(ctx, item, price)
}

// finalize builds the FILLED history entry from the executor's response.
func (p *Processor) finalize(item model.QueuedOrder, executed model.Order, price float64) model.Order {
	id := executed.ID
	if id == "" {
		id = model.NewOrderID(model.OrderIDPrefix)
	}
	if executed.Price > 0 {
		price = executed.Price
	}
	return item.ToOrder(id, model.StatusFilled, price, p.now())
}

// priceDiff returns |current - queued| / queued.
func priceDiff(current, queued float64) decimal.Decimal {
	q := decimal.NewFromFloat(queued)
	if q.IsZero() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(current).Sub(q).Abs().Div(q)
}

// -----------------------------------------------------------------------------
// Triggers
// -----------------------------------------------------------------------------

// Trigger starts an asynchronous drain. If a pass is already running, another
// pass runs once it finishes so items queued meanwhile are picked up.
func (p *Processor) Trigger() {
	if p.running.Load() {
		p.rerun.Store(true)
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for {
			if _, err := p.Drain(context.Background()); err != nil {
				p.rerun.Store(true)
				return
			}
			if !p.rerun.Swap(false) {
				return
			}
		}
	}()
}

// OnResume is the entry point for the host returning to the foreground.
func (p *Processor) OnResume() {
	p.logger.Debug("resume")
	p.Trigger()
}

// Watch triggers a drain every time the queue grows.
func (p *Processor) Watch() (detach func()) {
	p.lastLen.Store(int64(len(p.store.Queue())))
	return p.store.OnQueueChange(func(length int) {
		prev := p.lastLen.Swap(int64(length))
		if int64(length) > prev {
			p.Trigger()
		}
	})
}

// Wait blocks until asynchronous drains started by Trigger have finished.
func (p *Processor) Wait() {
	p.wg.Wait()
}

// -----------------------------------------------------------------------------
// Conflict resolution
// -----------------------------------------------------------------------------

// Resolve applies an explicit decision to a conflict. EXECUTE submits the
// order at the current price and records FILLED or FAILED; CANCEL records a
// CANCELLED order at the queued price. Either way the conflict is removed.
func (p *Processor) Resolve(ctx context.Context, conflictID string, action model.ResolveAction) (model.Order, error) {
	switch action {
	case model.ActionCancel:
		return p.cancel(conflictID)
	case model.ActionExecute:
		return p.executeConflict(ctx, conflictID)
	default:
		return model.Order{}, fmt.Errorf("%w: %q", ErrInvalidAction, action)
	}
}

func (p *Processor) cancel(conflictID string) (model.Order, error) {
	// ResolveConflict guards the removal; the lookup only builds the order.
	record, ok := p.store.Conflict(conflictID)
	if !ok {
		return model.Order{}, fmt.Errorf("%w: %s", ErrConflictNotFound, conflictID)
	}

	cancelled := record.Order.ToOrder(model.NewOrderID(model.CancelledOrderIDPrefix), model.StatusCancelled, record.QueuedPrice, p.now())
	if !p.store.ResolveConflict(conflictID, cancelled) {
		return model.Order{}, fmt.Errorf("%w: %s", ErrConflictNotFound, conflictID)
	}

	p.metrics.OrderOutcome(OutcomeCancelled)
	p.logger.Info("conflict cancelled", "conflict_id", conflictID, "order_id", cancelled.ID)
	return cancelled, nil
}

func (p *Processor) executeConflict(ctx context.Context, conflictID string) (model.Order, error) {
	record, ok := p.store.TakeConflict(conflictID)
	if !ok {
		return model.Order{}, fmt.Errorf("%w: %s", ErrConflictNotFound, conflictID)
	}

	price, ok := p.store.CurrentPrice(record.Order.Symbol)
	if !ok {
		price = record.CurrentPrice
	}

	executed, err := p.execute(context.WithoutCancel(ctx), record.Order, price)
	var o model.Order
	if err != nil {
		o = record.Order.ToOrder(model.NewOrderID(model.FailedOrderIDPrefix), model.StatusFailed, price, p.now())
		p.metrics.OrderOutcome(OutcomeFailed)
		p.logger.Warn("conflict execution failed", "conflict_id", conflictID, "error", err)
	} else {
		o = p.finalize(record.Order, executed, price)
		p.metrics.OrderOutcome(OutcomeFilled)
		p.logger.Info("conflict executed", "conflict_id", conflictID, "order_id", o.ID, "price", o.Price)
	}

	p.store.AddOrder(o)
	return o, nil
}
