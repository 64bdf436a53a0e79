package orderqueue

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

// Errors
var (
	ErrDrainInFlight    = errors.New("drain already in progress")
	ErrConflictNotFound = errors.New("conflict not found")
	ErrInvalidAction    = errors.New("action must be EXECUTE or CANCEL")
)

// Config configures the QueueProcessor.
type Config struct {
	MaxRetries        int           // Items at or past this count fail without execution
	ConflictThreshold float64       // Relative drift that parks an item as a conflict (0.005 = 0.5%)
	RetryBaseDelay    time.Duration // Wait after a failure is base × 2^retryCount
	RetryMaxDelay     time.Duration // Upper bound on a single wait
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:        3,
		ConflictThreshold: 0.005,
		RetryBaseDelay:    time.Second,
		RetryMaxDelay:     time.Minute,
	}
}

// Executor submits a queued order at the given price.
type Executor interface {
	Execute(ctx context.Context, order model.QueuedOrder, price float64) (model.Order, error)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, order model.QueuedOrder, price float64) (model.Order, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, order model.QueuedOrder, price float64) (model.Order, error) {
	return f(ctx, order, price)
}

// Store is the subset of the StateStore the processor reads and writes.
type Store interface {
	Queue() []model.QueuedOrder
	CurrentPrice(symbol string) (float64, bool)
	CompleteQueued(id string, o model.Order) bool
	IncrementRetryByID(id string) (model.QueuedOrder, bool)
	MoveToConflict(id string, c model.ConflictRecord) bool
	Conflict(id string) (model.ConflictRecord, bool)
	TakeConflict(id string) (model.ConflictRecord, bool)
	ResolveConflict(id string, o model.Order) bool
	AddOrder(o model.Order)
	OnQueueChange(fn func(length int)) (detach func())
}

// Result summarizes one drain pass.
type Result struct {
	Filled    int
	Failed    int
	Conflicts int
	Retried   int
}

// Outcomes reported to Metrics.
const (
	OutcomeFilled    = "filled"
	OutcomeFailed    = "failed"
	OutcomeConflict  = "conflict"
	OutcomeRetried   = "retried"
	OutcomeCancelled = "cancelled"
)

// Metrics receives processor events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	OrderOutcome(outcome string)
	DrainCompleted(elapsed time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) OrderOutcome(string)          {}
func (nopMetrics) DrainCompleted(time.Duration) {}
