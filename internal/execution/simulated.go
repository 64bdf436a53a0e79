package execution

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

// ErrRejected is returned when the simulated venue rejects an order.
var ErrRejected = errors.New("order rejected by simulated venue")

// Simulated defaults.
const (
	DefaultLatency     = 800 * time.Millisecond
	DefaultFailureRate = 0.05
)

// Simulated executes orders locally after a fixed delay, failing a
// configurable fraction of them.
type Simulated struct {
	latency     time.Duration
	failureRate float64
	random      func() float64
	sleep       func(context.Context, time.Duration) error
}

// SimulatedOption configures a Simulated executor.
type SimulatedOption func(*Simulated)

// WithLatency sets the execution delay.
func WithLatency(d time.Duration) SimulatedOption {
	return func(s *Simulated) {
		s.latency = d
	}
}

// WithFailureRate sets the probability in [0, 1] that an order is rejected.
func WithFailureRate(rate float64) SimulatedOption {
	return func(s *Simulated) {
		s.failureRate = min(max(rate, 0), 1)
	}
}

// WithRandom replaces the random source. f must return values in [0, 1).
func WithRandom(f func() float64) SimulatedOption {
	return func(s *Simulated) {
		s.random = f
	}
}

// WithSleep replaces the delay function.
func WithSleep(f func(context.Context, time.Duration) error) SimulatedOption {
	return func(s *Simulated) {
		s.sleep = f
	}
}

// NewSimulated creates a simulated executor.
func NewSimulated(opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		latency:     DefaultLatency,
		failureRate: DefaultFailureRate,
		random:      rand.Float64,
		sleep:       sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Execute waits for the configured latency, then either rejects the order or
// returns it FILLED at price.
func (s *Simulated) Execute(ctx context.Context, order model.QueuedOrder, price float64) (model.Order, error) {
	if err := s.sleep(ctx, s.latency); err != nil {
		return model.Order{}, err
	}
	if s.random() < s.failureRate {
		return model.Order{}, ErrRejected
	}

	now := model.NowMillis()
	return model.Order{
		ID:        model.NewOrderID(model.OrderIDPrefix),
		Symbol:    order.Symbol,
		Side:      order.Side,
		Quantity:  order.Quantity,
		Price:     price,
		Status:    model.StatusFilled,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
