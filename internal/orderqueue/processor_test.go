package orderqueue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/store"
)

// stubExecutor fills at the offered price unless fail is set.
type stubExecutor struct {
	mu     sync.Mutex
	calls  int
	prices []float64
	fail   func(call int) bool
	block  chan struct{}
}

func (e *stubExecutor) Execute(ctx context.Context, order model.QueuedOrder, price float64) (model.Order, error) {
	e.mu.Lock()
	e.calls++
	call := e.calls
	e.prices = append(e.prices, price)
	block := e.block
	e.mu.Unlock()

	if block != nil {
		<-block
	}
	if e.fail != nil && e.fail(call) {
		return model.Order{}, errors.New("network error")
	}
	return model.Order{ID: model.NewOrderID(model.OrderIDPrefix), Price: price, Status: model.StatusFilled}, nil
}

func (e *stubExecutor) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
}

func newFixture(t *testing.T, exec Executor) (*Processor, *store.Store, *sleepRecorder) {
	t.Helper()
	st := store.New()
	rec := &sleepRecorder{}
	p := New(DefaultConfig(), st, exec, nil, WithSleep(rec.sleep))
	return p, st, rec
}

func enqueue(t *testing.T, st *store.Store, symbol string, price float64) model.QueuedOrder {
	t.Helper()
	item, err := st.Enqueue(model.QueuedOrder{Symbol: symbol, Side: model.SideBuy, Quantity: 10, Price: price})
	require.NoError(t, err)
	return item
}

func setPrice(st *store.Store, symbol string, price float64) {
	st.SetStocks(append(st.Quotes(), model.Quote{Symbol: symbol, Price: price}))
}

func TestDrain_ExecutesWithinTolerance(t *testing.T) {
	exec := &stubExecutor{}
	p, st, _ := newFixture(t, exec)

	enqueue(t, st, "AAPL", 227.55)
	setPrice(st, "AAPL", 227.80)

	res, err := p.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Filled: 1}, res)
	assert.Equal(t, 0, st.QueueLen())

	orders := st.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, model.StatusFilled, orders[0].Status)
	assert.Equal(t, "AAPL", orders[0].Symbol)
	assert.Equal(t, 227.80, orders[0].Price)
	assert.True(t, strings.HasPrefix(orders[0].ID, "ORD-"))
}

func TestDrain_PriceDriftBecomesConflict(t *testing.T) {
	exec := &stubExecutor{}
	p, st, _ := newFixture(t, exec)

	enqueue(t, st, "AAPL", 227.55)
	setPrice(st, "AAPL", 230.00)

	res, err := p.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Conflicts: 1}, res)
	assert.Equal(t, 0, st.QueueLen())
	assert.Empty(t, st.Orders())
	assert.Equal(t, 0, exec.count())

	conflicts := st.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, 227.55, conflicts[0].QueuedPrice)
	assert.Equal(t, 230.00, conflicts[0].CurrentPrice)
	assert.InDelta(t, 1.0767, conflicts[0].PriceDiffPercent, 0.001)
	assert.Equal(t, 0, conflicts[0].Order.RetryCount)
}

func TestDrain_UntrackedSymbolUsesQueuedPrice(t *testing.T) {
	exec := &stubExecutor{}
	p, st, _ := newFixture(t, exec)

	enqueue(t, st, "ZZZZ", 12.5)

	res, err := p.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Filled)
	assert.Equal(t, []float64{12.5}, exec.prices)
}

func TestDrain_ExhaustedRetriesFailWithoutExecution(t *testing.T) {
	exec := &stubExecutor{}
	p, st, _ := newFixture(t, exec)

	item := enqueue(t, st, "AAPL", 227.55)
	for i := 0; i < 3; i++ {
		_, ok := st.IncrementRetryByID(item.ID)
		require.True(t, ok)
	}
	setPrice(st, "AAPL", 300)

	res, err := p.Drain(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Result{Failed: 1}, res)
	assert.Equal(t, 0, exec.count())
	assert.Equal(t, 0, st.QueueLen())

	orders := st.Orders()
	require.Len(t, orders, 1)
	assert.Equal(t, model.StatusFailed, orders[0].Status)
	assert.Equal(t, 227.55, orders[0].Price)
	assert.Equal(t, item.CreatedAt, orders[0].CreatedAt)
	assert.True(t, strings.HasPrefix(orders[0].ID, "ORD-FAILED-"))
}

func TestDrain_FailureIncrementsRetryAndWaits(t *testing.T) {
	exec := &stubExecutor{fail: func(int) bool { return true }}
	p, st, rec := newFixture(t, exec)

	enqueue(t, st, "AAPL", 100)
	enqueue(t, st, "MSFT", 100)

	for pass := 0; pass < 3; pass++ {
		res, err := p.Drain(context.Background())
		require.NoError(t, err)
		assert.Equal(t, 2, res.Retried)
	}

	// Waits use the count before the increment: 1s, 2s, 4s per item.
	assert.Equal(t, []time.Duration{
		time.Second, time.Second,
		2 * time.Second, 2 * time.Second,
		4 * time.Second, 4 * time.Second,
	}, rec.waits)

	queue := st.Queue()
	require.Len(t, queue, 2)
	assert.Equal(t, 3, queue[0].RetryCount)

	// Fourth pass converts both to FAILED without executing.
	calls := exec.count()
	res, err := p.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Failed: 2}, res)
	assert.Equal(t, calls, exec.count())
	assert.Equal(t, 0, st.QueueLen())
}

func TestDrain_MixedOutcomesPreserveOthers(t *testing.T) {
	exec := &stubExecutor{fail: func(call int) bool { return call == 1 }}
	p, st, _ := newFixture(t, exec)

	failing := enqueue(t, st, "AAPL", 100)
	enqueue(t, st, "MSFT", 100)
	enqueue(t, st, "TSLA", 100)
	setPrice(st, "TSLA", 200)

	res, err := p.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Result{Filled: 1, Conflicts: 1, Retried: 1}, res)

	queue := st.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, failing.ID, queue[0].ID)
	assert.Equal(t, 1, queue[0].RetryCount)
}

func TestDrain_ItemsQueuedDuringPassAreUntouched(t *testing.T) {
	exec := &stubExecutor{block: make(chan struct{})}
	p, st, _ := newFixture(t, exec)

	enqueue(t, st, "AAPL", 100)

	done := make(chan Result)
	go func() {
		res, _ := p.Drain(context.Background())
		done <- res
	}()

	require.Eventually(t, func() bool { return exec.count() == 1 }, time.Second, time.Millisecond)
	late := enqueue(t, st, "MSFT", 100)
	close(exec.block)

	res := <-done
	assert.Equal(t, 1, res.Filled)

	queue := st.Queue()
	require.Len(t, queue, 1)
	assert.Equal(t, late.ID, queue[0].ID)
	assert.Equal(t, 0, queue[0].RetryCount)
}

func TestDrain_SingleFlight(t *testing.T) {
	exec := &stubExecutor{block: make(chan struct{})}
	p, st, _ := newFixture(t, exec)

	enqueue(t, st, "AAPL", 100)

	done := make(chan struct{})
	go func() {
		p.Drain(context.Background())
		close(done)
	}()
	require.Eventually(t, p.InFlight, time.Second, time.Millisecond)

	_, err := p.Drain(context.Background())
	assert.ErrorIs(t, err, ErrDrainInFlight)

	close(exec.block)
	<-done

	assert.False(t, p.InFlight())
	assert.Equal(t, 1, exec.count())
	assert.Len(t, st.Orders(), 1)
}

func TestDrain_NotCancelledByCaller(t *testing.T) {
	var sawCancel atomic.Bool
	exec := ExecutorFunc(func(ctx context.Context, o model.QueuedOrder, price float64) (model.Order, error) {
		if ctx.Err() != nil {
			sawCancel.Store(true)
		}
		return model.Order{Price: price}, nil
	})
	p, st, _ := newFixture(t, exec)
	enqueue(t, st, "AAPL", 100)
	enqueue(t, st, "MSFT", 100)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := p.Drain(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Filled)
	assert.False(t, sawCancel.Load())
}

func TestDrain_ExecutorPanicReleasesFlag(t *testing.T) {
	exec := ExecutorFunc(func(context.Context, model.QueuedOrder, float64) (model.Order, error) {
		panic("boom")
	})
	p, st, _ := newFixture(t, exec)
	enqueue(t, st, "AAPL", 100)

	res, err := p.Drain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retried)
	assert.False(t, p.InFlight())
	assert.Equal(t, 1, st.Queue()[0].RetryCount)
}

func TestWatch_TriggersOnGrowth(t *testing.T) {
	exec := &stubExecutor{}
	p, st, _ := newFixture(t, exec)

	detach := p.Watch()
	defer detach()

	enqueue(t, st, "AAPL", 100)

	require.Eventually(t, func() bool { return len(st.Orders()) == 1 }, time.Second, time.Millisecond)
	p.Wait()
	assert.Equal(t, 0, st.QueueLen())
}

func TestOnResume_Drains(t *testing.T) {
	exec := &stubExecutor{}
	p, st, _ := newFixture(t, exec)
	enqueue(t, st, "AAPL", 100)

	p.OnResume()
	p.Wait()

	assert.Len(t, st.Orders(), 1)
}

func TestResolve_CancelUsesQueuedPrice(t *testing.T) {
	exec := &stubExecutor{}
	p, st, _ := newFixture(t, exec)

	enqueue(t, st, "AAPL", 227.55)
	setPrice(st, "AAPL", 250)
	_, err := p.Drain(context.Background())
	require.NoError(t, err)

	conflict := st.Conflicts()[0]
	o, err := p.Resolve(context.Background(), conflict.ID, model.ActionCancel)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCancelled, o.Status)
	assert.Equal(t, 227.55, o.Price)
	assert.True(t, strings.HasPrefix(o.ID, "ORD-CANCELLED-"))
	assert.Empty(t, st.Conflicts())
	assert.Len(t, st.Orders(), 1)
	assert.Equal(t, 0, exec.count())

	_, err = p.Resolve(context.Background(), conflict.ID, model.ActionCancel)
	assert.ErrorIs(t, err, ErrConflictNotFound)
}

func TestResolve_ExecuteUsesCurrentPrice(t *testing.T) {
	exec := &stubExecutor{}
	p, st, _ := newFixture(t, exec)

	enqueue(t, st, "AAPL", 227.55)
	setPrice(st, "AAPL", 230)
	p.Drain(context.Background())
	setPrice(st, "AAPL", 231)

	conflict := st.Conflicts()[0]
	o, err := p.Resolve(context.Background(), conflict.ID, model.ActionExecute)
	require.NoError(t, err)

	assert.Equal(t, model.StatusFilled, o.Status)
	assert.Equal(t, 231.0, o.Price)
	assert.Empty(t, st.Conflicts())
}

func TestResolve_ExecuteFailureRecordsFailed(t *testing.T) {
	exec := &stubExecutor{fail: func(int) bool { return true }}
	p, st, _ := newFixture(t, exec)

	enqueue(t, st, "AAPL", 227.55)
	setPrice(st, "AAPL", 230)
	p.Drain(context.Background())

	conflict := st.Conflicts()[0]
	o, err := p.Resolve(context.Background(), conflict.ID, model.ActionExecute)
	require.NoError(t, err)

	assert.Equal(t, model.StatusFailed, o.Status)
	assert.Equal(t, 230.0, o.Price)
	assert.Empty(t, st.Conflicts())
	assert.Len(t, st.Orders(), 1)
}

func TestResolve_UnknownAndInvalid(t *testing.T) {
	p, _, _ := newFixture(t, &stubExecutor{})

	_, err := p.Resolve(context.Background(), "missing", model.ActionExecute)
	assert.ErrorIs(t, err, ErrConflictNotFound)

	_, err = p.Resolve(context.Background(), "missing", model.ResolveAction("MAYBE"))
	assert.ErrorIs(t, err, ErrInvalidAction)
}

func TestPriceDiff(t *testing.T) {
	tests := []struct {
		current, queued float64
		conflict        bool
	}{
		{227.80, 227.55, false},
		{230.00, 227.55, true},
		{100.50, 100, false}, // exactly 0.5% is within tolerance
		{100.51, 100, true},
		{99.40, 100, true},
	}

	threshold := DefaultConfig().ConflictThreshold
	p := New(DefaultConfig(), store.New(), &stubExecutor{}, nil)
	for _, tt := range tests {
		got := priceDiff(tt.current, tt.queued).GreaterThan(p.threshold)
		assert.Equal(t, tt.conflict, got, "current=%v queued=%v threshold=%v", tt.current, tt.queued, threshold)
	}
}
