package poller

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

// mockSource records requested symbols and returns one quote per symbol.
type mockSource struct {
	mu    sync.Mutex
	calls [][]string
	err   error
}

func (m *mockSource) FetchQuotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, slices.Clone(symbols))
	if m.err != nil {
		return nil, m.err
	}
	out := make([]model.Quote, len(symbols))
	for i, s := range symbols {
		out[i] = model.Quote{Symbol: s, Price: float64(i + 1)}
	}
	return out, nil
}

func (m *mockSource) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

type recordingSink struct {
	mu   sync.Mutex
	sets [][]model.Quote
}

func (r *recordingSink) SetStocks(q []model.Quote) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = append(r.sets, q)
}

func TestPoller_Poll(t *testing.T) {
	source := &mockSource{}
	sink := &recordingSink{}
	symbols := func() []string { return []string{"AAPL", "MSFT"} }

	p := New(Config{Interval: time.Hour}, source, symbols, sink, nil)
	p.poll(context.Background())

	if len(sink.sets) != 1 || len(sink.sets[0]) != 2 {
		t.Fatalf("sets = %v, want one refresh of 2 quotes", sink.sets)
	}
	if sink.sets[0][1].Symbol != "MSFT" {
		t.Errorf("second quote = %+v", sink.sets[0][1])
	}
	if p.Cycles() != 1 {
		t.Errorf("Cycles() = %d, want 1", p.Cycles())
	}
}

func TestPoller_FailedFetchKeepsQuotes(t *testing.T) {
	source := &mockSource{err: errors.New("boom")}
	var called bool
	sink := SinkFunc(func([]model.Quote) { called = true })

	p := New(Config{}, source, nil, sink, nil)
	p.poll(context.Background())

	if called {
		t.Error("sink called after failed fetch")
	}
	if p.Cycles() != 0 {
		t.Errorf("Cycles() = %d, want 0", p.Cycles())
	}
}

func TestPoller_Defaults(t *testing.T) {
	p := New(Config{}, &mockSource{}, nil, &recordingSink{}, nil)
	if p.cfg.Interval != time.Minute || p.cfg.Timeout != 30*time.Second {
		t.Errorf("cfg = %+v", p.cfg)
	}
}

func TestPoller_StartStop(t *testing.T) {
	source := &mockSource{}
	sink := &recordingSink{}

	p := New(Config{Interval: 20 * time.Millisecond}, source, func() []string { return []string{"TSLA"} }, sink, nil)

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	// Immediate poll plus at least one tick.
	time.Sleep(70 * time.Millisecond)

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	if got := source.callCount(); got < 2 {
		t.Errorf("calls = %d, want >= 2", got)
	}
	if source.calls[0][0] != "TSLA" {
		t.Errorf("first call symbols = %v", source.calls[0])
	}
}
