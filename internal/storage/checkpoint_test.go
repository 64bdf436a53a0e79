package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/sealer"
	"github.com/rickgao/stockdesk/internal/store"
)

// countingBackend counts saves.
type countingBackend struct {
	*Memory
	saves int
}

func (c *countingBackend) Save(ctx context.Context, key string, value []byte) error {
	c.saves++
	return c.Memory.Save(ctx, key, value)
}

func newSealer(t *testing.T) sealer.Sealer {
	t.Helper()
	s, err := sealer.FromFile(filepath.Join(t.TempDir(), "store.key"))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	return s
}

func populatedStore(t *testing.T) *store.Store {
	t.Helper()
	st := store.New()
	st.AddToWatchlist("aapl")
	st.AddOrder(model.Order{ID: "ORD-1", Symbol: "AAPL", Side: model.SideBuy, Quantity: 1, Price: 100, Status: model.StatusFilled})
	if _, err := st.Enqueue(model.QueuedOrder{Symbol: "MSFT", Side: model.SideSell, Quantity: 2, Price: 400}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	return st
}

func TestCheckpointer_Key(t *testing.T) {
	if got := NewCheckpointer(NewMemory(), nil, store.New(), "", nil).Key(); got != StoreKey {
		t.Errorf("Key() = %q, want %q", got, StoreKey)
	}
	if got := NewCheckpointer(NewMemory(), nil, store.New(), "desk-1", nil).Key(); got != "desk-1:stock-dashboard-store" {
		t.Errorf("Key() = %q", got)
	}
}

func TestCheckpointer_SaveRestore(t *testing.T) {
	backend := NewMemory()
	seal := newSealer(t)

	src := populatedStore(t)
	if err := NewCheckpointer(backend, seal, src, "ns", nil).Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	dst := store.New()
	if err := NewCheckpointer(backend, seal, dst, "ns", nil).Restore(context.Background()); err != nil {
		t.Fatalf("Restore: %v", err)
	}

	if got := dst.Watchlist(); len(got) != 1 || got[0] != "AAPL" {
		t.Errorf("Watchlist() = %v", got)
	}
	if got := dst.Orders(); len(got) != 1 || got[0].ID != "ORD-1" {
		t.Errorf("Orders() = %v", got)
	}
	if got := dst.Queue(); len(got) != 1 || got[0].ID != src.Queue()[0].ID {
		t.Errorf("Queue() = %v", got)
	}
}

func TestCheckpointer_RestoreMissingStartsEmpty(t *testing.T) {
	st := store.New()
	if err := NewCheckpointer(NewMemory(), nil, st, "", nil).Restore(context.Background()); err != nil {
		t.Errorf("Restore() = %v, want nil", err)
	}
	if st.QueueLen() != 0 {
		t.Errorf("QueueLen() = %d", st.QueueLen())
	}
}

func TestCheckpointer_RestoreCorrupt(t *testing.T) {
	backend := NewMemory()
	src := populatedStore(t)
	if err := NewCheckpointer(backend, newSealer(t), src, "", nil).Save(context.Background()); err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A different key cannot open the payload.
	dst := store.New()
	err := NewCheckpointer(backend, newSealer(t), dst, "", nil).Restore(context.Background())
	if !errors.Is(err, sealer.ErrCorrupt) {
		t.Errorf("Restore() error = %v, want ErrCorrupt", err)
	}
	if len(dst.Watchlist()) != 0 {
		t.Error("store modified by failed restore")
	}

	// Garbage under the plaintext sealer fails to decode.
	backend.Save(context.Background(), StoreKey, []byte("not json"))
	err = NewCheckpointer(backend, nil, dst, "", nil).Restore(context.Background())
	if !errors.Is(err, sealer.ErrCorrupt) {
		t.Errorf("Restore() error = %v, want ErrCorrupt", err)
	}
}

func TestCheckpointer_SkipsUnchanged(t *testing.T) {
	backend := &countingBackend{Memory: NewMemory()}
	st := populatedStore(t)
	cp := NewCheckpointer(backend, newSealer(t), st, "", nil)

	for i := 0; i < 3; i++ {
		if err := cp.Save(context.Background()); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if backend.saves != 1 {
		t.Errorf("saves = %d, want 1", backend.saves)
	}

	st.AddToWatchlist("TSLA")
	cp.Save(context.Background())
	if backend.saves != 2 {
		t.Errorf("saves = %d, want 2", backend.saves)
	}
}

func TestCheckpointer_RunSavesOnExit(t *testing.T) {
	backend := NewMemory()
	st := populatedStore(t)
	cp := NewCheckpointer(backend, nil, st, "", nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- cp.Run(ctx, time.Hour) }()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}

	if _, err := backend.Load(context.Background(), StoreKey); err != nil {
		t.Errorf("no final checkpoint: %v", err)
	}
}
