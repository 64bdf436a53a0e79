package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rickgao/stockdesk/internal/sealer"
	"github.com/rickgao/stockdesk/internal/store"
)

// StoreKey is the key the snapshot is stored under, after the namespace.
const StoreKey = "stock-dashboard-store"

// Snapshotter is the part of the StateStore that is persisted.
type Snapshotter interface {
	Snapshot() store.Snapshot
	Restore(store.Snapshot) error
}

// Checkpointer saves and restores store snapshots through a Backend.
type Checkpointer struct {
	backend Backend
	sealer  sealer.Sealer
	store   Snapshotter
	key     string
	logger  *slog.Logger

	mu   sync.Mutex
	last []byte // last saved plaintext
}

// NewCheckpointer creates a Checkpointer. The key is StoreKey, prefixed with
// "<namespace>:" when namespace is set. A nil sealer stores plaintext.
func NewCheckpointer(backend Backend, s sealer.Sealer, st Snapshotter, namespace string, logger *slog.Logger) *Checkpointer {
	if logger == nil {
		logger = slog.Default()
	}
	if s == nil {
		s = sealer.Nop{}
	}
	key := StoreKey
	if namespace != "" {
		key = namespace + ":" + StoreKey
	}
	return &Checkpointer{
		backend: backend,
		sealer:  s,
		store:   st,
		key:     key,
		logger:  logger.With("component", "checkpointer"),
	}
}

// Key returns the backend key.
func (c *Checkpointer) Key() string {
	return c.key
}

// Save writes the current snapshot. Unchanged snapshots are not rewritten.
func (c *Checkpointer) Save(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	plaintext, err := json.Marshal(c.store.Snapshot())
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	if bytes.Equal(plaintext, c.last) {
		return nil
	}

	sealed, err := c.sealer.Seal(plaintext)
	if err != nil {
		return fmt.Errorf("seal snapshot: %w", err)
	}
	if err := c.backend.Save(ctx, c.key, sealed); err != nil {
		return err
	}

	c.last = plaintext
	c.logger.Debug("checkpoint saved", "bytes", len(sealed))
	return nil
}

// Restore loads the stored snapshot into the store. A missing snapshot is
// not an error. A payload that cannot be opened or decoded returns an error
// wrapping sealer.ErrCorrupt and leaves the store untouched.
func (c *Checkpointer) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	sealed, err := c.backend.Load(ctx, c.key)
	if errors.Is(err, ErrNotFound) {
		c.logger.Info("no checkpoint found, starting empty", "key", c.key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	plaintext, err := c.sealer.Open(sealed)
	if err != nil {
		return fmt.Errorf("open checkpoint: %w", err)
	}

	var snap store.Snapshot
	if err := json.Unmarshal(plaintext, &snap); err != nil {
		return fmt.Errorf("decode checkpoint: %w: %v", sealer.ErrCorrupt, err)
	}
	if err := c.store.Restore(snap); err != nil {
		return fmt.Errorf("restore checkpoint: %w", err)
	}

	c.last = plaintext
	c.logger.Info("checkpoint restored",
		"watchlist", len(snap.Watchlist),
		"orders", len(snap.Orders),
		"queue", len(snap.Queue),
		"conflicts", len(snap.Conflicts),
	)
	return nil
}

// Run saves on every interval tick until ctx is done, then saves once more.
func (c *Checkpointer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			// Final save must outlive the cancelled context.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return c.Save(saveCtx)
		case <-ticker.C:
			if err := c.Save(ctx); err != nil {
				c.logger.Warn("checkpoint failed", "err", err)
			}
		}
	}
}
