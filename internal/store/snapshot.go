package store

import (
	"fmt"
	"slices"

	"github.com/google/uuid"

	"github.com/rickgao/stockdesk/internal/model"
)

// SnapshotVersion is the current Snapshot layout.
const SnapshotVersion = 1

// Snapshot is the durable subset of the store. Quotes are never included.
type Snapshot struct {
	Version   int                    `json:"version"`
	Watchlist []string               `json:"watchlist"`
	Orders    []model.Order          `json:"orders"`
	Queue     []model.QueuedOrder    `json:"queue"`
	Conflicts []model.ConflictRecord `json:"conflicts"`
}

// Snapshot captures the watch-list, order history, queue and conflicts.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		Version:   SnapshotVersion,
		Watchlist: slices.Clone(s.watchlist),
		Orders:    slices.Clone(s.orders),
		Queue:     slices.Clone(s.queue),
		Conflicts: slices.Clone(s.conflicts),
	}
}

// Restore replaces the durable state with snap. Queue items and conflicts
// persisted without an ID are assigned one.
func (s *Store) Restore(snap Snapshot) error {
	if snap.Version > SnapshotVersion {
		return fmt.Errorf("snapshot version %d is newer than supported %d", snap.Version, SnapshotVersion)
	}

	watchlist := make([]string, 0, len(snap.Watchlist))
	for _, sym := range snap.Watchlist {
		sym = normalizeSymbol(sym)
		if sym != "" && !slices.Contains(watchlist, sym) {
			watchlist = append(watchlist, sym)
		}
	}

	queue := slices.Clone(snap.Queue)
	for i := range queue {
		if queue[i].ID == "" {
			queue[i].ID = uuid.NewString()
		}
	}

	conflicts := slices.Clone(snap.Conflicts)
	for i := range conflicts {
		if conflicts[i].ID == "" {
			conflicts[i].ID = uuid.NewString()
		}
	}

	s.mu.Lock()
	s.watchlist = watchlist
	s.orders = slices.Clone(snap.Orders)
	s.queue = queue
	s.conflicts = conflicts
	n := len(s.queue)
	s.mu.Unlock()

	s.queueObs.Notify(n)
	return nil
}
