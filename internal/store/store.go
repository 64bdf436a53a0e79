package store

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/observer"
)

// Errors
var (
	ErrIndexOutOfRange  = errors.New("queue index out of range")
	ErrOrderNotFound    = errors.New("order not found")
	ErrOrderTerminal    = errors.New("order is in a terminal state")
	ErrConflictNotFound = errors.New("conflict not found")
)

// Store holds all client-side trading state.
type Store struct {
	mu sync.RWMutex

	// Replaced wholesale on every write, never edited in place.
	quotes map[string]model.Quote

	watchlist  []string
	orders     []model.Order // newest first
	queue      []model.QueuedOrder
	conflicts  []model.ConflictRecord
	connStatus model.ConnectionStatus

	queueObs observer.Registry[int]
	orderObs observer.Registry[model.Order]

	now func() int64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the millisecond clock used for timestamps.
func WithClock(now func() int64) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		quotes:     make(map[string]model.Quote),
		connStatus: model.StatusDisconnected,
		now:        model.NowMillis,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// -----------------------------------------------------------------------------
// Quotes
// -----------------------------------------------------------------------------

// ApplyUpdates merges a batch of stream updates into the quote map.
// Updates older than the stored quote are skipped; within a batch the last
// update for a symbol wins.
func (s *Store) ApplyUpdates(updates []model.PriceUpdate) {
	if len(updates) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.quotes)
	for _, u := range updates {
		existing, ok := next[u.Symbol]
		if !ok {
			next[u.Symbol] = u.Placeholder()
			continue
		}
		if u.Timestamp < existing.Timestamp {
			continue
		}
		next[u.Symbol] = existing.Merge(u)
	}
	s.quotes = next
}

// PutQuote inserts or replaces a single quote.
func (s *Store) PutQuote(q model.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.quotes)
	next[q.Symbol] = q
	s.quotes = next
}

// SetStocks replaces the entire quote map.
func (s *Store) SetStocks(quotes []model.Quote) {
	next := make(map[string]model.Quote, len(quotes))
	for _, q := range quotes {
		next[q.Symbol] = q
	}

	s.mu.Lock()
	s.quotes = next
	s.mu.Unlock()
}

// Quote returns the quote for a symbol.
func (s *Store) Quote(symbol string) (model.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	return q, ok
}

// Quotes returns all quotes sorted by symbol.
func (s *Store) Quotes() []model.Quote {
	s.mu.RLock()
	current := s.quotes
	s.mu.RUnlock()

	result := make([]model.Quote, 0, len(current))
	for _, q := range current {
		result = append(result, q)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Symbol < result[j].Symbol })
	return result
}

// CurrentPrice returns the latest price for a tracked symbol.
func (s *Store) CurrentPrice(symbol string) (float64, bool) {
	q, ok := s.Quote(symbol)
	if !ok {
		return 0, false
	}
	return q.Price, true
}

// -----------------------------------------------------------------------------
// Connection status
// -----------------------------------------------------------------------------

// SetConnectionStatus mirrors the stream connection status.
func (s *Store) SetConnectionStatus(status model.ConnectionStatus) {
	s.mu.Lock()
	s.connStatus = status
	s.mu.Unlock()
}

// ConnectionStatus returns the mirrored stream connection status.
func (s *Store) ConnectionStatus() model.ConnectionStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connStatus
}

// -----------------------------------------------------------------------------
// Watch-list
// -----------------------------------------------------------------------------

// AddToWatchlist adds a symbol. Returns false if it was already watched.
func (s *Store) AddToWatchlist(symbol string) bool {
	symbol = normalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.watchlist, symbol) {
		return false
	}
	s.watchlist = append(slices.Clip(s.watchlist), symbol)
	return true
}

// RemoveFromWatchlist removes a symbol. Returns false if it was not watched.
func (s *Store) RemoveFromWatchlist(symbol string) bool {
	symbol = normalizeSymbol(symbol)

	s.mu.Lock()
	defer s.mu.Unlock()

	i := slices.Index(s.watchlist, symbol)
	if i < 0 {
		return false
	}
	s.watchlist = slices.Delete(slices.Clone(s.watchlist), i, i+1)
	return true
}

// IsWatched reports whether a symbol is on the watch-list.
func (s *Store) IsWatched(symbol string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Contains(s.watchlist, normalizeSymbol(symbol))
}

// Watchlist returns the watch-list in insertion order.
func (s *Store) Watchlist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.watchlist)
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// OrderPatch holds the fields UpdateOrder may change. Nil fields are left alone.
type OrderPatch struct {
	Status   *model.OrderStatus
	Price    *float64
	Quantity *int
}

// AddOrder records an order at the head of the history.
func (s *Store) AddOrder(o model.Order) {
	s.mu.Lock()
	s.addOrderLocked(o)
	s.mu.Unlock()

	s.orderObs.Notify(o)
}

// UpdateOrder patches an order and refreshes its UpdatedAt.
// Terminal orders cannot be mutated.
func (s *Store) UpdateOrder(id string, patch OrderPatch) (model.Order, error) {
	s.mu.Lock()

	i := slices.IndexFunc(s.orders, func(o model.Order) bool { return o.ID == id })
	if i < 0 {
		s.mu.Unlock()
		return model.Order{}, fmt.Errorf("%w: %s", ErrOrderNotFound, id)
	}

	o := s.orders[i]
	if o.Status.IsTerminal() {
		s.mu.Unlock()
		return o, fmt.Errorf("%w: %s is %s", ErrOrderTerminal, id, o.Status)
	}

	if patch.Status != nil {
		o.Status = *patch.Status
	}
	if patch.Price != nil {
		o.Price = *patch.Price
	}
	if patch.Quantity != nil {
		o.Quantity = *patch.Quantity
	}
	o.UpdatedAt = s.now()

	next := slices.Clone(s.orders)
	next[i] = o
	s.orders = next
	s.mu.Unlock()

	s.orderObs.Notify(o)
	return o, nil
}

// Orders returns the order history, newest first.
func (s *Store) Orders() []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.orders)
}

// OrdersBySymbol returns the history for one symbol, newest first.
func (s *Store) OrdersBySymbol(symbol string) []model.Order {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.Order
	for _, o := range s.orders {
		if o.Symbol == symbol {
			result = append(result, o)
		}
	}
	return result
}

// OnOrderChange registers a listener for every order appended to the history
// and every successful UpdateOrder.
func (s *Store) OnOrderChange(fn func(model.Order)) (detach func()) {
	return s.orderObs.Add(fn)
}

func (s *Store) addOrderLocked(o model.Order) {
	next := make([]model.Order, 0, len(s.orders)+1)
	next = append(next, o)
	s.orders = append(next, s.orders...)
}

// -----------------------------------------------------------------------------
// Offline queue
// -----------------------------------------------------------------------------

// Enqueue validates and appends an order to the offline queue, assigning its
// ID, queuing timestamp and a zero retry count.
func (s *Store) Enqueue(item model.QueuedOrder) (model.QueuedOrder, error) {
	if err := item.Validate(); err != nil {
		return model.QueuedOrder{}, err
	}

	now := s.now()
	item.ID = uuid.NewString()
	item.Symbol = normalizeSymbol(item.Symbol)
	item.QueuedAt = now
	item.RetryCount = 0
	if item.CreatedAt == 0 {
		item.CreatedAt = now
	}

	s.mu.Lock()
	s.queue = append(slices.Clip(s.queue), item)
	n := len(s.queue)
	s.mu.Unlock()

	s.queueObs.Notify(n)
	return item, nil
}

// Dequeue removes the item at index.
func (s *Store) Dequeue(index int) error {
	s.mu.Lock()
	if index < 0 || index >= len(s.queue) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	s.queue = slices.Delete(slices.Clone(s.queue), index, index+1)
	n := len(s.queue)
	s.mu.Unlock()

	s.queueObs.Notify(n)
	return nil
}

// IncrementRetry bumps the retry counter of the item at index.
func (s *Store) IncrementRetry(index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if index < 0 || index >= len(s.queue) {
		return fmt.Errorf("%w: %d", ErrIndexOutOfRange, index)
	}
	next := slices.Clone(s.queue)
	next[index].RetryCount++
	s.queue = next
	return nil
}

// IncrementRetryByID bumps the retry counter of the item with the given ID.
// Returns false if the item is no longer queued.
func (s *Store) IncrementRetryByID(id string) (model.QueuedOrder, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.queueIndexLocked(id)
	if i < 0 {
		return model.QueuedOrder{}, false
	}
	next := slices.Clone(s.queue)
	next[i].RetryCount++
	s.queue = next
	return next[i], true
}

// CompleteQueued removes a queued item and appends its outcome to the order
// history in one step. Returns false, recording nothing, if the item is gone.
func (s *Store) CompleteQueued(id string, o model.Order) bool {
	s.mu.Lock()
	i := s.queueIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.queue = slices.Delete(slices.Clone(s.queue), i, i+1)
	s.addOrderLocked(o)
	n := len(s.queue)
	s.mu.Unlock()

	s.orderObs.Notify(o)
	s.queueObs.Notify(n)
	return true
}

// MoveToConflict removes a queued item and parks it in the conflict set.
// Returns false if the item is gone.
func (s *Store) MoveToConflict(id string, c model.ConflictRecord) bool {
	s.mu.Lock()
	i := s.queueIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	s.queue = slices.Delete(slices.Clone(s.queue), i, i+1)
	s.conflicts = append(slices.Clip(s.conflicts), c)
	n := len(s.queue)
	s.mu.Unlock()

	s.queueObs.Notify(n)
	return true
}

// Queue returns a snapshot of the offline queue.
func (s *Store) Queue() []model.QueuedOrder {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.queue)
}

// QueueLen returns the number of queued orders.
func (s *Store) QueueLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// ClearQueue drops every queued order.
func (s *Store) ClearQueue() {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()

	s.queueObs.Notify(0)
}

// OnQueueChange registers a listener receiving the queue length after every
// structural change (enqueue, removal, restore, clear).
func (s *Store) OnQueueChange(fn func(length int)) (detach func()) {
	return s.queueObs.Add(fn)
}

func (s *Store) queueIndexLocked(id string) int {
	return slices.IndexFunc(s.queue, func(q model.QueuedOrder) bool { return q.ID == id })
}

// -----------------------------------------------------------------------------
// Conflicts
// -----------------------------------------------------------------------------

// Conflicts returns the unresolved conflict records, oldest first.
func (s *Store) Conflicts() []model.ConflictRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.conflicts)
}

// Conflict returns a single conflict by ID.
func (s *Store) Conflict(id string) (model.ConflictRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i := s.conflictIndexLocked(id)
	if i < 0 {
		return model.ConflictRecord{}, false
	}
	return s.conflicts[i], true
}

// TakeConflict removes and returns a conflict so only one caller can resolve it.
func (s *Store) TakeConflict(id string) (model.ConflictRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.conflictIndexLocked(id)
	if i < 0 {
		return model.ConflictRecord{}, false
	}
	c := s.conflicts[i]
	s.conflicts = slices.Delete(slices.Clone(s.conflicts), i, i+1)
	return c, true
}

// ResolveConflict removes a conflict and appends its outcome to the order
// history in one step. Returns false if the conflict is gone.
func (s *Store) ResolveConflict(id string, o model.Order) bool {
	s.mu.Lock()
	i := s.conflictIndexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return false
	}
	s.conflicts = slices.Delete(slices.Clone(s.conflicts), i, i+1)
	s.addOrderLocked(o)
	s.mu.Unlock()

	s.orderObs.Notify(o)
	return true
}

func (s *Store) conflictIndexLocked(id string) int {
	return slices.IndexFunc(s.conflicts, func(c model.ConflictRecord) bool { return c.ID == id })
}

func normalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
