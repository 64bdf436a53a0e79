package connection

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/deque"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/observer"
)

// Option configures a Manager.
type Option func(*Manager)

// WithMetrics attaches a metrics sink.
func WithMetrics(metrics Metrics) Option {
	return func(m *Manager) {
		if metrics != nil {
			m.metrics = metrics
		}
	}
}

// Manager owns one logical streaming connection.
type Manager struct {
	cfg     ManagerConfig
	dial    Dialer
	logger  *slog.Logger
	metrics Metrics

	mb        *mailbox
	stopped   chan struct{}
	closeOnce sync.Once

	ctx    context.Context
	cancel context.CancelFunc

	updateObs observer.Registry[[]model.PriceUpdate]
	statusObs observer.Registry[model.ConnectionStatus]

	// Read-side copy of loop state for Status, Subscriptions and Stats.
	viewMu   sync.RWMutex
	view     ManagerStats
	subsView []string

	// Everything below is owned by the loop goroutine.
	status    model.ConnectionStatus
	client    Client
	pumpStop  chan struct{}
	gen       uint64
	attempts  int
	backoff   *backoff.Backoff
	subs      map[string]struct{}
	pending   deque.Deque[model.PriceUpdate]
	exiting   bool
	subsDirty bool

	flushTimer       *loopTimer
	heartbeatTimer   *loopTimer
	heartbeatTimeout *loopTimer
	reconnectTimer   *loopTimer

	batches int64
	updates int64
	dropped int64
}

// NewManager creates a Connection Manager and starts its event loop.
// The manager starts DISCONNECTED; call Connect to open the stream.
func NewManager(cfg ManagerConfig, dial Dialer, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     cfg,
		dial:    dial,
		logger:  logger.With("component", "connection"),
		metrics: nopMetrics{},
		mb:      newMailbox(),
		stopped: make(chan struct{}),
		ctx:     ctx,
		cancel:  cancel,
		status:  model.StatusDisconnected,
		subs:    make(map[string]struct{}),
		backoff: &backoff.Backoff{
			Min:    cfg.ReconnectBaseDelay,
			Max:    cfg.ReconnectMaxDelay,
			Factor: 2,
			Jitter: cfg.ReconnectJitter,
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	m.view.Status = model.StatusDisconnected

	go m.run()
	return m
}

func withDefaults(cfg ManagerConfig) ManagerConfig {
	d := DefaultManagerConfig()
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = d.HeartbeatInterval
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = d.HeartbeatTimeout
	}
	if cfg.ReconnectBaseDelay <= 0 {
		cfg.ReconnectBaseDelay = d.ReconnectBaseDelay
	}
	if cfg.ReconnectMaxDelay <= 0 {
		cfg.ReconnectMaxDelay = d.ReconnectMaxDelay
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = d.MaxReconnectAttempts
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = d.FlushInterval
	}
	return cfg
}

// -----------------------------------------------------------------------------
// Public API
// -----------------------------------------------------------------------------

// Connect opens the stream. It is a no-op while CONNECTING or CONNECTED and
// skips the remaining backoff wait while RECONNECTING.
func (m *Manager) Connect() error {
	return m.post(m.connect)
}

// Disconnect cancels all timers, closes the socket with a normal closure and
// leaves the manager DISCONNECTED until Connect is called again.
func (m *Manager) Disconnect() error {
	return m.post(m.disconnect)
}

// Close disconnects and stops the event loop. It must not be called from a
// listener.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.mb.post(func() {
			m.disconnect()
			m.exiting = true
		})
		m.mb.close()
		m.cancel()
		<-m.stopped
	})
	return nil
}

// Subscribe adds symbols to the subscription set.
func (m *Manager) Subscribe(symbols ...string) error {
	return m.post(func() { m.subscribe(symbols) })
}

// Unsubscribe removes symbols from the subscription set.
func (m *Manager) Unsubscribe(symbols ...string) error {
	return m.post(func() { m.unsubscribe(symbols) })
}

// OnUpdate registers a listener for coalesced update batches. Every listener
// receives the same slice and must not modify it.
func (m *Manager) OnUpdate(fn func([]model.PriceUpdate)) (detach func()) {
	return m.updateObs.Add(fn)
}

// OnStatusChange registers a listener for connection status transitions.
func (m *Manager) OnStatusChange(fn func(model.ConnectionStatus)) (detach func()) {
	return m.statusObs.Add(fn)
}

// Status returns the current connection status.
func (m *Manager) Status() model.ConnectionStatus {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.view.Status
}

// Subscriptions returns the subscription set, sorted.
func (m *Manager) Subscriptions() []string {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return slices.Clone(m.subsView)
}

// Stats returns current statistics.
func (m *Manager) Stats() ManagerStats {
	m.viewMu.RLock()
	defer m.viewMu.RUnlock()
	return m.view
}

func (m *Manager) post(fn func()) error {
	if !m.mb.post(fn) {
		return ErrClosed
	}
	return nil
}

// -----------------------------------------------------------------------------
// Event loop
// -----------------------------------------------------------------------------

func (m *Manager) run() {
	defer close(m.stopped)

	for range m.mb.signal {
		for _, fn := range m.mb.take() {
			fn()
			m.syncView()
		}
		if m.exiting {
			return
		}
	}
}

func (m *Manager) syncView() {
	m.viewMu.Lock()
	defer m.viewMu.Unlock()

	m.view.Status = m.status
	m.view.ReconnectAttempts = m.attempts
	m.view.Subscriptions = len(m.subs)
	m.view.BatchesDelivered = m.batches
	m.view.UpdatesDelivered = m.updates
	m.view.FramesDropped = m.dropped
	if m.subsDirty {
		m.subsView = m.sortedSubs()
		m.subsDirty = false
	}
}

// loopTimer is a timer whose callback runs on the event loop and is
// suppressed once stop has been called.
type loopTimer struct {
	t        *time.Timer
	canceled bool
}

func (m *Manager) after(d time.Duration, fn func()) *loopTimer {
	lt := &loopTimer{}
	lt.t = time.AfterFunc(d, func() {
		m.mb.post(func() {
			if lt.canceled {
				return
			}
			lt.canceled = true
			fn()
		})
	})
	return lt
}

func (lt *loopTimer) stop() {
	if lt == nil {
		return
	}
	lt.canceled = true
	lt.t.Stop()
}

// -----------------------------------------------------------------------------
// State machine
// -----------------------------------------------------------------------------

func (m *Manager) setStatus(status model.ConnectionStatus) {
	if m.status == status {
		return
	}
	m.logger.Debug("status change", "from", m.status, "to", status)
	m.status = status
	m.metrics.StatusChanged(status)
	m.syncView()
	m.statusObs.Notify(status)
}

func (m *Manager) connect() {
	switch m.status {
	case model.StatusConnecting, model.StatusConnected:
		return
	case model.StatusReconnecting:
		m.reconnectTimer.stop()
		m.reconnectTimer = nil
	}
	m.open()
}

// open starts a dial in the background and moves to CONNECTING.
func (m *Manager) open() {
	m.gen++
	gen := m.gen
	m.setStatus(model.StatusConnecting)

	go func() {
		c, err := m.dial(m.ctx)
		if !m.mb.post(func() { m.onDialed(gen, c, err) }) && c != nil {
			c.Close(CloseNormal, "manager closed")
		}
	}()
}

func (m *Manager) onDialed(gen uint64, c Client, err error) {
	if gen != m.gen || m.status != model.StatusConnecting {
		if c != nil {
			c.Close(CloseNormal, "superseded")
		}
		return
	}
	if err != nil {
		m.logger.Warn("dial failed", "error", err, "attempt", m.attempts)
		m.scheduleReconnect()
		return
	}

	m.client = c
	m.pumpStop = make(chan struct{})
	m.attempts = 0
	go m.pump(gen, c, m.pumpStop)

	m.setStatus(model.StatusConnected)
	m.logger.Info("stream connected", "subscriptions", len(m.subs))

	if len(m.subs) > 0 && !m.send(SubscriptionMessage{Type: TypeSubscribe, Symbols: m.sortedSubs()}) {
		return
	}
	m.armHeartbeat()
}

// pump forwards frames and the terminal read error of one client to the loop.
func (m *Manager) pump(gen uint64, c Client, stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case msg := <-c.Messages():
			if !m.mb.post(func() { m.onMessage(gen, msg.Data) }) {
				return
			}
		case err := <-c.Errors():
			// Deliver frames read before the error first.
			for {
				select {
				case msg := <-c.Messages():
					m.mb.post(func() { m.onMessage(gen, msg.Data) })
					continue
				default:
				}
				break
			}
			m.mb.post(func() { m.onSocketClosed(gen, err) })
			return
		}
	}
}

func (m *Manager) onSocketClosed(gen uint64, err error) {
	if gen != m.gen || m.client == nil {
		return
	}

	var ce *websocket.CloseError
	if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
		m.logger.Info("server closed stream", "reason", ce.Text)
		m.teardown(CloseNormal, "")
		m.attempts = 0
		m.setStatus(model.StatusDisconnected)
		return
	}

	m.logger.Warn("stream closed abnormally", "error", err)
	m.teardown(websocket.CloseAbnormalClosure, "")
	m.scheduleReconnect()
}

func (m *Manager) scheduleReconnect() {
	if m.attempts >= m.cfg.MaxReconnectAttempts {
		m.logger.Error("reconnect attempts exhausted", "attempts", m.attempts)
		m.setStatus(model.StatusDisconnected)
		return
	}

	m.attempts++
	delay := m.backoff.ForAttempt(float64(m.attempts))
	m.metrics.ReconnectScheduled(delay)
	m.logger.Info("scheduling reconnect", "attempt", m.attempts, "delay", delay)

	m.setStatus(model.StatusReconnecting)
	m.reconnectTimer = m.after(delay, func() {
		m.reconnectTimer = nil
		m.open()
	})
}

// teardown stops heartbeat timers and closes the current socket, if any.
// Bumping the generation makes callbacks from the old socket stale.
func (m *Manager) teardown(code int, reason string) {
	m.heartbeatTimer.stop()
	m.heartbeatTimer = nil
	m.heartbeatTimeout.stop()
	m.heartbeatTimeout = nil

	if m.client != nil {
		close(m.pumpStop)
		if err := m.client.Close(code, reason); err != nil {
			m.logger.Debug("close error", "error", err)
		}
		m.client = nil
		m.pumpStop = nil
	}
	m.gen++
}

func (m *Manager) disconnect() {
	m.reconnectTimer.stop()
	m.reconnectTimer = nil
	m.flushTimer.stop()
	m.flushTimer = nil
	m.pending.Clear()

	m.teardown(CloseNormal, "client disconnect")
	m.attempts = 0
	m.setStatus(model.StatusDisconnected)
}

// -----------------------------------------------------------------------------
// Heartbeat
// -----------------------------------------------------------------------------

func (m *Manager) armHeartbeat() {
	m.heartbeatTimer = m.after(m.cfg.HeartbeatInterval, m.ping)
}

func (m *Manager) ping() {
	m.heartbeatTimer = nil
	if m.status != model.StatusConnected {
		return
	}

	if !m.send(PingMessage{Type: TypePing}) {
		return
	}
	if m.heartbeatTimeout == nil {
		m.heartbeatTimeout = m.after(m.cfg.HeartbeatTimeout, m.onHeartbeatTimeout)
	}
	m.armHeartbeat()
}

func (m *Manager) onHeartbeatTimeout() {
	m.heartbeatTimeout = nil
	if m.status != model.StatusConnected {
		return
	}

	m.logger.Warn("heartbeat timeout", "timeout", m.cfg.HeartbeatTimeout)
	m.metrics.HeartbeatTimeout()
	m.teardown(CloseHeartbeatTimeout, ErrHeartbeat.Error())
	m.scheduleReconnect()
}

// -----------------------------------------------------------------------------
// Subscriptions
// -----------------------------------------------------------------------------

func (m *Manager) subscribe(symbols []string) {
	added := false
	for _, s := range normalize(symbols) {
		if _, ok := m.subs[s]; !ok {
			m.subs[s] = struct{}{}
			added = true
		}
	}
	if !added {
		return
	}
	m.subsDirty = true

	if m.status == model.StatusConnected {
		m.send(SubscriptionMessage{Type: TypeSubscribe, Symbols: m.sortedSubs()})
	}
}

func (m *Manager) unsubscribe(symbols []string) {
	var removed []string
	for _, s := range normalize(symbols) {
		if _, ok := m.subs[s]; ok {
			delete(m.subs, s)
			removed = append(removed, s)
		}
	}
	if len(removed) == 0 {
		return
	}
	m.subsDirty = true

	if m.status == model.StatusConnected {
		m.send(SubscriptionMessage{Type: TypeUnsubscribe, Symbols: removed})
	}
}

func (m *Manager) sortedSubs() []string {
	out := make([]string, 0, len(m.subs))
	for s := range m.subs {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func normalize(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// send writes a frame to the current socket. A write failure is a transport
// error and goes through the reconnect path. Returns false if the socket is gone.
func (m *Manager) send(v any) bool {
	if m.client == nil {
		return false
	}
	data, err := json.Marshal(v)
	if err != nil {
		m.logger.Error("marshal frame", "error", err)
		return true
	}
	if err := m.client.Send(data); err != nil {
		m.logger.Warn("send failed", "error", err)
		m.teardown(websocket.CloseAbnormalClosure, "")
		m.scheduleReconnect()
		return false
	}
	return true
}

// -----------------------------------------------------------------------------
// Inbound frames and batching
// -----------------------------------------------------------------------------

func (m *Manager) onMessage(gen uint64, data []byte) {
	if gen != m.gen {
		return
	}

	var msg InboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		m.drop("malformed frame", err)
		return
	}

	switch msg.Type {
	case TypeStockUpdate:
		u, err := DecodeUpdate(msg.Payload)
		if err != nil {
			m.drop("malformed update", err)
			return
		}
		m.pending.PushBack(u)
		if m.flushTimer == nil {
			m.flushTimer = m.after(m.cfg.FlushInterval, m.flush)
		}
	case TypePong:
		m.heartbeatTimeout.stop()
		m.heartbeatTimeout = nil
	default:
		m.drop("unknown frame type", errors.New(msg.Type))
	}
}

func (m *Manager) drop(reason string, err error) {
	m.dropped++
	m.metrics.FrameDropped()
	m.logger.Debug("dropping frame", "reason", reason, "error", err)
}

// flush delivers the pending buffer as one batch, keeping the last update per
// symbol in the position of that symbol's first appearance.
func (m *Manager) flush() {
	m.flushTimer = nil
	if m.pending.Len() == 0 {
		return
	}

	batch := coalesce(&m.pending)
	m.batches++
	m.updates += int64(len(batch))
	m.metrics.BatchFlushed(len(batch))
	m.updateObs.Notify(batch)
}

func coalesce(pending *deque.Deque[model.PriceUpdate]) []model.PriceUpdate {
	index := make(map[string]int, pending.Len())
	batch := make([]model.PriceUpdate, 0, pending.Len())
	for pending.Len() > 0 {
		u := pending.PopFront()
		if i, ok := index[u.Symbol]; ok {
			batch[i] = u
			continue
		}
		index[u.Symbol] = len(batch)
		batch = append(batch, u)
	}
	return batch
}
