package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

// Errors
var (
	ErrNotConnected  = errors.New("not connected")
	ErrAlreadyClosed = errors.New("already closed")
	ErrClosed        = errors.New("connection manager closed")
	ErrHeartbeat     = errors.New("heartbeat timeout (no PONG)")
)

// Close codes.
const (
	CloseNormal           = 1000 // clean client or server shutdown
	CloseHeartbeatTimeout = 4000 // application code for a missed PONG
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// -----------------------------------------------------------------------------
// Wire protocol
// -----------------------------------------------------------------------------

// Message types.
const (
	TypeSubscribe   = "SUBSCRIBE"
	TypeUnsubscribe = "UNSUBSCRIBE"
	TypePing        = "PING"
	TypePong        = "PONG"
	TypeStockUpdate = "STOCK_UPDATE"
)

// SubscriptionMessage is an outbound SUBSCRIBE or UNSUBSCRIBE frame.
type SubscriptionMessage struct {
	Type    string   `json:"type"`
	Symbols []string `json:"symbols"`
}

// PingMessage is the outbound liveness probe. Payload is always null.
type PingMessage struct {
	Type    string    `json:"type"`
	Payload *struct{} `json:"payload"`
}

// InboundMessage is the envelope of every frame received from the server.
type InboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodeUpdate parses a STOCK_UPDATE payload.
func DecodeUpdate(payload json.RawMessage) (model.PriceUpdate, error) {
	var u model.PriceUpdate
	if len(payload) == 0 {
		return u, errors.New("empty payload")
	}
	if err := json.Unmarshal(payload, &u); err != nil {
		return u, err
	}
	if u.Symbol == "" {
		return u, errors.New("update without symbol")
	}
	return u, nil
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL              string        // WebSocket URL (e.g., wss://stream.example.com/ws)
	APIKey           string        // Sent as a bearer token when set
	HandshakeTimeout time.Duration // Dial handshake deadline
	WriteTimeout     time.Duration // Write deadline for sends
	BufferSize       int           // Message channel buffer size
	ReadLimit        int64         // Maximum inbound frame size in bytes
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		BufferSize:       1000,
		ReadLimit:        1 << 20,
	}
}

// ManagerConfig configures the Connection Manager.
type ManagerConfig struct {
	HeartbeatInterval    time.Duration // Time between PINGs while connected
	HeartbeatTimeout     time.Duration // Max wait for the PONG answering a PING
	ReconnectBaseDelay   time.Duration // Delay is base × 2^attempt
	ReconnectMaxDelay    time.Duration // Upper bound on a single delay
	ReconnectJitter      bool          // Randomize each delay between base and the computed value
	MaxReconnectAttempts int           // Attempts before giving up in DISCONNECTED
	FlushInterval        time.Duration // Update coalescing window
}

// DefaultManagerConfig returns sensible defaults.
func DefaultManagerConfig() ManagerConfig {
	return ManagerConfig{
		HeartbeatInterval:    30 * time.Second,
		HeartbeatTimeout:     10 * time.Second,
		ReconnectBaseDelay:   1 * time.Second,
		ReconnectMaxDelay:    60 * time.Second,
		MaxReconnectAttempts: 5,
		FlushInterval:        16 * time.Millisecond,
	}
}

// ManagerStats provides statistics about the connection manager.
type ManagerStats struct {
	Status            model.ConnectionStatus
	ReconnectAttempts int
	Subscriptions     int
	BatchesDelivered  int64
	UpdatesDelivered  int64
	FramesDropped     int64
}

// Metrics receives connection events. Implementations must be safe for
// concurrent use.
type Metrics interface {
	StatusChanged(status model.ConnectionStatus)
	ReconnectScheduled(delay time.Duration)
	HeartbeatTimeout()
	FrameDropped()
	BatchFlushed(updates int)
}

type nopMetrics struct{}

func (nopMetrics) StatusChanged(model.ConnectionStatus) {}
func (nopMetrics) ReconnectScheduled(time.Duration)     {}
func (nopMetrics) HeartbeatTimeout()                    {}
func (nopMetrics) FrameDropped()                        {}
func (nopMetrics) BatchFlushed(int)                     {}
