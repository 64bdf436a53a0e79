package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Market Data
// -----------------------------------------------------------------------------

// Quote is a full market snapshot for one symbol.
type Quote struct {
	Symbol        string  `json:"symbol"`
	Name          string  `json:"name"`
	Price         float64 `json:"price"`
	PreviousClose float64 `json:"previousClose"`
	Change        float64 `json:"change"`        // absolute
	ChangePercent float64 `json:"changePercent"` // percentage
	Volume        int64   `json:"volume"`
	MarketCap     float64 `json:"marketCap"`
	High          float64 `json:"high"`
	Low           float64 `json:"low"`
	Open          float64 `json:"open"`
	Timestamp     int64   `json:"timestamp"` // ms since epoch
}

// PriceUpdate is a partial, higher-frequency variant of Quote delivered by the stream.
type PriceUpdate struct {
	Symbol        string  `json:"symbol"`
	Price         float64 `json:"price"`
	Change        float64 `json:"change"`
	ChangePercent float64 `json:"changePercent"`
	Volume        int64   `json:"volume"`
	Timestamp     int64   `json:"timestamp"`
}

// Placeholder synthesizes a Quote for a symbol that has only been seen on the stream.
func (u PriceUpdate) Placeholder() Quote {
	return Quote{
		Symbol:        u.Symbol,
		Name:          u.Symbol,
		Price:         u.Price,
		PreviousClose: u.Price - u.Change,
		Change:        u.Change,
		ChangePercent: u.ChangePercent,
		Volume:        u.Volume,
		High:          u.Price,
		Low:           u.Price,
		Open:          u.Price,
		Timestamp:     u.Timestamp,
	}
}

// Merge applies the update onto q. Name, high/low/open and market cap are preserved.
func (q Quote) Merge(u PriceUpdate) Quote {
	q.Price = u.Price
	q.Change = u.Change
	q.ChangePercent = u.ChangePercent
	q.Volume = u.Volume
	q.Timestamp = u.Timestamp
	return q
}

// Timeframe selects a candle range.
type Timeframe string

const (
	Timeframe1D Timeframe = "1D"
	Timeframe1W Timeframe = "1W"
	Timeframe1M Timeframe = "1M"
	Timeframe3M Timeframe = "3M"
	Timeframe1Y Timeframe = "1Y"
)

// ParseTimeframe parses a timeframe string, defaulting to 1D for empty input.
func ParseTimeframe(s string) (Timeframe, error) {
	switch tf := Timeframe(strings.ToUpper(s)); tf {
	case "":
		return Timeframe1D, nil
	case Timeframe1D, Timeframe1W, Timeframe1M, Timeframe3M, Timeframe1Y:
		return tf, nil
	default:
		return "", fmt.Errorf("unknown timeframe %q", s)
	}
}

// Candle is one OHLC bar.
type Candle struct {
	Timestamp int64   `json:"timestamp"`
	Open      float64 `json:"open"`
	High      float64 `json:"high"`
	Low       float64 `json:"low"`
	Close     float64 `json:"close"`
	Volume    int64   `json:"volume"`
}

// SearchResult is a symbol lookup hit.
type SearchResult struct {
	Symbol string `json:"symbol"`
	Name   string `json:"name"`
	Type   string `json:"type"` // EQUITY | ETF | CRYPTO
}

// -----------------------------------------------------------------------------
// Orders
// -----------------------------------------------------------------------------

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus is the lifecycle state of an Order.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusFilled    OrderStatus = "FILLED"
	StatusFailed    OrderStatus = "FAILED"
	StatusCancelled OrderStatus = "CANCELLED"
)

// IsTerminal reports whether no further transition is allowed.
func (s OrderStatus) IsTerminal() bool {
	return s == StatusFilled || s == StatusFailed || s == StatusCancelled
}

// Order is an entry in the order history.
type Order struct {
	ID        string      `json:"id"`
	Symbol    string      `json:"symbol"`
	Side      Side        `json:"side"`
	Quantity  int         `json:"quantity"`
	Price     float64     `json:"price"`
	Status    OrderStatus `json:"status"`
	CreatedAt int64       `json:"createdAt"`
	UpdatedAt int64       `json:"updatedAt"`
}

// QueuedOrder is an order waiting for execution in the offline queue.
type QueuedOrder struct {
	ID         string  `json:"id"`
	Symbol     string  `json:"symbol"`
	Side       Side    `json:"side"`
	Quantity   int     `json:"quantity"`
	Price      float64 `json:"price"` // price at time of queuing
	CreatedAt  int64   `json:"createdAt"`
	QueuedAt   int64   `json:"queuedAt"`
	RetryCount int     `json:"retryCount"`
}

// Validation errors.
var (
	ErrEmptySymbol     = errors.New("symbol is required")
	ErrInvalidSide     = errors.New("side must be BUY or SELL")
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrInvalidPrice    = errors.New("price must be positive")
)

// Validate checks the fields a caller must supply before queuing.
func (q QueuedOrder) Validate() error {
	if strings.TrimSpace(q.Symbol) == "" {
		return ErrEmptySymbol
	}
	if !q.Side.Valid() {
		return ErrInvalidSide
	}
	if q.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if q.Price <= 0 {
		return ErrInvalidPrice
	}
	return nil
}

// ToOrder builds a terminal history entry from a queued item.
func (q QueuedOrder) ToOrder(id string, status OrderStatus, price float64, now int64) Order {
	return Order{
		ID:        id,
		Symbol:    q.Symbol,
		Side:      q.Side,
		Quantity:  q.Quantity,
		Price:     price,
		Status:    status,
		CreatedAt: q.CreatedAt,
		UpdatedAt: now,
	}
}

// Order ID prefixes.
const (
	OrderIDPrefix          = "ORD"
	FailedOrderIDPrefix    = "ORD-FAILED"
	CancelledOrderIDPrefix = "ORD-CANCELLED"
)

// NewOrderID returns a unique order id of the form <prefix>-<ms>-<rand>.
func NewOrderID(prefix string) string {
	r := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixMilli(), r)
}

// NowMillis returns the current time in ms since epoch.
func NowMillis() int64 {
	return time.Now().UnixMilli()
}

// ConflictRecord is a queued order whose price drifted beyond tolerance.
type ConflictRecord struct {
	ID               string      `json:"id"`
	Order            QueuedOrder `json:"order"`
	QueuedPrice      float64     `json:"queuedPrice"`
	CurrentPrice     float64     `json:"currentPrice"`
	PriceDiffPercent float64     `json:"priceDiffPercent"`
	DetectedAt       int64       `json:"detectedAt"`
}

// ResolveAction is the explicit decision taken on a conflict.
type ResolveAction string

const (
	ActionExecute ResolveAction = "EXECUTE"
	ActionCancel  ResolveAction = "CANCEL"
)

// Valid reports whether a is a known action.
func (a ResolveAction) Valid() bool {
	return a == ActionExecute || a == ActionCancel
}

// -----------------------------------------------------------------------------
// Streaming
// -----------------------------------------------------------------------------

// ConnectionStatus is the single source of truth for stream connectivity.
type ConnectionStatus string

const (
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
	StatusConnecting   ConnectionStatus = "CONNECTING"
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusReconnecting ConnectionStatus = "RECONNECTING"
)
