package app

import (
	"context"
	"errors"
	"strings"

	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/orderqueue"
	"github.com/rickgao/stockdesk/internal/store"
)

// MaxOrderQuantity caps the quantity of a single order.
const MaxOrderQuantity = 10_000

// Errors
var (
	ErrNoPrice          = errors.New("no price available for symbol")
	ErrQuantityTooLarge = errors.New("quantity exceeds 10000")
)

// OrderRequest is a new order from the host. A zero Price uses the current
// quote.
type OrderRequest struct {
	Symbol   string     `json:"symbol"`
	Side     model.Side `json:"side"`
	Quantity int        `json:"quantity"`
	Price    float64    `json:"price,omitempty"`
}

// SubmitResult reports what happened to a submitted order. Order is set when
// execution was attempted; Queued is set when the order went to the offline
// queue.
type SubmitResult struct {
	Order  *model.Order       `json:"order,omitempty"`
	Queued *model.QueuedOrder `json:"queued,omitempty"`
}

// SubmitOrder executes an order while the stream is CONNECTED, recording it
// PENDING first and then FILLED. A failed execution marks the order FAILED and
// queues a copy for retry. While not connected the order is queued directly.
func (a *App) SubmitOrder(ctx context.Context, req OrderRequest) (SubmitResult, error) {
	req.Symbol = strings.ToUpper(strings.TrimSpace(req.Symbol))
	if req.Price <= 0 {
		price, ok := a.store.CurrentPrice(req.Symbol)
		if !ok || price <= 0 {
			return SubmitResult{}, ErrNoPrice
		}
		req.Price = price
	}

	now := model.NowMillis()
	item := model.QueuedOrder{
		Symbol:    req.Symbol,
		Side:      req.Side,
		Quantity:  req.Quantity,
		Price:     req.Price,
		CreatedAt: now,
	}
	if err := item.Validate(); err != nil {
		return SubmitResult{}, err
	}
	if item.Quantity > MaxOrderQuantity {
		return SubmitResult{}, ErrQuantityTooLarge
	}

	if a.manager.Status() != model.StatusConnected {
		queued, err := a.store.Enqueue(item)
		if err != nil {
			return SubmitResult{}, err
		}
		a.logger.Info("order queued while offline", "queue_id", queued.ID, "symbol", queued.Symbol)
		return SubmitResult{Queued: &queued}, nil
	}

	pending := item.ToOrder(model.NewOrderID(model.OrderIDPrefix), model.StatusPending, item.Price, now)
	a.store.AddOrder(pending)

	executed, err := a.executor.Execute(ctx, item, item.Price)
	if err != nil {
		status := model.StatusFailed
		order, uerr := a.store.UpdateOrder(pending.ID, store.OrderPatch{Status: &status})
		if uerr != nil {
			return SubmitResult{}, uerr
		}

		queued, qerr := a.store.Enqueue(item)
		if qerr != nil {
			return SubmitResult{Order: &order}, qerr
		}
		a.logger.Warn("order execution failed, queued for retry",
			"order_id", order.ID,
			"queue_id", queued.ID,
			"error", err,
		)
		return SubmitResult{Order: &order, Queued: &queued}, nil
	}

	status := executed.Status
	if status == "" {
		status = model.StatusFilled
	}
	price := executed.Price
	if price <= 0 {
		price = item.Price
	}
	order, err := a.store.UpdateOrder(pending.ID, store.OrderPatch{Status: &status, Price: &price})
	if err != nil {
		return SubmitResult{}, err
	}
	return SubmitResult{Order: &order}, nil
}

// Resolve applies an explicit decision to a price conflict.
func (a *App) Resolve(ctx context.Context, conflictID string, action model.ResolveAction) (model.Order, error) {
	return a.processor.Resolve(ctx, conflictID, action)
}

// Drain runs one queue pass synchronously.
func (a *App) Drain(ctx context.Context) (orderqueue.Result, error) {
	return a.processor.Drain(ctx)
}

// AddToWatchlist adds symbol to the watch-list, loads its quote if it has
// none and subscribes it on the stream. Returns false if already watched.
func (a *App) AddToWatchlist(ctx context.Context, symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return false, model.ErrEmptySymbol
	}
	if !a.store.AddToWatchlist(symbol) {
		return false, nil
	}

	if _, ok := a.store.Quote(symbol); !ok {
		if q, ok := a.quotes.FetchQuote(ctx, symbol); ok {
			a.store.PutQuote(q)
		}
	}
	if err := a.manager.Subscribe(symbol); err != nil {
		return true, err
	}
	return true, nil
}

// RemoveFromWatchlist removes symbol from the watch-list. Symbols outside the
// default set are unsubscribed from the stream.
func (a *App) RemoveFromWatchlist(symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !a.store.RemoveFromWatchlist(symbol) {
		return false, nil
	}
	for _, s := range a.tracked {
		if s == symbol {
			return true, nil
		}
	}
	if err := a.manager.Unsubscribe(symbol); err != nil {
		return true, err
	}
	return true, nil
}
