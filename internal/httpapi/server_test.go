package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rickgao/stockdesk/internal/app"
	"github.com/rickgao/stockdesk/internal/connection"
	"github.com/rickgao/stockdesk/internal/model"
	"github.com/rickgao/stockdesk/internal/orderqueue"
	"github.com/rickgao/stockdesk/internal/quotes"
	"github.com/rickgao/stockdesk/internal/store"
)

// fakeDesk serves reads from a real store and lets tests script the
// operations.
type fakeDesk struct {
	store  *store.Store
	quotes app.QuoteSource

	submit  func(app.OrderRequest) (app.SubmitResult, error)
	drain   func() (orderqueue.Result, error)
	resolve func(id string, action model.ResolveAction) (model.Order, error)
	resumed int
}

func newFakeDesk(t *testing.T) *fakeDesk {
	t.Helper()
	qc, err := quotes.NewClient("", "")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	t.Cleanup(qc.Close)

	st := store.New()
	st.SetStocks(qc.Fallback().Quotes())
	return &fakeDesk{store: st, quotes: qc}
}

func (d *fakeDesk) Store() *store.Store     { return d.store }
func (d *fakeDesk) Quotes() app.QuoteSource { return d.quotes }

func (d *fakeDesk) ConnectionStats() connection.ManagerStats {
	return connection.ManagerStats{Status: model.StatusConnected, Subscriptions: 15, UpdatesDelivered: 42}
}

func (d *fakeDesk) SubmitOrder(_ context.Context, req app.OrderRequest) (app.SubmitResult, error) {
	return d.submit(req)
}

func (d *fakeDesk) AddToWatchlist(_ context.Context, symbol string) (bool, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return false, model.ErrEmptySymbol
	}
	return d.store.AddToWatchlist(symbol), nil
}

func (d *fakeDesk) RemoveFromWatchlist(symbol string) (bool, error) {
	return d.store.RemoveFromWatchlist(symbol), nil
}

func (d *fakeDesk) Resolve(_ context.Context, id string, action model.ResolveAction) (model.Order, error) {
	return d.resolve(id, action)
}

func (d *fakeDesk) Drain(context.Context) (orderqueue.Result, error) { return d.drain() }
func (d *fakeDesk) OnResume()                                        { d.resumed++ }

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, path, nil)
	} else {
		r = httptest.NewRequest(method, path, bytes.NewBufferString(body))
		r.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(w.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
	return v
}

func TestHealth(t *testing.T) {
	d := newFakeDesk(t)
	d.store.SetConnectionStatus(model.StatusConnected)
	s := New(d, nil)

	w := do(t, s, http.MethodGet, "/health", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := decodeBody[HealthResponse](t, w)
	if got.Status != "ok" || got.Connection != model.StatusConnected {
		t.Errorf("health = %+v", got)
	}
}

func TestMetricsMounted(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("stockdesk_up 1\n"))
	})
	s := New(newFakeDesk(t), nil, WithMetrics("/metrics", metrics))

	w := do(t, s, http.MethodGet, "/metrics", "")
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "stockdesk_up") {
		t.Errorf("GET /metrics = %d %q", w.Code, w.Body.String())
	}

	if w := do(t, New(newFakeDesk(t), nil), http.MethodGet, "/metrics", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /metrics without handler = %d, want 404", w.Code)
	}
}

func TestQuotes(t *testing.T) {
	s := New(newFakeDesk(t), nil)

	w := do(t, s, http.MethodGet, "/quotes", "")
	if got := decodeBody[[]model.Quote](t, w); len(got) != 15 {
		t.Errorf("len(quotes) = %d, want 15", len(got))
	}

	w = do(t, s, http.MethodGet, "/quotes/aapl", "")
	if w.Code != http.StatusOK {
		t.Fatalf("GET /quotes/aapl = %d, want 200", w.Code)
	}
	if got := decodeBody[model.Quote](t, w); got.Price != 227.55 {
		t.Errorf("AAPL price = %v, want 227.55", got.Price)
	}

	if w := do(t, s, http.MethodGet, "/quotes/ZZZZ", ""); w.Code != http.StatusNotFound {
		t.Errorf("GET /quotes/ZZZZ = %d, want 404", w.Code)
	}
}

func TestCandles(t *testing.T) {
	s := New(newFakeDesk(t), nil)

	w := do(t, s, http.MethodGet, "/quotes/AAPL/candles?timeframe=1w", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decodeBody[[]model.Candle](t, w); len(got) == 0 {
		t.Error("no candles returned")
	}

	w = do(t, s, http.MethodGet, "/quotes/AAPL/candles?timeframe=5Y", "")
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad timeframe status = %d, want 400", w.Code)
	}
	if got := decodeBody[ErrorResponse](t, w); got.Error != "invalid_timeframe" {
		t.Errorf("error = %q, want invalid_timeframe", got.Error)
	}
}

func TestSearch(t *testing.T) {
	s := New(newFakeDesk(t), nil)

	w := do(t, s, http.MethodGet, "/search?q=", "")
	if strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("blank search body = %q, want []", w.Body.String())
	}

	w = do(t, s, http.MethodGet, "/search?q=apple", "")
	got := decodeBody[[]model.SearchResult](t, w)
	if len(got) == 0 || got[0].Symbol != "AAPL" {
		t.Errorf("search apple = %+v, want AAPL first", got)
	}
}

func TestWatchlist(t *testing.T) {
	d := newFakeDesk(t)
	s := New(d, nil)

	if w := do(t, s, http.MethodGet, "/watchlist", ""); strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("empty watch-list body = %q, want []", w.Body.String())
	}

	w := do(t, s, http.MethodPost, "/watchlist", `{"symbol":"tsla"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("add status = %d, want 201", w.Code)
	}
	if got := decodeBody[[]string](t, w); len(got) != 1 || got[0] != "TSLA" {
		t.Errorf("watch-list = %v, want [TSLA]", got)
	}

	if w := do(t, s, http.MethodPost, "/watchlist", `{"symbol":"TSLA"}`); w.Code != http.StatusOK {
		t.Errorf("duplicate add status = %d, want 200", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/watchlist", `{"symbol":""}`); w.Code != http.StatusBadRequest {
		t.Errorf("empty symbol status = %d, want 400", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/watchlist", ""); w.Code != http.StatusBadRequest {
		t.Errorf("empty body status = %d, want 400", w.Code)
	}

	if w := do(t, s, http.MethodDelete, "/watchlist/TSLA", ""); w.Code != http.StatusNoContent {
		t.Errorf("remove status = %d, want 204", w.Code)
	}
	if w := do(t, s, http.MethodDelete, "/watchlist/TSLA", ""); w.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", w.Code)
	}
}

func TestSubmitOrder(t *testing.T) {
	d := newFakeDesk(t)
	s := New(d, nil)

	filled := model.Order{ID: "ORD-1", Symbol: "AAPL", Side: model.SideBuy, Quantity: 1, Price: 227.55, Status: model.StatusFilled}
	queued := model.QueuedOrder{ID: "q-1", Symbol: "AAPL", Side: model.SideBuy, Quantity: 1, Price: 227.55}

	tests := []struct {
		name     string
		body     string
		result   app.SubmitResult
		err      error
		wantCode int
	}{
		{"filled", `{"symbol":"AAPL","side":"BUY","quantity":1}`, app.SubmitResult{Order: &filled}, nil, http.StatusCreated},
		{"queued", `{"symbol":"AAPL","side":"BUY","quantity":1}`, app.SubmitResult{Queued: &queued}, nil, http.StatusAccepted},
		{"invalid side", `{"symbol":"AAPL","side":"HOLD","quantity":1}`, app.SubmitResult{}, model.ErrInvalidSide, http.StatusBadRequest},
		{"too large", `{"symbol":"AAPL","side":"BUY","quantity":20000}`, app.SubmitResult{}, app.ErrQuantityTooLarge, http.StatusBadRequest},
		{"no price", `{"symbol":"ZZZZ","side":"BUY","quantity":1}`, app.SubmitResult{}, app.ErrNoPrice, http.StatusBadRequest},
		{"internal", `{"symbol":"AAPL","side":"BUY","quantity":1}`, app.SubmitResult{}, errors.New("boom"), http.StatusInternalServerError},
		{"unknown field", `{"symbol":"AAPL","qty":1}`, app.SubmitResult{}, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d.submit = func(app.OrderRequest) (app.SubmitResult, error) { return tt.result, tt.err }
			w := do(t, s, http.MethodPost, "/orders", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestListOrders(t *testing.T) {
	d := newFakeDesk(t)
	d.store.AddOrder(model.Order{ID: "ORD-1", Symbol: "AAPL", Side: model.SideBuy, Quantity: 1, Price: 1, Status: model.StatusFilled})
	d.store.AddOrder(model.Order{ID: "ORD-2", Symbol: "MSFT", Side: model.SideSell, Quantity: 1, Price: 1, Status: model.StatusFilled})
	s := New(d, nil)

	if got := decodeBody[[]model.Order](t, do(t, s, http.MethodGet, "/orders", "")); len(got) != 2 {
		t.Errorf("len(orders) = %d, want 2", len(got))
	}
	got := decodeBody[[]model.Order](t, do(t, s, http.MethodGet, "/orders?symbol=msft", ""))
	if len(got) != 1 || got[0].ID != "ORD-2" {
		t.Errorf("orders for MSFT = %+v, want [ORD-2]", got)
	}
}

func TestQueueAndDrain(t *testing.T) {
	d := newFakeDesk(t)
	if _, err := d.store.Enqueue(model.QueuedOrder{Symbol: "AAPL", Side: model.SideBuy, Quantity: 1, Price: 227.55}); err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}
	s := New(d, nil)

	if got := decodeBody[[]model.QueuedOrder](t, do(t, s, http.MethodGet, "/queue", "")); len(got) != 1 {
		t.Errorf("len(queue) = %d, want 1", len(got))
	}

	d.drain = func() (orderqueue.Result, error) { return orderqueue.Result{Filled: 1}, nil }
	w := do(t, s, http.MethodPost, "/queue/drain", "")
	if w.Code != http.StatusOK {
		t.Fatalf("drain status = %d, want 200", w.Code)
	}
	if got := decodeBody[DrainResponse](t, w); got.Filled != 1 || got.Remaining != 1 {
		t.Errorf("drain = %+v, want filled 1 remaining 1", got)
	}

	d.drain = func() (orderqueue.Result, error) { return orderqueue.Result{}, orderqueue.ErrDrainInFlight }
	if w := do(t, s, http.MethodPost, "/queue/drain", ""); w.Code != http.StatusConflict {
		t.Errorf("in-flight drain status = %d, want 409", w.Code)
	}
}

func TestResolve(t *testing.T) {
	d := newFakeDesk(t)
	s := New(d, nil)

	var gotAction model.ResolveAction
	d.resolve = func(id string, action model.ResolveAction) (model.Order, error) {
		gotAction = action
		switch {
		case id == "missing":
			return model.Order{}, orderqueue.ErrConflictNotFound
		case !action.Valid():
			return model.Order{}, orderqueue.ErrInvalidAction
		}
		return model.Order{ID: "ORD-CANCELLED-1", Status: model.StatusCancelled}, nil
	}

	w := do(t, s, http.MethodPost, "/conflicts/c-1/resolve", `{"action":"cancel"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("resolve status = %d, want 200", w.Code)
	}
	if gotAction != model.ActionCancel {
		t.Errorf("action = %q, want CANCEL", gotAction)
	}
	if got := decodeBody[model.Order](t, w); got.Status != model.StatusCancelled {
		t.Errorf("order status = %s, want CANCELLED", got.Status)
	}

	if w := do(t, s, http.MethodPost, "/conflicts/c-1/resolve", `{"action":"HOLD"}`); w.Code != http.StatusBadRequest {
		t.Errorf("bad action status = %d, want 400", w.Code)
	}
	if w := do(t, s, http.MethodPost, "/conflicts/missing/resolve", `{"action":"EXECUTE"}`); w.Code != http.StatusNotFound {
		t.Errorf("missing conflict status = %d, want 404", w.Code)
	}

	if w := do(t, s, http.MethodGet, "/conflicts", ""); strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("conflicts body = %q, want []", w.Body.String())
	}
}

func TestResumeAndConnection(t *testing.T) {
	d := newFakeDesk(t)
	s := New(d, nil)

	if w := do(t, s, http.MethodPost, "/lifecycle/resume", ""); w.Code != http.StatusAccepted {
		t.Errorf("resume status = %d, want 202", w.Code)
	}
	if d.resumed != 1 {
		t.Errorf("resumed = %d, want 1", d.resumed)
	}

	got := decodeBody[ConnectionResponse](t, do(t, s, http.MethodGet, "/connection", ""))
	if got.Status != model.StatusConnected || got.Subscriptions != 15 || got.UpdatesDelivered != 42 {
		t.Errorf("connection = %+v", got)
	}
}
