package execution

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

// APIError represents a non-2xx response from the execution endpoint.
type APIError struct {
	StatusCode int
	Message    string
	Body       []byte
}

func (e *APIError) Error() string {
	return fmt.Sprintf("execution api error %d: %s", e.StatusCode, e.Message)
}

// IsRetryable returns true for 5xx and 429 errors.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// orderRequest is the POST /orders body.
type orderRequest struct {
	Symbol   string     `json:"symbol"`
	Side     model.Side `json:"side"`
	Quantity int        `json:"quantity"`
	Price    float64    `json:"price"`
}

// HTTPExecutor submits orders to <baseURL>/orders.
type HTTPExecutor struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// HTTPOption configures an HTTPExecutor.
type HTTPOption func(*HTTPExecutor)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) HTTPOption {
	return func(e *HTTPExecutor) {
		e.httpClient = hc
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(e *HTTPExecutor) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewHTTPExecutor creates an executor for the given endpoint.
func NewHTTPExecutor(baseURL, apiKey string, opts ...HTTPOption) *HTTPExecutor {
	e := &HTTPExecutor{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "executor")
	return e
}

// Execute submits the order at price. Fields missing from the response are
// filled from the request; a response without a status counts as FILLED.
func (e *HTTPExecutor) Execute(ctx context.Context, order model.QueuedOrder, price float64) (model.Order, error) {
	body, err := json.Marshal(orderRequest{
		Symbol:   order.Symbol,
		Side:     order.Side,
		Quantity: order.Quantity,
		Price:    price,
	})
	if err != nil {
		return model.Order{}, fmt.Errorf("marshal order: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/orders", bytes.NewReader(body))
	if err != nil {
		return model.Order{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return model.Order{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Order{}, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return model.Order{}, &APIError{
			StatusCode: resp.StatusCode,
			Message:    http.StatusText(resp.StatusCode),
			Body:       respBody,
		}
	}

	var out model.Order
	if len(bytes.TrimSpace(respBody)) > 0 {
		if err := json.Unmarshal(respBody, &out); err != nil {
			return model.Order{}, fmt.Errorf("unmarshal order: %w", err)
		}
	}

	now := model.NowMillis()
	if out.ID == "" {
		out.ID = model.NewOrderID(model.OrderIDPrefix)
	}
	if out.Symbol == "" {
		out.Symbol = order.Symbol
	}
	if out.Side == "" {
		out.Side = order.Side
	}
	if out.Quantity == 0 {
		out.Quantity = order.Quantity
	}
	if out.Price == 0 {
		out.Price = price
	}
	if out.Status == "" {
		out.Status = model.StatusFilled
	}
	if out.CreatedAt == 0 {
		out.CreatedAt = now
	}
	if out.UpdatedAt == 0 {
		out.UpdatedAt = now
	}

	e.logger.Debug("order executed", "id", out.ID, "symbol", out.Symbol, "price", out.Price, "status", out.Status)
	return out, nil
}
