package quotes

import (
	"context"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rickgao/stockdesk/internal/model"
)

// FetchQuotes fetches quotes for all symbols concurrently. Any symbol whose
// request fails or comes back empty is filled from the offline dataset, so the
// result always has one entry per requested symbol, in request order.
func (c *Client) FetchQuotes(ctx context.Context, symbols []string) ([]model.Quote, error) {
	if len(symbols) == 0 {
		symbols = c.fallback.Symbols()
	}

	if c.Offline() {
		out := make([]model.Quote, len(symbols))
		for i, s := range symbols {
			out[i] = c.fallback.QuoteOrEmpty(s)
		}
		return out, nil
	}

	out := make([]model.Quote, len(symbols))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, symbol := range symbols {
		g.Go(func() error {
			q, ok := c.fetchSingle(gctx, symbol)
			if !ok {
				q = c.fallback.QuoteOrEmpty(symbol)
			}
			out[i] = q
			return nil
		})
	}

	// Individual failures fall back instead of failing the group.
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchQuote fetches a single quote, falling back to the offline dataset.
// Returns false if neither source knows the symbol.
func (c *Client) FetchQuote(ctx context.Context, symbol string) (model.Quote, bool) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if !c.Offline() {
		if q, ok := c.fetchSingle(ctx, symbol); ok {
			return q, true
		}
	}
	return c.fallback.Quote(symbol)
}

// fetchSingle fetches a quote and its company name. Returns false when the
// request fails or the API reports an unknown symbol.
func (c *Client) fetchSingle(ctx context.Context, symbol string) (model.Quote, bool) {
	var resp QuoteResponse
	if err := c.get(ctx, "/quote", url.Values{"symbol": {symbol}}, &resp); err != nil {
		c.logger.Debug("quote fetch failed", "symbol", symbol, "error", err)
		return model.Quote{}, false
	}
	if resp.Empty() {
		c.logger.Debug("empty quote", "symbol", symbol)
		return model.Quote{}, false
	}

	return model.Quote{
		Symbol:        symbol,
		Name:          c.companyName(ctx, symbol),
		Price:         resp.Current,
		PreviousClose: resp.PreviousClose,
		Change:        resp.Change,
		ChangePercent: resp.ChangePercent,
		Volume:        resp.Volume,
		High:          resp.High,
		Low:           resp.Low,
		Open:          resp.Open,
		Timestamp:     time.Now().UnixMilli(),
	}, true
}

// companyName returns the cached company name, fetching it on a miss. A
// failed lookup caches the symbol itself so it is not retried until expiry.
func (c *Client) companyName(ctx context.Context, symbol string) string {
	if v, ok := c.names.Get(symbol); ok {
		if name, ok := v.(string); ok {
			return name
		}
	}

	name := symbol
	var resp ProfileResponse
	if err := c.get(ctx, "/stock/profile2", url.Values{"symbol": {symbol}}, &resp); err != nil {
		c.logger.Debug("profile fetch failed", "symbol", symbol, "error", err)
	} else if resp.Name != "" {
		name = resp.Name
	}

	c.names.SetWithTTL(symbol, name, 1, c.nameTTL)
	c.names.Wait()
	return name
}
