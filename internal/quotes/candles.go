package quotes

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

// FetchCandles returns OHLC candles for the timeframe. A failed request or a
// "no_data" response falls back to generated candles.
func (c *Client) FetchCandles(ctx context.Context, symbol string, tf model.Timeframe) []model.Candle {
	win, ok := timeframes[tf]
	if !ok {
		tf, win = model.Timeframe1D, timeframes[model.Timeframe1D]
	}
	if c.Offline() {
		return c.fallback.Candles(symbol, tf)
	}

	now := time.Now()
	query := url.Values{
		"symbol":     {symbol},
		"resolution": {win.resolution},
		"from":       {strconv.FormatInt(now.Add(-win.span).Unix(), 10)},
		"to":         {strconv.FormatInt(now.Unix(), 10)},
	}

	var resp CandleResponse
	if err := c.get(ctx, "/stock/candle", query, &resp); err != nil {
		c.logger.Debug("candle fetch failed", "symbol", symbol, "error", err)
		return c.fallback.Candles(symbol, tf)
	}
	if resp.Status != "ok" || len(resp.Timestamp) == 0 {
		return c.fallback.Candles(symbol, tf)
	}

	n := len(resp.Timestamp)
	if len(resp.Open) < n || len(resp.High) < n || len(resp.Low) < n || len(resp.Close) < n || len(resp.Volume) < n {
		c.logger.Warn("ragged candle response", "symbol", symbol)
		return c.fallback.Candles(symbol, tf)
	}

	candles := make([]model.Candle, n)
	for i, t := range resp.Timestamp {
		candles[i] = model.Candle{
			Timestamp: t * 1000,
			Open:      resp.Open[i],
			High:      resp.High[i],
			Low:       resp.Low[i],
			Close:     resp.Close[i],
			Volume:    resp.Volume[i],
		}
	}
	return candles
}
