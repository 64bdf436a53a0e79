package quotes

import (
	"hash/fnv"
	"math"
	"math/rand/v2"
	"slices"
	"strings"
	"time"

	"github.com/rickgao/stockdesk/internal/model"
)

// seedQuotes is the offline dataset. Timestamps are filled in when served.
var seedQuotes = []model.Quote{
	{Symbol: "AAPL", Name: "Apple Inc.", Price: 227.55, PreviousClose: 225.91, Change: 1.64, ChangePercent: 0.73, Volume: 52_300_000, MarketCap: 3_440_000_000_000, High: 228.10, Low: 225.50, Open: 226.00},
	{Symbol: "GOOGL", Name: "Alphabet Inc.", Price: 191.85, PreviousClose: 189.42, Change: 2.43, ChangePercent: 1.28, Volume: 24_100_000, MarketCap: 2_350_000_000_000, High: 192.30, Low: 189.00, Open: 190.00},
	{Symbol: "MSFT", Name: "Microsoft Corp.", Price: 448.20, PreviousClose: 445.67, Change: 2.53, ChangePercent: 0.57, Volume: 18_900_000, MarketCap: 3_330_000_000_000, High: 449.50, Low: 444.20, Open: 446.00},
	{Symbol: "AMZN", Name: "Amazon.com Inc.", Price: 233.10, PreviousClose: 230.85, Change: 2.25, ChangePercent: 0.97, Volume: 38_700_000, MarketCap: 2_480_000_000_000, High: 234.00, Low: 230.10, Open: 231.50},
	{Symbol: "NVDA", Name: "NVIDIA Corp.", Price: 142.65, PreviousClose: 138.92, Change: 3.73, ChangePercent: 2.68, Volume: 42_500_000, MarketCap: 3_480_000_000_000, High: 143.80, Low: 138.50, Open: 139.20},
	{Symbol: "META", Name: "Meta Platforms", Price: 611.80, PreviousClose: 605.30, Change: 6.50, ChangePercent: 1.07, Volume: 15_200_000, MarketCap: 1_550_000_000_000, High: 613.20, Low: 604.00, Open: 606.00},
	{Symbol: "TSLA", Name: "Tesla Inc.", Price: 368.45, PreviousClose: 361.20, Change: 7.25, ChangePercent: 2.01, Volume: 78_400_000, MarketCap: 1_180_000_000_000, High: 370.00, Low: 360.50, Open: 362.00},
	{Symbol: "JPM", Name: "JPMorgan Chase", Price: 284.30, PreviousClose: 282.15, Change: 2.15, ChangePercent: 0.76, Volume: 9_800_000, MarketCap: 770_000_000_000, High: 285.00, Low: 281.50, Open: 282.50},
	{Symbol: "V", Name: "Visa Inc.", Price: 318.60, PreviousClose: 316.45, Change: 2.15, ChangePercent: 0.68, Volume: 7_200_000, MarketCap: 638_000_000_000, High: 319.50, Low: 315.80, Open: 317.00},
	{Symbol: "WMT", Name: "Walmart Inc.", Price: 172.40, PreviousClose: 170.85, Change: 1.55, ChangePercent: 0.91, Volume: 11_500_000, MarketCap: 467_000_000_000, High: 173.20, Low: 170.00, Open: 171.20},
	{Symbol: "HD", Name: "Home Depot Inc.", Price: 398.75, PreviousClose: 395.30, Change: 3.45, ChangePercent: 0.87, Volume: 6_400_000, MarketCap: 428_000_000_000, High: 399.80, Low: 394.50, Open: 396.00},
	{Symbol: "BRK.B", Name: "Berkshire Hathaway", Price: 502.30, PreviousClose: 499.10, Change: 3.20, ChangePercent: 0.64, Volume: 3_100_000, MarketCap: 1_080_000_000_000, High: 503.50, Low: 498.20, Open: 500.00},
	{Symbol: "AVGO", Name: "Broadcom Inc.", Price: 225.80, PreviousClose: 222.45, Change: 3.35, ChangePercent: 1.51, Volume: 8_900_000, MarketCap: 1_080_000_000_000, High: 226.50, Low: 222.00, Open: 223.00},
	{Symbol: "COST", Name: "Costco Wholesale", Price: 1_082.50, PreviousClose: 1_075.30, Change: 7.20, ChangePercent: 0.67, Volume: 2_800_000, MarketCap: 487_000_000_000, High: 1_084.00, Low: 1_074.00, Open: 1_076.00},
	{Symbol: "SPCE", Name: "Virgin Galactic", Price: 1.85, PreviousClose: 1.92, Change: -0.07, ChangePercent: -3.65, Volume: 12_100_000, MarketCap: 490_000_000, High: 1.94, Low: 1.82, Open: 1.90},
}

// defaultCandleBase is the price used for candles of symbols outside the dataset.
const defaultCandleBase = 100.0

// timeframeWindow holds the candle count, bar width and API parameters per timeframe.
type timeframeWindow struct {
	count      int
	step       time.Duration
	resolution string
	span       time.Duration
}

var timeframes = map[model.Timeframe]timeframeWindow{
	model.Timeframe1D: {count: 78, step: 5 * time.Minute, resolution: "5", span: 24 * time.Hour},
	model.Timeframe1W: {count: 35, step: time.Hour, resolution: "60", span: 7 * 24 * time.Hour},
	model.Timeframe1M: {count: 30, step: 24 * time.Hour, resolution: "D", span: 30 * 24 * time.Hour},
	model.Timeframe3M: {count: 90, step: 24 * time.Hour, resolution: "D", span: 90 * 24 * time.Hour},
	model.Timeframe1Y: {count: 365, step: 24 * time.Hour, resolution: "D", span: 365 * 24 * time.Hour},
}

// Fallback serves the deterministic offline dataset.
type Fallback struct {
	now func() time.Time
}

// NewFallback creates the offline dataset.
func NewFallback() *Fallback {
	return &Fallback{now: time.Now}
}

// Symbols returns the tracked symbol list, in dataset order.
func (f *Fallback) Symbols() []string {
	out := make([]string, len(seedQuotes))
	for i, q := range seedQuotes {
		out[i] = q.Symbol
	}
	return out
}

// Quote returns the dataset entry for a symbol.
func (f *Fallback) Quote(symbol string) (model.Quote, bool) {
	i := slices.IndexFunc(seedQuotes, func(q model.Quote) bool { return q.Symbol == symbol })
	if i < 0 {
		return model.Quote{}, false
	}
	q := seedQuotes[i]
	q.Timestamp = f.now().UnixMilli()
	return q, true
}

// Quotes returns the whole dataset.
func (f *Fallback) Quotes() []model.Quote {
	ts := f.now().UnixMilli()
	out := slices.Clone(seedQuotes)
	for i := range out {
		out[i].Timestamp = ts
	}
	return out
}

// QuoteOrEmpty returns the dataset entry, or a zero-priced record named after
// the symbol so a list stays complete.
func (f *Fallback) QuoteOrEmpty(symbol string) model.Quote {
	if q, ok := f.Quote(symbol); ok {
		return q
	}
	return model.Quote{Symbol: symbol, Name: symbol, Timestamp: f.now().UnixMilli()}
}

// Candles generates a deterministic series that drifts from 15% below the
// symbol's price toward it. The same symbol and timeframe always produce the
// same prices.
func (f *Fallback) Candles(symbol string, tf model.Timeframe) []model.Candle {
	win, ok := timeframes[tf]
	if !ok {
		win = timeframes[model.Timeframe1D]
	}

	base := defaultCandleBase
	if q, ok := f.Quote(symbol); ok {
		base = q.Price
	}

	h := fnv.New64a()
	h.Write([]byte(symbol))
	h.Write([]byte(tf))
	rng := rand.New(rand.NewPCG(h.Sum64(), uint64(win.count)))

	end := f.now().Truncate(win.step)
	price := base * 0.85
	volatility := base * 0.015

	candles := make([]model.Candle, 0, win.count)
	for i := 0; i < win.count; i++ {
		trend := (base - price) / float64(win.count)

		open := price + trend*0.3
		closing := price + trend + (rng.Float64()-0.45)*volatility
		high := math.Max(open, closing) + rng.Float64()*volatility*0.5
		low := math.Min(open, closing) - rng.Float64()*volatility*0.5

		candles = append(candles, model.Candle{
			Timestamp: end.Add(-time.Duration(win.count-i) * win.step).UnixMilli(),
			Open:      round2(open),
			High:      round2(high),
			Low:       round2(low),
			Close:     round2(closing),
			Volume:    rng.Int64N(50_000_000) + 5_000_000,
		})

		price = closing
	}
	return candles
}

// Search matches the query against symbols and names, case-insensitively.
func (f *Fallback) Search(query string) []model.SearchResult {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return nil
	}

	var out []model.SearchResult
	for _, q := range seedQuotes {
		if strings.Contains(strings.ToLower(q.Symbol), query) || strings.Contains(strings.ToLower(q.Name), query) {
			out = append(out, model.SearchResult{Symbol: q.Symbol, Name: q.Name, Type: "EQUITY"})
		}
	}
	return out
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
