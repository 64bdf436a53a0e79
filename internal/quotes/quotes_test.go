package quotes

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rickgao/stockdesk/internal/model"
)

// finnhubMock serves /quote, /stock/profile2, /stock/candle and /search.
type finnhubMock struct {
	profileCalls atomic.Int32
	quoteCalls   atomic.Int32
}

func (m *finnhubMock) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/quote", func(w http.ResponseWriter, r *http.Request) {
		m.quoteCalls.Add(1)
		switch r.URL.Query().Get("symbol") {
		case "AAPL":
			json.NewEncoder(w).Encode(QuoteResponse{Current: 230, Change: 2.45, ChangePercent: 1.07, High: 231, Low: 228, Open: 229, PreviousClose: 227.55})
		case "MSFT":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			json.NewEncoder(w).Encode(QuoteResponse{})
		}
	})
	mux.HandleFunc("/stock/profile2", func(w http.ResponseWriter, r *http.Request) {
		m.profileCalls.Add(1)
		json.NewEncoder(w).Encode(ProfileResponse{Name: "Apple Inc", Ticker: r.URL.Query().Get("symbol")})
	})
	mux.HandleFunc("/stock/candle", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("symbol") != "AAPL" {
			json.NewEncoder(w).Encode(CandleResponse{Status: "no_data"})
			return
		}
		if got := r.URL.Query().Get("resolution"); got != "60" {
			t.Errorf("resolution = %q, want 60", got)
		}
		json.NewEncoder(w).Encode(CandleResponse{
			Status:    "ok",
			Timestamp: []int64{1700000000, 1700003600},
			Open:      []float64{1, 2},
			High:      []float64{2, 3},
			Low:       []float64{0.5, 1.5},
			Close:     []float64{1.5, 2.5},
			Volume:    []int64{10, 20},
		})
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		var resp SearchResponse
		for i := 0; i < 12; i++ {
			resp.Result = append(resp.Result, SearchEntry{Symbol: "A" + string(rune('A'+i)), Description: "Result", Type: "Common Stock"})
		}
		json.NewEncoder(w).Encode(resp)
	})
	return mux
}

func newMockServer(t *testing.T) (*finnhubMock, *httptest.Server) {
	m := &finnhubMock{}
	server := httptest.NewServer(m.handler(t))
	t.Cleanup(server.Close)
	return m, server
}

func TestFetchQuotes_LiveWithPerSymbolFallback(t *testing.T) {
	_, server := newMockServer(t)
	c := newTestClient(t, server.URL, "key")

	quotes, err := c.FetchQuotes(context.Background(), []string{"AAPL", "MSFT", "ZZZZ"})
	if err != nil {
		t.Fatalf("FetchQuotes: %v", err)
	}
	if len(quotes) != 3 {
		t.Fatalf("len(quotes) = %d, want 3", len(quotes))
	}

	if quotes[0].Symbol != "AAPL" || quotes[0].Price != 230 || quotes[0].Name != "Apple Inc" {
		t.Errorf("AAPL = %+v", quotes[0])
	}
	if quotes[0].MarketCap != 0 {
		t.Errorf("live MarketCap = %v, want 0", quotes[0].MarketCap)
	}

	// MSFT failed with 500: dataset entry.
	if quotes[1].Symbol != "MSFT" || quotes[1].Price != 448.20 {
		t.Errorf("MSFT = %+v, want fallback", quotes[1])
	}

	// ZZZZ returned all zeros and is not in the dataset: placeholder.
	if quotes[2].Symbol != "ZZZZ" || quotes[2].Name != "ZZZZ" || quotes[2].Price != 0 {
		t.Errorf("ZZZZ = %+v, want empty placeholder", quotes[2])
	}
}

func TestFetchQuotes_CachesCompanyName(t *testing.T) {
	m, server := newMockServer(t)
	c := newTestClient(t, server.URL, "key")

	for i := 0; i < 3; i++ {
		if _, ok := c.FetchQuote(context.Background(), "AAPL"); !ok {
			t.Fatal("FetchQuote failed")
		}
	}
	if got := m.profileCalls.Load(); got != 1 {
		t.Errorf("profile calls = %d, want 1", got)
	}
}

func TestFetchQuotes_Offline(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:1", "")

	quotes, err := c.FetchQuotes(context.Background(), nil)
	if err != nil {
		t.Fatalf("FetchQuotes: %v", err)
	}
	if len(quotes) != 15 {
		t.Fatalf("len(quotes) = %d, want 15", len(quotes))
	}
	if quotes[0].Symbol != "AAPL" || quotes[0].Price != 227.55 {
		t.Errorf("first = %+v", quotes[0])
	}
	if quotes[0].Timestamp == 0 {
		t.Error("Timestamp should be set")
	}
}

func TestFetchQuote_UnknownEverywhere(t *testing.T) {
	_, server := newMockServer(t)
	c := newTestClient(t, server.URL, "key")

	if _, ok := c.FetchQuote(context.Background(), "zzzz"); ok {
		t.Error("unknown symbol should not be found")
	}
	if q, ok := c.FetchQuote(context.Background(), "msft"); !ok || q.Price != 448.20 {
		t.Errorf("MSFT = %+v, %v; want fallback", q, ok)
	}
}

func TestFetchCandles(t *testing.T) {
	_, server := newMockServer(t)
	c := newTestClient(t, server.URL, "key")

	candles := c.FetchCandles(context.Background(), "AAPL", model.Timeframe1W)
	if len(candles) != 2 {
		t.Fatalf("len(candles) = %d, want 2", len(candles))
	}
	if candles[0].Timestamp != 1700000000*1000 || candles[1].Close != 2.5 || candles[1].Volume != 20 {
		t.Errorf("candles = %+v", candles)
	}

	// no_data falls back to generated candles.
	if got := c.FetchCandles(context.Background(), "TSLA", model.Timeframe1M); len(got) != 30 {
		t.Errorf("fallback candles = %d, want 30", len(got))
	}
}

func TestSearch(t *testing.T) {
	_, server := newMockServer(t)
	c := newTestClient(t, server.URL, "key")

	if got := c.Search(context.Background(), "   "); got != nil {
		t.Errorf("blank query = %v, want nil", got)
	}

	got := c.Search(context.Background(), "a")
	if len(got) != MaxSearchResults {
		t.Errorf("len(results) = %d, want %d", len(got), MaxSearchResults)
	}
}

func TestSearch_FailureFallsBack(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()
	c := newTestClient(t, server.URL, "key")

	got := c.Search(context.Background(), "apple")
	if len(got) != 1 || got[0].Symbol != "AAPL" || got[0].Type != "EQUITY" {
		t.Errorf("results = %+v", got)
	}
}
