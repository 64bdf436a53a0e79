package quotes

// QuoteResponse from GET /quote
type QuoteResponse struct {
	Current       float64 `json:"c"`
	Change        float64 `json:"d"`
	ChangePercent float64 `json:"dp"`
	High          float64 `json:"h"`
	Low           float64 `json:"l"`
	Open          float64 `json:"o"`
	PreviousClose float64 `json:"pc"`
	Volume        int64   `json:"v"`
	Timestamp     int64   `json:"t"` // Unix seconds
}

// Empty reports the all-zero response returned for unknown symbols.
func (q QuoteResponse) Empty() bool {
	return q.Current == 0 && q.High == 0 && q.Low == 0
}

// ProfileResponse from GET /stock/profile2
type ProfileResponse struct {
	Name                 string  `json:"name"`
	Ticker               string  `json:"ticker"`
	MarketCapitalization float64 `json:"marketCapitalization"` // millions
}

// CandleResponse from GET /stock/candle
type CandleResponse struct {
	Status    string    `json:"s"` // "ok" or "no_data"
	Timestamp []int64   `json:"t"`
	Open      []float64 `json:"o"`
	High      []float64 `json:"h"`
	Low       []float64 `json:"l"`
	Close     []float64 `json:"c"`
	Volume    []int64   `json:"v"`
}

// SearchResponse from GET /search
type SearchResponse struct {
	Count  int           `json:"count"`
	Result []SearchEntry `json:"result"`
}

// SearchEntry is one /search hit.
type SearchEntry struct {
	Description   string `json:"description"`
	DisplaySymbol string `json:"displaySymbol"`
	Symbol        string `json:"symbol"`
	Type          string `json:"type"`
}
