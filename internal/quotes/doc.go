// Package quotes provides the REST quote source: quotes, company names,
// candles and symbol search from a Finnhub-style API.
//
// Every call degrades to a deterministic offline dataset when the API is not
// configured or a request fails, so callers always receive usable records.
package quotes
