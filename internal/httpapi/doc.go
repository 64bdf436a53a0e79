// Package httpapi exposes the desk to a host process over HTTP.
//
// Routes:
//
//	GET    /health
//	GET    /metrics
//	GET    /quotes
//	GET    /quotes/{symbol}
//	GET    /quotes/{symbol}/candles?timeframe=1D|1W|1M|3M|1Y
//	GET    /search?q=
//	GET    /watchlist
//	POST   /watchlist                 {"symbol": "..."}
//	DELETE /watchlist/{symbol}
//	GET    /orders?symbol=
//	POST   /orders                    {"symbol", "side", "quantity", "price"}
//	GET    /queue
//	POST   /queue/drain
//	GET    /conflicts
//	POST   /conflicts/{id}/resolve    {"action": "EXECUTE"|"CANCEL"}
//	POST   /lifecycle/resume
//	GET    /connection
//
// Errors are returned as {"error": code, "message": text}.
package httpapi
