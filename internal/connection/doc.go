// Package connection implements the Connection Manager component.
//
// The Connection Manager:
//   - Owns one logical streaming connection and its subscription set
//   - Re-sends the whole subscription set on every transition into CONNECTED
//   - Detects dead connections with an application-level PING/PONG heartbeat
//   - Reconnects with exponential backoff up to a fixed attempt budget
//   - Coalesces bursty STOCK_UPDATE frames into one batch per flush window
//
// All manager state is owned by a single event-loop goroutine. Public methods,
// socket reads and timers post closures to the loop, so no state is shared
// across goroutines and a stale timer or socket callback can be detected by
// its connection generation.
package connection
