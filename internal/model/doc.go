// Package model defines shared data types used across stockdesk.
//
// Conventions:
//   - Prices: float64 in the quote currency (USD)
//   - Timestamps: int64 milliseconds since Unix epoch, matching the stream protocol
//   - IDs: "ORD-" prefixed strings for orders, uuid strings for queue entries and conflicts
package model
