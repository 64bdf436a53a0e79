// Package poller implements the full quote refresh.
//
// The Poller:
//   - Fetches quotes for every tracked symbol on a fixed interval (default 1m)
//   - Polls once immediately on start
//   - Replaces the quote map wholesale with the result
//
// Streaming updates keep quotes fresh between polls; the poller repairs any
// drift and fills in fields the stream does not carry.
package poller
