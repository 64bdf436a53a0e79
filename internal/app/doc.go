// Package app wires the stockdesk components together.
//
// Startup order:
//  1. Restore the persisted snapshot (watch-list, orders, queue, conflicts)
//  2. Load quotes for all tracked symbols
//  3. Route stream updates and status into the store
//  4. Subscribe the tracked symbols and open the stream
//  5. Start the queue processor, poller, checkpointer and journal
//
// Shutdown runs the same steps in reverse and ends with a final checkpoint.
package app
