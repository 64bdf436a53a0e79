// Package journal appends terminal orders to the order_history table.
//
// Orders arrive through Record, which never blocks: when the buffer is full
// the order is dropped and counted. A consumer goroutine batches rows and
// flushes on size or interval with pgx.Batch. Inserts use
// ON CONFLICT (id) DO NOTHING so replays after a restart are harmless.
//
// Prices are stored as NUMERIC(18,4).
package journal
