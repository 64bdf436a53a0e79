// Package store implements the StateStore, the single mutation boundary for
// quotes, the watch-list, order history, the offline order queue and the set
// of unresolved price conflicts.
//
// Quotes are replaced copy-on-write so a reader never observes a partially
// applied batch. Everything except quotes can be captured with Snapshot and
// brought back with Restore; quotes are rebuilt from the market data source.
package store
