// Package storage persists the durable part of the StateStore.
//
// A Backend stores opaque blobs by key:
//   - memory: process-local, for tests and throwaway runs
//   - postgres: one row per key in app_state, upserted on save
//   - redis: plain SET/GET
//
// The Checkpointer serialises store snapshots to JSON, seals them and writes
// them through a Backend, and restores them at startup.
package storage
