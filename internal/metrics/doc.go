// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Stream connection status, reconnects and heartbeat timeouts
//   - Update batch sizes and dropped frames
//   - Order queue outcomes, drain latency and queue depth
//
// Metrics implements the metrics hooks of the connection manager and the
// order queue processor.
package metrics
