// Package execution provides the order execution collaborators used by the
// order queue and the orchestrator.
//
// HTTPExecutor submits orders to a brokerage REST endpoint in a single
// attempt; retry policy belongs to the caller. Simulated reproduces a
// fixed-latency venue with a configurable failure rate for offline use and
// tests.
package execution
