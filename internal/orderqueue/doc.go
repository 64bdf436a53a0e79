// Package orderqueue implements the QueueProcessor, which drains the offline
// order queue to terminal outcomes.
//
// A drain pass walks a snapshot of the queue in order. Items past the retry
// budget become FAILED orders without an execution attempt; items whose price
// drifted beyond tolerance are parked as conflicts for explicit resolution;
// everything else is executed at the current price. A failed execution leaves
// the item queued with an incremented retry count and throttles the pass with
// an exponential wait. At most one pass runs at a time.
package orderqueue
