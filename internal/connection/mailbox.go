package connection

import (
	"sync"

	"github.com/gammazero/deque"
)

// mailbox is an unbounded FIFO of closures for the event loop. Posting never
// blocks, so listeners running on the loop may call back into the manager.
type mailbox struct {
	mu     sync.Mutex
	queue  deque.Deque[func()]
	signal chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post enqueues fn. Returns false once the mailbox is closed.
func (mb *mailbox) post(fn func()) bool {
	mb.mu.Lock()
	if mb.closed {
		mb.mu.Unlock()
		return false
	}
	mb.queue.PushBack(fn)
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default:
	}
	return true
}

// take removes and returns everything queued so far.
func (mb *mailbox) take() []func() {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	fns := make([]func(), 0, mb.queue.Len())
	for mb.queue.Len() > 0 {
		fns = append(fns, mb.queue.PopFront())
	}
	return fns
}

// close rejects further posts. Already queued closures are still returned by take.
func (mb *mailbox) close() {
	mb.mu.Lock()
	mb.closed = true
	mb.mu.Unlock()

	select {
	case mb.signal <- struct{}{}:
	default:
	}
}
