package engine

import (
	"sync"

	"github.com/roach88/tempodb/internal/store"
)

// submissionQueue is a thread-safe FIFO queue of reserved submissions.
//
// The queue is unbounded: Submit has already made the submission durable, so
// refusing it here would only leave it pending until the next restart.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop (prevents goroutine hangs on context cancellation).
type submissionQueue struct {
	mu     sync.Mutex
	subs   []store.Submission
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

// newSubmissionQueue creates an empty queue.
func newSubmissionQueue() *submissionQueue {
	return &submissionQueue{
		subs:   make([]store.Submission, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a submission to the back of the queue.
// Returns false if the queue is closed.
func (q *submissionQueue) Enqueue(sub store.Submission) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.subs = append(q.subs, sub)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front submission without blocking.
// Returns false if the queue is empty.
func (q *submissionQueue) TryDequeue() (store.Submission, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.subs) == 0 {
		return store.Submission{}, false
	}

	sub := q.subs[0]

	// Nil out the slot so the operations can be collected.
	q.subs[0] = store.Submission{}

	if len(q.subs) == 1 {
		q.subs = q.subs[:0]
	} else {
		q.subs = q.subs[1:]
	}

	return sub, true
}

// Wait returns a channel that signals when submissions may be available.
// The channel is closed when the queue is closed.
func (q *submissionQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *submissionQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.subs)
}

// Closed reports whether Close has been called.
func (q *submissionQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more submissions will be enqueued.
// Wakes any blocked waiters by closing the signal channel.
func (q *submissionQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
