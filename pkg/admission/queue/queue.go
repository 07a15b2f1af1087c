// Package queue provides a bounded FIFO queue of pending admission requests.
package queue

import (
	"time"

	sferrors "github.com/vnykmshr/scanflow/pkg/common/errors"
	"github.com/vnykmshr/scanflow/pkg/common/validation"
)

// Entry is a single pending admission request. Each entry is resolved
// exactly once: by grant, by deadline expiry, by an explicit clear, or
// by caller cancellation.
type Entry struct {
	// EnqueuedAt is the arrival time of the request.
	EnqueuedAt time.Time

	// Deadline is the instant after which the request times out.
	Deadline time.Time

	done     chan struct{}
	granted  bool
	reason   error
	resolved bool
}

// Done returns a channel closed when the entry has been resolved.
func (e *Entry) Done() <-chan struct{} {
	return e.done
}

// Outcome reports whether the request was granted and, when denied, the
// reason. It is only meaningful once Done is closed.
func (e *Entry) Outcome() (granted bool, reason error) {
	return e.granted, e.reason
}

// resolve settles the entry. The resolved flag makes the three
// resolution triggers mutually exclusive; callers hold the owning
// limiter's lock.
func (e *Entry) resolve(granted bool, reason error) bool {
	if e.resolved {
		return false
	}
	e.resolved = true
	e.granted = granted
	e.reason = reason
	close(e.done)
	return true
}

// Queue is an ordered collection of pending admission requests with a
// maximum depth. It preserves strict arrival order; the first request
// enqueued is the first served.
//
// Queue does not lock; the owning limiter serializes all mutations.
type Queue struct {
	maxDepth int
	maxWait  time.Duration
	entries  []*Entry
}

// New creates a Queue holding at most maxDepth entries, each timing out
// maxWait after arrival.
func New(maxDepth int, maxWait time.Duration) (*Queue, error) {
	if err := validation.ValidatePositive("queue", "maxDepth", maxDepth); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration("queue", "maxWait", maxWait); err != nil {
		return nil, err
	}
	return &Queue{maxDepth: maxDepth, maxWait: maxWait}, nil
}

// Enqueue appends a new pending request arriving at now. It returns
// ErrQueueFull when the queue is at capacity.
func (q *Queue) Enqueue(now time.Time) (*Entry, error) {
	if len(q.entries) >= q.maxDepth {
		return nil, sferrors.ErrQueueFull
	}
	e := &Entry{
		EnqueuedAt: now,
		Deadline:   now.Add(q.maxWait),
		done:       make(chan struct{}),
	}
	q.entries = append(q.entries, e)
	return e, nil
}

// ExpireBefore resolves as timed out every entry whose deadline has
// passed, scanning from the head. Entries are enqueued in non-decreasing
// deadline order, so the scan stops at the first live entry.
func (q *Queue) ExpireBefore(now time.Time) int {
	expired := 0
	for len(q.entries) > 0 {
		head := q.entries[0]
		if head.Deadline.After(now) {
			break
		}
		head.resolve(false, sferrors.ErrWaitTimeout)
		q.entries = q.entries[1:]
		expired++
	}
	return expired
}

// ServeOne pops the head entry and resolves it as granted. It reports
// false when the queue is empty.
func (q *Queue) ServeOne() (*Entry, bool) {
	if len(q.entries) == 0 {
		return nil, false
	}
	head := q.entries[0]
	q.entries = q.entries[1:]
	head.resolve(true, nil)
	return head, true
}

// Remove resolves the given entry as denied with the supplied reason and
// drops it from the queue. Removing an entry that was already resolved
// or already served is a no-op.
func (q *Queue) Remove(e *Entry, reason error) bool {
	if !e.resolve(false, reason) {
		return false
	}
	for i, candidate := range q.entries {
		if candidate == e {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return true
}

// Clear resolves every remaining entry as denied with ErrQueueCleared
// and empties the queue.
func (q *Queue) Clear() int {
	cleared := 0
	for _, e := range q.entries {
		if e.resolve(false, sferrors.ErrQueueCleared) {
			cleared++
		}
	}
	q.entries = nil
	return cleared
}

// Len returns the number of pending entries.
func (q *Queue) Len() int {
	return len(q.entries)
}

// MaxDepth returns the maximum number of pending entries.
func (q *Queue) MaxDepth() int {
	return q.maxDepth
}

// MaxWait returns the per-entry wait limit.
func (q *Queue) MaxWait() time.Duration {
	return q.maxWait
}
