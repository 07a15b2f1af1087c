// Package limiter composes a token bucket and a wait queue into an
// admission controller for one (tier, operation) pair, publishing a
// status snapshot to subscribed observers on every state change.
package limiter

import (
	"context"
	"sync"
	"time"

	"github.com/vnykmshr/scanflow/pkg/admission/bucket"
	"github.com/vnykmshr/scanflow/pkg/admission/queue"
	sfcontext "github.com/vnykmshr/scanflow/pkg/common/context"
	sferrors "github.com/vnykmshr/scanflow/pkg/common/errors"
	"github.com/vnykmshr/scanflow/pkg/common/validation"
)

// Status is an immutable snapshot of limiter state, published to
// observers whenever tokens are consumed or refilled or the queue
// changes.
type Status struct {
	// Tier and Operation identify the limiter that produced the snapshot.
	Tier      string
	Operation string

	// Remaining is the number of tokens currently available.
	Remaining int

	// Capacity is the maximum token count.
	Capacity int

	// Queued is the number of requests currently waiting.
	Queued int

	// Limited is true when the bucket is empty and requests are waiting.
	Limited bool

	// NextReset is the instant the next token regenerates. Advisory
	// only; admission is always decided by RequestToken.
	NextReset time.Time

	seq uint64
}

// Limiter admits requests for one (tier, operation) pair. A request is
// granted immediately while tokens remain, queued while the wait queue
// has room, and rejected once it does not.
type Limiter interface {
	// RequestToken requests admission. It returns true when a token was
	// granted, either immediately or after queuing. It returns false
	// when the queue is full, the queued request timed out or was
	// cleared, or ctx was canceled.
	RequestToken(ctx context.Context) bool

	// Request behaves like RequestToken and additionally reports the
	// denial reason: ErrQueueFull, ErrWaitTimeout, ErrQueueCleared, or
	// the context error for caller cancellation.
	Request(ctx context.Context) (granted bool, reason error)

	// TimeUntilReset returns how long until the next token regenerates,
	// or zero if tokens are available. Advisory, for countdown displays.
	TimeUntilReset() time.Duration

	// ClearQueue denies every queued request immediately. Bucket state
	// is unaffected.
	ClearQueue()

	// Subscribe registers an observer for status snapshots and returns
	// an idempotent unsubscribe function. Observers are invoked
	// synchronously in subscription order and must not block.
	Subscribe(fn func(Status)) (unsubscribe func())

	// Status returns the current snapshot without requesting admission.
	Status() Status

	// Sweep expires stale waiters, serves any tokens that have accrued
	// to the queue, and republishes the snapshot. The limiter arms its
	// own refill timer while requests wait; Sweep exists for periodic
	// maintenance on top of that.
	Sweep()
}

// Config holds configuration options for creating a new Limiter.
type Config struct {
	// Tier and Operation label the limiter's snapshots and metrics.
	Tier      string
	Operation string

	// Capacity is the maximum number of tokens (tier-dependent).
	Capacity int

	// RefillInterval is the time between token regenerations.
	RefillInterval time.Duration

	// RefillAmount is the number of tokens added per interval.
	// If zero, defaults to 1.
	RefillAmount int

	// MaxQueueDepth bounds the number of waiting requests.
	MaxQueueDepth int

	// MaxWait bounds how long a queued request may wait.
	MaxWait time.Duration

	// Clock provides the current time. If nil, SystemClock is used.
	Clock bucket.Clock
}

type rateLimiter struct {
	tier      string
	operation string
	clock     bucket.Clock

	mu          sync.Mutex
	bucket      *bucket.TokenBucket
	queue       *queue.Queue
	seq         uint64
	refillTimer *time.Timer

	broadcast *broadcaster
}

// New creates a Limiter from the given configuration.
func New(config Config) (Limiter, error) {
	if err := validation.ValidateNotEmpty("limiter", "tier", config.Tier); err != nil {
		return nil, err
	}
	if err := validation.ValidateNotEmpty("limiter", "operation", config.Operation); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = bucket.SystemClock{}
	}

	tb, err := bucket.NewWithConfig(bucket.Config{
		Capacity:       config.Capacity,
		RefillInterval: config.RefillInterval,
		RefillAmount:   config.RefillAmount,
		Clock:          config.Clock,
		InitialTokens:  -1,
	})
	if err != nil {
		return nil, err
	}

	q, err := queue.New(config.MaxQueueDepth, config.MaxWait)
	if err != nil {
		return nil, err
	}

	return &rateLimiter{
		tier:      config.Tier,
		operation: config.Operation,
		clock:     config.Clock,
		bucket:    tb,
		queue:     q,
		broadcast: newBroadcaster(),
	}, nil
}

func (rl *rateLimiter) RequestToken(ctx context.Context) bool {
	granted, _ := rl.Request(ctx)
	return granted
}

func (rl *rateLimiter) Request(ctx context.Context) (bool, error) {
	if sfcontext.IsCanceled(ctx) {
		return false, ctx.Err()
	}

	now := rl.clock.Now()
	rl.mu.Lock()

	// Drop stale waiters before deciding, so a freed token never goes
	// to a caller that already gave up, then serve accrued tokens to
	// the queue in arrival order.
	rl.queue.ExpireBefore(now)
	rl.serveLocked()

	// Immediate grant only when nobody is already waiting; a newcomer
	// never overtakes the queue.
	if rl.queue.Len() == 0 && rl.bucket.TryConsume() {
		snap := rl.snapshotLocked()
		rl.mu.Unlock()
		rl.broadcast.publish(snap)
		return true, nil
	}

	entry, err := rl.queue.Enqueue(now)
	if err != nil {
		snap := rl.snapshotLocked()
		rl.mu.Unlock()
		rl.broadcast.publish(snap)
		return false, err
	}
	rl.armRefillTimerLocked()
	snap := rl.snapshotLocked()
	rl.mu.Unlock()
	rl.broadcast.publish(snap)

	return rl.await(ctx, entry)
}

// await suspends the caller until its entry is resolved by a refill,
// its deadline, a clear, or ctx cancellation. No locks are held while
// suspended.
func (rl *rateLimiter) await(ctx context.Context, entry *queue.Entry) (bool, error) {
	waitCtx, cancel := sfcontext.WithDeadlineOrCancel(ctx, entry.Deadline)
	defer cancel()

	select {
	case <-entry.Done():
	case <-waitCtx.Done():
		rl.abandon(entry, waitCtx)
	}

	granted, reason := entry.Outcome()
	return granted, reason
}

// abandon resolves a waiting entry after its wait context ended. The
// entry may have been granted concurrently; resolution is settled under
// the limiter lock, exactly once.
func (rl *rateLimiter) abandon(entry *queue.Entry, waitCtx context.Context) {
	reason := sferrors.ErrWaitTimeout
	if !sfcontext.IsTimedOut(waitCtx) {
		reason = waitCtx.Err()
	}

	rl.mu.Lock()
	removed := rl.queue.Remove(entry, reason)
	if removed {
		rl.armRefillTimerLocked()
	}
	snap := rl.snapshotLocked()
	rl.mu.Unlock()
	if removed {
		rl.broadcast.publish(snap)
	}
}

func (rl *rateLimiter) TimeUntilReset() time.Duration {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.bucket.TimeUntilNextToken()
}

func (rl *rateLimiter) ClearQueue() {
	rl.mu.Lock()
	cleared := rl.queue.Clear()
	rl.armRefillTimerLocked()
	snap := rl.snapshotLocked()
	rl.mu.Unlock()
	if cleared > 0 {
		rl.broadcast.publish(snap)
	}
}

func (rl *rateLimiter) Subscribe(fn func(Status)) func() {
	return rl.broadcast.subscribe(fn)
}

func (rl *rateLimiter) Status() Status {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.snapshotLocked()
}

func (rl *rateLimiter) Sweep() {
	now := rl.clock.Now()
	rl.mu.Lock()
	rl.queue.ExpireBefore(now)
	rl.serveLocked()
	rl.armRefillTimerLocked()
	snap := rl.snapshotLocked()
	rl.mu.Unlock()
	rl.broadcast.publish(snap)
}

// serveLocked grants accrued tokens to queued waiters in FIFO order.
func (rl *rateLimiter) serveLocked() {
	for rl.queue.Len() > 0 && rl.bucket.TryConsume() {
		rl.queue.ServeOne()
	}
}

// armRefillTimerLocked keeps a single timer armed for the next refill
// instant while requests are waiting, so queued callers are woken even
// with no other traffic.
func (rl *rateLimiter) armRefillTimerLocked() {
	if rl.queue.Len() == 0 {
		if rl.refillTimer != nil {
			rl.refillTimer.Stop()
		}
		return
	}

	d := rl.bucket.TimeUntilNextToken()
	if d <= 0 {
		d = time.Millisecond
	}
	if rl.refillTimer == nil {
		rl.refillTimer = time.AfterFunc(d, rl.Sweep)
	} else {
		rl.refillTimer.Reset(d)
	}
}

// snapshotLocked stamps each snapshot with a sequence number so the
// broadcaster can keep delivery causally ordered with the state change
// that produced it.
func (rl *rateLimiter) snapshotLocked() Status {
	rl.seq++
	remaining := rl.bucket.Tokens()
	queued := rl.queue.Len()
	return Status{
		Tier:      rl.tier,
		Operation: rl.operation,
		Remaining: remaining,
		Capacity:  rl.bucket.Capacity(),
		Queued:    queued,
		Limited:   remaining == 0 && queued > 0,
		NextReset: rl.bucket.NextResetAt(),
		seq:       rl.seq,
	}
}
