package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/vnykmshr/scanflow/internal/testutil"
	sferrors "github.com/vnykmshr/scanflow/pkg/common/errors"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		maxDepth int
		maxWait  time.Duration
		wantErr  bool
	}{
		{"valid parameters", 2, 30 * time.Second, false},
		{"zero depth", 0, time.Second, true},
		{"negative depth", -1, time.Second, true},
		{"zero wait", 2, 0, true},
		{"negative wait", 2, -time.Second, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := New(tt.maxDepth, tt.maxWait)
			if tt.wantErr {
				testutil.AssertError(t, err)
				return
			}
			testutil.AssertNoError(t, err)
			testutil.AssertEqual(t, q.MaxDepth(), tt.maxDepth)
			testutil.AssertEqual(t, q.MaxWait(), tt.maxWait)
			testutil.AssertEqual(t, q.Len(), 0)
		})
	}
}

func TestEnqueueFIFOAndFull(t *testing.T) {
	q, err := New(2, 30*time.Second)
	testutil.AssertNoError(t, err)

	now := time.Now()
	first, err := q.Enqueue(now)
	testutil.AssertNoError(t, err)
	second, err := q.Enqueue(now.Add(time.Millisecond))
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, q.Len(), 2)

	// Third entry is rejected outright.
	_, err = q.Enqueue(now.Add(2 * time.Millisecond))
	if !errors.Is(err, sferrors.ErrQueueFull) {
		t.Fatalf("err = %v, want ErrQueueFull", err)
	}

	// Served strictly in arrival order.
	served, ok := q.ServeOne()
	testutil.AssertEqual(t, ok, true)
	if served != first {
		t.Error("first enqueued entry should be served first")
	}
	served, ok = q.ServeOne()
	testutil.AssertEqual(t, ok, true)
	if served != second {
		t.Error("second enqueued entry should be served second")
	}

	_, ok = q.ServeOne()
	testutil.AssertEqual(t, ok, false)
}

func TestServeOneResolvesGranted(t *testing.T) {
	q, err := New(2, time.Second)
	testutil.AssertNoError(t, err)

	e, err := q.Enqueue(time.Now())
	testutil.AssertNoError(t, err)

	q.ServeOne()

	select {
	case <-e.Done():
	default:
		t.Fatal("served entry should be resolved")
	}
	granted, reason := e.Outcome()
	testutil.AssertEqual(t, granted, true)
	testutil.AssertNoError(t, reason)
}

func TestExpireBefore(t *testing.T) {
	q, err := New(3, 5*time.Second)
	testutil.AssertNoError(t, err)

	base := time.Now()
	a, _ := q.Enqueue(base)
	b, _ := q.Enqueue(base.Add(time.Second))
	c, _ := q.Enqueue(base.Add(2 * time.Second))

	// Nothing has expired yet.
	testutil.AssertEqual(t, q.ExpireBefore(base.Add(4*time.Second)), 0)
	testutil.AssertEqual(t, q.Len(), 3)

	// a expires at base+5s, b at base+6s.
	testutil.AssertEqual(t, q.ExpireBefore(base.Add(6*time.Second)), 2)
	testutil.AssertEqual(t, q.Len(), 1)

	for _, e := range []*Entry{a, b} {
		granted, reason := e.Outcome()
		testutil.AssertEqual(t, granted, false)
		if !errors.Is(reason, sferrors.ErrWaitTimeout) {
			t.Errorf("reason = %v, want ErrWaitTimeout", reason)
		}
	}

	// c is still live and serveable.
	served, ok := q.ServeOne()
	testutil.AssertEqual(t, ok, true)
	if served != c {
		t.Error("remaining entry should be c")
	}
}

func TestExpireExactDeadline(t *testing.T) {
	q, err := New(1, 5*time.Second)
	testutil.AssertNoError(t, err)

	base := time.Now()
	e, _ := q.Enqueue(base)

	// deadline <= now expires, per the contract.
	testutil.AssertEqual(t, q.ExpireBefore(base.Add(5*time.Second)), 1)
	granted, _ := e.Outcome()
	testutil.AssertEqual(t, granted, false)
}

func TestClear(t *testing.T) {
	q, err := New(3, time.Second)
	testutil.AssertNoError(t, err)

	now := time.Now()
	entries := make([]*Entry, 3)
	for i := range entries {
		e, err := q.Enqueue(now)
		testutil.AssertNoError(t, err)
		entries[i] = e
	}

	testutil.AssertEqual(t, q.Clear(), 3)
	testutil.AssertEqual(t, q.Len(), 0)

	for _, e := range entries {
		select {
		case <-e.Done():
		default:
			t.Fatal("cleared entry should be resolved")
		}
		granted, reason := e.Outcome()
		testutil.AssertEqual(t, granted, false)
		if !errors.Is(reason, sferrors.ErrQueueCleared) {
			t.Errorf("reason = %v, want ErrQueueCleared", reason)
		}
	}

	// Queue is usable again after a clear.
	_, err = q.Enqueue(now)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, q.Clear(), 1)
}

func TestRemove(t *testing.T) {
	q, err := New(2, time.Second)
	testutil.AssertNoError(t, err)

	now := time.Now()
	a, _ := q.Enqueue(now)
	b, _ := q.Enqueue(now)

	testutil.AssertEqual(t, q.Remove(a, sferrors.ErrQueueCleared), true)
	testutil.AssertEqual(t, q.Len(), 1)

	// Removing twice is a no-op.
	testutil.AssertEqual(t, q.Remove(a, sferrors.ErrQueueCleared), false)

	// b is unaffected and still first in line.
	served, ok := q.ServeOne()
	testutil.AssertEqual(t, ok, true)
	if served != b {
		t.Error("b should survive a's removal")
	}
}

func TestResolveExactlyOnce(t *testing.T) {
	q, err := New(1, time.Second)
	testutil.AssertNoError(t, err)

	now := time.Now()
	e, _ := q.Enqueue(now)

	// Grant wins; the timeout that follows must not override it.
	q.ServeOne()
	q.ExpireBefore(now.Add(time.Hour))

	granted, reason := e.Outcome()
	testutil.AssertEqual(t, granted, true)
	testutil.AssertNoError(t, reason)
}
