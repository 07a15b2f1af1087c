package testutil

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

func TestEventually(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		called := false
		Eventually(t, func() bool {
			called = true
			return true
		}, 100*time.Millisecond, 10*time.Millisecond)

		if !called {
			t.Error("condition function should be called")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		var counter int32
		go func() {
			time.Sleep(50 * time.Millisecond)
			atomic.StoreInt32(&counter, 1)
		}()

		Eventually(t, func() bool {
			return atomic.LoadInt32(&counter) == 1
		}, time.Second, 10*time.Millisecond)
	})
}

func TestMockClock(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	AssertEqual(t, clock.Now(), start)

	clock.Advance(time.Minute)
	AssertEqual(t, clock.Now(), start.Add(time.Minute))

	later := start.Add(time.Hour)
	clock.Set(later)
	AssertEqual(t, clock.Now(), later)
}

func TestMockClockZeroStart(t *testing.T) {
	clock := NewMockClock(time.Time{})
	if clock.Now().IsZero() {
		t.Error("zero start should default to current time")
	}
}

func TestRecorder(t *testing.T) {
	r := NewRecorder[int]()

	if _, ok := r.Last(); ok {
		t.Error("Last should report false on an empty recorder")
	}

	r.Record(1)
	r.Record(2)
	r.Record(3)

	AssertEqual(t, r.Len(), 3)

	values := r.Values()
	for i, want := range []int{1, 2, 3} {
		AssertEqual(t, values[i], want)
	}

	last, ok := r.Last()
	AssertEqual(t, ok, true)
	AssertEqual(t, last, 3)

	r.Reset()
	AssertEqual(t, r.Len(), 0)
}

func TestAsserts(t *testing.T) {
	AssertNoError(t, nil)
	AssertError(t, errors.New("boom"))
	AssertEqual(t, 42, 42)
}
