package registry

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/vnykmshr/scanflow/internal/testutil"
	"github.com/vnykmshr/scanflow/pkg/admission/limiter"
	sferrors "github.com/vnykmshr/scanflow/pkg/common/errors"
)

func TestNewValidatesTable(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"empty table", Config{}},
		{"tier without operations", Config{Tiers: map[string]map[string]TierConfig{"free": {}}}},
		{"empty tier name", Config{Tiers: map[string]map[string]TierConfig{"": {
			"scan": {Capacity: 1, RefillInterval: time.Second, MaxQueueDepth: 1, MaxWait: time.Second},
		}}}},
		{"zero capacity entry", Config{Tiers: map[string]map[string]TierConfig{"free": {
			"scan": {RefillInterval: time.Second, MaxQueueDepth: 1, MaxWait: time.Second},
		}}}},
		{"zero interval entry", Config{Tiers: map[string]map[string]TierConfig{"free": {
			"scan": {Capacity: 1, MaxQueueDepth: 1, MaxWait: time.Second},
		}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.config)
			testutil.AssertError(t, err)
			if !errors.Is(err, sferrors.ErrInvalidConfiguration) {
				t.Errorf("err = %v, want ErrInvalidConfiguration", err)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	reg, err := New(DefaultConfig())
	testutil.AssertNoError(t, err)
	defer reg.Close()

	free, err := reg.Limiter(TierFree, OperationScan)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, free.Status().Capacity, 3)

	paid, err := reg.Limiter(TierPaid, OperationScan)
	testutil.AssertNoError(t, err)
	testutil.AssertEqual(t, paid.Status().Capacity, 20)
}

func TestLimiterReusedPerKey(t *testing.T) {
	reg, err := New(DefaultConfig())
	testutil.AssertNoError(t, err)
	defer reg.Close()

	a, err := reg.Limiter(TierFree, OperationScan)
	testutil.AssertNoError(t, err)
	b, err := reg.Limiter(TierFree, OperationScan)
	testutil.AssertNoError(t, err)

	if a != b {
		t.Fatal("same key must return the same limiter instance")
	}

	// Shared state: consuming through one handle is visible through the other.
	a.RequestToken(context.Background())
	testutil.AssertEqual(t, b.Status().Remaining, 2)
}

func TestUnknownKeyIsError(t *testing.T) {
	reg, err := New(DefaultConfig())
	testutil.AssertNoError(t, err)
	defer reg.Close()

	_, err = reg.Limiter("enterprise", OperationScan)
	testutil.AssertError(t, err)
	if !errors.Is(err, sferrors.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want ErrInvalidConfiguration", err)
	}

	_, err = reg.Limiter(TierFree, "export")
	testutil.AssertError(t, err)
	if !errors.Is(err, sferrors.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestConcurrentFirstAccess(t *testing.T) {
	reg, err := New(DefaultConfig())
	testutil.AssertNoError(t, err)
	defer reg.Close()

	const goroutines = 20
	limiters := make([]interface{}, goroutines)

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func(i int) {
			defer wg.Done()
			lim, err := reg.Limiter(TierFree, OperationScan)
			if err != nil {
				t.Error(err)
				return
			}
			limiters[i] = lim
		}(i)
	}
	wg.Wait()

	for i := 1; i < goroutines; i++ {
		if limiters[i] != limiters[0] {
			t.Fatal("concurrent first access must construct exactly one limiter")
		}
	}
}

func TestKeys(t *testing.T) {
	reg, err := New(DefaultConfig())
	testutil.AssertNoError(t, err)
	defer reg.Close()

	testutil.AssertEqual(t, len(reg.Keys()), 0)

	_, err = reg.Limiter(TierPaid, OperationScan)
	testutil.AssertNoError(t, err)
	_, err = reg.Limiter(TierFree, OperationScan)
	testutil.AssertNoError(t, err)

	keys := reg.Keys()
	testutil.AssertEqual(t, len(keys), 2)
	testutil.AssertEqual(t, keys[0], [2]string{TierFree, OperationScan})
	testutil.AssertEqual(t, keys[1], [2]string{TierPaid, OperationScan})
}

func TestWithRefreshInvalidExpression(t *testing.T) {
	_, err := New(DefaultConfig(), WithRefresh("not a cron spec"))
	testutil.AssertError(t, err)
	if !errors.Is(err, sferrors.ErrInvalidConfiguration) {
		t.Errorf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestRefresherSweepsWaiters(t *testing.T) {
	config := Config{
		Tiers: map[string]map[string]TierConfig{
			TierFree: {
				OperationScan: {
					Capacity:       1,
					RefillInterval: time.Hour,
					MaxQueueDepth:  1,
					MaxWait:        50 * time.Millisecond,
				},
			},
		},
	}

	reg, err := New(config, WithRefresh("@every 100ms"))
	testutil.AssertNoError(t, err)
	defer reg.Close()

	lim, err := reg.Limiter(TierFree, OperationScan)
	testutil.AssertNoError(t, err)

	testutil.AssertEqual(t, lim.RequestToken(context.Background()), true)

	// Snapshots keep flowing from the background sweep with no request
	// traffic at all.
	recorder := testutil.NewRecorder[limiter.Status]()
	unsubscribe := lim.Subscribe(recorder.Record)
	defer unsubscribe()

	testutil.Eventually(t, func() bool {
		return recorder.Len() >= 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestCloseIdempotent(t *testing.T) {
	reg, err := New(DefaultConfig(), WithRefresh("@every 1s"))
	testutil.AssertNoError(t, err)

	reg.Close()
	reg.Close() // second close is a no-op
}
