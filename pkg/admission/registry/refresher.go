package registry

import (
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	sferrors "github.com/vnykmshr/scanflow/pkg/common/errors"
)

// refresher periodically sweeps every live limiter so stale waiters are
// expired and fresh snapshots reach subscribers even when no request
// traffic arrives, keeping countdown displays live.
type refresher struct {
	spec     string
	schedule cron.Schedule
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// WithRefresh runs a background sweep on the given cron schedule.
// Seconds-granularity expressions and descriptors are supported, e.g.
// "*/1 * * * * *" or "@every 1s".
func WithRefresh(spec string) Option {
	return func(r *Registry) {
		schedule, err := cronParser().Parse(spec)
		if err != nil {
			// Surfaced by New before the refresher ever starts.
			r.refresherErr = sferrors.NewValidationError("registry", "refresh", spec, "invalid cron expression").
				WithHint(err.Error())
			return
		}
		r.refresher = &refresher{
			spec:     spec,
			schedule: schedule,
			stopCh:   make(chan struct{}),
			doneCh:   make(chan struct{}),
		}
	}
}

func cronParser() cron.Parser {
	return cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

func (f *refresher) start(r *Registry) {
	go f.run(r)
}

func (f *refresher) run(r *Registry) {
	defer close(f.doneCh)

	for {
		next := f.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-timer.C:
			r.sweepAll()
			if r.metricsReg != nil {
				r.metricsReg.RefreshSweeps.WithLabelValues(f.spec).Inc()
			}
		case <-f.stopCh:
			timer.Stop()
			return
		}
	}
}

// stop halts the sweep loop and waits for it to exit. Idempotent.
func (f *refresher) stop() {
	f.stopOnce.Do(func() {
		close(f.stopCh)
	})
	<-f.doneCh
}
