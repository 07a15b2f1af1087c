package limiter

import (
	"context"
	"errors"
	"time"

	sferrors "github.com/vnykmshr/scanflow/pkg/common/errors"
	"github.com/vnykmshr/scanflow/pkg/metrics"
)

// MetricsLimiter wraps a Limiter with Prometheus metrics collection.
type MetricsLimiter struct {
	limiter   Limiter
	tier      string
	operation string
	registry  *metrics.Registry
	enabled   bool
}

// NewWithMetrics creates a new limiter with metrics enabled.
func NewWithMetrics(config Config, metricsConfig metrics.Config) (Limiter, error) {
	base, err := New(config)
	if err != nil {
		return nil, err
	}
	if !metricsConfig.Enabled {
		return base, nil
	}

	registry := metrics.DefaultRegistry
	if metricsConfig.Registry != nil {
		registry = metrics.NewRegistry(metricsConfig.Registry)
	}

	return WrapWithMetrics(base, config.Tier, config.Operation, registry), nil
}

// WrapWithMetrics instruments an existing Limiter against the given
// metrics registry. The registry may be shared across limiters; series
// are distinguished by tier and operation labels.
func WrapWithMetrics(base Limiter, tier, operation string, registry *metrics.Registry) Limiter {
	ml := &MetricsLimiter{
		limiter:   base,
		tier:      tier,
		operation: operation,
		registry:  registry,
		enabled:   true,
	}

	// Track every published snapshot so the state gauges stay fresh
	// even when changes originate from refill timers or sweeps.
	base.Subscribe(func(s Status) {
		if !ml.enabled {
			return
		}
		registry.StatusPublished.WithLabelValues(tier, operation).Inc()
		registry.AdmissionTokens.WithLabelValues(tier, operation).Set(float64(s.Remaining))
		registry.AdmissionQueued.WithLabelValues(tier, operation).Set(float64(s.Queued))
	})

	return ml
}

// RequestToken requests admission, recording the decision.
func (ml *MetricsLimiter) RequestToken(ctx context.Context) bool {
	granted, _ := ml.Request(ctx)
	return granted
}

// Request requests admission, recording the decision and its reason.
func (ml *MetricsLimiter) Request(ctx context.Context) (bool, error) {
	start := time.Now()

	if ml.enabled {
		ml.registry.AdmissionRequests.WithLabelValues(ml.tier, ml.operation).Inc()
	}

	granted, reason := ml.limiter.Request(ctx)

	if ml.enabled {
		ml.registry.AdmissionWaitTime.WithLabelValues(ml.tier, ml.operation).Observe(time.Since(start).Seconds())

		if granted {
			ml.registry.AdmissionGranted.WithLabelValues(ml.tier, ml.operation).Inc()
		} else {
			ml.registry.AdmissionDenied.WithLabelValues(ml.tier, ml.operation, reasonLabel(reason)).Inc()
		}
	}

	return granted, reason
}

// TimeUntilReset returns how long until the next token regenerates.
func (ml *MetricsLimiter) TimeUntilReset() time.Duration {
	return ml.limiter.TimeUntilReset()
}

// ClearQueue denies every queued request immediately.
func (ml *MetricsLimiter) ClearQueue() {
	before := ml.limiter.Status().Queued

	ml.limiter.ClearQueue()

	if ml.enabled && before > 0 {
		ml.registry.AdmissionQueueDrops.WithLabelValues(ml.tier, ml.operation, "cleared").Add(float64(before))
	}
}

// Subscribe registers an observer, tracking the subscriber count.
func (ml *MetricsLimiter) Subscribe(fn func(Status)) func() {
	unsubscribe := ml.limiter.Subscribe(fn)

	if !ml.enabled {
		return unsubscribe
	}

	gauge := ml.registry.StatusSubscribers.WithLabelValues(ml.tier, ml.operation)
	gauge.Inc()
	unsubscribed := false
	return func() {
		unsubscribe()
		if !unsubscribed {
			unsubscribed = true
			gauge.Dec()
		}
	}
}

// Status returns the current snapshot, refreshing the state gauges.
func (ml *MetricsLimiter) Status() Status {
	status := ml.limiter.Status()

	if ml.enabled {
		ml.registry.AdmissionTokens.WithLabelValues(ml.tier, ml.operation).Set(float64(status.Remaining))
		ml.registry.AdmissionQueued.WithLabelValues(ml.tier, ml.operation).Set(float64(status.Queued))
	}

	return status
}

// Sweep runs queue maintenance on the underlying limiter.
func (ml *MetricsLimiter) Sweep() {
	ml.limiter.Sweep()
}

// EnableMetrics enables metrics collection.
func (ml *MetricsLimiter) EnableMetrics(config metrics.Config) error {
	ml.enabled = config.Enabled

	if config.Registry != nil {
		ml.registry = metrics.NewRegistry(config.Registry)
	}

	return nil
}

// DisableMetrics disables metrics collection.
func (ml *MetricsLimiter) DisableMetrics() {
	ml.enabled = false
}

// MetricsEnabled returns true if metrics are currently enabled.
func (ml *MetricsLimiter) MetricsEnabled() bool {
	return ml.enabled
}

// reasonLabel maps a denial reason to its metrics label value.
func reasonLabel(reason error) string {
	switch {
	case errors.Is(reason, sferrors.ErrQueueFull):
		return "queue_full"
	case errors.Is(reason, sferrors.ErrWaitTimeout):
		return "timeout"
	case errors.Is(reason, sferrors.ErrQueueCleared):
		return "cleared"
	case errors.Is(reason, context.Canceled):
		return "canceled"
	default:
		return "other"
	}
}
