// Package metrics provides Prometheus instrumentation for scanflow components.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds all metric instances for scanflow components.
type Registry struct {
	// Admission Metrics
	AdmissionRequests   *prometheus.CounterVec
	AdmissionGranted    *prometheus.CounterVec
	AdmissionDenied     *prometheus.CounterVec
	AdmissionWaitTime   *prometheus.HistogramVec
	AdmissionTokens     *prometheus.GaugeVec
	AdmissionQueued     *prometheus.GaugeVec
	AdmissionQueueDrops *prometheus.CounterVec

	// Status Broadcast Metrics
	StatusPublished   *prometheus.CounterVec
	StatusSubscribers *prometheus.GaugeVec

	// Registry Metrics
	LimitersCreated *prometheus.CounterVec
	RefreshSweeps   *prometheus.CounterVec
}

// DefaultRegistry is the default metrics registry used by scanflow components.
var DefaultRegistry *Registry

func init() {
	DefaultRegistry = NewRegistry(prometheus.DefaultRegisterer)
}

// NewRegistry creates a new metrics registry with the given Prometheus registerer.
func NewRegistry(reg prometheus.Registerer) *Registry {
	factory := promauto.With(reg)

	return &Registry{
		// Admission Metrics
		AdmissionRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanflow",
				Subsystem: "admission",
				Name:      "requests_total",
				Help:      "Total number of admission requests",
			},
			[]string{"tier", "operation"},
		),

		AdmissionGranted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanflow",
				Subsystem: "admission",
				Name:      "granted_total",
				Help:      "Total number of granted requests",
			},
			[]string{"tier", "operation"},
		),

		AdmissionDenied: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanflow",
				Subsystem: "admission",
				Name:      "denied_total",
				Help:      "Total number of denied requests by reason",
			},
			[]string{"tier", "operation", "reason"},
		),

		AdmissionWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "scanflow",
				Subsystem: "admission",
				Name:      "wait_duration_seconds",
				Help:      "Time spent queued waiting for admission",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"tier", "operation"},
		),

		AdmissionTokens: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "scanflow",
				Subsystem: "admission",
				Name:      "tokens_available",
				Help:      "Number of tokens currently available",
			},
			[]string{"tier", "operation"},
		),

		AdmissionQueued: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "scanflow",
				Subsystem: "admission",
				Name:      "queued_requests",
				Help:      "Number of requests currently queued",
			},
			[]string{"tier", "operation"},
		),

		AdmissionQueueDrops: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanflow",
				Subsystem: "admission",
				Name:      "queue_drops_total",
				Help:      "Total number of queued requests dropped before grant",
			},
			[]string{"tier", "operation", "reason"},
		),

		// Status Broadcast Metrics
		StatusPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanflow",
				Subsystem: "status",
				Name:      "published_total",
				Help:      "Total number of status snapshots published",
			},
			[]string{"tier", "operation"},
		),

		StatusSubscribers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "scanflow",
				Subsystem: "status",
				Name:      "subscribers",
				Help:      "Number of currently subscribed observers",
			},
			[]string{"tier", "operation"},
		),

		// Registry Metrics
		LimitersCreated: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanflow",
				Subsystem: "registry",
				Name:      "limiters_created_total",
				Help:      "Total number of limiters constructed",
			},
			[]string{"tier", "operation"},
		),

		RefreshSweeps: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "scanflow",
				Subsystem: "registry",
				Name:      "refresh_sweeps_total",
				Help:      "Total number of background refresh sweeps",
			},
			[]string{"schedule"},
		),
	}
}
