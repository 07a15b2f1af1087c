// Package metrics provides Prometheus instrumentation for scanflow components.
//
// The metrics package provides automatic instrumentation for:
//   - Admission decisions (requests, grants, denials by reason, wait times)
//   - Queue occupancy and drops (timeout, cleared, canceled)
//   - Status broadcasting (published snapshots, subscriber counts)
//   - Registry activity (limiters constructed, refresh sweeps)
//
// Enable metrics through the registry option:
//
//	reg, _ := registry.New(registry.DefaultConfig(),
//		registry.WithMetrics(metrics.DefaultConfig()))
//
// Then expose metrics via HTTP:
//
//	http.Handle("/metrics", promhttp.Handler())
//	log.Fatal(http.ListenAndServe(":8080", nil))
//
// Metrics are labeled by tier and operation so per-plan admission
// behavior can be filtered and aggregated:
//
//   - scanflow_admission_requests_total
//   - scanflow_admission_granted_total
//   - scanflow_admission_denied_total (reason: queue_full, timeout, cleared, canceled)
//   - scanflow_admission_wait_duration_seconds
//   - scanflow_admission_tokens_available
//   - scanflow_admission_queued_requests
//   - scanflow_status_published_total
//   - scanflow_status_subscribers
//
// Use a custom Prometheus registry for isolation:
//
//	promReg := prometheus.NewRegistry()
//	cfg := metrics.Config{Enabled: true, Registry: promReg}
//
// Metrics collection is designed for minimal overhead: metrics are
// updated only when admission state changes, with no extra goroutines.
package metrics
