/*
Package scanflow provides admission control for expensive, externally
metered scan operations, keyed by subscription tier.

Admission (pkg/admission):
  - bucket: Token bucket with interval-based integer refill
  - queue: Bounded FIFO queue of waiting admission requests
  - limiter: Per (tier, operation) limiter with live status snapshots
  - registry: Process-wide limiter cache with tier configuration

Example usage:

	import (
		"github.com/vnykmshr/scanflow/pkg/admission/registry"
	)

	reg, _ := registry.New(registry.DefaultConfig())
	lim, _ := reg.Limiter("free", "scan")

	if lim.RequestToken(ctx) {
		// Perform the billable scan.
	}

Callers observe limiter state through subscriptions:

	unsubscribe := lim.Subscribe(func(s limiter.Status) {
		render(s.Remaining, s.NextReset)
	})
	defer unsubscribe()

All components are safe for concurrent use and integrate with the
context package for cancellation and timeouts.
*/
package scanflow
