/*
Package admission provides tier-aware admission control for metered
operations.

This package groups four building blocks:

  - bucket: Token bucket with interval-based integer refill
  - queue: Bounded FIFO queue of waiting admission requests
  - limiter: Composes a bucket and a queue for one (tier, operation)
    pair and broadcasts status snapshots to observers
  - registry: Lazily constructs and caches one limiter per key from a
    static tier configuration table

A request for admission takes one of three paths: an immediate grant
while tokens remain, a bounded FIFO wait while the queue has room, or
an immediate rejection once it does not. Queued requests resolve
exactly once, whether granted by a refill, timed out, cleared, or
canceled by the caller:

	reg, _ := registry.New(registry.DefaultConfig())
	lim, _ := reg.Limiter("free", "scan")

	if lim.RequestToken(ctx) {
		// Perform the billable operation.
	} else {
		// Over the limit: surface an upgrade prompt or retry later.
	}

All components are safe for concurrent use. Denials are reported as an
ungranted request rather than an error; callers that need the reason
use Request, and observers needing live state use Subscribe.
*/
package admission
