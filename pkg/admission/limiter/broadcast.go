package limiter

import "sync"

// subscriber wraps an observer callback so unsubscription can match by
// identity even when the same function is subscribed twice.
type subscriber struct {
	fn func(Status)
}

// broadcaster fans immutable status snapshots out to registered
// observers, synchronously and in subscription order.
type broadcaster struct {
	mu      sync.Mutex
	subs    []*subscriber
	lastSeq uint64
}

func newBroadcaster() *broadcaster {
	return &broadcaster{}
}

// subscribe registers an observer and returns an idempotent unsubscribe
// function.
func (b *broadcaster) subscribe(fn func(Status)) func() {
	sub := &subscriber{fn: fn}

	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, candidate := range b.subs {
				if candidate == sub {
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					return
				}
			}
		})
	}
}

// publish delivers the snapshot to every current observer. Delivery is
// serialized on the broadcaster lock and stale snapshots, those whose
// sequence number has already been superseded, are dropped so an
// observer never sees state older than what it was last shown.
func (b *broadcaster) publish(s Status) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if s.seq <= b.lastSeq {
		return
	}
	b.lastSeq = s.seq

	for _, sub := range b.subs {
		deliver(sub, s)
	}
}

// deliver invokes one observer, isolating panics so a failing observer
// cannot prevent delivery to the rest.
func deliver(sub *subscriber, s Status) {
	defer func() {
		_ = recover()
	}()
	sub.fn(s)
}

// len reports the number of current subscribers.
func (b *broadcaster) len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}
