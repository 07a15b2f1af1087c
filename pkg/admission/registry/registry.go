// Package registry caches one admission limiter per (tier, operation)
// key, constructing limiters lazily from a static tier configuration
// table so concurrent callers for the same key share state.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/vnykmshr/scanflow/pkg/admission/bucket"
	"github.com/vnykmshr/scanflow/pkg/admission/limiter"
	sferrors "github.com/vnykmshr/scanflow/pkg/common/errors"
	"github.com/vnykmshr/scanflow/pkg/common/validation"
	"github.com/vnykmshr/scanflow/pkg/metrics"
)

// Well-known tiers and operations.
const (
	TierFree = "free"
	TierPaid = "paid"

	OperationScan = "scan"
)

// TierConfig holds the admission parameters for one (tier, operation)
// table entry.
type TierConfig struct {
	// Capacity is the maximum number of tokens.
	Capacity int

	// RefillInterval is the time between token regenerations.
	RefillInterval time.Duration

	// RefillAmount is the number of tokens added per interval.
	// If zero, defaults to 1.
	RefillAmount int

	// MaxQueueDepth bounds the number of waiting requests.
	MaxQueueDepth int

	// MaxWait bounds how long a queued request may wait.
	MaxWait time.Duration
}

// Config holds the full admission configuration table, keyed by tier
// then operation. An unknown key is a construction error, never a
// silent default; a misconfigured deployment should fail loudly.
type Config struct {
	// Tiers maps tier name to the operations configured for it.
	Tiers map[string]map[string]TierConfig

	// Clock provides the current time for every limiter constructed.
	// If nil, SystemClock is used.
	Clock bucket.Clock
}

// DefaultConfig returns the stock tier table for scan admission: the
// free tier gets a small burst refilled once a minute, the paid tier a
// larger burst refilled every few seconds.
func DefaultConfig() Config {
	return Config{
		Tiers: map[string]map[string]TierConfig{
			TierFree: {
				OperationScan: {
					Capacity:       3,
					RefillInterval: time.Minute,
					RefillAmount:   1,
					MaxQueueDepth:  2,
					MaxWait:        30 * time.Second,
				},
			},
			TierPaid: {
				OperationScan: {
					Capacity:       20,
					RefillInterval: 3 * time.Second,
					RefillAmount:   1,
					MaxQueueDepth:  10,
					MaxWait:        30 * time.Second,
				},
			},
		},
	}
}

type limiterKey struct {
	tier      string
	operation string
}

// Registry is a process-wide cache of admission limiters. Construct one
// explicitly and inject it where needed rather than relying on an
// ambient global, so tests can run against isolated registries.
type Registry struct {
	config       Config
	metricsCfg   metrics.Config
	metricsReg   *metrics.Registry
	refresher    *refresher
	refresherErr error

	mu       sync.Mutex
	limiters map[limiterKey]limiter.Limiter
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics wraps every limiter the registry constructs with
// Prometheus instrumentation.
func WithMetrics(config metrics.Config) Option {
	return func(r *Registry) {
		r.metricsCfg = config
	}
}

// New creates a Registry from the given configuration table. Every
// table entry is validated up front so a bad deployment fails at
// construction, not on first use.
func New(config Config, opts ...Option) (*Registry, error) {
	if len(config.Tiers) == 0 {
		return nil, sferrors.NewValidationError("registry", "tiers", nil, "cannot be empty").
			WithHint("configure at least one tier")
	}
	for tier, operations := range config.Tiers {
		if err := validation.ValidateNotEmpty("registry", "tier", tier); err != nil {
			return nil, err
		}
		if len(operations) == 0 {
			return nil, sferrors.NewValidationError("registry", "operations", tier, "tier has no operations").
				WithHint("configure at least one operation per tier")
		}
		for operation, tc := range operations {
			if err := validation.ValidateNotEmpty("registry", "operation", operation); err != nil {
				return nil, err
			}
			if err := validateTierConfig(tc); err != nil {
				return nil, err
			}
		}
	}
	if config.Clock == nil {
		config.Clock = bucket.SystemClock{}
	}

	r := &Registry{
		config:   config,
		limiters: make(map[limiterKey]limiter.Limiter),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.refresherErr != nil {
		return nil, r.refresherErr
	}

	if r.metricsCfg.Enabled {
		r.metricsReg = metrics.DefaultRegistry
		if r.metricsCfg.Registry != nil {
			r.metricsReg = metrics.NewRegistry(r.metricsCfg.Registry)
		}
	}
	if r.refresher != nil {
		r.refresher.start(r)
	}

	return r, nil
}

func validateTierConfig(tc TierConfig) error {
	if err := validation.ValidatePositive("registry", "capacity", tc.Capacity); err != nil {
		return err
	}
	if err := validation.ValidatePositiveDuration("registry", "refillInterval", tc.RefillInterval); err != nil {
		return err
	}
	if err := validation.ValidateNonNegative("registry", "refillAmount", tc.RefillAmount); err != nil {
		return err
	}
	if err := validation.ValidatePositive("registry", "maxQueueDepth", tc.MaxQueueDepth); err != nil {
		return err
	}
	return validation.ValidatePositiveDuration("registry", "maxWait", tc.MaxWait)
}

// Limiter returns the admission limiter for the given tier and
// operation, constructing it on first access. Exactly one limiter ever
// exists per key; the whole lookup-or-create runs under one lock.
func (r *Registry) Limiter(tier, operation string) (limiter.Limiter, error) {
	key := limiterKey{tier: tier, operation: operation}

	r.mu.Lock()
	defer r.mu.Unlock()

	if lim, ok := r.limiters[key]; ok {
		return lim, nil
	}

	operations, ok := r.config.Tiers[tier]
	if !ok {
		return nil, sferrors.NewValidationError("registry", "tier", tier, "no configuration for tier").
			WithHint("add the tier to the configuration table")
	}
	tc, ok := operations[operation]
	if !ok {
		return nil, sferrors.NewValidationError("registry", "operation", operation, "no configuration for operation").
			WithHint("add the operation to the tier's table entry")
	}

	lim, err := limiter.New(limiter.Config{
		Tier:           tier,
		Operation:      operation,
		Capacity:       tc.Capacity,
		RefillInterval: tc.RefillInterval,
		RefillAmount:   tc.RefillAmount,
		MaxQueueDepth:  tc.MaxQueueDepth,
		MaxWait:        tc.MaxWait,
		Clock:          r.config.Clock,
	})
	if err != nil {
		return nil, err
	}

	if r.metricsReg != nil {
		r.metricsReg.LimitersCreated.WithLabelValues(tier, operation).Inc()
		lim = limiter.WrapWithMetrics(lim, tier, operation, r.metricsReg)
	}

	r.limiters[key] = lim
	return lim, nil
}

// Keys returns the (tier, operation) pairs with live limiters, sorted
// for stable output.
func (r *Registry) Keys() [][2]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	keys := make([][2]string, 0, len(r.limiters))
	for key := range r.limiters {
		keys = append(keys, [2]string{key.tier, key.operation})
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	return keys
}

// sweepAll runs queue maintenance on every live limiter.
func (r *Registry) sweepAll() {
	r.mu.Lock()
	limiters := make([]limiter.Limiter, 0, len(r.limiters))
	for _, lim := range r.limiters {
		limiters = append(limiters, lim)
	}
	r.mu.Unlock()

	for _, lim := range limiters {
		lim.Sweep()
	}
}

// Close stops the background refresher, if one was configured. Limiters
// themselves live for the process lifetime.
func (r *Registry) Close() {
	if r.refresher != nil {
		r.refresher.stop()
	}
}
