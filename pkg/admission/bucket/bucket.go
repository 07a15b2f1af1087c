package bucket

import (
	"time"

	"github.com/vnykmshr/scanflow/pkg/common/validation"
)

// Clock provides the current time. It can be mocked for testing.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using the system time.
type SystemClock struct{}

// Now returns the current system time.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Config holds configuration options for creating a new TokenBucket.
type Config struct {
	// Capacity is the maximum number of tokens the bucket can hold.
	Capacity int

	// RefillInterval is the time between token regenerations.
	RefillInterval time.Duration

	// RefillAmount is the number of tokens added per interval.
	// If zero, defaults to 1.
	RefillAmount int

	// Clock provides the current time. If nil, SystemClock is used.
	Clock Clock

	// InitialTokens is the number of tokens to start with.
	// If negative, starts with full capacity.
	InitialTokens int
}

// TokenBucket is a token bucket with interval-based integer refill.
// Tokens regenerate in whole units, RefillAmount per RefillInterval,
// computed lazily from elapsed time on access. The count never goes
// negative and never exceeds Capacity.
//
// TokenBucket is not safe for concurrent use on its own; callers
// serialize access, as the admission limiter does.
type TokenBucket struct {
	capacity       int
	refillInterval time.Duration
	refillAmount   int
	tokens         int
	lastRefill     time.Time
	clock          Clock
}

// New creates a TokenBucket that starts full and regenerates one token
// per interval.
func New(capacity int, refillInterval time.Duration) (*TokenBucket, error) {
	return NewWithConfig(Config{
		Capacity:       capacity,
		RefillInterval: refillInterval,
		RefillAmount:   1,
		InitialTokens:  -1,
	})
}

// NewWithConfig creates a TokenBucket from the given configuration.
func NewWithConfig(config Config) (*TokenBucket, error) {
	if err := validation.ValidatePositive("bucket", "capacity", config.Capacity); err != nil {
		return nil, err
	}
	if err := validation.ValidatePositiveDuration("bucket", "refillInterval", config.RefillInterval); err != nil {
		return nil, err
	}
	if config.RefillAmount == 0 {
		config.RefillAmount = 1
	}
	if err := validation.ValidatePositive("bucket", "refillAmount", config.RefillAmount); err != nil {
		return nil, err
	}
	if config.Clock == nil {
		config.Clock = SystemClock{}
	}

	tokens := config.InitialTokens
	if tokens < 0 || tokens > config.Capacity {
		tokens = config.Capacity
	}

	return &TokenBucket{
		capacity:       config.Capacity,
		refillInterval: config.RefillInterval,
		refillAmount:   config.RefillAmount,
		tokens:         tokens,
		lastRefill:     config.Clock.Now(),
		clock:          config.Clock,
	}, nil
}

// TryConsume refills from elapsed time, then consumes one token if any
// are available. It has no side effect on the token count when it fails.
func (tb *TokenBucket) TryConsume() bool {
	tb.refill(tb.clock.Now())
	if tb.tokens > 0 {
		tb.tokens--
		return true
	}
	return false
}

// Tokens returns the number of tokens currently available, after
// accounting for elapsed time.
func (tb *TokenBucket) Tokens() int {
	tb.refill(tb.clock.Now())
	return tb.tokens
}

// Capacity returns the maximum number of tokens the bucket can hold.
func (tb *TokenBucket) Capacity() int {
	return tb.capacity
}

// TimeUntilNextToken returns how long until another token regenerates,
// or zero if a token is already available.
func (tb *TokenBucket) TimeUntilNextToken() time.Duration {
	now := tb.clock.Now()
	tb.refill(now)
	if tb.tokens > 0 {
		return 0
	}
	elapsed := now.Sub(tb.lastRefill) % tb.refillInterval
	return tb.refillInterval - elapsed
}

// NextResetAt returns the instant the next token regenerates. If a token
// is already available it returns the current time.
func (tb *TokenBucket) NextResetAt() time.Time {
	return tb.clock.Now().Add(tb.TimeUntilNextToken())
}

// refill credits whole intervals elapsed since the last refill. Calling
// it repeatedly with the same now is idempotent: lastRefill only ever
// advances by exact interval multiples, so partial intervals carry over.
func (tb *TokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill)
	if elapsed < tb.refillInterval {
		return
	}

	intervals := int(elapsed / tb.refillInterval)
	tb.tokens += intervals * tb.refillAmount
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	tb.lastRefill = tb.lastRefill.Add(time.Duration(intervals) * tb.refillInterval)
}
