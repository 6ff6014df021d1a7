package collector

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// HostLimiters is a per-host token bucket (§5: "each adapter maintains a
// token bucket per platform host"). Grounded on
// r3e-network-service_layer/infrastructure/ratelimit.
type HostLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      float64
}

// NewHostLimiters creates a limiter set with the given requests/sec
// (collector.rate_limit.per_host_rps); burst is 2x the rate, floored at 1.
func NewHostLimiters(rps float64) *HostLimiters {
	if rps <= 0 {
		rps = 5
	}
	return &HostLimiters{limiters: make(map[string]*rate.Limiter), rps: rps}
}

func (h *HostLimiters) limiterFor(host string) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[host]
	if !ok {
		burst := int(h.rps * 2)
		if burst < 1 {
			burst = 1
		}
		l = rate.NewLimiter(rate.Limit(h.rps), burst)
		h.limiters[host] = l
	}
	return l
}

// Wait blocks until host's bucket has a token, or ctx is cancelled.
func (h *HostLimiters) Wait(ctx context.Context, host string) error {
	return h.limiterFor(host).Wait(ctx)
}

// Breakers is a per-host circuit breaker set wrapping outbound calls to
// unreliable platform APIs. Grounded on
// r3e-network-service_layer/infrastructure/resilience, backed by
// sony/gobreaker as jordigilh-kubernaut's go.mod carries.
type Breakers struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakers creates an empty per-host breaker set.
func NewBreakers() *Breakers {
	return &Breakers{breakers: make(map[string]*gobreaker.CircuitBreaker)}
}

func (b *Breakers) breakerFor(host string) *gobreaker.CircuitBreaker {
	b.mu.Lock()
	defer b.mu.Unlock()
	cb, ok := b.breakers[host]
	if !ok {
		cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        host,
			MaxRequests: 3,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		})
		b.breakers[host] = cb
	}
	return cb
}

// Execute runs fn through host's circuit breaker. A tripped breaker
// returns gobreaker.ErrOpenState without calling fn, which callers map
// to KindFatal for that sub-method.
func (b *Breakers) Execute(host string, fn func() (interface{}, error)) (interface{}, error) {
	return b.breakerFor(host).Execute(fn)
}

// RetryTransient retries fn per §7: base 500ms, factor 2, max 3 attempts,
// ±20% jitter. fn should return a *Error; only Retryable() errors are
// retried, anything else (or exhausting the budget) returns immediately.
func RetryTransient(ctx context.Context, fn func() error) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.Multiplier = 2
	bo.RandomizationFactor = 0.2
	bo.MaxElapsedTime = 0 // bounded by WithMaxRetries instead

	withCtx := backoff.WithContext(backoff.WithMaxRetries(bo, 2), ctx) // 2 retries => 3 attempts total

	return backoff.Retry(func() error {
		err := fn()
		if err == nil {
			return nil
		}
		var ce *Error
		if as(err, &ce) && !ce.Retryable() {
			return backoff.Permanent(err)
		}
		return err
	}, withCtx)
}

// as is a narrow errors.As to avoid importing errors just for this.
func as(err error, target **Error) bool {
	ce, ok := err.(*Error)
	if !ok {
		return false
	}
	*target = ce
	return true
}
