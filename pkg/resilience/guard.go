package resilience

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// GuardOpts configures a Guard.
type GuardOpts struct {
	// Rate is requests per second allowed to the upstream; 0 disables limiting.
	Rate float64
	// Burst is the token bucket capacity.
	Burst int
	// Timeout bounds each guarded call; 0 disables the per-call deadline.
	Timeout time.Duration
	// Breaker options; zero values fall back to DefaultBreakerOpts.
	Breaker BreakerOpts
}

// DefaultGuardOpts provides sensible defaults for model-service calls.
var DefaultGuardOpts = GuardOpts{
	Rate:    10,
	Burst:   5,
	Timeout: 30 * time.Second,
	Breaker: DefaultBreakerOpts,
}

// Guard combines a rate limiter, a circuit breaker, and a per-call timeout
// around calls to one upstream service. A nil Guard passes calls through.
type Guard struct {
	limiter *rate.Limiter
	breaker *Breaker
	timeout time.Duration
}

// NewGuard creates a Guard.
func NewGuard(opts GuardOpts) *Guard {
	g := &Guard{
		breaker: NewBreaker(opts.Breaker),
		timeout: opts.Timeout,
	}
	if opts.Rate > 0 {
		burst := opts.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(opts.Rate), burst)
	}
	return g
}

// Do waits for rate-limit admission, then runs f through the breaker with
// the per-call timeout applied.
func (g *Guard) Do(ctx context.Context, f func(context.Context) error) error {
	if g == nil {
		return f(ctx)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return err
		}
	}
	return g.breaker.Call(ctx, func(ctx context.Context) error {
		if g.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}
		return f(ctx)
	})
}

// State exposes the breaker state for observability.
func (g *Guard) State() State {
	if g == nil {
		return StateClosed
	}
	return g.breaker.State()
}
