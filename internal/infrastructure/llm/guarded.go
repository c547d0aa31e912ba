package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"AdvisoryScanner/internal/ports"
)

// GuardedCompleter throttles calls to the requests-per-minute quota of the
// model provider and stops calling it while the circuit is open.
type GuardedCompleter struct {
	next    ports.Completer
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker
}

var _ ports.Completer = (*GuardedCompleter)(nil)

// NewGuardedCompleter wraps next. requestsPerMinute <= 0 disables throttling.
func NewGuardedCompleter(next ports.Completer, requestsPerMinute int, logger *slog.Logger) *GuardedCompleter {
	limiter := rate.NewLimiter(rate.Inf, 0)
	if requestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), 1)
	}

	settings := gobreaker.Settings{
		Name:        "relevance-model",
		MaxRequests: 1,
		Interval:    5 * time.Minute,
		Timeout:     time.Minute,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			if logger != nil {
				logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
			}
		},
	}

	return &GuardedCompleter{
		next:    next,
		limiter: limiter,
		cb:      gobreaker.NewCircuitBreaker(settings),
	}
}

// Complete waits for a rate slot, then calls the wrapped completer through
// the circuit breaker.
func (g *GuardedCompleter) Complete(ctx context.Context, prompt string) (string, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limit wait: %w", err)
	}

	out, err := g.cb.Execute(func() (interface{}, error) {
		return g.next.Complete(ctx, prompt)
	})
	if err != nil {
		return "", err
	}
	return out.(string), nil
}

// State exposes the breaker state.
func (g *GuardedCompleter) State() gobreaker.State {
	return g.cb.State()
}
