package services

import (
	"context"
	"sync"
	"time"

	"github.com/athapong/context-graph-explorer/pkg/graph"
	"github.com/athapong/context-graph-explorer/pkg/graph/metrics"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// GuardConfig configures the protection wrapped around a completer
type GuardConfig struct {
	Timeout           time.Duration
	RequestsPerMinute int
	// MinRequests and FailureThreshold decide when the breaker opens
	MinRequests      uint32
	FailureThreshold float64
	OpenTimeout      time.Duration
}

// Guard fails fast after repeated upstream failures and paces outbound calls.
// Requests are never retried.
type Guard struct {
	next    Completer
	breaker *gobreaker.CircuitBreaker
	limiter *rate.Limiter
	timeout time.Duration
}

// NewGuard wraps next with a circuit breaker and, when RequestsPerMinute > 0, a rate limiter
func NewGuard(next Completer, cfg GuardConfig) *Guard {
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 0.8
	}
	if cfg.OpenTimeout == 0 {
		cfg.OpenTimeout = 60 * time.Second
	}

	return &Guard{
		next:    next,
		breaker: breakerFor(next.Provider(), cfg),
		limiter: limiterFor(next.Provider(), cfg.RequestsPerMinute),
		timeout: cfg.Timeout,
	}
}

var (
	sharedMu       sync.Mutex
	sharedBreakers = make(map[string]*gobreaker.CircuitBreaker)
	sharedLimiters = make(map[string]*rate.Limiter)
)

// breakerFor returns the breaker shared by every guard of a provider, so
// state survives the per-request completers built for user supplied keys.
func breakerFor(provider string, cfg GuardConfig) *gobreaker.CircuitBreaker {
	sharedMu.Lock()
	defer sharedMu.Unlock()

	if cb, ok := sharedBreakers[provider]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm-" + provider,
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Warn("Circuit breaker state changed")
		},
		// Bad keys and unparseable answers say nothing about provider health
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, graph.ErrInvalidAPIKey) ||
				errors.Is(err, graph.ErrMalformedResponse)
		},
	})
	sharedBreakers[provider] = cb
	return cb
}

func limiterFor(provider string, perMinute int) *rate.Limiter {
	if perMinute <= 0 {
		return nil
	}

	sharedMu.Lock()
	defer sharedMu.Unlock()

	if l, ok := sharedLimiters[provider]; ok {
		return l
	}
	l := rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), 1)
	sharedLimiters[provider] = l
	return l
}

func (g *Guard) Provider() string {
	return g.next.Provider()
}

func (g *Guard) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", errors.Wrapf(graph.ErrRateLimited, "waiting for request slot: %v", err)
		}
	}

	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		text, err := g.next.Complete(ctx, req)
		return text, err
	})

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.CompletionRequests.WithLabelValues(g.Provider(), "rejected").Inc()
		return "", errors.Wrapf(graph.ErrUpstream, "AI service temporarily unavailable: %v", err)
	case err != nil:
		metrics.CompletionRequests.WithLabelValues(g.Provider(), "error").Inc()
		return "", err
	}

	metrics.CompletionRequests.WithLabelValues(g.Provider(), "success").Inc()
	return out.(string), nil
}
