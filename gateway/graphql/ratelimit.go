package graphql

import (
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/tallyhq/ledgergate/pkg/cache"
)

// RateLimiter applies a per-subject token bucket before any other pipeline
// stage runs. Limiters live in an LRU cache so the tracked-subject set stays
// bounded; evicting a limiter just resets that subject's bucket.
type RateLimiter struct {
	limiters cache.Cache[*rate.Limiter]
	rps      rate.Limit
	burst    int
	logger   *slog.Logger
}

// NewRateLimiter creates a limiter tracking at most maxTracked subjects.
func NewRateLimiter(requestsPerSecond float64, burst, maxTracked int, logger *slog.Logger) (*RateLimiter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	limiters, err := cache.NewLRU[*rate.Limiter](maxTracked)
	if err != nil {
		return nil, err
	}
	return &RateLimiter{
		limiters: limiters,
		rps:      rate.Limit(requestsPerSecond),
		burst:    burst,
		logger:   logger.With("component", "rate-limiter"),
	}, nil
}

// Allow reports whether the subject may proceed. Concurrent first sight of
// a subject may briefly create two buckets; the loser is overwritten, which
// at worst grants a few extra tokens once.
func (r *RateLimiter) Allow(subject string) bool {
	if subject == "" {
		subject = "anon"
	}

	limiter, ok := r.limiters.Get(subject)
	if !ok {
		limiter = rate.NewLimiter(r.rps, r.burst)
		if _, err := r.limiters.Set(subject, limiter); err != nil {
			r.logger.Warn("Rate limiter store failed", "error", err)
			return true
		}
	}
	return limiter.Allow()
}

// Close releases the limiter cache.
func (r *RateLimiter) Close() error {
	return r.limiters.Close()
}
