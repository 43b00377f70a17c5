package transport

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/lamim/remexec/internal/metrics"
)

// newLimiter builds a client-side limiter from a requests-per-minute budget.
// Returns nil when rpm is 0, meaning no throttling.
func newLimiter(requestsPerMinute int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	rps := float64(requestsPerMinute) / 60.0
	burst := max(1, requestsPerMinute/5)
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// waitLimiter blocks until the limiter allows the next request, respecting
// the context deadline.
func waitLimiter(ctx context.Context, limiter *rate.Limiter) error {
	if limiter == nil {
		return nil
	}
	start := time.Now()
	err := limiter.Wait(ctx)
	metrics.RecordRateLimiterWait(time.Since(start))
	return err
}
