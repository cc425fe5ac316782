package ratelimit

import (
	"context"
	"log"
	"time"
)

// Store tracks per-client request counts in the current fixed window.
// Implementations must make the increment-and-read atomic so concurrent
// admits for the same client cannot over-admit past the threshold.
type Store interface {
	// Incr records one request for clientID and returns the total count in
	// the current window, including this request. A fresh window starts at
	// the first request after the previous window elapsed.
	Incr(ctx context.Context, clientID string, window time.Duration) (int, error)
}

// Limiter admits or rejects requests using a fixed-window counter.
type Limiter struct {
	store  Store
	limit  int
	window time.Duration
	logger *log.Logger
}

func New(store Store, limit int, window time.Duration) *Limiter {
	if limit <= 0 {
		limit = 30
	}
	if window <= 0 {
		window = time.Minute
	}
	return &Limiter{
		store:  store,
		limit:  limit,
		window: window,
		logger: log.New(log.Writer(), "[RATELIMIT] ", log.LstdFlags),
	}
}

// Admit reports whether the client may proceed and how many admits remain
// in the current window. Denials are structured outcomes, not errors; err
// is only non-nil when the backing store fails.
func (l *Limiter) Admit(ctx context.Context, clientID string) (bool, int, error) {
	count, err := l.store.Incr(ctx, clientID, l.window)
	if err != nil {
		return false, 0, err
	}
	if count > l.limit {
		l.logger.Printf("Security Event: RATE_LIMIT_EXCEEDED - client %s exceeded rate limit (severity=WARNING)", clientID)
		return false, 0, nil
	}
	return true, l.limit - count, nil
}

// Limit returns the configured admits-per-window threshold.
func (l *Limiter) Limit() int { return l.limit }
