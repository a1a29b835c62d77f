package port

import (
	"context"
	"time"
)

// RateLimitStore records attempts per key for sliding-window limits. Windows end at now and reach back window.
type RateLimitStore interface {
	// TrimWindow drops attempts older than the window.
	TrimWindow(ctx context.Context, key string, window time.Duration, now time.Time) error
	CountAttempts(ctx context.Context, key string, window time.Duration, now time.Time) (int, error)
	RecordAttempt(ctx context.Context, key string, at time.Time) error
	// OldestAttempt reports false when the window holds no attempts.
	OldestAttempt(ctx context.Context, key string, window time.Duration, now time.Time) (time.Time, bool, error)
}
