package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
)

var errInvalidWindow = errors.New("rate limit window must be positive")

// AttemptStoreConfig scopes the keys written by AttemptStore.
type AttemptStoreConfig struct {
	KeyPrefix string
	// TTL bounds the lifetime of an idle key. Zero leaves keys without expiry.
	TTL time.Duration
}

// AttemptStore keeps answer attempts per identifier in Redis sorted sets scored by unix nanoseconds.
type AttemptStore struct {
	client redis.Cmdable
	cfg    AttemptStoreConfig
	seq    atomic.Uint64
}

// NewAttemptStore constructs a store over any go-redis client.
func NewAttemptStore(client redis.Cmdable, cfg AttemptStoreConfig) *AttemptStore {
	return &AttemptStore{client: client, cfg: cfg}
}

// RecordAttempt adds an attempt at the supplied instant and refreshes the key expiry in one round trip.
func (s *AttemptStore) RecordAttempt(ctx context.Context, identifier string, at time.Time) error {
	key := s.key(identifier)
	score := at.UnixNano()
	// two attempts within the same nanosecond must not collapse into one member
	member := strconv.FormatInt(score, 10) + "-" + strconv.FormatUint(s.seq.Add(1), 10)

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, redis.Z{Score: float64(score), Member: member})
		if s.cfg.TTL > 0 {
			pipe.PExpire(ctx, key, s.cfg.TTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// CountAttempts counts attempts inside (reference-window, reference].
func (s *AttemptStore) CountAttempts(ctx context.Context, identifier string, window time.Duration, reference time.Time) (int, error) {
	if window <= 0 {
		return 0, errInvalidWindow
	}
	lower, upper := windowBounds(window, reference)
	count, err := s.client.ZCount(ctx, s.key(identifier), lower, upper).Result()
	if err != nil {
		return 0, fmt.Errorf("count attempts: %w", err)
	}
	return int(count), nil
}

// TrimWindow drops attempts that fell out of the window.
func (s *AttemptStore) TrimWindow(ctx context.Context, identifier string, window time.Duration, reference time.Time) error {
	if window <= 0 {
		return errInvalidWindow
	}
	threshold := strconv.FormatInt(reference.Add(-window).UnixNano(), 10)
	if err := s.client.ZRemRangeByScore(ctx, s.key(identifier), "-inf", threshold).Err(); err != nil {
		return fmt.Errorf("trim attempts: %w", err)
	}
	return nil
}

// OldestAttempt returns the earliest attempt still inside the window.
func (s *AttemptStore) OldestAttempt(ctx context.Context, identifier string, window time.Duration, reference time.Time) (time.Time, bool, error) {
	if window <= 0 {
		return time.Time{}, false, errInvalidWindow
	}
	lower, upper := windowBounds(window, reference)
	entries, err := s.client.ZRangeByScoreWithScores(ctx, s.key(identifier), &redis.ZRangeBy{
		Min:   lower,
		Max:   upper,
		Count: 1,
	}).Result()
	if err != nil {
		return time.Time{}, false, fmt.Errorf("oldest attempt: %w", err)
	}
	if len(entries) == 0 {
		return time.Time{}, false, nil
	}
	return time.Unix(0, int64(entries[0].Score)).UTC(), true, nil
}

func (s *AttemptStore) key(identifier string) string {
	prefix := strings.TrimSuffix(s.cfg.KeyPrefix, ":")
	if prefix == "" {
		return identifier
	}
	return prefix + ":" + identifier
}

func windowBounds(window time.Duration, reference time.Time) (string, string) {
	return "(" + strconv.FormatInt(reference.Add(-window).UnixNano(), 10),
		strconv.FormatInt(reference.UnixNano(), 10)
}

var _ port.RateLimitStore = (*AttemptStore)(nil)
