package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
)

const rateLimitProblemType = "https://memora.app/problems/too-many-requests"

// IdentifierFunc extracts the key a limit is scoped to.
type IdentifierFunc func(*gin.Context) (string, bool)

// RateLimitRule is a sliding-window limit for one identifier.
type RateLimitRule struct {
	Name       string
	Limit      int
	Window     time.Duration
	Identifier IdentifierFunc
}

// RateLimiter enforces RateLimitRules against a shared attempt store.
type RateLimiter struct {
	store  port.RateLimitStore
	logger *zap.Logger
	now    func() time.Time
}

type decision struct {
	allowed   bool
	limit     int
	remaining int
	reset     time.Time
	retry     time.Duration
}

// ProblemDetails is the RFC 9457 body returned with 429 responses.
type ProblemDetails struct {
	Type       string `json:"type"`
	Title      string `json:"title"`
	Status     int    `json:"status"`
	Detail     string `json:"detail"`
	Instance   string `json:"instance"`
	RetryAfter int    `json:"retry_after"`
	TraceID    string `json:"trace_id,omitempty"`
}

func NewRateLimiter(store port.RateLimitStore, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimiter{store: store, logger: logger, now: time.Now}
}

func (rl *RateLimiter) WithClock(now func() time.Time) *RateLimiter {
	if now != nil {
		rl.now = now
	}
	return rl
}

// UserSubIdentifier scopes limits to the authenticated user. Must run after RequireAuth.
func UserSubIdentifier() IdentifierFunc {
	return func(c *gin.Context) (string, bool) {
		sub, ok := GetAuthenticatedUserSub(c)
		return sub, ok && sub != ""
	}
}

// Limit returns a middleware enforcing rule. Store failures let the request through.
func (rl *RateLimiter) Limit(rule RateLimitRule) gin.HandlerFunc {
	if rule.Name == "" {
		rule.Name = "default"
	}
	if rl.store == nil || rule.Identifier == nil || rule.Limit <= 0 || rule.Window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	return func(c *gin.Context) {
		identifier, ok := rule.Identifier(c)
		if !ok {
			c.Next()
			return
		}

		d, err := rl.check(c, rule, rule.Name+":"+identifier)
		if err != nil {
			rl.logger.Warn("rate limit check failed", zap.String("rule", rule.Name), zap.Error(err))
			c.Next()
			return
		}

		writeRateLimitHeaders(c, d)
		if !d.allowed {
			rl.reject(c, d)
			return
		}
		c.Next()
	}
}

func (rl *RateLimiter) check(c *gin.Context, rule RateLimitRule, key string) (decision, error) {
	ctx := c.Request.Context()
	now := rl.now()

	if err := rl.store.TrimWindow(ctx, key, rule.Window, now); err != nil {
		return decision{}, err
	}
	count, err := rl.store.CountAttempts(ctx, key, rule.Window, now)
	if err != nil {
		return decision{}, err
	}
	oldest, found, err := rl.store.OldestAttempt(ctx, key, rule.Window, now)
	if err != nil {
		return decision{}, err
	}

	d := decision{allowed: true, limit: rule.Limit, reset: now.Add(rule.Window)}
	if found {
		d.reset = oldest.Add(rule.Window)
	}
	if d.retry = d.reset.Sub(now); d.retry < 0 {
		d.retry = 0
	}

	if count >= rule.Limit {
		d.allowed = false
		return d, nil
	}
	if err := rl.store.RecordAttempt(ctx, key, now); err != nil {
		return decision{}, err
	}
	d.remaining = rule.Limit - count - 1
	return d, nil
}

func retrySeconds(d time.Duration) int {
	return int(math.Ceil(d.Seconds()))
}

func writeRateLimitHeaders(c *gin.Context, d decision) {
	h := c.Writer.Header()
	h.Set("X-RateLimit-Limit", strconv.Itoa(d.limit))
	h.Set("X-RateLimit-Remaining", strconv.Itoa(d.remaining))
	h.Set("X-RateLimit-Reset", strconv.FormatInt(d.reset.Unix(), 10))
	if !d.allowed {
		h.Set("Retry-After", strconv.Itoa(retrySeconds(d.retry)))
	}
}

func (rl *RateLimiter) reject(c *gin.Context, d decision) {
	seconds := retrySeconds(d.retry)
	instance := c.FullPath()
	if instance == "" {
		instance = c.Request.URL.Path
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, ProblemDetails{
		Type:       rateLimitProblemType,
		Title:      "Too Many Requests",
		Status:     http.StatusTooManyRequests,
		Detail:     fmt.Sprintf("Too many answers. Try again in %d seconds.", seconds),
		Instance:   instance,
		RetryAfter: seconds,
		TraceID:    GetTraceID(c),
	})
}
