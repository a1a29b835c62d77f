package usecase

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	appLogger "github.com/ArsPalazzz/memora-api-sub000/internal/infra/logger"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/telemetry"
	"github.com/ArsPalazzz/memora-api-sub000/internal/repository"
)

const (
	defaultBatchLookback        = 3 * time.Hour
	defaultReviewCardsPerBatch  = 15
	defaultMaxParallelPushSends = 4

	reviewPushType   = "review_reminder"
	reviewPushAction = "open_review"
	reviewPushTitle  = "Time to review"

	tracerName = "github.com/ArsPalazzz/memora-api-sub000/internal/usecase"
)

// ReviewService batches due cards per user and announces them with push notifications.
type ReviewService struct {
	batches port.NotificationRepository
	cards   port.CardRepository
	tokens  port.FcmTokenRepository
	tx      port.Transactor
	sender  port.PushSender
	events  port.EventPublisher
	metrics *telemetry.ReviewMetrics
	tracer  trace.Tracer
	logger  *zap.Logger

	lookback         time.Duration
	cardsPerBatch    int
	maxParallelSends int

	now    func() time.Time
	newSub func() string
}

// NewReviewService constructs a ReviewService.
func NewReviewService(batches port.NotificationRepository, cards port.CardRepository, tokens port.FcmTokenRepository, tx port.Transactor, sender port.PushSender, events port.EventPublisher, logger *zap.Logger) *ReviewService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReviewService{
		batches:          batches,
		cards:            cards,
		tokens:           tokens,
		tx:               tx,
		sender:           sender,
		events:           events,
		tracer:           otel.Tracer(tracerName),
		logger:           logger,
		lookback:         defaultBatchLookback,
		cardsPerBatch:    defaultReviewCardsPerBatch,
		maxParallelSends: defaultMaxParallelPushSends,
		now:              func() time.Time { return time.Now().UTC() },
		newSub:           uuid.NewString,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *ReviewService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithSubGenerator overrides how batch identifiers are generated.
func (s *ReviewService) WithSubGenerator(gen func() string) *ReviewService {
	if gen != nil {
		s.newSub = gen
	}
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *ReviewService) WithMetrics(metrics *telemetry.ReviewMetrics) *ReviewService {
	s.metrics = metrics
	return s
}

// WithTracer replaces the global tracer.
func (s *ReviewService) WithTracer(tracer trace.Tracer) *ReviewService {
	if tracer != nil {
		s.tracer = tracer
	}
	return s
}

// WithLookback sets the window during which a user receives at most one batch.
func (s *ReviewService) WithLookback(lookback time.Duration) *ReviewService {
	if lookback > 0 {
		s.lookback = lookback
	}
	return s
}

// WithDefaultCardsPerBatch sets the batch size used when the user has no review setting.
func (s *ReviewService) WithDefaultCardsPerBatch(n int) *ReviewService {
	if n > 0 {
		s.cardsPerBatch = n
	}
	return s
}

// WithMaxParallelSends bounds concurrent push deliveries per user.
func (s *ReviewService) WithMaxParallelSends(n int) *ReviewService {
	if n > 0 {
		s.maxParallelSends = n
	}
	return s
}

// NotifyUser creates at most one review batch per lookback window for the user and pushes it to every active device.
// The batch is marked notified only when at least one delivery succeeds.
func (s *ReviewService) NotifyUser(ctx context.Context, userSub string, dueCount int) (result *domain.NotifyResult, err error) {
	ctx, span := s.tracer.Start(ctx, "ReviewService.NotifyUser", trace.WithAttributes(
		attribute.String("memora.user_sub", userSub),
		attribute.Int("memora.due_count", dueCount),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if result != nil {
			span.SetAttributes(
				attribute.Bool("memora.skipped", result.Skipped),
				attribute.Int("memora.sent", result.Sent),
				attribute.Int("memora.failed", result.Failed),
			)
		}
		span.End()
	}()

	if userSub == "" {
		return nil, ErrInvalidInput
	}

	result = &domain.NotifyResult{UserSub: userSub}
	now := s.now()
	since := now.Add(-s.lookback)

	recent, err := s.batches.ExistRecentBatch(ctx, userSub, since)
	if err != nil {
		return nil, fmt.Errorf("check recent batch: %w", err)
	}
	if recent {
		s.metrics.BatchSkipped()
		result.Skipped = true
		return result, nil
	}

	limit, err := s.batchSize(ctx, userSub)
	if err != nil {
		return nil, err
	}

	batch := domain.ReviewBatch{
		Sub:       s.newSub(),
		UserSub:   userSub,
		CreatedAt: now,
	}
	// batch row and cards commit together
	err = s.tx.WithinTx(ctx, func(repos port.TxRepositories) error {
		if err := repos.Notifications.CreateBatch(ctx, batch, since); err != nil {
			return fmt.Errorf("create batch: %w", err)
		}
		attached, err := repos.Notifications.AddCardsToBatch(ctx, batch.Sub, userSub, limit, now)
		if err != nil {
			return fmt.Errorf("add cards to batch: %w", err)
		}
		result.Attached = attached
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConflict) {
			s.metrics.BatchSkipped()
			result.Skipped = true
			return result, nil
		}
		return nil, err
	}
	s.metrics.BatchCreated()
	result.BatchSub = batch.Sub

	tokens, err := s.tokens.GetActiveFcmTokens(ctx, userSub)
	if err != nil {
		return nil, fmt.Errorf("get active tokens: %w", err)
	}
	if len(tokens) == 0 {
		s.logger.Debug("no active push tokens", zap.String("user_sub", userSub), zap.String("batch_sub", batch.Sub))
		return result, nil
	}

	results := s.dispatch(ctx, tokens, reviewMessage(batch.Sub, dueCount))

	var errs []error
	for _, res := range results {
		s.metrics.Push(res.Success)
		if res.Success {
			result.Sent++
			continue
		}
		result.Failed++
		s.logger.Warn("push delivery failed",
			zap.String("user_sub", userSub),
			zap.String("token", appLogger.MaskToken(res.Token)),
			zap.Bool("invalid_token", res.InvalidToken),
			zap.Error(res.Err),
		)
	}

	if result.Sent > 0 {
		notifiedAt := s.now()
		if err := s.batches.MarkBatchAsNotified(ctx, batch.Sub, notifiedAt); err != nil {
			errs = append(errs, fmt.Errorf("mark batch notified: %w", err))
		} else {
			s.publishBatchNotified(ctx, batch, dueCount, result, notifiedAt)
		}
	}

	for _, res := range results {
		if res.Success || !res.InvalidToken {
			continue
		}
		at := s.now()
		if err := s.tokens.DeactivateToken(ctx, res.Token, domain.TokenReasonInvalidToken, at); err != nil {
			errs = append(errs, fmt.Errorf("deactivate invalid token: %w", err))
			continue
		}
		result.Deactivated++
		s.metrics.TokenDeactivated(domain.TokenReasonInvalidToken)
		publishTokenDeactivated(ctx, s.events, s.logger, userSub, res.Token, domain.TokenReasonInvalidToken, at)
	}

	if len(errs) > 0 {
		return result, errors.Join(errs...)
	}
	return result, nil
}

func (s *ReviewService) batchSize(ctx context.Context, userSub string) (int, error) {
	settings, err := s.cards.GetReviewSettingsByUserSub(ctx, userSub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return s.cardsPerBatch, nil
		}
		return 0, fmt.Errorf("get review settings: %w", err)
	}
	if settings.CardsPerSession <= 0 {
		return s.cardsPerBatch, nil
	}
	return settings.CardsPerSession, nil
}

func (s *ReviewService) dispatch(ctx context.Context, tokens []domain.FcmToken, msg domain.PushMessage) []domain.PushResult {
	results := make([]domain.PushResult, len(tokens))

	var g errgroup.Group
	g.SetLimit(s.maxParallelSends)
	for i, token := range tokens {
		g.Go(func() error {
			res := s.sender.Send(ctx, token.Token, msg)
			res.Token = token.Token
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	return results
}

func (s *ReviewService) publishBatchNotified(ctx context.Context, batch domain.ReviewBatch, dueCount int, result *domain.NotifyResult, at time.Time) {
	if s.events == nil {
		return
	}
	event := domain.ReviewBatchNotifiedEvent{
		EventID:    uuid.NewString(),
		BatchSub:   batch.Sub,
		UserSub:    batch.UserSub,
		DueCount:   dueCount,
		CardCount:  result.Attached,
		Delivered:  result.Sent,
		Failed:     result.Failed,
		NotifiedAt: at,
	}
	if err := s.events.PublishReviewBatchNotified(ctx, event); err != nil {
		s.logger.Warn("failed to publish review batch notified", zap.String("batch_sub", batch.Sub), zap.Error(err))
	}
}

func reviewMessage(batchSub string, dueCount int) domain.PushMessage {
	body := "You have " + strconv.Itoa(dueCount) + " cards ready for review"
	if dueCount == 1 {
		body = "You have 1 card ready for review"
	}
	return domain.PushMessage{
		Title: reviewPushTitle,
		Body:  body,
		Data: map[string]string{
			"type":      reviewPushType,
			"batch_sub": batchSub,
			"action":    reviewPushAction,
		},
	}
}
