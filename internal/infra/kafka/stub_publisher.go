package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
)

// StubPublisher logs events instead of sending them. It is used when Kafka is disabled.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userSub string, at time.Time, fields ...zap.Field) {
	base := []zap.Field{
		zap.String("event_type", eventType),
		zap.String("user_sub", userSub),
		zap.Time("timestamp", at.UTC()),
	}
	p.logger.Info("event published", append(base, fields...)...)
}

// PublishGameSessionFinished logs game_session.finished events.
func (p *StubPublisher) PublishGameSessionFinished(_ context.Context, event domain.GameSessionFinishedEvent) error {
	p.logEvent(EventGameSessionFinished, event.UserSub, event.FinishedAt,
		zap.String("session_sub", event.SessionSub),
		zap.String("reason", event.Reason),
		zap.Int("answered", event.Answered),
		zap.Int("correct", event.Correct),
	)
	return nil
}

// PublishReviewBatchNotified logs review_batch.notified events.
func (p *StubPublisher) PublishReviewBatchNotified(_ context.Context, event domain.ReviewBatchNotifiedEvent) error {
	p.logEvent(EventReviewBatchNotified, event.UserSub, event.NotifiedAt,
		zap.String("batch_sub", event.BatchSub),
		zap.Int("delivered", event.Delivered),
		zap.Int("failed", event.Failed),
	)
	return nil
}

// PublishFcmTokenDeactivated logs fcm_token.deactivated events.
func (p *StubPublisher) PublishFcmTokenDeactivated(_ context.Context, event domain.FcmTokenDeactivatedEvent) error {
	p.logEvent(EventFcmTokenDeactivated, event.UserSub, event.DeactivatedAt,
		zap.String("token", event.TokenSuffix),
		zap.String("reason", event.Reason),
	)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
