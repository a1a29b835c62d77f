package port

import (
	"context"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishGameSessionFinished(ctx context.Context, event domain.GameSessionFinishedEvent) error
	PublishReviewBatchNotified(ctx context.Context, event domain.ReviewBatchNotifiedEvent) error
	PublishFcmTokenDeactivated(ctx context.Context, event domain.FcmTokenDeactivatedEvent) error
}
