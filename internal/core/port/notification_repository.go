package port

import (
	"context"
	"time"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
)

// NotificationRepository stores review batches and their cards.
type NotificationRepository interface {
	ExistRecentBatch(ctx context.Context, userSub string, since time.Time) (bool, error)
	// CreateBatch inserts a batch unless one was created since the supplied instant.
	CreateBatch(ctx context.Context, batch domain.ReviewBatch, since time.Time) error
	AddCardsToBatch(ctx context.Context, batchSub, userSub string, limit int, at time.Time) (int, error)
	MarkBatchAsNotified(ctx context.Context, batchSub string, at time.Time) error
	GetBatch(ctx context.Context, batchSub string) (*domain.ReviewBatch, error)
	ListBatchCardSubs(ctx context.Context, batchSub string) ([]string, error)
}

// FcmTokenRepository stores device push tokens.
type FcmTokenRepository interface {
	UpsertToken(ctx context.Context, token domain.FcmToken) error
	// GetActiveFcmTokens lists active tokens newest first.
	GetActiveFcmTokens(ctx context.Context, userSub string) ([]domain.FcmToken, error)
	DeactivateToken(ctx context.Context, token, reason string, at time.Time) error
	GetToken(ctx context.Context, token string) (*domain.FcmToken, error)
}
