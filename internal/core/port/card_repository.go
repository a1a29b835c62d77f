package port

import (
	"context"
	"time"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
)

// CardRepository exposes the desk, card and spaced-repetition data the core reads.
type CardRepository interface {
	DeskExists(ctx context.Context, deskSub string) (bool, error)
	GetDeskSettings(ctx context.Context, deskSub string) (*domain.DeskSettings, error)
	GetCardSubsForPlay(ctx context.Context, deskSub string, limit int) ([]string, error)
	UpdateLastTimePlayedDesk(ctx context.Context, deskSub string, at time.Time) error
	GetUsersWithDueCards(ctx context.Context, minDue int, at time.Time) ([]domain.DueUser, error)
	GetReviewSettingsByUserSub(ctx context.Context, userSub string) (*domain.ReviewSettings, error)
	// UpdateSrs applies one grading event to the user's state for the card.
	UpdateSrs(ctx context.Context, userSub, cardSub string, quality int, at time.Time) (*domain.SrsState, error)
}
