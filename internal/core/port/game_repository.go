package port

import (
	"context"
	"time"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
)

// GameRepository persists game sessions and their queued cards.
type GameRepository interface {
	CreateSession(ctx context.Context, session domain.GameSession) error
	GetSession(ctx context.Context, sessionSub string) (*domain.GameSession, error)
	InsertSessionCards(ctx context.Context, sessionSub string, cards []domain.NewSessionCard) error
	// GetNextUnansweredCard returns the earliest inserted card without an answer.
	GetNextUnansweredCard(ctx context.Context, sessionSub, userSub string) (*domain.SessionCard, error)
	// AnswerCard records the answer only while the card is still unanswered and returns false otherwise.
	AnswerCard(ctx context.Context, cardID int64, answer string, isCorrect bool, at time.Time) (bool, error)
	GetLastAnsweredCard(ctx context.Context, sessionSub string) (*domain.SessionCard, error)
	CountUnansweredCards(ctx context.Context, sessionSub string) (int, error)
	TouchSession(ctx context.Context, sessionSub string, at time.Time) error
	// FinishSession moves an active session to finished and returns false when it was no longer active.
	FinishSession(ctx context.Context, sessionSub string, at time.Time) (bool, error)
	GetSessionSummary(ctx context.Context, sessionSub string) (*domain.SessionSummary, error)
	AbortStaleSessions(ctx context.Context, inactiveSince time.Time, at time.Time) (int, error)
}
