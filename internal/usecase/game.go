package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/infra/telemetry"
	"github.com/ArsPalazzz/memora-api-sub000/internal/repository"
)

var (
	// ErrSessionNotFound indicates that the requested game session does not exist.
	ErrSessionNotFound = errors.New("game session not found")
	// ErrSessionForbidden indicates that the session is not owned by the caller.
	ErrSessionForbidden = errors.New("game session not owned by user")
	// ErrSessionNotActive indicates that the session no longer accepts answers.
	ErrSessionNotActive = errors.New("game session is not active")
	// ErrSessionCompleted indicates that every card of the session has been answered.
	ErrSessionCompleted = errors.New("game session completed")
	// ErrCardNotFound indicates that no card matches the requested position in the session.
	ErrCardNotFound = errors.New("session card not found")
	// ErrCardAlreadyAnswered indicates that a concurrent request answered the card first.
	ErrCardAlreadyAnswered = errors.New("session card already answered")
	// ErrDeskNotFound indicates that the desk does not exist.
	ErrDeskNotFound = errors.New("desk not found")
	// ErrNoCardsToPlay indicates that the desk or batch has no cards to build a session from.
	ErrNoCardsToPlay = errors.New("no cards to play")
	// ErrBatchNotFound indicates that the review batch does not exist.
	ErrBatchNotFound = errors.New("review batch not found")
	// ErrBatchForbidden indicates that the review batch belongs to another user.
	ErrBatchForbidden = errors.New("review batch not owned by user")
	// ErrInvalidQuality indicates a quality grade outside the SM-2 range.
	ErrInvalidQuality = errors.New("quality must be between 0 and 5")
	// ErrInvalidInput indicates missing or malformed identifiers.
	ErrInvalidInput = errors.New("invalid input")
)

const (
	defaultDeskCardsPerSession = 20
	defaultSessionTTL          = 24 * time.Hour

	finishReasonCompleted = "completed"
	finishReasonExplicit  = "explicit"
)

// GameService drives the lifecycle of game and review sessions.
type GameService struct {
	games   port.GameRepository
	cards   port.CardRepository
	batches port.NotificationRepository
	tx      port.Transactor
	events  port.EventPublisher
	scorer  QualityScorer
	metrics *telemetry.GameMetrics
	logger  *zap.Logger

	defaultCardsPerSession int
	sessionTTL             time.Duration

	now    func() time.Time
	coin   func() bool
	newSub func() string
}

// NewGameService constructs a GameService.
func NewGameService(games port.GameRepository, cards port.CardRepository, batches port.NotificationRepository, tx port.Transactor, events port.EventPublisher, logger *zap.Logger) *GameService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GameService{
		games:                  games,
		cards:                  cards,
		batches:                batches,
		tx:                     tx,
		events:                 events,
		scorer:                 BinaryScorer{},
		logger:                 logger,
		defaultCardsPerSession: defaultDeskCardsPerSession,
		sessionTTL:             defaultSessionTTL,
		now:                    func() time.Time { return time.Now().UTC() },
		coin:                   func() bool { return rand.IntN(2) == 1 },
		newSub:                 uuid.NewString,
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *GameService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithCoin overrides the coin flip used by mixed orientation.
func (s *GameService) WithCoin(coin func() bool) *GameService {
	if coin != nil {
		s.coin = coin
	}
	return s
}

// WithSubGenerator overrides how session identifiers are generated.
func (s *GameService) WithSubGenerator(gen func() string) *GameService {
	if gen != nil {
		s.newSub = gen
	}
	return s
}

// WithScorer replaces the strategy deriving quality from an answered card.
func (s *GameService) WithScorer(scorer QualityScorer) *GameService {
	if scorer != nil {
		s.scorer = scorer
	}
	return s
}

// WithMetrics attaches Prometheus collectors.
func (s *GameService) WithMetrics(metrics *telemetry.GameMetrics) *GameService {
	s.metrics = metrics
	return s
}

// WithDefaultCardsPerSession sets the session size used when a desk has no explicit setting.
func (s *GameService) WithDefaultCardsPerSession(n int) *GameService {
	if n > 0 {
		s.defaultCardsPerSession = n
	}
	return s
}

// WithSessionTTL sets the inactivity period after which active sessions are aborted.
func (s *GameService) WithSessionTTL(ttl time.Duration) *GameService {
	if ttl > 0 {
		s.sessionTTL = ttl
	}
	return s
}

// StartGameSession creates a desk session and queues its cards in one transaction.
func (s *GameService) StartGameSession(ctx context.Context, userSub, deskSub string) (string, error) {
	userSub = strings.TrimSpace(userSub)
	deskSub = strings.TrimSpace(deskSub)
	if userSub == "" || deskSub == "" {
		return "", ErrInvalidInput
	}

	exists, err := s.cards.DeskExists(ctx, deskSub)
	if err != nil {
		return "", fmt.Errorf("check desk: %w", err)
	}
	if !exists {
		return "", ErrDeskNotFound
	}

	now := s.now()
	session := domain.GameSession{
		Sub:            s.newSub(),
		UserSub:        userSub,
		Kind:           domain.SessionKindDesk,
		DeskSub:        &deskSub,
		Status:         domain.SessionStatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	err = s.tx.WithinTx(ctx, func(repos port.TxRepositories) error {
		if err := repos.Games.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}

		settings, err := repos.Cards.GetDeskSettings(ctx, deskSub)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return ErrDeskNotFound
			}
			return fmt.Errorf("get desk settings: %w", err)
		}

		limit := settings.CardsPerSession
		if limit <= 0 {
			limit = s.defaultCardsPerSession
		}

		cardSubs, err := repos.Cards.GetCardSubsForPlay(ctx, deskSub, limit)
		if err != nil {
			return fmt.Errorf("select cards: %w", err)
		}
		if len(cardSubs) == 0 {
			return ErrNoCardsToPlay
		}

		if err := repos.Games.InsertSessionCards(ctx, session.Sub, s.queue(cardSubs, settings.Orientation)); err != nil {
			return fmt.Errorf("insert session cards: %w", err)
		}

		if err := repos.Cards.UpdateLastTimePlayedDesk(ctx, deskSub, now); err != nil {
			return fmt.Errorf("update desk last played: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.metrics.SessionStarted(string(domain.SessionKindDesk))
	s.logger.Info("game session started",
		zap.String("session_sub", session.Sub),
		zap.String("user_sub", userSub),
		zap.String("desk_sub", deskSub),
	)
	return session.Sub, nil
}

// StartReviewSession creates a review session over the cards of a batch owned by the caller.
func (s *GameService) StartReviewSession(ctx context.Context, userSub, batchSub string) (string, error) {
	userSub = strings.TrimSpace(userSub)
	batchSub = strings.TrimSpace(batchSub)
	if userSub == "" || batchSub == "" {
		return "", ErrInvalidInput
	}

	batch, err := s.batches.GetBatch(ctx, batchSub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", ErrBatchNotFound
		}
		return "", fmt.Errorf("get batch: %w", err)
	}
	if batch.UserSub != userSub {
		return "", ErrBatchForbidden
	}

	cardSubs, err := s.batches.ListBatchCardSubs(ctx, batchSub)
	if err != nil {
		return "", fmt.Errorf("list batch cards: %w", err)
	}
	if len(cardSubs) == 0 {
		return "", ErrNoCardsToPlay
	}

	orientation := domain.OrientationNormal
	settings, err := s.cards.GetReviewSettingsByUserSub(ctx, userSub)
	switch {
	case err == nil:
		if settings.Orientation != "" {
			orientation = settings.Orientation
		}
	case errors.Is(err, repository.ErrNotFound):
	default:
		return "", fmt.Errorf("get review settings: %w", err)
	}

	now := s.now()
	session := domain.GameSession{
		Sub:            s.newSub(),
		UserSub:        userSub,
		Kind:           domain.SessionKindReview,
		BatchSub:       &batchSub,
		Status:         domain.SessionStatusActive,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	err = s.tx.WithinTx(ctx, func(repos port.TxRepositories) error {
		if err := repos.Games.CreateSession(ctx, session); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := repos.Games.InsertSessionCards(ctx, session.Sub, s.queue(cardSubs, orientation)); err != nil {
			return fmt.Errorf("insert session cards: %w", err)
		}
		return nil
	})
	if err != nil {
		return "", err
	}

	s.metrics.SessionStarted(string(domain.SessionKindReview))
	s.logger.Info("review session started",
		zap.String("session_sub", session.Sub),
		zap.String("user_sub", userSub),
		zap.String("batch_sub", batchSub),
		zap.Int("cards", len(cardSubs)),
	)
	return session.Sub, nil
}

// GetNextCard returns the earliest unanswered card of the session.
func (s *GameService) GetNextCard(ctx context.Context, userSub, sessionSub string) (*domain.SessionCard, error) {
	session, err := s.ownedSession(ctx, userSub, sessionSub)
	if err != nil {
		return nil, err
	}

	card, err := s.games.GetNextUnansweredCard(ctx, session.Sub, session.UserSub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionCompleted
		}
		return nil, fmt.Errorf("get next card: %w", err)
	}
	if !session.IsActive() {
		return nil, ErrSessionNotActive
	}
	return card, nil
}

// AnswerCard grades the answer for the next unanswered card and finishes the session once the queue is empty.
func (s *GameService) AnswerCard(ctx context.Context, userSub, sessionSub, answer string) (*domain.AnswerResult, error) {
	session, err := s.activeSession(ctx, userSub, sessionSub)
	if err != nil {
		return nil, err
	}

	card, err := s.games.GetNextUnansweredCard(ctx, session.Sub, session.UserSub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("get next card: %w", err)
	}

	variants := card.CorrectVariants()
	correct := MatchAnswer(answer, variants)
	now := s.now()

	recorded, err := s.games.AnswerCard(ctx, card.ID, answer, correct, now)
	if err != nil {
		return nil, fmt.Errorf("record answer: %w", err)
	}
	if !recorded {
		return nil, ErrCardAlreadyAnswered
	}
	s.metrics.Answer(correct)

	if err := s.games.TouchSession(ctx, session.Sub, now); err != nil {
		s.logger.Warn("failed to bump session activity", zap.String("session_sub", session.Sub), zap.Error(err))
	}

	remaining, err := s.games.CountUnansweredCards(ctx, session.Sub)
	if err != nil {
		return nil, fmt.Errorf("count unanswered cards: %w", err)
	}

	result := &domain.AnswerResult{
		IsCorrect:       correct,
		CorrectVariants: variants,
	}
	if remaining > 0 {
		return result, nil
	}

	if err := s.markFinished(ctx, session.Sub, finishReasonCompleted); err != nil {
		if !errors.Is(err, ErrSessionNotActive) {
			return nil, err
		}
	} else {
		s.announceFinished(ctx, *session, finishReasonCompleted)
	}
	result.Finished = true
	return result, nil
}

// GradeCard applies a spaced-repetition grade to the most recently answered card of the session.
// A nil quality is derived from the answer by the configured scorer.
func (s *GameService) GradeCard(ctx context.Context, userSub, sessionSub string, quality *int) (*domain.SrsState, error) {
	if quality != nil && !domain.ValidQuality(*quality) {
		return nil, ErrInvalidQuality
	}

	session, err := s.activeSession(ctx, userSub, sessionSub)
	if err != nil {
		return nil, err
	}

	card, err := s.games.GetLastAnsweredCard(ctx, session.Sub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("get last answered card: %w", err)
	}

	var q int
	if quality != nil {
		q = *quality
	} else {
		q = s.scorer.Score(*card)
		if !domain.ValidQuality(q) {
			return nil, ErrInvalidQuality
		}
	}

	state, err := s.cards.UpdateSrs(ctx, session.UserSub, card.CardSub, q, s.now())
	if err != nil {
		return nil, fmt.Errorf("update srs: %w", err)
	}
	return state, nil
}

// FinishGameSession finishes an active session on request and returns its summary.
func (s *GameService) FinishGameSession(ctx context.Context, userSub, sessionSub string) (*domain.SessionSummary, error) {
	session, err := s.activeSession(ctx, userSub, sessionSub)
	if err != nil {
		return nil, err
	}

	if err := s.markFinished(ctx, session.Sub, finishReasonExplicit); err != nil {
		return nil, err
	}

	summary, err := s.games.GetSessionSummary(ctx, session.Sub)
	if err != nil {
		return nil, fmt.Errorf("get session summary: %w", err)
	}
	s.publishFinished(ctx, *session, finishReasonExplicit, *summary)
	return summary, nil
}

// ReapStaleSessions aborts active sessions idle for longer than the configured TTL.
func (s *GameService) ReapStaleSessions(ctx context.Context) (int, error) {
	now := s.now()
	reaped, err := s.games.AbortStaleSessions(ctx, now.Add(-s.sessionTTL), now)
	if err != nil {
		return 0, fmt.Errorf("abort stale sessions: %w", err)
	}
	s.metrics.Reaped(reaped)
	if reaped > 0 {
		s.logger.Info("stale game sessions aborted", zap.Int("count", reaped), zap.Duration("ttl", s.sessionTTL))
	}
	return reaped, nil
}

func (s *GameService) queue(cardSubs []string, orientation domain.Orientation) []domain.NewSessionCard {
	cards := make([]domain.NewSessionCard, 0, len(cardSubs))
	for _, cardSub := range cardSubs {
		cards = append(cards, domain.NewSessionCard{
			CardSub:   cardSub,
			Direction: ResolveDirection(orientation, s.coin),
		})
	}
	return cards
}

func (s *GameService) ownedSession(ctx context.Context, userSub, sessionSub string) (*domain.GameSession, error) {
	userSub = strings.TrimSpace(userSub)
	sessionSub = strings.TrimSpace(sessionSub)
	if userSub == "" || sessionSub == "" {
		return nil, ErrInvalidInput
	}

	session, err := s.games.GetSession(ctx, sessionSub)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !session.OwnedBy(userSub) {
		return nil, ErrSessionForbidden
	}
	return session, nil
}

func (s *GameService) activeSession(ctx context.Context, userSub, sessionSub string) (*domain.GameSession, error) {
	session, err := s.ownedSession(ctx, userSub, sessionSub)
	if err != nil {
		return nil, err
	}
	if !session.IsActive() {
		return nil, ErrSessionNotActive
	}
	return session, nil
}

func (s *GameService) markFinished(ctx context.Context, sessionSub, reason string) error {
	finished, err := s.games.FinishSession(ctx, sessionSub, s.now())
	if err != nil {
		return fmt.Errorf("finish session: %w", err)
	}
	if !finished {
		return ErrSessionNotActive
	}
	s.metrics.SessionFinished(reason)
	return nil
}

func (s *GameService) announceFinished(ctx context.Context, session domain.GameSession, reason string) {
	summary, err := s.games.GetSessionSummary(ctx, session.Sub)
	if err != nil {
		s.logger.Warn("failed to load session summary", zap.String("session_sub", session.Sub), zap.Error(err))
		return
	}
	s.publishFinished(ctx, session, reason, *summary)
}

func (s *GameService) publishFinished(ctx context.Context, session domain.GameSession, reason string, summary domain.SessionSummary) {
	if s.events == nil {
		return
	}
	finishedAt := s.now()
	if summary.FinishedAt != nil {
		finishedAt = *summary.FinishedAt
	}
	event := domain.GameSessionFinishedEvent{
		EventID:    uuid.NewString(),
		SessionSub: session.Sub,
		UserSub:    session.UserSub,
		Kind:       session.Kind,
		Reason:     reason,
		Total:      summary.Total,
		Answered:   summary.Answered,
		Correct:    summary.Correct,
		FinishedAt: finishedAt,
	}
	if err := s.events.PublishGameSessionFinished(ctx, event); err != nil {
		s.logger.Warn("failed to publish game session finished", zap.String("session_sub", session.Sub), zap.Error(err))
	}
}
