package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/repository"
)

var sessionColumns = []string{
	"sub",
	"user_sub",
	"kind",
	"desk_sub",
	"batch_sub",
	"status",
	"created_at",
	"finished_at",
	"last_activity_at",
}

var sessionCardColumns = []string{
	"gsc.id",
	"gsc.session_sub",
	"gsc.card_sub",
	"gsc.position",
	"gsc.direction",
	"c.front_variants",
	"c.back_variants",
	"gsc.answer",
	"gsc.is_correct",
	"gsc.answered_at",
}

// GameRepository implements port.GameRepository backed by PostgreSQL.
type GameRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewGameRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewGameRepository(exec pgExecutor) *GameRepository {
	return &GameRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *GameRepository) WithTx(tx pgx.Tx) *GameRepository {
	if tx == nil {
		return r
	}
	return &GameRepository{exec: tx, builder: r.builder}
}

// CreateSession persists a new game session.
func (r *GameRepository) CreateSession(ctx context.Context, session domain.GameSession) error {
	stmt, args, err := r.builder.Insert(table("game_sessions")).
		Columns(sessionColumns...).
		Values(
			session.Sub,
			session.UserSub,
			string(session.Kind),
			optionalString(session.DeskSub),
			optionalString(session.BatchSub),
			string(session.Status),
			session.CreatedAt.UTC(),
			nil,
			session.LastActivityAt.UTC(),
		).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert game session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert game session: %w", err)
	}
	return nil
}

// GetSession fetches a session by its sub.
func (r *GameRepository) GetSession(ctx context.Context, sessionSub string) (*domain.GameSession, error) {
	stmt, args, err := r.builder.Select(sessionColumns...).
		From(table("game_sessions")).
		Where(squirrel.Eq{"sub": sessionSub}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select game session sql: %w", err)
	}

	var (
		session    domain.GameSession
		kind       string
		status     string
		deskSub    sql.NullString
		batchSub   sql.NullString
		finishedAt sql.NullTime
	)
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&session.Sub,
		&session.UserSub,
		&kind,
		&deskSub,
		&batchSub,
		&status,
		&session.CreatedAt,
		&finishedAt,
		&session.LastActivityAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan game session: %w", err)
	}

	session.Kind = domain.SessionKind(kind)
	session.Status = domain.SessionStatus(status)
	session.DeskSub = nullableStringPtr(deskSub)
	session.BatchSub = nullableStringPtr(batchSub)
	session.FinishedAt = nullableTimePtr(finishedAt)
	session.CreatedAt = session.CreatedAt.UTC()
	session.LastActivityAt = session.LastActivityAt.UTC()
	return &session, nil
}

// InsertSessionCards appends cards to the session queue preserving slice order.
func (r *GameRepository) InsertSessionCards(ctx context.Context, sessionSub string, cards []domain.NewSessionCard) error {
	if len(cards) == 0 {
		return nil
	}

	query := r.builder.Insert(table("game_session_cards")).
		Columns("session_sub", "card_sub", "position", "direction")
	for i, card := range cards {
		query = query.Values(sessionSub, card.CardSub, i+1, string(card.Direction))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert session cards sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session cards: %w", err)
	}
	return nil
}

// GetNextUnansweredCard returns the lowest positioned unanswered card of a session owned by userSub.
func (r *GameRepository) GetNextUnansweredCard(ctx context.Context, sessionSub, userSub string) (*domain.SessionCard, error) {
	stmt, args, err := r.builder.Select(sessionCardColumns...).
		From(table("game_session_cards") + " AS gsc").
		Join(table("game_sessions") + " AS gs ON gs.sub = gsc.session_sub").
		Join(table("cards") + " AS c ON c.sub = gsc.card_sub").
		Where(squirrel.Eq{"gsc.session_sub": sessionSub}).
		Where(squirrel.Eq{"gs.user_sub": userSub}).
		Where("gsc.answered_at IS NULL").
		OrderBy("gsc.position ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select next card sql: %w", err)
	}

	return r.querySessionCard(ctx, stmt, args)
}

// GetLastAnsweredCard returns the most recently answered card of the session.
func (r *GameRepository) GetLastAnsweredCard(ctx context.Context, sessionSub string) (*domain.SessionCard, error) {
	stmt, args, err := r.builder.Select(sessionCardColumns...).
		From(table("game_session_cards") + " AS gsc").
		Join(table("cards") + " AS c ON c.sub = gsc.card_sub").
		Where(squirrel.Eq{"gsc.session_sub": sessionSub}).
		Where("gsc.answered_at IS NOT NULL").
		OrderBy("gsc.answered_at DESC", "gsc.position DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select last answered card sql: %w", err)
	}

	return r.querySessionCard(ctx, stmt, args)
}

// AnswerCard writes the answer only if the card is still unanswered.
func (r *GameRepository) AnswerCard(ctx context.Context, cardID int64, answer string, isCorrect bool, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update(table("game_session_cards")).
		Set("answer", answer).
		Set("is_correct", isCorrect).
		Set("answered_at", at.UTC()).
		Where(squirrel.Eq{"id": cardID}).
		Where("answered_at IS NULL").
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build answer card sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("answer card: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// CountUnansweredCards counts queued cards without an answer.
func (r *GameRepository) CountUnansweredCards(ctx context.Context, sessionSub string) (int, error) {
	stmt, args, err := r.builder.Select("COUNT(*)").
		From(table("game_session_cards")).
		Where(squirrel.Eq{"session_sub": sessionSub}).
		Where("answered_at IS NULL").
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build count unanswered sql: %w", err)
	}

	var count int
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&count); err != nil {
		return 0, fmt.Errorf("count unanswered cards: %w", err)
	}
	return count, nil
}

// TouchSession records player activity on the session.
func (r *GameRepository) TouchSession(ctx context.Context, sessionSub string, at time.Time) error {
	stmt, args, err := r.builder.Update(table("game_sessions")).
		Set("last_activity_at", at.UTC()).
		Where(squirrel.Eq{"sub": sessionSub}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build touch session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// FinishSession moves an active session to finished.
func (r *GameRepository) FinishSession(ctx context.Context, sessionSub string, at time.Time) (bool, error) {
	return r.transition(ctx, sessionSub, domain.SessionStatusFinished, at)
}

func (r *GameRepository) transition(ctx context.Context, sessionSub string, to domain.SessionStatus, at time.Time) (bool, error) {
	stmt, args, err := r.builder.Update(table("game_sessions")).
		Set("status", string(to)).
		Set("finished_at", at.UTC()).
		Where(squirrel.Eq{"sub": sessionSub}).
		Where(squirrel.Eq{"status": string(domain.SessionStatusActive)}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build session transition sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("transition session to %s: %w", to, err)
	}
	return tag.RowsAffected() > 0, nil
}

// GetSessionSummary aggregates the answers recorded for a session.
func (r *GameRepository) GetSessionSummary(ctx context.Context, sessionSub string) (*domain.SessionSummary, error) {
	stmt, args, err := r.builder.Select(
		"gs.sub",
		"gs.status",
		"gs.finished_at",
		"COUNT(gsc.id)",
		"COUNT(gsc.answered_at)",
		"COUNT(gsc.id) FILTER (WHERE gsc.is_correct)",
	).
		From(table("game_sessions") + " AS gs").
		LeftJoin(table("game_session_cards") + " AS gsc ON gsc.session_sub = gs.sub").
		Where(squirrel.Eq{"gs.sub": sessionSub}).
		GroupBy("gs.sub", "gs.status", "gs.finished_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build session summary sql: %w", err)
	}

	var (
		summary    domain.SessionSummary
		status     string
		finishedAt sql.NullTime
	)
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&summary.SessionSub,
		&status,
		&finishedAt,
		&summary.Total,
		&summary.Answered,
		&summary.Correct,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session summary: %w", err)
	}
	summary.Status = domain.SessionStatus(status)
	summary.FinishedAt = nullableTimePtr(finishedAt)
	return &summary, nil
}

// AbortStaleSessions aborts active sessions with no activity since inactiveSince.
func (r *GameRepository) AbortStaleSessions(ctx context.Context, inactiveSince time.Time, at time.Time) (int, error) {
	stmt, args, err := r.builder.Update(table("game_sessions")).
		Set("status", string(domain.SessionStatusAborted)).
		Set("finished_at", at.UTC()).
		Where(squirrel.Eq{"status": string(domain.SessionStatusActive)}).
		Where(squirrel.Lt{"last_activity_at": inactiveSince.UTC()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build abort stale sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("abort stale sessions: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *GameRepository) querySessionCard(ctx context.Context, stmt string, args []any) (*domain.SessionCard, error) {
	var (
		card       domain.SessionCard
		direction  string
		answer     sql.NullString
		isCorrect  sql.NullBool
		answeredAt sql.NullTime
	)
	err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&card.ID,
		&card.SessionSub,
		&card.CardSub,
		&card.Position,
		&direction,
		&card.FrontVariants,
		&card.BackVariants,
		&answer,
		&isCorrect,
		&answeredAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session card: %w", err)
	}

	card.Direction = domain.Direction(direction)
	if answer.Valid {
		v := answer.String
		card.Answer = &v
	}
	card.IsCorrect = nullableBoolPtr(isCorrect)
	card.AnsweredAt = nullableTimePtr(answeredAt)
	return &card, nil
}

var _ port.GameRepository = (*GameRepository)(nil)
