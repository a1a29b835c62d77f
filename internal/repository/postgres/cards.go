package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/repository"
)

// CardRepository implements port.CardRepository backed by PostgreSQL.
type CardRepository struct {
	exec    pgExecutor
	starter txBeginner
	builder squirrel.StatementBuilderType
}

// NewCardRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewCardRepository(exec pgExecutor) *CardRepository {
	repo := &CardRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if starter, ok := exec.(txBeginner); ok {
		repo.starter = starter
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *CardRepository) WithTx(tx pgx.Tx) *CardRepository {
	if tx == nil {
		return r
	}
	return &CardRepository{exec: tx, builder: r.builder}
}

// DeskExists reports whether the desk is present.
func (r *CardRepository) DeskExists(ctx context.Context, deskSub string) (bool, error) {
	var exists bool
	stmt := `SELECT EXISTS (SELECT 1 FROM memora.desks WHERE sub = $1)`
	if err := r.exec.QueryRow(ctx, stmt, deskSub).Scan(&exists); err != nil {
		return false, fmt.Errorf("check desk exists: %w", err)
	}
	return exists, nil
}

// GetDeskSettings returns the desk play settings, defaulting orientation when the desk has no settings row.
func (r *CardRepository) GetDeskSettings(ctx context.Context, deskSub string) (*domain.DeskSettings, error) {
	stmt, args, err := r.builder.Select(
		"COALESCE(ds.cards_per_session, 0)",
		"COALESCE(ds.orientation, 'normal')",
	).
		From(table("desks") + " AS d").
		LeftJoin(table("desk_settings") + " AS ds ON ds.desk_sub = d.sub").
		Where(squirrel.Eq{"d.sub": deskSub}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build desk settings sql: %w", err)
	}

	var (
		settings    domain.DeskSettings
		orientation string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&settings.CardsPerSession, &orientation); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan desk settings: %w", err)
	}
	settings.Orientation = domain.Orientation(orientation)
	return &settings, nil
}

// GetCardSubsForPlay picks up to limit random cards of the desk.
func (r *CardRepository) GetCardSubsForPlay(ctx context.Context, deskSub string, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	stmt, args, err := r.builder.Select("sub").
		From(table("cards")).
		Where(squirrel.Eq{"desk_sub": deskSub}).
		OrderBy("random()").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build cards for play sql: %w", err)
	}

	return querySubs(ctx, r.exec, stmt, args)
}

// UpdateLastTimePlayedDesk stamps the desk with the time of the latest session.
func (r *CardRepository) UpdateLastTimePlayedDesk(ctx context.Context, deskSub string, at time.Time) error {
	stmt, args, err := r.builder.Update(table("desks")).
		Set("last_played_at", at.UTC()).
		Where(squirrel.Eq{"sub": deskSub}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update desk sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update desk last played: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetUsersWithDueCards lists users having at least minDue cards due at the supplied instant.
func (r *CardRepository) GetUsersWithDueCards(ctx context.Context, minDue int, at time.Time) ([]domain.DueUser, error) {
	stmt, args, err := r.builder.Select("user_sub", "COUNT(*) AS due_count").
		From(table("card_srs")).
		Where(squirrel.LtOrEq{"next_review": at.UTC()}).
		GroupBy("user_sub").
		Having("COUNT(*) >= ?", minDue).
		OrderBy("user_sub").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build due users sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query due users: %w", err)
	}
	defer rows.Close()

	users := make([]domain.DueUser, 0)
	for rows.Next() {
		var user domain.DueUser
		if err := rows.Scan(&user.UserSub, &user.DueCount); err != nil {
			return nil, fmt.Errorf("scan due user: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due users: %w", err)
	}
	return users, nil
}

// GetReviewSettingsByUserSub returns the user's review settings.
func (r *CardRepository) GetReviewSettingsByUserSub(ctx context.Context, userSub string) (*domain.ReviewSettings, error) {
	stmt, args, err := r.builder.Select("cards_per_session", "orientation").
		From(table("user_review_settings")).
		Where(squirrel.Eq{"user_sub": userSub}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build review settings sql: %w", err)
	}

	var (
		settings    domain.ReviewSettings
		orientation string
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&settings.CardsPerSession, &orientation); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan review settings: %w", err)
	}
	settings.Orientation = domain.Orientation(orientation)
	return &settings, nil
}

// UpdateSrs applies one SM-2 step to the stored state and upserts the result.
// Outside a caller transaction the read and the write share a transaction of their own.
func (r *CardRepository) UpdateSrs(ctx context.Context, userSub, cardSub string, quality int, at time.Time) (*domain.SrsState, error) {
	if r.starter == nil {
		return r.updateSrs(ctx, userSub, cardSub, quality, at)
	}

	tx, err := r.starter.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, fmt.Errorf("begin srs tx: %w", err)
	}
	state, err := r.WithTx(tx).updateSrs(ctx, userSub, cardSub, quality, at)
	if err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return nil, errors.Join(err, fmt.Errorf("rollback srs tx: %w", rbErr))
		}
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit srs tx: %w", err)
	}
	return state, nil
}

func (r *CardRepository) updateSrs(ctx context.Context, userSub, cardSub string, quality int, at time.Time) (*domain.SrsState, error) {
	current, err := r.getSrs(ctx, userSub, cardSub)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		initial := domain.NewSrsState(userSub, cardSub, at)
		current = &initial
	}

	next := domain.NextSrsState(*current, quality, at)

	stmt, args, err := r.builder.Insert(table("card_srs")).
		Columns("user_sub", "card_sub", "repetitions", "interval_days", "ease_factor", "next_review", "last_review").
		Values(userSub, cardSub, next.Repetitions, next.IntervalDays, next.EaseFactor, next.NextReview, *next.LastReview).
		Suffix(`ON CONFLICT (user_sub, card_sub) DO UPDATE
            SET repetitions = EXCLUDED.repetitions,
                interval_days = EXCLUDED.interval_days,
                ease_factor = EXCLUDED.ease_factor,
                next_review = EXCLUDED.next_review,
                last_review = EXCLUDED.last_review`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build upsert srs sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return nil, fmt.Errorf("upsert srs: %w", err)
	}
	return &next, nil
}

func (r *CardRepository) getSrs(ctx context.Context, userSub, cardSub string) (*domain.SrsState, error) {
	stmt, args, err := r.builder.Select("repetitions", "interval_days", "ease_factor", "next_review", "last_review").
		From(table("card_srs")).
		Where(squirrel.Eq{"user_sub": userSub}).
		Where(squirrel.Eq{"card_sub": cardSub}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select srs sql: %w", err)
	}

	state := domain.SrsState{UserSub: userSub, CardSub: cardSub}
	var lastReview sql.NullTime
	err = r.exec.QueryRow(ctx, stmt, args...).Scan(
		&state.Repetitions,
		&state.IntervalDays,
		&state.EaseFactor,
		&state.NextReview,
		&lastReview,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan srs: %w", err)
	}
	state.NextReview = state.NextReview.UTC()
	state.LastReview = nullableTimePtr(lastReview)
	return &state, nil
}

func querySubs(ctx context.Context, exec pgExecutor, stmt string, args []any) ([]string, error) {
	rows, err := exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query subs: %w", err)
	}
	defer rows.Close()

	subs := make([]string, 0)
	for rows.Next() {
		var sub string
		if err := rows.Scan(&sub); err != nil {
			return nil, fmt.Errorf("scan sub: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subs: %w", err)
	}
	return subs, nil
}

var _ port.CardRepository = (*CardRepository)(nil)
