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

const (
	existRecentBatchSQL = `SELECT EXISTS (
        SELECT 1 FROM memora.review_batches
         WHERE user_sub = $1 AND created_at > $2
    )`

	createBatchSQL = `
        INSERT INTO memora.review_batches (sub, user_sub, created_at)
        SELECT $1, $2, $3
         WHERE NOT EXISTS (
            SELECT 1 FROM memora.review_batches
             WHERE user_sub = $2 AND created_at > $4
         )
    `

	addCardsToBatchSQL = `
        INSERT INTO memora.review_batch_cards (batch_sub, card_sub, position)
        SELECT $1, due.card_sub, ROW_NUMBER() OVER (ORDER BY due.next_review ASC, due.card_sub ASC)
          FROM (
            SELECT card_sub, next_review
              FROM memora.card_srs
             WHERE user_sub = $2 AND next_review <= $3
             ORDER BY next_review ASC, card_sub ASC
             LIMIT $4
          ) AS due
        ON CONFLICT DO NOTHING
    `
)

// NotificationRepository implements port.NotificationRepository backed by PostgreSQL.
type NotificationRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewNotificationRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewNotificationRepository(exec pgExecutor) *NotificationRepository {
	return &NotificationRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *NotificationRepository) WithTx(tx pgx.Tx) *NotificationRepository {
	if tx == nil {
		return r
	}
	return &NotificationRepository{exec: tx, builder: r.builder}
}

// ExistRecentBatch reports whether a batch was created for the user after since.
func (r *NotificationRepository) ExistRecentBatch(ctx context.Context, userSub string, since time.Time) (bool, error) {
	var exists bool
	if err := r.exec.QueryRow(ctx, existRecentBatchSQL, userSub, since.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("check recent batch: %w", err)
	}
	return exists, nil
}

// CreateBatch inserts the batch unless another one was created after since, in which case repository.ErrConflict is returned.
func (r *NotificationRepository) CreateBatch(ctx context.Context, batch domain.ReviewBatch, since time.Time) error {
	tag, err := r.exec.Exec(ctx, createBatchSQL, batch.Sub, batch.UserSub, batch.CreatedAt.UTC(), since.UTC())
	if err != nil {
		return fmt.Errorf("insert review batch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrConflict
	}
	return nil
}

// AddCardsToBatch attaches up to limit due cards of the user, soonest due first.
func (r *NotificationRepository) AddCardsToBatch(ctx context.Context, batchSub, userSub string, limit int, at time.Time) (int, error) {
	if limit <= 0 {
		return 0, nil
	}
	tag, err := r.exec.Exec(ctx, addCardsToBatchSQL, batchSub, userSub, at.UTC(), limit)
	if err != nil {
		return 0, fmt.Errorf("add cards to batch: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

// MarkBatchAsNotified records the first successful delivery of the batch.
func (r *NotificationRepository) MarkBatchAsNotified(ctx context.Context, batchSub string, at time.Time) error {
	stmt, args, err := r.builder.Update(table("review_batches")).
		Set("notified_at", squirrel.Expr("COALESCE(notified_at, ?)", at.UTC())).
		Where(squirrel.Eq{"sub": batchSub}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build mark batch notified sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("mark batch notified: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// GetBatch fetches a batch by its sub.
func (r *NotificationRepository) GetBatch(ctx context.Context, batchSub string) (*domain.ReviewBatch, error) {
	stmt, args, err := r.builder.Select("sub", "user_sub", "created_at", "notified_at").
		From(table("review_batches")).
		Where(squirrel.Eq{"sub": batchSub}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select batch sql: %w", err)
	}

	var (
		batch      domain.ReviewBatch
		notifiedAt sql.NullTime
	)
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(&batch.Sub, &batch.UserSub, &batch.CreatedAt, &notifiedAt); err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan batch: %w", err)
	}
	batch.CreatedAt = batch.CreatedAt.UTC()
	batch.NotifiedAt = nullableTimePtr(notifiedAt)
	return &batch, nil
}

// ListBatchCardSubs returns the cards of a batch in attachment order.
func (r *NotificationRepository) ListBatchCardSubs(ctx context.Context, batchSub string) ([]string, error) {
	stmt, args, err := r.builder.Select("card_sub").
		From(table("review_batch_cards")).
		Where(squirrel.Eq{"batch_sub": batchSub}).
		OrderBy("position ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list batch cards sql: %w", err)
	}
	return querySubs(ctx, r.exec, stmt, args)
}

var _ port.NotificationRepository = (*NotificationRepository)(nil)
