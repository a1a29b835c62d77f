package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
	"github.com/ArsPalazzz/memora-api-sub000/internal/repository"
)

var fcmTokenColumns = []string{
	"id",
	"user_sub",
	"token",
	"device_info",
	"platform",
	"is_active",
	"created_at",
	"updated_at",
	"deactivated_at",
	"deactivation_reason",
}

// FcmTokenRepository implements port.FcmTokenRepository backed by PostgreSQL.
type FcmTokenRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewFcmTokenRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewFcmTokenRepository(exec pgExecutor) *FcmTokenRepository {
	return &FcmTokenRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *FcmTokenRepository) WithTx(tx pgx.Tx) *FcmTokenRepository {
	if tx == nil {
		return r
	}
	return &FcmTokenRepository{exec: tx, builder: r.builder}
}

// UpsertToken stores the token as active for the user, reactivating and reassigning an existing row.
func (r *FcmTokenRepository) UpsertToken(ctx context.Context, token domain.FcmToken) error {
	stmt, args, err := r.builder.Insert(table("fcm_tokens")).
		Columns("user_sub", "token", "device_info", "platform", "is_active", "created_at", "updated_at").
		Values(
			token.UserSub,
			strings.TrimSpace(token.Token),
			optionalString(token.DeviceInfo),
			optionalString(token.Platform),
			true,
			token.CreatedAt.UTC(),
			token.UpdatedAt.UTC(),
		).
		Suffix(`ON CONFLICT (token) DO UPDATE
            SET user_sub = EXCLUDED.user_sub,
                device_info = COALESCE(EXCLUDED.device_info, memora.fcm_tokens.device_info),
                platform = COALESCE(EXCLUDED.platform, memora.fcm_tokens.platform),
                is_active = TRUE,
                updated_at = EXCLUDED.updated_at,
                deactivated_at = NULL,
                deactivation_reason = NULL`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("upsert token: %w", err)
	}
	return nil
}

// GetActiveFcmTokens lists the user's active tokens, most recently refreshed first.
func (r *FcmTokenRepository) GetActiveFcmTokens(ctx context.Context, userSub string) ([]domain.FcmToken, error) {
	stmt, args, err := r.builder.Select(fcmTokenColumns...).
		From(table("fcm_tokens")).
		Where(squirrel.Eq{"user_sub": userSub}).
		Where(squirrel.Eq{"is_active": true}).
		OrderBy("updated_at DESC", "id DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list tokens sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query tokens: %w", err)
	}
	defer rows.Close()

	tokens := make([]domain.FcmToken, 0)
	for rows.Next() {
		token, err := scanFcmToken(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token: %w", err)
		}
		tokens = append(tokens, *token)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tokens: %w", err)
	}
	return tokens, nil
}

// DeactivateToken marks an active token inactive with the supplied reason. Inactive or unknown tokens are left untouched.
func (r *FcmTokenRepository) DeactivateToken(ctx context.Context, token, reason string, at time.Time) error {
	stmt, args, err := r.builder.Update(table("fcm_tokens")).
		Set("is_active", false).
		Set("deactivated_at", at.UTC()).
		Set("deactivation_reason", reason).
		Set("updated_at", at.UTC()).
		Where(squirrel.Eq{"token": token}).
		Where(squirrel.Eq{"is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build deactivate token sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("deactivate token: %w", err)
	}
	return nil
}

// GetToken fetches a token row regardless of its state.
func (r *FcmTokenRepository) GetToken(ctx context.Context, token string) (*domain.FcmToken, error) {
	stmt, args, err := r.builder.Select(fcmTokenColumns...).
		From(table("fcm_tokens")).
		Where(squirrel.Eq{"token": token}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select token sql: %w", err)
	}

	found, err := scanFcmToken(r.exec.QueryRow(ctx, stmt, args...))
	if err != nil {
		if isNoRows(err) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan token: %w", err)
	}
	return found, nil
}

func scanFcmToken(row pgx.Row) (*domain.FcmToken, error) {
	var (
		token         domain.FcmToken
		deviceInfo    sql.NullString
		platform      sql.NullString
		deactivatedAt sql.NullTime
		reason        sql.NullString
	)
	if err := row.Scan(
		&token.ID,
		&token.UserSub,
		&token.Token,
		&deviceInfo,
		&platform,
		&token.IsActive,
		&token.CreatedAt,
		&token.UpdatedAt,
		&deactivatedAt,
		&reason,
	); err != nil {
		return nil, err
	}
	token.DeviceInfo = nullableStringPtr(deviceInfo)
	token.Platform = nullableStringPtr(platform)
	token.CreatedAt = token.CreatedAt.UTC()
	token.UpdatedAt = token.UpdatedAt.UTC()
	token.DeactivatedAt = nullableTimePtr(deactivatedAt)
	token.DeactivationReason = nullableStringPtr(reason)
	return &token, nil
}

var _ port.FcmTokenRepository = (*FcmTokenRepository)(nil)
