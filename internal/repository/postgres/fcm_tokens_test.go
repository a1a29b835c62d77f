package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/domain"
	"github.com/ArsPalazzz/memora-api-sub000/internal/repository"
)

var fcmTokenRowColumns = []string{
	"id", "user_sub", "token", "device_info", "platform", "is_active", "created_at", "updated_at", "deactivated_at", "deactivation_reason",
}

func TestFcmTokenRepository_UpsertToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewFcmTokenRepository(mock)
	now := time.Now().UTC()
	platform := "android"

	mock.ExpectExec(`INSERT INTO memora\.fcm_tokens .*ON CONFLICT \(token\) DO UPDATE`).
		WithArgs("user-1", "token-1", nil, "android", true, now, now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err = repo.UpsertToken(context.Background(), domain.FcmToken{
		UserSub:   "user-1",
		Token:     " token-1 ",
		Platform:  &platform,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		t.Fatalf("UpsertToken returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFcmTokenRepository_GetActiveFcmTokens(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewFcmTokenRepository(mock)
	now := time.Now().UTC()

	rows := pgxmock.NewRows(fcmTokenRowColumns).
		AddRow(int64(2), "user-1", "token-new", "Pixel 8", "android", true, now, now, nil, nil).
		AddRow(int64(1), "user-1", "token-old", nil, nil, true, now.Add(-time.Hour), now.Add(-time.Hour), nil, nil)
	mock.ExpectQuery(`SELECT .*FROM memora\.fcm_tokens WHERE user_sub = \$1 AND is_active = \$2 ORDER BY updated_at DESC, id DESC`).
		WithArgs("user-1", true).
		WillReturnRows(rows)

	tokens, err := repo.GetActiveFcmTokens(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("GetActiveFcmTokens returned error: %v", err)
	}
	if len(tokens) != 2 || tokens[0].Token != "token-new" {
		t.Fatalf("unexpected tokens %+v", tokens)
	}
	if tokens[0].DeviceInfo == nil || *tokens[0].DeviceInfo != "Pixel 8" {
		t.Fatalf("expected device info to be populated")
	}
	if tokens[1].Platform != nil {
		t.Fatalf("expected nil platform for legacy token")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFcmTokenRepository_DeactivateToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewFcmTokenRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE memora\.fcm_tokens SET is_active = \$1, deactivated_at = \$2, deactivation_reason = \$3, updated_at = \$4 WHERE token = \$5 AND is_active = \$6`).
		WithArgs(false, at, domain.TokenReasonInvalidToken, at, "token-1", true).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.DeactivateToken(context.Background(), "token-1", domain.TokenReasonInvalidToken, at); err != nil {
		t.Fatalf("expected deactivation of inactive token to be a no-op, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestFcmTokenRepository_GetTokenNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewFcmTokenRepository(mock)

	mock.ExpectQuery(`FROM memora\.fcm_tokens WHERE token = \$1`).
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetToken(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
