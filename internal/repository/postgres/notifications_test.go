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

func TestNotificationRepository_ExistRecentBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewNotificationRepository(mock)
	since := time.Now().UTC().Add(-3 * time.Hour)

	mock.ExpectQuery(`SELECT EXISTS \(\s*SELECT 1 FROM memora\.review_batches`).
		WithArgs("user-1", since).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistRecentBatch(context.Background(), "user-1", since)
	if err != nil {
		t.Fatalf("ExistRecentBatch returned error: %v", err)
	}
	if !exists {
		t.Fatalf("expected recent batch to exist")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotificationRepository_CreateBatchConflict(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewNotificationRepository(mock)
	now := time.Now().UTC()
	since := now.Add(-3 * time.Hour)
	batch := domain.ReviewBatch{Sub: "batch-1", UserSub: "user-1", CreatedAt: now}

	mock.ExpectExec(`INSERT INTO memora\.review_batches .*WHERE NOT EXISTS`).
		WithArgs("batch-1", "user-1", now, since).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO memora\.review_batches`).
		WithArgs("batch-1", "user-1", now, since).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	if err := repo.CreateBatch(context.Background(), batch, since); err != nil {
		t.Fatalf("CreateBatch returned error: %v", err)
	}
	if err := repo.CreateBatch(context.Background(), batch, since); !errors.Is(err, repository.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotificationRepository_AddCardsToBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewNotificationRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`INSERT INTO memora\.review_batch_cards .*ROW_NUMBER\(\) OVER .*LIMIT \$4`).
		WithArgs("batch-1", "user-1", at, 15).
		WillReturnResult(pgxmock.NewResult("INSERT", 4))

	attached, err := repo.AddCardsToBatch(context.Background(), "batch-1", "user-1", 15, at)
	if err != nil {
		t.Fatalf("AddCardsToBatch returned error: %v", err)
	}
	if attached != 4 {
		t.Fatalf("expected 4 attached cards, got %d", attached)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotificationRepository_MarkBatchAsNotifiedMissing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewNotificationRepository(mock)
	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE memora\.review_batches SET notified_at = COALESCE\(notified_at, \$1\) WHERE sub = \$2`).
		WithArgs(at, "batch-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.MarkBatchAsNotified(context.Background(), "batch-404", at); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotificationRepository_GetBatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewNotificationRepository(mock)
	created := time.Now().UTC()

	mock.ExpectQuery(`SELECT sub, user_sub, created_at, notified_at FROM memora\.review_batches`).
		WithArgs("batch-1").
		WillReturnRows(pgxmock.NewRows([]string{"sub", "user_sub", "created_at", "notified_at"}).
			AddRow("batch-1", "user-1", created, nil))
	mock.ExpectQuery(`FROM memora\.review_batches`).
		WithArgs("batch-2").
		WillReturnError(pgx.ErrNoRows)

	batch, err := repo.GetBatch(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("GetBatch returned error: %v", err)
	}
	if batch.UserSub != "user-1" || batch.IsNotified() {
		t.Fatalf("unexpected batch %+v", batch)
	}
	if _, err := repo.GetBatch(context.Background(), "batch-2"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestNotificationRepository_ListBatchCardSubs(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewNotificationRepository(mock)

	mock.ExpectQuery(`SELECT card_sub FROM memora\.review_batch_cards WHERE batch_sub = \$1 ORDER BY position ASC`).
		WithArgs("batch-1").
		WillReturnRows(pgxmock.NewRows([]string{"card_sub"}).AddRow("card-3").AddRow("card-1"))

	subs, err := repo.ListBatchCardSubs(context.Background(), "batch-1")
	if err != nil {
		t.Fatalf("ListBatchCardSubs returned error: %v", err)
	}
	if len(subs) != 2 || subs[0] != "card-3" {
		t.Fatalf("unexpected subs %v", subs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
