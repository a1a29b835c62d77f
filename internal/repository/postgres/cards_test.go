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

func TestCardRepository_GetDeskSettingsDefaults(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCardRepository(mock)

	rows := pgxmock.NewRows([]string{"cards_per_session", "orientation"}).AddRow(0, "normal")
	mock.ExpectQuery(`SELECT COALESCE\(ds\.cards_per_session, 0\), COALESCE\(ds\.orientation, 'normal'\) FROM memora\.desks AS d LEFT JOIN memora\.desk_settings`).
		WithArgs("desk-1").
		WillReturnRows(rows)

	settings, err := repo.GetDeskSettings(context.Background(), "desk-1")
	if err != nil {
		t.Fatalf("GetDeskSettings returned error: %v", err)
	}
	if settings.CardsPerSession != 0 || settings.Orientation != domain.OrientationNormal {
		t.Fatalf("unexpected settings %+v", settings)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCardRepository_GetDeskSettingsMissingDesk(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCardRepository(mock)

	mock.ExpectQuery(`FROM memora\.desks`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	if _, err := repo.GetDeskSettings(context.Background(), "missing"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCardRepository_GetCardSubsForPlay(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCardRepository(mock)

	rows := pgxmock.NewRows([]string{"sub"}).AddRow("card-2").AddRow("card-1")
	mock.ExpectQuery(`SELECT sub FROM memora\.cards WHERE desk_sub = \$1 ORDER BY random\(\) LIMIT 2`).
		WithArgs("desk-1").
		WillReturnRows(rows)

	subs, err := repo.GetCardSubsForPlay(context.Background(), "desk-1", 2)
	if err != nil {
		t.Fatalf("GetCardSubsForPlay returned error: %v", err)
	}
	if len(subs) != 2 || subs[0] != "card-2" || subs[1] != "card-1" {
		t.Fatalf("unexpected subs %v", subs)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCardRepository_GetUsersWithDueCards(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCardRepository(mock)
	at := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"user_sub", "due_count"}).
		AddRow("user-1", 4).
		AddRow("user-2", 9)
	mock.ExpectQuery(`SELECT user_sub, COUNT\(\*\) AS due_count FROM memora\.card_srs WHERE next_review <= \$1 GROUP BY user_sub HAVING COUNT\(\*\) >= \$2`).
		WithArgs(at, 3).
		WillReturnRows(rows)

	users, err := repo.GetUsersWithDueCards(context.Background(), 3, at)
	if err != nil {
		t.Fatalf("GetUsersWithDueCards returned error: %v", err)
	}
	if len(users) != 2 || users[1].UserSub != "user-2" || users[1].DueCount != 9 {
		t.Fatalf("unexpected users %+v", users)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCardRepository_UpdateSrsCreatesInitialState(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCardRepository(mock)
	at := time.Date(2025, 11, 3, 8, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT repetitions, interval_days, ease_factor, next_review, last_review FROM memora\.card_srs .*FOR UPDATE`).
		WithArgs("user-1", "card-1").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectExec(`INSERT INTO memora\.card_srs .*ON CONFLICT \(user_sub, card_sub\) DO UPDATE`).
		WithArgs("user-1", "card-1", 1, 1, pgxmock.AnyArg(), at.Add(24*time.Hour), at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	state, err := repo.UpdateSrs(context.Background(), "user-1", "card-1", 4, at)
	if err != nil {
		t.Fatalf("UpdateSrs returned error: %v", err)
	}
	if state.Repetitions != 1 || state.IntervalDays != 1 {
		t.Fatalf("unexpected state %+v", state)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCardRepository_UpdateSrsRollsBackOnFailure(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewCardRepository(mock)
	at := time.Now().UTC()
	last := at.Add(-48 * time.Hour)

	rows := pgxmock.NewRows([]string{"repetitions", "interval_days", "ease_factor", "next_review", "last_review"}).
		AddRow(2, 6, 2.5, at, last)

	mock.ExpectBegin()
	mock.ExpectQuery(`FROM memora\.card_srs`).WithArgs("user-1", "card-1").WillReturnRows(rows)
	mock.ExpectExec(`INSERT INTO memora\.card_srs`).
		WithArgs("user-1", "card-1", 3, 15, pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	if _, err := repo.UpdateSrs(context.Background(), "user-1", "card-1", 5, at); err == nil {
		t.Fatalf("expected error from failed upsert")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
