package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ArsPalazzz/memora-api-sub000/internal/core/port"
)

const schema = "memora"

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// txBeginner is satisfied by *pgxpool.Pool and by pgxmock pools.
type txBeginner interface {
	pgExecutor
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// Store owns the repositories of one pool and runs transactions across them.
type Store struct {
	db    txBeginner
	repos *Repositories
}

// NewStore constructs a Store backed by the supplied pool.
func NewStore(db txBeginner) *Store {
	return &Store{
		db:    db,
		repos: NewRepositories(db),
	}
}

// Repositories returns the pool-bound repositories.
func (s *Store) Repositories() *Repositories {
	return s.repos
}

// WithinTx runs fn with repositories bound to a single transaction. fn errors roll the transaction back.
func (s *Store) WithinTx(ctx context.Context, fn func(repos port.TxRepositories) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	bound := s.repos.WithTx(tx)
	if err := fn(port.TxRepositories{
		Games:         bound.Games,
		Cards:         bound.Cards,
		Notifications: bound.Notifications,
		Tokens:        bound.Tokens,
	}); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil && !errors.Is(rbErr, pgx.ErrTxClosed) {
			return errors.Join(err, fmt.Errorf("rollback tx: %w", rbErr))
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func table(name string) string {
	return schema + "." + name
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

func optionalString(value *string) any {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return trimmed
}

func nullableStringPtr(value sql.NullString) *string {
	if !value.Valid {
		return nil
	}
	v := strings.TrimSpace(value.String)
	if v == "" {
		return nil
	}
	return &v
}

func nullableTimePtr(value sql.NullTime) *time.Time {
	if !value.Valid {
		return nil
	}
	t := value.Time.UTC()
	return &t
}

func nullableBoolPtr(value sql.NullBool) *bool {
	if !value.Valid {
		return nil
	}
	v := value.Bool
	return &v
}

var _ port.Transactor = (*Store)(nil)
