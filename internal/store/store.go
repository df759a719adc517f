package store

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DB is the subset of pgx operations the stores need.
// Both *pgxpool.Pool and pgx.Tx satisfy it, so the same store methods run
// inside or outside a transaction.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store bundles access to all persisted entities.
type Store struct {
	db     DB
	pool   *pgxpool.Pool // nil when constructed over a transaction
	logger *slog.Logger
}

// New creates a Store over a connection pool.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: pool, pool: pool, logger: logger}
}

// NewWithDB creates a Store over an arbitrary DB, typically a transaction.
// Stores built this way cannot open nested transactions.
func NewWithDB(db DB, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, logger: logger}
}

// WithTx runs fn with a Store bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(*Store) error) error {
	if s.pool == nil {
		// Already inside a transaction, just run.
		return fn(s)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tx.Rollback(ctx); err != nil && err != pgx.ErrTxClosed {
			s.logger.Debug("transaction rollback", "error", err)
		}
	}()

	if err := fn(NewWithDB(tx, s.logger)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}
