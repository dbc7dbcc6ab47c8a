package repository

import (
	"context"
	"database/sql"
	"fmt"

	"clusterizer/internal/common"

	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is satisfied by both *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Transactor runs fn inside one database transaction. fn must not keep tx
// after it returns.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(tx DBTX) error) error
}

const maxTxAttempts = 3

type pgTransactor struct {
	db *sql.DB
}

func NewPgTransactor(db *sql.DB) Transactor {
	return &pgTransactor{db: db}
}

// WithinTx commits when fn succeeds and rolls back otherwise. Serialization
// failures and deadlocks are retried with a fresh transaction.
func (t *pgTransactor) WithinTx(ctx context.Context, fn func(tx DBTX) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = t.runOnce(ctx, fn)
		if err == nil || !common.IsRetryable(err) {
			return err
		}
	}
	return fmt.Errorf("transaction failed after %d attempts: %w", maxTxAttempts, err)
}

func (t *pgTransactor) runOnce(ctx context.Context, fn func(tx DBTX) error) error {
	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

// nullableID turns an optional filter id into a driver argument.
func nullableID[ID ~int64](id *ID) any {
	if id == nil {
		return nil
	}
	return int64(*id)
}

func nullableBool(b *bool) any {
	if b == nil {
		return nil
	}
	return *b
}

// collect drains rows with scan. The result is never nil so that empty
// listings encode as [].
func collect[T any](rows *sql.Rows, scan func(rowScanner) (T, error)) ([]T, error) {
	defer rows.Close()
	items := []T{}
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// typeMap builds the pgtype map used to scan arrays and intervals through
// database/sql. A map is not safe for concurrent use, so each query gets one.
func typeMap() *pgtype.Map {
	return pgtype.NewMap()
}
