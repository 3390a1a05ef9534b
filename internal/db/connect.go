package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// DBTX is the query surface the quote store needs.
type DBTX interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

type CopyCapable interface {
	CopyFromSlice(ctx context.Context, table string, columns []string, length int, next func(int) ([]any, error)) (int64, error)
}

const (
	applicationName = "clockpi"
	pingTimeout     = 5 * time.Second
	// One lookup per minute plus the odd import; a couple of connections
	// is plenty.
	maxConns = 2
)

// Database shares one pgx pool between database/sql queries and COPY.
type Database struct {
	db   *sql.DB
	pool *pgxpool.Pool
}

func NewDatabaseConnection(ctx context.Context, connString string) (*Database, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	config.MaxConns = maxConns
	config.ConnConfig.RuntimeParams["application_name"] = applicationName

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}

	pctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := pool.Ping(pctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	return &Database{db: stdlib.OpenDBFromPool(pool), pool: pool}, nil
}

func (db *Database) Close() error {
	if db == nil || db.pool == nil {
		return nil
	}
	err := db.db.Close()
	db.pool.Close()
	return err
}

func (db *Database) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

func (db *Database) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return db.db.QueryContext(ctx, query, args...)
}

func (db *Database) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// CopyFromSlice bulk loads length rows produced by next using COPY, all
// or nothing.
func (db *Database) CopyFromSlice(ctx context.Context, table string, columns []string, length int, next func(int) ([]any, error)) (int64, error) {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin copy into %s: %w", table, err)
	}

	rows, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromSlice(length, next))
	if err != nil {
		return 0, errors.Join(fmt.Errorf("copy into %s: %w", table, err), tx.Rollback(ctx))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit copy into %s: %w", table, err)
	}
	return rows, nil
}
