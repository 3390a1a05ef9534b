package quotes

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"tarediiran-industries.com/clockpi/internal/db"
)

const Schema = `CREATE TABLE IF NOT EXISTS quotes (
	quote_id        BIGSERIAL PRIMARY KEY,
	minute_key      TEXT NOT NULL,
	quote_first     TEXT,
	quote_time_case TEXT,
	quote_last      TEXT,
	title           TEXT,
	author          TEXT
);
CREATE INDEX IF NOT EXISTS quotes_minute_key_idx ON quotes (minute_key);`

func QuoteColumns() []string {
	return []string{"minute_key", "quote_first", "quote_time_case", "quote_last", "title", "author"}
}

type QuoteRecord struct {
	MinuteKey string
	Quote     Quote
}

func (record *QuoteRecord) ToAnyArray() []any {
	return []any{
		record.MinuteKey,
		record.Quote.QuoteFirst,
		record.Quote.QuoteTimeCase,
		record.Quote.QuoteLast,
		record.Quote.Title,
		record.Quote.Author,
	}
}

// PostgresStore picks a random row from the quotes table for the minute.
type PostgresStore struct {
	db db.DBTX
}

func NewPostgresStore(database db.DBTX) *PostgresStore {
	return &PostgresStore{db: database}
}

func (store *PostgresStore) Lookup(ctx context.Context, t time.Time) (Quote, bool, error) {
	row := store.db.QueryRowContext(
		ctx,
		`SELECT quote_first, quote_time_case, quote_last, title, author
		   FROM quotes WHERE minute_key = $1 ORDER BY random() LIMIT 1`,
		MinuteKey(t),
	)

	var first, timeCase, last, title, author sql.NullString
	err := row.Scan(&first, &timeCase, &last, &title, &author)
	if errors.Is(err, sql.ErrNoRows) {
		return Quote{}, false, nil
	}
	if err != nil {
		return Quote{}, false, fmt.Errorf("lookup quote %s: %w", MinuteKey(t), err)
	}

	return Quote{
		QuoteFirst:    first.String,
		QuoteTimeCase: timeCase.String,
		QuoteLast:     last.String,
		Title:         title.String,
		Author:        author.String,
	}, true, nil
}

// ReadDirectory loads every HH_MM.json file in dir as records, ordered by
// minute.
func ReadDirectory(dir string) ([]QuoteRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			names = append(names, entry.Name())
		}
	}
	slices.Sort(names)

	var records []QuoteRecord
	for _, name := range names {
		candidates, err := ReadMinuteFile(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		key := strings.TrimSuffix(name, ".json")
		for _, quote := range candidates {
			records = append(records, QuoteRecord{MinuteKey: key, Quote: quote})
		}
	}
	return records, nil
}

type importTarget interface {
	db.DBTX
	db.CopyCapable
}

// Import creates the quotes table if needed and bulk copies every quote
// found in dir into it.
func Import(ctx context.Context, target importTarget, dir string) (int64, error) {
	records, err := ReadDirectory(dir)
	if err != nil {
		return 0, err
	}

	if _, err := target.ExecContext(ctx, Schema); err != nil {
		return 0, fmt.Errorf("create schema: %w", err)
	}

	return target.CopyFromSlice(
		ctx,
		"quotes",
		QuoteColumns(),
		len(records),
		func(i int) ([]any, error) {
			return records[i].ToAnyArray(), nil
		},
	)
}
