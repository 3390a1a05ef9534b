package quotes

import (
	"context"
	"database/sql"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tarediiran-industries.com/clockpi/internal/db"
)

var teaTime = Quote{
	QuoteFirst:    "It was ",
	QuoteTimeCase: "five past four",
	QuoteLast:     " and the tea had gone cold.",
	Title:         "A Novel",
	Author:        "Some Author",
}

func writeMinute(t *testing.T, dir, name string, candidates ...Quote) {
	t.Helper()
	data, err := json.Marshal(candidates)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func TestFileStore_Lookup(t *testing.T) {
	dir := t.TempDir()
	writeMinute(t, dir, "16_05.json", teaTime)

	store := NewFileStore(dir)
	quote, ok, err := store.Lookup(context.Background(), time.Date(2026, 1, 2, 16, 5, 59, 0, time.Local))

	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, teaTime, quote)
	assert.Equal(t, "It was five past four and the tea had gone cold.", quote.Text())
}

func TestFileStore_MissingMinuteIsNotAnError(t *testing.T) {
	store := NewFileStore(t.TempDir())
	quote, ok, err := store.Lookup(context.Background(), time.Date(2026, 1, 2, 3, 7, 0, 0, time.Local))

	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, Quote{}, quote)
}

func TestFileStore_NullFieldsAndPicker(t *testing.T) {
	dir := t.TempDir()
	raw := `[{"quote_first": "first", "quote_time_case": null, "quote_last": null, "title": null, "author": null},
	         {"quote_first": "second", "quote_time_case": "noon", "quote_last": "", "title": "T", "author": "A"}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "12_00.json"), []byte(raw), 0644))

	store := NewFileStore(dir, WithPicker(func(n int) int { return n - 1 }))
	quote, ok, err := store.Lookup(context.Background(), time.Date(2026, 1, 2, 12, 0, 0, 0, time.Local))

	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "second", quote.QuoteFirst)
	assert.Equal(t, "noon", quote.QuoteTimeCase)
}

func TestFileStore_MalformedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "00_01.json"), []byte("{not json"), 0644))

	_, ok, err := NewFileStore(dir).Lookup(context.Background(), time.Date(2026, 1, 2, 0, 1, 0, 0, time.Local))
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestMissingMinutes(t *testing.T) {
	dir := t.TempDir()
	for hour := 0; hour < 24; hour++ {
		for minute := 0; minute < 60; minute++ {
			if (hour == 4 && minute == 20) || (hour == 23 && minute == 59) {
				continue
			}
			name := MinuteKey(time.Date(2026, 1, 1, hour, minute, 0, 0, time.UTC)) + ".json"
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("[]"), 0644))
		}
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0644))

	missing, err := MissingMinutes(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"04_20.json", "23_59.json"}, missing)
}

func TestMissingMinutes_EmptyDirectory(t *testing.T) {
	missing, err := MissingMinutes(t.TempDir())
	require.NoError(t, err)
	assert.Len(t, missing, 24*60)
	assert.Equal(t, "00_00.json", missing[0])
}

// copyRecorder stands in for the database during imports.
type copyRecorder struct {
	db.DBTX
	execs   []string
	table   string
	columns []string
	rows    [][]any
}

func (recorder *copyRecorder) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	recorder.execs = append(recorder.execs, query)
	return nil, nil
}

func (recorder *copyRecorder) CopyFromSlice(ctx context.Context, table string, columns []string, length int, next func(int) ([]any, error)) (int64, error) {
	recorder.table = table
	recorder.columns = columns
	for i := 0; i < length; i++ {
		row, err := next(i)
		if err != nil {
			return 0, err
		}
		recorder.rows = append(recorder.rows, row)
	}
	return int64(length), nil
}

func TestImport_CopiesEveryQuote(t *testing.T) {
	dir := t.TempDir()
	writeMinute(t, dir, "16_05.json", teaTime, Quote{QuoteFirst: "again"})
	writeMinute(t, dir, "09_30.json", Quote{QuoteTimeCase: "half past nine"})

	recorder := &copyRecorder{}
	count, err := Import(context.Background(), recorder, dir)

	require.NoError(t, err)
	assert.Equal(t, int64(3), count)
	assert.Equal(t, []string{Schema}, recorder.execs)
	assert.Equal(t, "quotes", recorder.table)
	assert.Equal(t, QuoteColumns(), recorder.columns)
	require.Len(t, recorder.rows, 3)
	assert.Equal(t, []any{"09_30", "", "half past nine", "", "", ""}, recorder.rows[0])
	assert.Equal(t, "16_05", recorder.rows[1][0])
}

func TestPostgresStore_Integration(t *testing.T) {
	dsn := os.Getenv("CLOCKPI_TEST_DATABASE")
	if dsn == "" {
		t.Skip("CLOCKPI_TEST_DATABASE not set")
	}

	ctx := context.Background()
	database, err := db.NewDatabaseConnection(ctx, dsn)
	require.NoError(t, err)
	defer database.Close()

	dir := t.TempDir()
	writeMinute(t, dir, "16_05.json", teaTime)

	_, err = database.ExecContext(ctx, "DROP TABLE IF EXISTS quotes")
	require.NoError(t, err)
	_, err = Import(ctx, database, dir)
	require.NoError(t, err)

	store := NewPostgresStore(database)
	quote, ok, err := store.Lookup(ctx, time.Date(2026, 1, 2, 16, 5, 0, 0, time.Local))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, teaTime, quote)

	_, ok, err = store.Lookup(ctx, time.Date(2026, 1, 2, 16, 6, 0, 0, time.Local))
	require.NoError(t, err)
	assert.False(t, ok)
}
