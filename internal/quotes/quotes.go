// Package quotes looks up literature quotes that mention the current time
// of day. Quotes are grouped per minute under an "HH_MM" key.
package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/bluele/gcache"
)

type Quote struct {
	QuoteFirst    string `json:"quote_first"`
	QuoteTimeCase string `json:"quote_time_case"`
	QuoteLast     string `json:"quote_last"`
	Title         string `json:"title"`
	Author        string `json:"author"`
}

func (quote Quote) Text() string {
	return quote.QuoteFirst + quote.QuoteTimeCase + quote.QuoteLast
}

// Store looks up a quote for the minute of t. A minute without quotes is
// reported with ok == false and no error.
type Store interface {
	Lookup(ctx context.Context, t time.Time) (quote Quote, ok bool, err error)
}

func MinuteKey(t time.Time) string {
	return fmt.Sprintf("%02d_%02d", t.Hour(), t.Minute())
}

func FileName(t time.Time) string {
	return MinuteKey(t) + ".json"
}

const minutesPerDay = 24 * 60

// FileStore reads HH_MM.json files, each a JSON array of quotes.
type FileStore struct {
	dir   string
	cache gcache.Cache
	pick  func(n int) int
}

type FileStoreOption func(*FileStore)

// WithPicker replaces the random choice among a minute's quotes.
func WithPicker(pick func(n int) int) FileStoreOption {
	return func(store *FileStore) {
		store.pick = pick
	}
}

func NewFileStore(dir string, opts ...FileStoreOption) *FileStore {
	store := &FileStore{dir: dir, pick: rand.IntN}
	for _, opt := range opts {
		opt(store)
	}
	store.cache = gcache.New(minutesPerDay).
		LRU().
		Expiration(time.Hour).
		LoaderFunc(func(key interface{}) (interface{}, error) {
			return ReadMinuteFile(filepath.Join(store.dir, key.(string)+".json"))
		}).
		Build()
	return store
}

func (store *FileStore) Lookup(ctx context.Context, t time.Time) (Quote, bool, error) {
	value, err := store.cache.Get(MinuteKey(t))
	if err != nil {
		return Quote{}, false, err
	}

	candidates := value.([]Quote)
	if len(candidates) == 0 {
		return Quote{}, false, nil
	}
	return candidates[store.pick(len(candidates))], true, nil
}

// ReadMinuteFile parses one minute file. A missing file yields no quotes.
func ReadMinuteFile(path string) ([]Quote, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return []Quote{}, nil
	}
	if err != nil {
		return nil, err
	}

	var candidates []Quote
	if err := json.Unmarshal(data, &candidates); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return candidates, nil
}

// MissingMinutes lists the HH_MM.json files absent from dir, in order.
func MissingMinutes(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	present := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".json") {
			present[entry.Name()] = true
		}
	}

	var missing []string
	for hour := 0; hour < 24; hour++ {
		for minute := 0; minute < 60; minute++ {
			name := fmt.Sprintf("%02d_%02d.json", hour, minute)
			if !present[name] {
				missing = append(missing, name)
			}
		}
	}
	slices.Sort(missing)
	return missing, nil
}
