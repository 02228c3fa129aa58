// Package userdict persists the user's custom dictionary in SQLite.
// Words in the dictionary are never reported as suggestions.
package userdict

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS words (
    word       TEXT PRIMARY KEY,
    source     TEXT NOT NULL,
    added_at   INTEGER NOT NULL
);
`

// Sources of dictionary words.
const (
	SourceConfig = "config"
	SourceUser   = "user"
)

// ErrEmptyWord is returned when adding a blank word.
var ErrEmptyWord = errors.New("empty word")

// Dictionary is the custom word list. Lookups are served from memory;
// writes go to the database first.
type Dictionary struct {
	db *sql.DB

	mu    sync.RWMutex
	words map[string]bool
}

// Open opens or creates the database at path and loads its words. The
// special path ":memory:" keeps the dictionary in memory.
func Open(ctx context.Context, path string) (*Dictionary, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	d := &Dictionary{db: db, words: make(map[string]bool)}
	if err := d.reload(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return d, nil
}

// Close closes the database connection.
func (d *Dictionary) Close() error {
	if d.db != nil {
		return d.db.Close()
	}
	return nil
}

// Contains reports whether word is in the dictionary. Matching is exact.
func (d *Dictionary) Contains(word string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.words[word]
}

// Add stores words added by the user. A seeded word added again becomes a
// user word. It reports whether any word was new.
func (d *Dictionary) Add(ctx context.Context, words ...string) (bool, error) {
	return d.insert(ctx, SourceUser, words)
}

// Seed stores words from settings. Seeded words replace earlier seeded
// words; words added by the user are kept.
func (d *Dictionary) Seed(ctx context.Context, words []string) error {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin seed: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM words WHERE source = ?`, SourceConfig); err != nil {
		return fmt.Errorf("clear seeded words: %w", err)
	}
	now := time.Now().Unix()
	for _, w := range words {
		if w = strings.TrimSpace(w); w == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO words (word, source, added_at) VALUES (?, ?, ?)`,
			w, SourceConfig, now); err != nil {
			return fmt.Errorf("seed word %q: %w", w, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit seed: %w", err)
	}
	return d.reload(ctx)
}

// Remove deletes a word. It reports whether the word was present.
func (d *Dictionary) Remove(ctx context.Context, word string) (bool, error) {
	res, err := d.db.ExecContext(ctx, `DELETE FROM words WHERE word = ?`, word)
	if err != nil {
		return false, fmt.Errorf("remove word %q: %w", word, err)
	}
	n, _ := res.RowsAffected()

	d.mu.Lock()
	delete(d.words, word)
	d.mu.Unlock()
	return n > 0, nil
}

// Words returns all words, sorted.
func (d *Dictionary) Words() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.words))
	for w := range d.words {
		out = append(out, w)
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

// Entry is a stored word with its metadata.
type Entry struct {
	Word    string
	Source  string
	AddedAt time.Time
}

// Entries returns all stored words with metadata, sorted by word.
func (d *Dictionary) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := d.db.QueryContext(ctx, `SELECT word, source, added_at FROM words ORDER BY word`)
	if err != nil {
		return nil, fmt.Errorf("query words: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		var added int64
		if err := rows.Scan(&e.Word, &e.Source, &added); err != nil {
			return nil, fmt.Errorf("scan word: %w", err)
		}
		e.AddedAt = time.Unix(added, 0)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (d *Dictionary) insert(ctx context.Context, source string, words []string) (bool, error) {
	added := false
	now := time.Now().Unix()
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" {
			return added, ErrEmptyWord
		}
		_, err := d.db.ExecContext(ctx,
			`INSERT INTO words (word, source, added_at) VALUES (?, ?, ?)
			 ON CONFLICT(word) DO UPDATE SET source = excluded.source WHERE words.source <> excluded.source`,
			w, source, now)
		if err != nil {
			return added, fmt.Errorf("add word %q: %w", w, err)
		}

		d.mu.Lock()
		if !d.words[w] {
			added = true
			d.words[w] = true
		}
		d.mu.Unlock()
	}
	return added, nil
}

func (d *Dictionary) reload(ctx context.Context) error {
	rows, err := d.db.QueryContext(ctx, `SELECT word FROM words`)
	if err != nil {
		return fmt.Errorf("load words: %w", err)
	}
	defer rows.Close()

	words := make(map[string]bool)
	for rows.Next() {
		var w string
		if err := rows.Scan(&w); err != nil {
			return fmt.Errorf("scan word: %w", err)
		}
		words[w] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	d.mu.Lock()
	d.words = words
	d.mu.Unlock()
	return nil
}
