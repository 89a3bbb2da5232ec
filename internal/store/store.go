// Package store persists extracted posts in a local SQLite database.
//
// The database is the only resource shared between concurrently running
// account crawls. A single writer connection plus WAL mode serializes
// conflicting writes; per-account batches keep one crawl's rows together
// in a single transaction.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sqlite "modernc.org/sqlite"
)

var (
	// ErrDuplicate is returned when a post with the same ID or URI is
	// already stored. Callers treat it as the "caught up" signal, not as
	// a failure.
	ErrDuplicate = errors.New("post already stored")

	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// SQLite extended result codes for uniqueness violations.
const (
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// Post is one stored post record.
type Post struct {
	ID             string
	ContentWarning string
	HasCW          bool
	AccountID      string
	URI            string
	Content        string
	PublishedAt    time.Time
}

// Store wraps the SQLite database holding posts and resume cursors.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS posts (
	post_id         TEXT PRIMARY KEY,
	content_warning TEXT,
	account_id      TEXT NOT NULL,
	uri             TEXT NOT NULL UNIQUE,
	content         TEXT NOT NULL,
	published_at    INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_posts_account ON posts(account_id);
CREATE TABLE IF NOT EXISTS cursors (
	account_id    TEXT PRIMARY KEY,
	next_page_url TEXT NOT NULL
);
`

// Open opens (or creates) the database at path and ensures the schema.
// Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// One connection serializes writers and avoids "database is locked".
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// InsertPost inserts a single post, relying on the UNIQUE constraints for
// deduplication. Returns ErrDuplicate when the post is already stored.
func (s *Store) InsertPost(ctx context.Context, p Post) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO posts (post_id, content_warning, account_id, uri, content, published_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, cwValue(p), p.AccountID, p.URI, p.Content, p.PublishedAt.Unix(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert post %s: %w", p.ID, err)
	}
	return nil
}

// HasPost reports whether a post with the given ID is stored.
func (s *Store) HasPost(ctx context.Context, postID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts WHERE post_id = ?", postID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("check post %s: %w", postID, err)
	}
	return n > 0, nil
}

// SaveCursor records the next page URL for an account, overwriting any
// previous cursor.
func (s *Store) SaveCursor(ctx context.Context, accountID, nextPageURL string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO cursors (account_id, next_page_url) VALUES (?, ?)
		 ON CONFLICT(account_id) DO UPDATE SET next_page_url = excluded.next_page_url`,
		accountID, nextPageURL,
	)
	if err != nil {
		return fmt.Errorf("save cursor for %s: %w", accountID, err)
	}
	return nil
}

// DeleteCursor removes an account's resume cursor. Deleting a missing
// cursor is not an error.
func (s *Store) DeleteCursor(ctx context.Context, accountID string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM cursors WHERE account_id = ?", accountID)
	if err != nil {
		return fmt.Errorf("delete cursor for %s: %w", accountID, err)
	}
	return nil
}

// LoadCursor returns the stored next page URL for an account, or
// ErrNotFound when the account starts fresh.
func (s *Store) LoadCursor(ctx context.Context, accountID string) (string, error) {
	var url string
	err := s.db.QueryRowContext(ctx,
		"SELECT next_page_url FROM cursors WHERE account_id = ?", accountID).Scan(&url)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("load cursor for %s: %w", accountID, err)
	}
	return url, nil
}

// Content returns the text of all stored posts, for corpus building.
// Posts carrying a content warning are excluded unless includeCW is set.
func (s *Store) Content(ctx context.Context, includeCW bool) ([]string, error) {
	query := "SELECT content FROM posts"
	if !includeCW {
		query += " WHERE content_warning IS NULL"
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var content string
		if err := rows.Scan(&content); err != nil {
			return nil, fmt.Errorf("scan content: %w", err)
		}
		out = append(out, content)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read corpus: %w", err)
	}
	return out, nil
}

// CountPosts returns the number of stored posts.
func (s *Store) CountPosts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&n); err != nil {
		return 0, fmt.Errorf("count posts: %w", err)
	}
	return n, nil
}

// CountPostsFor returns the number of stored posts for one account.
func (s *Store) CountPostsFor(ctx context.Context, accountID string) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM posts WHERE account_id = ?", accountID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count posts for %s: %w", accountID, err)
	}
	return n, nil
}

// Vacuum compacts the database. Run after a full fleet crawl.
func (s *Store) Vacuum(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM"); err != nil {
		return fmt.Errorf("vacuum: %w", err)
	}
	return nil
}

func cwValue(p Post) any {
	if !p.HasCW {
		return nil
	}
	return p.ContentWarning
}

func isUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.Code() == sqliteConstraintPrimaryKey || se.Code() == sqliteConstraintUnique
}
