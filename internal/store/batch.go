package store

import (
	"context"
	"fmt"
)

// Batch buffers one account's inserts so they commit together in a single
// transaction at the end of the crawl. Insert checks the same UNIQUE keys
// the schema enforces, so a duplicate surfaces immediately rather than at
// flush time.
//
// A Batch is owned by one crawl and is not safe for concurrent use.
type Batch struct {
	store     *Store
	accountID string
	pending   []Post
	seen      map[string]struct{}
}

// NewBatch starts an insert buffer for one account's crawl.
func (s *Store) NewBatch(accountID string) *Batch {
	return &Batch{
		store:     s,
		accountID: accountID,
		seen:      make(map[string]struct{}),
	}
}

// Insert buffers a post for the batch's account. Returns ErrDuplicate when
// the post is already stored or already buffered.
func (b *Batch) Insert(ctx context.Context, p Post) error {
	if _, ok := b.seen[p.ID]; ok {
		return ErrDuplicate
	}
	exists, err := b.store.HasPost(ctx, p.ID)
	if err != nil {
		return err
	}
	if exists {
		return ErrDuplicate
	}
	p.AccountID = b.accountID
	b.pending = append(b.pending, p)
	b.seen[p.ID] = struct{}{}
	return nil
}

// Len returns the number of buffered posts.
func (b *Batch) Len() int {
	return len(b.pending)
}

// Flush writes all buffered posts in one transaction and clears the
// buffer. Safe to call with an empty buffer. Callers shield this from
// crawl cancellation so already-fetched posts are not lost on shutdown.
func (b *Batch) Flush(ctx context.Context) error {
	if len(b.pending) == 0 {
		return nil
	}

	tx, err := b.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin batch for %s: %w", b.accountID, err)
	}
	defer tx.Rollback()

	for _, p := range b.pending {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO posts (post_id, content_warning, account_id, uri, content, published_at)
			 VALUES (?, ?, ?, ?, ?, ?)`,
			p.ID, cwValue(p), p.AccountID, p.URI, p.Content, p.PublishedAt.Unix(),
		)
		if err != nil {
			if isUniqueViolation(err) {
				// Raced with another crawl on the same post; the store
				// already holds it, which is what we wanted.
				continue
			}
			return fmt.Errorf("flush post %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch for %s: %w", b.accountID, err)
	}
	b.pending = nil
	return nil
}
