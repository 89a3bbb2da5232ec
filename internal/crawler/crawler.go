// Package crawler orchestrates per-account outbox crawls: actor
// resolution, concurrent fetch and ingest stages, convergence detection,
// and fleet-wide fan-out over every followed account.
package crawler

import (
	"context"

	"github.com/astrikos/fedibooks/internal/activitypub"
	"github.com/astrikos/fedibooks/internal/store"
)

// Resolver discovers an actor's outbox from a fully-qualified handle.
type Resolver interface {
	Resolve(ctx context.Context, handle string) (activitypub.Outbox, error)
}

// PageReader produces outbox pages in server order.
type PageReader interface {
	FirstPage(ctx context.Context, outbox activitypub.Outbox, strategy activitypub.Strategy) (activitypub.Page, error)
	FetchPage(ctx context.Context, pageURL string) (activitypub.Page, error)
}

// Inserter buffers one account's posts for a single commit.
type Inserter interface {
	// Insert buffers a post, returning store.ErrDuplicate when it is
	// already persisted.
	Insert(ctx context.Context, p store.Post) error
	// Flush commits the buffered posts. Callers run it shielded from
	// crawl cancellation.
	Flush(ctx context.Context) error
	Len() int
}

// Store is the slice of the persistence layer the coordinator touches.
type Store interface {
	Begin(accountID string) Inserter
	SaveCursor(ctx context.Context, accountID, nextPageURL string) error
	LoadCursor(ctx context.Context, accountID string) (string, error)
	DeleteCursor(ctx context.Context, accountID string) error
}

// ExtractFunc converts a post's HTML body into plain text.
type ExtractFunc func(html string) (string, error)

// SQLStore adapts *store.Store to the Store port.
type SQLStore struct {
	*store.Store
}

// Begin starts an insert batch for one account.
func (s SQLStore) Begin(accountID string) Inserter {
	return s.NewBatch(accountID)
}

// AccountError pairs a handle with the failure that ended its crawl.
type AccountError struct {
	Account string
	Err     error
}

func (e AccountError) Error() string {
	return e.Account + ": " + e.Err.Error()
}

func (e AccountError) Unwrap() error {
	return e.Err
}
