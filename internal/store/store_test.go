package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testPost(id string) Post {
	return Post{
		ID:          id,
		URI:         id,
		AccountID:   "someone@example.com",
		Content:     "hello fediverse",
		PublishedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestInsertPost_Idempotent(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	p := testPost("https://example.com/objects/1")
	require.NoError(t, s.InsertPost(ctx, p))

	// Every subsequent attempt is a duplicate, and the row count stays
	// at one.
	for i := 0; i < 3; i++ {
		err := s.InsertPost(ctx, p)
		require.ErrorIs(t, err, ErrDuplicate)
	}

	n, err := s.CountPosts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestInsertPost_DuplicateURI(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	p := testPost("https://example.com/objects/1")
	require.NoError(t, s.InsertPost(ctx, p))

	q := p
	q.ID = "https://example.com/objects/other"
	err := s.InsertPost(ctx, q)
	require.ErrorIs(t, err, ErrDuplicate)
}

func TestHasPost(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	ok, err := s.HasPost(ctx, "nope")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, s.InsertPost(ctx, testPost("yes")))
	ok, err = s.HasPost(ctx, "yes")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestBatch_FlushCommitsTogether(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	b := s.NewBatch("acc@example.com")
	for _, id := range []string{"p1", "p2", "p3"} {
		require.NoError(t, b.Insert(ctx, testPost(id)))
	}
	require.Equal(t, 3, b.Len())

	// Nothing visible until flush.
	n, err := s.CountPosts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 0, n)

	require.NoError(t, b.Flush(ctx))
	require.Equal(t, 0, b.Len())

	n, err = s.CountPosts(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 3, n)

	perAccount, err := s.CountPostsFor(ctx, "acc@example.com")
	require.NoError(t, err)
	require.EqualValues(t, 3, perAccount)
}

func TestBatch_DuplicateDetection(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	// Already-persisted post.
	require.NoError(t, s.InsertPost(ctx, testPost("stored")))

	b := s.NewBatch("acc@example.com")
	require.ErrorIs(t, b.Insert(ctx, testPost("stored")), ErrDuplicate)

	// Duplicate within the same unflushed batch.
	require.NoError(t, b.Insert(ctx, testPost("fresh")))
	require.ErrorIs(t, b.Insert(ctx, testPost("fresh")), ErrDuplicate)
}

func TestBatch_FlushEmpty(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	require.NoError(t, s.NewBatch("acc").Flush(context.Background()))
}

func TestCursorRoundTrip(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.LoadCursor(ctx, "acc")
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveCursor(ctx, "acc", "https://example.com/outbox?page=2"))
	url, err := s.LoadCursor(ctx, "acc")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/outbox?page=2", url)

	// Overwritten every crawl.
	require.NoError(t, s.SaveCursor(ctx, "acc", "https://example.com/outbox?page=5"))
	url, err = s.LoadCursor(ctx, "acc")
	require.NoError(t, err)
	require.Equal(t, "https://example.com/outbox?page=5", url)

	require.NoError(t, s.DeleteCursor(ctx, "acc"))
	_, err = s.LoadCursor(ctx, "acc")
	require.ErrorIs(t, err, ErrNotFound)

	// Deleting again is fine.
	require.NoError(t, s.DeleteCursor(ctx, "acc"))
}

func TestContent_CWFilter(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	ctx := context.Background()

	plain := testPost("plain")
	plain.Content = "no warning here"
	require.NoError(t, s.InsertPost(ctx, plain))

	warned := testPost("warned")
	warned.URI = "warned"
	warned.Content = "behind a warning"
	warned.HasCW = true
	warned.ContentWarning = "politics"
	require.NoError(t, s.InsertPost(ctx, warned))

	corpus, err := s.Content(ctx, false)
	require.NoError(t, err)
	require.Equal(t, []string{"no warning here"}, corpus)

	corpus, err = s.Content(ctx, true)
	require.NoError(t, err)
	require.Len(t, corpus, 2)
}

func TestVacuum(t *testing.T) {
	t.Parallel()
	s := openTestStore(t)
	require.NoError(t, s.Vacuum(context.Background()))
}

func TestIsUniqueViolation_OtherErrors(t *testing.T) {
	t.Parallel()
	require.False(t, isUniqueViolation(errors.New("disk I/O error")))
}
