package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/astrikos/fedibooks/internal/activitypub"
	"github.com/astrikos/fedibooks/internal/metrics"
	"github.com/astrikos/fedibooks/internal/store"
)

// Config controls one account crawl.
type Config struct {
	// Lang, when set, restricts ingestion to posts whose contentMap
	// carries that language.
	Lang string
	// UseCursor resumes an interrupted history walk from the saved
	// page URL instead of the newest page. Convergence never depends
	// on it: a fresh crawl stops at the first duplicate regardless.
	UseCursor bool
	// FlushTimeout bounds the shielded final commit.
	FlushTimeout time.Duration
}

// Coordinator runs the fetch and insert stages for one account at a
// time: Resolving → Streaming → Draining → Done.
type Coordinator struct {
	resolver Resolver
	reader   PageReader
	store    Store
	extract  ExtractFunc
	cfg      Config
	logger   *zap.Logger
}

// NewCoordinator wires the crawl stages together.
func NewCoordinator(resolver Resolver, reader PageReader, st Store, extract ExtractFunc, cfg Config, logger *zap.Logger) *Coordinator {
	if cfg.FlushTimeout <= 0 {
		cfg.FlushTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		resolver: resolver,
		reader:   reader,
		store:    st,
		extract:  extract,
		cfg:      cfg,
		logger:   logger,
	}
}

// producerState is the producer's progress, shared with the coordinator
// for cursor bookkeeping and failure reporting. The completion signal
// itself is the page channel closing.
type producerState struct {
	mu        sync.Mutex
	nextURL   string
	exhausted bool
	err       error
}

func (p *producerState) setNext(url string) {
	p.mu.Lock()
	p.nextURL = url
	p.mu.Unlock()
}

func (p *producerState) markExhausted() {
	p.mu.Lock()
	p.exhausted = true
	p.mu.Unlock()
}

func (p *producerState) setErr(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

func (p *producerState) snapshot() (nextURL string, exhausted bool, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.nextURL, p.exhausted, p.err
}

// CrawlAccount crawls one account's outbox until it converges on
// already-ingested posts, the history is exhausted, or the crawl fails.
// The final batch commit runs even when ctx is already cancelled.
func (c *Coordinator) CrawlAccount(ctx context.Context, handle string) error {
	log := c.logger.With(zap.String("account", handle))

	// Resolving.
	outbox, resolveErr := c.resolver.Resolve(ctx, handle)
	if resolveErr != nil {
		return resolveErr
	}

	// Streaming: the producer fetches pages, the consumer inserts. The
	// handoff is page-granular and verdict-gated: the producer does not
	// fetch page k+1 until the consumer has worked through page k, so a
	// duplicate anywhere on a page means the next GET never happens.
	crawlCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	batch := c.store.Begin(handle)
	pages := make(chan activitypub.Page)
	verdicts := make(chan bool, 1)
	prod := &producerState{}
	prodDone := make(chan struct{})

	go c.produce(crawlCtx, handle, outbox, pages, verdicts, prodDone, prod, log)

	converged, consumeErr := c.consume(crawlCtx, pages, verdicts, batch, log)

	// Draining: whichever side finished first, stop the sibling and
	// wait for it. The producer observes cancellation at its next send
	// or fetch, so this join is bounded.
	cancel()
	<-prodDone

	// Done: the final save is shielded so already-fetched posts survive
	// an interrupt.
	flushCtx, cancelFlush := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.FlushTimeout)
	defer cancelFlush()

	saved := batch.Len()
	if flushErr := batch.Flush(flushCtx); flushErr != nil {
		return flushErr
	}

	nextURL, exhausted, prodErr := prod.snapshot()
	c.updateCursor(flushCtx, handle, nextURL, converged || exhausted, log)

	if consumeErr != nil {
		return consumeErr
	}
	if prodErr != nil {
		return prodErr
	}
	log.Info("account crawl finished",
		zap.Int("saved", saved),
		zap.Bool("converged", converged),
		zap.Bool("exhausted", exhausted),
	)
	return ctx.Err()
}

// updateCursor persists the resume position for an interrupted history
// walk and clears it once a crawl converges.
func (c *Coordinator) updateCursor(ctx context.Context, handle, nextURL string, complete bool, log *zap.Logger) {
	var err error
	if complete || nextURL == "" {
		err = c.store.DeleteCursor(ctx, handle)
	} else {
		err = c.store.SaveCursor(ctx, handle, nextURL)
	}
	if err != nil {
		log.Warn("cursor update failed", zap.Error(err))
	}
}

// produce drives the page reader, handing each page to the consumer in
// server order and waiting for its verdict before fetching deeper. The
// channel close is the completion signal either way, so the consumer is
// never left waiting; fetch failures are kept in st so the account is
// still marked erroneous after the shielded flush.
func (c *Coordinator) produce(
	ctx context.Context,
	handle string,
	outbox activitypub.Outbox,
	out chan<- activitypub.Page,
	verdicts <-chan bool,
	done chan<- struct{},
	st *producerState,
	log *zap.Logger,
) {
	defer close(done)
	defer close(out)

	page, err := c.firstPage(ctx, handle, outbox)
	for {
		if err != nil {
			if ctx.Err() == nil {
				log.Warn("outbox fetch failed", zap.Error(err))
				st.setErr(err)
			}
			return
		}
		st.setNext(page.NextURL)

		select {
		case out <- page:
		case <-ctx.Done():
			return
		}

		if page.NextURL == "" {
			st.markExhausted()
			return
		}

		// The consumer closes verdicts (read as false) when it is done,
		// converged or otherwise.
		select {
		case keepGoing := <-verdicts:
			if !keepGoing {
				return
			}
		case <-ctx.Done():
			return
		}
		page, err = c.reader.FetchPage(ctx, page.NextURL)
	}
}

func (c *Coordinator) firstPage(ctx context.Context, handle string, outbox activitypub.Outbox) (activitypub.Page, error) {
	if c.cfg.UseCursor {
		resumeURL, err := c.store.LoadCursor(ctx, handle)
		if err == nil {
			return c.reader.FetchPage(ctx, resumeURL)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return activitypub.Page{}, err
		}
	}
	strategy := activitypub.SelectStrategy(outbox)
	return c.reader.FirstPage(ctx, outbox, strategy)
}

// ingestOutcome is the consumer's per-activity verdict, checked
// explicitly at each iteration.
type ingestOutcome int

const (
	ingestContinue ingestOutcome = iota
	ingestCaughtUp
	ingestFailed
)

// consume works through pages until the producer closes the channel or a
// duplicate shows the crawl is caught up. Converged duplicates are the
// expected terminal condition, not an error; any other storage failure
// propagates.
func (c *Coordinator) consume(ctx context.Context, in <-chan activitypub.Page, verdicts chan<- bool, batch Inserter, log *zap.Logger) (converged bool, err error) {
	defer close(verdicts)
	for page := range in {
		for _, act := range page.Activities {
			outcome, ingestErr := c.ingest(ctx, act, batch, log)
			switch outcome {
			case ingestCaughtUp:
				return true, nil
			case ingestFailed:
				return false, ingestErr
			}
		}
		// Buffered by one, and the producer takes the verdict before
		// handing over the next page, so this never blocks.
		verdicts <- true
	}
	return false, nil
}

func (c *Coordinator) ingest(ctx context.Context, act activitypub.Activity, batch Inserter, log *zap.Logger) (ingestOutcome, error) {
	if act.Type != activitypub.ActivityCreate {
		// Boosts, likes, follows and such never reach the store.
		metrics.IncPostIngested("skipped")
		return ingestContinue, nil
	}

	obj, err := act.Post()
	if err != nil {
		log.Warn("undecodable post object", zap.Error(err))
		metrics.IncPostIngested("skipped")
		return ingestContinue, nil
	}
	if !obj.InLanguage(c.cfg.Lang) {
		metrics.IncPostIngested("skipped")
		return ingestContinue, nil
	}

	text, err := c.extract(obj.Content)
	if err != nil {
		log.Warn("text extraction failed", zap.String("post", obj.ID), zap.Error(err))
		metrics.IncPostIngested("skipped")
		return ingestContinue, nil
	}

	published, err := obj.PublishedAt()
	if err != nil {
		log.Warn("unparsable publish time", zap.String("post", obj.ID), zap.Error(err))
		metrics.IncPostIngested("skipped")
		return ingestContinue, nil
	}

	post := store.Post{
		ID:          obj.ID,
		URI:         obj.ID,
		Content:     text,
		PublishedAt: published,
	}
	if obj.Summary != nil && *obj.Summary != "" {
		post.HasCW = true
		post.ContentWarning = *obj.Summary
	}

	switch err := batch.Insert(ctx, post); {
	case errors.Is(err, store.ErrDuplicate):
		// We have caught up on this account's history.
		metrics.IncPostIngested("duplicate")
		return ingestCaughtUp, nil
	case err != nil:
		return ingestFailed, err
	default:
		metrics.IncPostIngested("inserted")
		return ingestContinue, nil
	}
}
