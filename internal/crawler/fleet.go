package crawler

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/astrikos/fedibooks/internal/activitypub"
	"github.com/astrikos/fedibooks/internal/metrics"
)

// Fleet fans the coordinator out over every followed account.
type Fleet struct {
	coordinator *Coordinator
	concurrency int
	blacklisted func(instance string) bool
	logger      *zap.Logger
}

// NewFleet builds a Fleet. blacklisted may be nil; concurrency below one
// is clamped.
func NewFleet(coordinator *Coordinator, concurrency int, blacklisted func(string) bool, logger *zap.Logger) *Fleet {
	if concurrency < 1 {
		concurrency = 1
	}
	if blacklisted == nil {
		blacklisted = func(string) bool { return false }
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fleet{
		coordinator: coordinator,
		concurrency: concurrency,
		blacklisted: blacklisted,
		logger:      logger,
	}
}

// Run crawls every account concurrently and returns the accounts whose
// crawls failed. One account's failure never aborts its siblings; an
// interrupt (context cancellation) is not counted as a failure.
func (f *Fleet) Run(ctx context.Context, accounts []string) []AccountError {
	var (
		mu     sync.Mutex
		failed []AccountError
	)

	var g errgroup.Group
	g.SetLimit(f.concurrency)

	for _, account := range accounts {
		if f.skip(account) {
			continue
		}
		g.Go(func() error {
			err := f.coordinator.CrawlAccount(ctx, account)
			switch {
			case err == nil:
				metrics.IncAccount("ok")
			case errors.Is(err, context.Canceled):
				f.logger.Info("account crawl interrupted", zap.String("account", account))
			default:
				f.logger.Error("account crawl failed", zap.String("account", account), zap.Error(err))
				metrics.IncAccount("error")
				mu.Lock()
				failed = append(failed, AccountError{Account: account, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}

	_ = g.Wait() // goroutines report through the failed list
	return failed
}

func (f *Fleet) skip(account string) bool {
	h, err := activitypub.ParseHandle(account)
	if err != nil {
		// Let the coordinator surface the malformed handle as an
		// account error.
		return false
	}
	if f.blacklisted(h.Instance) {
		f.logger.Info("skipping blacklisted instance",
			zap.String("account", account),
			zap.String("instance", h.Instance),
		)
		metrics.IncAccount("skipped")
		return true
	}
	return false
}
