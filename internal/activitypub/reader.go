package activitypub

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/astrikos/fedibooks/internal/metrics"
)

// Strategy is how an instance paginates its outbox. It is selected once
// from the outbox document, not re-derived per page.
type Strategy int

const (
	// StrategyFirstURL: first is a URL to the newest page; pages chain
	// through next links (Mastodon, Misskey).
	StrategyFirstURL Strategy = iota

	// StrategyEmbeddedFirst: first is the newest page embedded inline;
	// pages chain through next links (Pleroma).
	StrategyEmbeddedFirst
)

func (s Strategy) String() string {
	switch s {
	case StrategyFirstURL:
		return "first-url"
	case StrategyEmbeddedFirst:
		return "embedded-first"
	default:
		return "unknown"
	}
}

// SelectStrategy inspects the outbox document and picks the pagination
// strategy.
func SelectStrategy(outbox Outbox) Strategy {
	if isEmbeddedFirst(outbox) {
		return StrategyEmbeddedFirst
	}
	return StrategyFirstURL
}

func isEmbeddedFirst(outbox Outbox) bool {
	var s string
	return len(outbox.First) > 0 && json.Unmarshal(outbox.First, &s) != nil
}

// FirstPage fetches (or unwraps) the first page of the outbox according
// to the strategy.
func (c *Client) FirstPage(ctx context.Context, outbox Outbox, strategy Strategy) (Page, error) {
	switch strategy {
	case StrategyEmbeddedFirst:
		var doc pageDoc
		if err := json.Unmarshal(outbox.First, &doc); err != nil {
			return Page{}, fmt.Errorf("decode embedded first page: %w", err)
		}
		return Page{Activities: doc.OrderedItems, NextURL: doc.Next}, nil

	default:
		first, err := firstURL(outbox)
		if err != nil {
			return Page{}, err
		}
		return c.FetchPage(ctx, first)
	}
}

// FetchPage performs one GET and returns the page's activities in server
// order, plus the next page URL (empty on the terminal page).
func (c *Client) FetchPage(ctx context.Context, pageURL string) (Page, error) {
	var doc pageDoc
	if _, err := c.getJSON(ctx, pageURL, &doc); err != nil {
		return Page{}, fmt.Errorf("fetch page %s: %w", pageURL, err)
	}
	if host := hostOf(pageURL); host != "" {
		metrics.IncPageFetched(host)
	}
	c.logger.Debug("fetched outbox page",
		zap.String("url", pageURL),
		zap.Int("items", len(doc.OrderedItems)),
	)
	return Page{Activities: doc.OrderedItems, NextURL: doc.Next}, nil
}

func firstURL(outbox Outbox) (string, error) {
	var s string
	if err := json.Unmarshal(outbox.First, &s); err != nil {
		return "", fmt.Errorf("outbox %s: first is neither URL nor page", outbox.URL)
	}
	if s == "" {
		return "", fmt.Errorf("outbox %s: empty first page URL", outbox.URL)
	}
	return s, nil
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
