package activitypub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ErrTransient wraps network-level failures that were retried and still
// failed. They are fatal for the affected account only.
var ErrTransient = errors.New("transient network error")

// Config controls the remote-fetching client.
type Config struct {
	UserAgent  string
	MaxRetries int
	Backoff    time.Duration
}

// Client performs discovery and page fetches against remote instances.
// The underlying http.Client is expected to carry the rate-limit
// transport so every GET observes the shared backoff.
type Client struct {
	http   *http.Client
	cfg    Config
	logger *zap.Logger
}

// NewClient builds a Client around httpClient.
func NewClient(httpClient *http.Client, cfg Config, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 250 * time.Millisecond
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{http: httpClient, cfg: cfg, logger: logger}
}

// getJSON fetches url and decodes the body into v, retrying transient
// failures a bounded number of times. It reports the response content
// type so callers can detect non-JSON answers.
func (c *Client) getJSON(ctx context.Context, url string, v any) (contentType string, err error) {
	var lastErr error
	for attempt := 0; attempt <= c.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := c.cfg.Backoff * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
			c.logger.Debug("retrying fetch", zap.String("url", url), zap.Int("attempt", attempt))
		}

		ct, retryable, err := c.getJSONOnce(ctx, url, v)
		if err == nil {
			return ct, nil
		}
		if !retryable || ctx.Err() != nil {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("%w: %v", ErrTransient, lastErr)
}

func (c *Client) getJSONOnce(ctx context.Context, url string, v any) (contentType string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", false, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", JSONContentType+", "+ActivityPubContentType)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		io.Copy(io.Discard, resp.Body)
		return "", true, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", false, fmt.Errorf("get %s: status %d", url, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if !strings.Contains(ct, "json") {
		// Callers decide whether a non-JSON answer is fatal.
		io.Copy(io.Discard, resp.Body)
		return ct, false, nil
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return ct, false, fmt.Errorf("decode %s: %w", url, err)
	}
	return ct, false, nil
}
