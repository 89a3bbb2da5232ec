// Package fedi is a client for the host instance's Mastodon-compatible
// API: credentials, follows, posting, reactions, and the mention
// notification stream.
package fedi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Client talks to one instance with a bearer token.
type Client struct {
	baseURL   string
	token     string
	userAgent string
	http      *http.Client
	logger    *zap.Logger

	meID string // cached after VerifyCredentials
}

// New creates a Client for the instance at baseURL. A nil httpClient
// gets a default with a sane timeout.
func New(baseURL, accessToken, userAgent string, httpClient *http.Client, logger *zap.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     accessToken,
		userAgent: userAgent,
		http:      httpClient,
		logger:    logger,
	}
}

// request performs one API call. form is sent urlencoded for
// POST/PUT; out may be nil when the response body is irrelevant.
func (c *Client) request(ctx context.Context, method, path string, form url.Values, headers map[string]string, out any) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("User-Agent", c.userAgent)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// VerifyCredentials returns the logged-in account and caches its ID.
func (c *Client) VerifyCredentials(ctx context.Context) (Account, error) {
	var me Account
	if err := c.request(ctx, http.MethodGet, "/api/v1/accounts/verify_credentials", nil, nil, &me); err != nil {
		return Account{}, err
	}
	c.meID = me.ID
	return me, nil
}

// MeID returns the logged-in account ID, verifying credentials on first
// use.
func (c *Client) MeID(ctx context.Context) (string, error) {
	if c.meID != "" {
		return c.meID, nil
	}
	me, err := c.VerifyCredentials(ctx)
	if err != nil {
		return "", err
	}
	return me.ID, nil
}

// Following lists the accounts the given account follows; an empty
// accountID means the logged-in account.
func (c *Client) Following(ctx context.Context, accountID string) ([]Account, error) {
	if accountID == "" {
		id, err := c.MeID(ctx)
		if err != nil {
			return nil, err
		}
		accountID = id
	}
	var accounts []Account
	path := fmt.Sprintf("/api/v1/accounts/%s/following", url.PathEscape(accountID))
	if err := c.request(ctx, http.MethodGet, path, nil, nil, &accounts); err != nil {
		return nil, err
	}
	return accounts, nil
}

// StatusContext fetches the thread around a status.
func (c *Client) StatusContext(ctx context.Context, statusID string) (Context, error) {
	var sc Context
	path := fmt.Sprintf("/api/v1/statuses/%s/context", url.PathEscape(statusID))
	if err := c.request(ctx, http.MethodGet, path, nil, nil, &sc); err != nil {
		return Context{}, err
	}
	return sc, nil
}
