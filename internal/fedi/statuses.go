package fedi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/google/uuid"
)

// StatusOpts are the optional fields of a new status.
type StatusOpts struct {
	InReplyToID string
	SpoilerText string
	Visibility  string // "", public, unlisted, private, direct
}

func validVisibility(v string) bool {
	switch v {
	case "", "public", "unlisted", "private", "direct":
		return true
	}
	return false
}

// CreateStatus posts a new status. Each submission carries a fresh
// Idempotency-Key so a retried request cannot double-post.
func (c *Client) CreateStatus(ctx context.Context, text string, opts StatusOpts) (Status, error) {
	if !validVisibility(opts.Visibility) {
		return Status{}, fmt.Errorf("invalid visibility %q", opts.Visibility)
	}

	form := url.Values{}
	form.Set("status", text)
	if opts.InReplyToID != "" {
		form.Set("in_reply_to_id", opts.InReplyToID)
	}
	if opts.SpoilerText != "" {
		form.Set("spoiler_text", opts.SpoilerText)
	}
	if opts.Visibility != "" {
		form.Set("visibility", opts.Visibility)
	}

	headers := map[string]string{"Idempotency-Key": uuid.NewString()}
	var status Status
	if err := c.request(ctx, http.MethodPost, "/api/v1/statuses", form, headers, &status); err != nil {
		return Status{}, err
	}
	return status, nil
}

// Reply posts a response to a status, mentioning its author and every
// other participant, inheriting visibility, and prefixing the content
// warning with "re: " when the parent had one.
func (c *Client) Reply(ctx context.Context, to Status, text, cw string) (Status, error) {
	meID, err := c.MeID(ctx)
	if err != nil {
		return Status{}, err
	}

	mentioned := []string{to.Account.Acct}
	seen := map[string]struct{}{to.Account.ID: {}}
	for _, m := range to.Mentions {
		if m.ID == meID {
			continue
		}
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		mentioned = append(mentioned, m.Acct)
	}

	body := ""
	for _, acct := range mentioned {
		body += "@" + acct + " "
	}
	body += text

	if cw == "" && to.SpoilerText != "" {
		cw = "re: " + to.SpoilerText
	}

	return c.CreateStatus(ctx, body, StatusOpts{
		InReplyToID: to.ID,
		SpoilerText: cw,
		Visibility:  to.Visibility,
	})
}

// React adds an emoji reaction to a status (Pleroma extension API).
func (c *Client) React(ctx context.Context, statusID, emoji string) error {
	path := fmt.Sprintf("/api/v1/pleroma/statuses/%s/reactions/%s",
		url.PathEscape(statusID), url.PathEscape(emoji))
	return c.request(ctx, http.MethodPut, path, nil, nil, nil)
}

// Pin pins a status to the bot's profile.
func (c *Client) Pin(ctx context.Context, statusID string) error {
	path := fmt.Sprintf("/api/v1/statuses/%s/pin", url.PathEscape(statusID))
	return c.request(ctx, http.MethodPost, path, url.Values{}, nil, nil)
}

// Unpin removes a pinned status.
func (c *Client) Unpin(ctx context.Context, statusID string) error {
	path := fmt.Sprintf("/api/v1/statuses/%s/unpin", url.PathEscape(statusID))
	return c.request(ctx, http.MethodPost, path, url.Values{}, nil, nil)
}
