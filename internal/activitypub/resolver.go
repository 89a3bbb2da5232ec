package activitypub

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"
)

var (
	// ErrResolution is returned when WebFinger or profile lookup fails
	// to produce an outbox.
	ErrResolution = errors.New("actor resolution failed")

	// ErrUnexpectedResourceType is returned when the resolved outbox is
	// not an OrderedCollection.
	ErrUnexpectedResourceType = errors.New("outbox is not an OrderedCollection")
)

type webfingerLink struct {
	Rel  string `json:"rel"`
	Type string `json:"type"`
	Href string `json:"href"`
}

type webfingerDoc struct {
	Links []webfingerLink `json:"links"`
}

type actorProfile struct {
	Outbox string `json:"outbox"`
}

// Resolve turns a fully-qualified handle into the actor's outbox
// document: WebFinger discovery, profile fetch, outbox fetch.
func (c *Client) Resolve(ctx context.Context, handle string) (Outbox, error) {
	h, err := ParseHandle(handle)
	if err != nil {
		return Outbox{}, err
	}

	profileURL, err := c.finger(ctx, h)
	if err != nil {
		return Outbox{}, err
	}

	outboxURL, err := c.outboxURL(ctx, profileURL)
	if err != nil {
		return Outbox{}, err
	}

	var outbox Outbox
	if _, err := c.getJSON(ctx, outboxURL, &outbox); err != nil {
		return Outbox{}, fmt.Errorf("%w: fetch outbox for %s: %v", ErrResolution, h, err)
	}
	if outbox.Type != "OrderedCollection" {
		return Outbox{}, fmt.Errorf("%w: got %q for %s", ErrUnexpectedResourceType, outbox.Type, h)
	}
	outbox.URL = outboxURL
	c.logger.Debug("resolved actor", zap.String("handle", h.String()), zap.String("outbox", outboxURL))
	return outbox, nil
}

// finger queries WebFinger for the actor's profile URL. Plain HTTP is
// intentional: .onion instances often have no TLS, and WebFinger lives at
// a fixed path regardless.
func (c *Client) finger(ctx context.Context, h Handle) (string, error) {
	resource := url.QueryEscape(fmt.Sprintf("acct:%s@%s", h.Username, h.Instance))
	fingerURL := fmt.Sprintf("http://%s/.well-known/webfinger?resource=%s", h.Instance, resource)

	var doc webfingerDoc
	if _, err := c.getJSON(ctx, fingerURL, &doc); err != nil {
		return "", fmt.Errorf("%w: webfinger %s: %v", ErrResolution, h, err)
	}

	// Servers may return several self links (clearnet and onion, say);
	// there is no reliable rule for picking the canonical one, so the
	// first acceptable link wins.
	for _, link := range doc.Links {
		if link.Rel == "self" && matchesActivityPub(link.Type) {
			return link.Href, nil
		}
	}
	return "", fmt.Errorf("%w: no self link for %s", ErrResolution, h)
}

// outboxURL fetches the actor profile and reads its outbox field. A
// non-JSON profile answer falls back to appending /outbox.
func (c *Client) outboxURL(ctx context.Context, profileURL string) (string, error) {
	var profile actorProfile
	ct, err := c.getJSON(ctx, profileURL, &profile)
	if err != nil {
		return "", fmt.Errorf("%w: fetch profile %s: %v", ErrResolution, profileURL, err)
	}
	if !strings.Contains(ct, "json") {
		return strings.TrimSuffix(profileURL, "/") + "/outbox", nil
	}
	if profile.Outbox == "" {
		return "", fmt.Errorf("%w: profile %s has no outbox", ErrResolution, profileURL)
	}
	return profile.Outbox, nil
}
