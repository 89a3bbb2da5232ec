// Package activitypub implements WebFinger actor discovery and paginated
// outbox reading against remote instances.
package activitypub

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Content types involved in actor discovery.
const (
	JSONContentType        = "application/json"
	ActivityPubContentType = "application/activity+json"
)

// ActivityCreate is the only activity type that represents a publishable
// post. Everything else (Announce, Like, Follow, ...) is ignored.
const ActivityCreate = "Create"

// Activity is one entry of an outbox page. Object stays raw because for
// non-Create activities it is often just a URI string.
type Activity struct {
	Type   string          `json:"type"`
	Object json.RawMessage `json:"object"`
}

// Object is the post payload of a Create activity.
type Object struct {
	ID         string            `json:"id"`
	Content    string            `json:"content"`
	Summary    *string           `json:"summary"`
	Published  string            `json:"published"`
	ContentMap map[string]string `json:"contentMap"`
}

// Post decodes the activity's object. Only meaningful for Create
// activities.
func (a Activity) Post() (Object, error) {
	var obj Object
	if err := json.Unmarshal(a.Object, &obj); err != nil {
		return Object{}, fmt.Errorf("decode activity object: %w", err)
	}
	return obj, nil
}

// PublishedAt parses the object's published timestamp.
func (o Object) PublishedAt() (time.Time, error) {
	t, err := time.Parse(time.RFC3339, o.Published)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse published %q: %w", o.Published, err)
	}
	return t.UTC(), nil
}

// InLanguage reports whether the object's contentMap carries lang. An
// empty lang matches everything.
func (o Object) InLanguage(lang string) bool {
	if lang == "" {
		return true
	}
	_, ok := o.ContentMap[lang]
	return ok
}

// Outbox is the top-level OrderedCollection document. First is raw
// because Mastodon serves a page URL while Pleroma embeds the first page
// inline.
type Outbox struct {
	ID    string          `json:"id"`
	Type  string          `json:"type"`
	First json.RawMessage `json:"first"`

	// URL is the address the outbox was fetched from, kept for
	// instances that omit their own id.
	URL string `json:"-"`
}

// Page is one fetched slice of an outbox. NextURL is empty on the
// terminal page.
type Page struct {
	Activities []Activity
	NextURL    string
}

type pageDoc struct {
	Type         string     `json:"type"`
	OrderedItems []Activity `json:"orderedItems"`
	Next         string     `json:"next"`
	Prev         string     `json:"prev"`
}

// matchesActivityPub reports whether ct names the ActivityPub media type,
// allowing a ;charset=... style suffix.
func matchesActivityPub(ct string) bool {
	return ct == ActivityPubContentType || strings.HasPrefix(ct, ActivityPubContentType+";")
}
