package activitypub

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedHandle is returned for handles that are not exactly
// user@instance.
var ErrMalformedHandle = errors.New("malformed handle")

// Handle is a fully-qualified fediverse account name.
type Handle struct {
	Username string
	Instance string
}

// ParseHandle splits user@instance, tolerating one leading @.
func ParseHandle(s string) (Handle, error) {
	trimmed := strings.TrimPrefix(s, "@")
	parts := strings.Split(trimmed, "@")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return Handle{}, fmt.Errorf("%w: %q", ErrMalformedHandle, s)
	}
	return Handle{Username: parts[0], Instance: parts[1]}, nil
}

func (h Handle) String() string {
	return h.Username + "@" + h.Instance
}
