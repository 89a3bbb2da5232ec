package fedi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// streamServer upgrades one websocket connection and pushes canned
// frames at it.
func streamServer(t *testing.T, frames []string, query chan<- string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if query != nil {
			query <- r.URL.RawQuery
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func frame(t *testing.T, event string, payload any) string {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	out, err := json.Marshal(streamFrame{Event: event, Payload: string(raw)})
	require.NoError(t, err)
	return string(out)
}

func TestStreamMentions_DeliversMentionsOnly(t *testing.T) {
	t.Parallel()
	mentionNote := Notification{
		Type:    "mention",
		Account: Account{ID: "a-1", Acct: "alice"},
		Status:  &Status{ID: "s-1", Content: "<p>@ebooks hi</p>"},
	}
	frames := []string{
		frame(t, "update", Status{ID: "noise"}),
		frame(t, "notification", Notification{Type: "favourite", Account: Account{ID: "a-2"}}),
		frame(t, "notification", mentionNote),
		`not even json`,
	}
	srv := streamServer(t, frames, nil)

	c := New(srv.URL, "test-token", "fedibooks-test", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := c.StreamMentions(ctx)
	require.NoError(t, err)

	select {
	case n := <-out:
		require.Equal(t, "mention", n.Type)
		require.Equal(t, "alice", n.Account.Acct)
		require.Equal(t, "s-1", n.Status.ID)
	case <-time.After(5 * time.Second):
		t.Fatal("no mention delivered")
	}

	// Cancellation closes the channel.
	cancel()
	select {
	case _, open := <-out:
		require.False(t, open)
	case <-time.After(5 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}

func TestStreamMentions_SubscribesToUserStream(t *testing.T) {
	t.Parallel()
	query := make(chan string, 1)
	srv := streamServer(t, nil, query)

	c := New(srv.URL, "test-token", "fedibooks-test", nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := c.StreamMentions(ctx)
	require.NoError(t, err)

	select {
	case q := <-query:
		require.Contains(t, q, "stream=user")
		require.Contains(t, q, "access_token=test-token")
	case <-time.After(5 * time.Second):
		t.Fatal("no websocket connection attempted")
	}
}

func TestStreamingURL(t *testing.T) {
	t.Parallel()
	c := New("https://botsin.space", "tok", "ua", nil, nil)
	got, err := c.streamingURL()
	require.NoError(t, err)
	require.Equal(t, "wss://botsin.space/api/v1/streaming?access_token=tok&stream=user", got)

	c = New("http://onion.example", "tok", "ua", nil, nil)
	got, err = c.streamingURL()
	require.NoError(t, err)
	require.Equal(t, "ws://onion.example/api/v1/streaming?access_token=tok&stream=user", got)

	c = New("ftp://nope", "tok", "ua", nil, nil)
	_, err = c.streamingURL()
	require.Error(t, err)
}
