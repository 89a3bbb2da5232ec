package fedi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const reconnectDelay = 5 * time.Second

// StreamMentions subscribes to the instance's user stream over websocket
// and delivers mention notifications until the context is cancelled. The
// returned channel is closed when the context ends; transient connection
// failures reconnect automatically.
func (c *Client) StreamMentions(ctx context.Context) (<-chan Notification, error) {
	wsURL, err := c.streamingURL()
	if err != nil {
		return nil, err
	}

	out := make(chan Notification)
	go func() {
		defer close(out)
		for {
			if err := c.readStream(ctx, wsURL, out); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Warn("mention stream disconnected, reconnecting", zap.Error(err))
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(reconnectDelay):
			}
		}
	}()
	return out, nil
}

func (c *Client) streamingURL() (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse base url: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/api/v1/streaming"
	q := u.Query()
	q.Set("access_token", c.token)
	q.Set("stream", "user")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// streamFrame is one websocket message from the streaming API. Payload is
// a JSON document encoded as a string.
type streamFrame struct {
	Event   string `json:"event"`
	Payload string `json:"payload"`
}

func (c *Client) readStream(ctx context.Context, wsURL string, out chan<- Notification) error {
	header := http.Header{"User-Agent": []string{c.userAgent}}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		return fmt.Errorf("dial streaming api: %w", err)
	}
	defer conn.Close()

	// Unblock ReadMessage when the context is cancelled.
	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	c.logger.Info("connected to mention stream")

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read stream message: %w", err)
		}

		var frame streamFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.logger.Warn("undecodable stream frame", zap.Error(err))
			continue
		}
		if frame.Event != "notification" {
			continue
		}

		var n Notification
		if err := json.Unmarshal([]byte(frame.Payload), &n); err != nil {
			c.logger.Warn("undecodable notification payload", zap.Error(err))
			continue
		}
		if n.Type != "mention" || n.Status == nil {
			continue
		}

		select {
		case out <- n:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
