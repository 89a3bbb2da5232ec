package ratelimit

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func get(t *testing.T, client *http.Client, url string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	resp.Body.Close()
}

func TestRoundTrip_HonorsResetHeader(t *testing.T) {
	t.Parallel()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", time.Now().Add(300*time.Millisecond).Format(time.RFC3339Nano))
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(nil, Config{})}

	get(t, client, srv.URL)
	start := time.Now()
	get(t, client, srv.URL)
	require.GreaterOrEqual(t, time.Since(start), 200*time.Millisecond,
		"second request should wait for the advertised reset")
	require.Equal(t, int32(2), hits.Load())
}

func TestRoundTrip_HealthyBudgetDoesNotDelay(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "100")
		w.Header().Set("X-RateLimit-Reset", time.Now().Add(time.Hour).Format(time.RFC3339))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(nil, Config{})}

	start := time.Now()
	for i := 0; i < 3; i++ {
		get(t, client, srv.URL)
	}
	require.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestHostsThrottledIndependently(t *testing.T) {
	t.Parallel()
	tr := New(nil, Config{})

	// Exhaust one host's budget an hour out.
	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Remaining", "0")
	resp.Header.Set("X-RateLimit-Reset", time.Now().Add(time.Hour).Format(time.RFC3339))
	tr.observeHeaders("busy.example", resp)

	// The other host sails through while the busy one would block.
	start := time.Now()
	require.NoError(t, tr.waitForWindow(context.Background(), "quiet.example"))
	require.Less(t, time.Since(start), 200*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	require.Error(t, tr.waitForWindow(ctx, "busy.example"))
}

func TestRoundTrip_CanceledWhileWaiting(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", time.Now().Add(time.Hour).Format(time.RFC3339))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := &http.Client{Transport: New(nil, Config{})}
	get(t, client, srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = client.Do(req)
	require.Error(t, err)
	require.Less(t, time.Since(start), time.Second,
		"cancellation should cut the hour-long window short")
}

func TestObserveHeaders_IgnoresGarbage(t *testing.T) {
	t.Parallel()
	tr := New(nil, Config{})

	resp := &http.Response{Header: http.Header{}}
	resp.Header.Set("X-RateLimit-Remaining", "soon")
	resp.Header.Set("X-RateLimit-Reset", time.Now().Add(time.Hour).Format(time.RFC3339))
	tr.observeHeaders("example.com", resp)

	resp.Header.Set("X-RateLimit-Remaining", "0")
	resp.Header.Set("X-RateLimit-Reset", "five minutes from now")
	tr.observeHeaders("example.com", resp)

	require.Empty(t, tr.resumeAt)
}
