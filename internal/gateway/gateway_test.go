// ABOUTME: Tests for the outbound HTTP gateway using httptest servers.
// ABOUTME: Covers success, remote errors, retry-once behavior, and timeouts.

package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCallSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "42", r.URL.Query().Get("answer"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	params := url.Values{"answer": []string{"42"}}
	body, err := c.Call(context.Background(), srv.URL, params)
	require.NoError(t, err)
	assert.JSONEq(t, `{"ok":true}`, string(body))
}

func TestCallRemoteErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	_, err := c.Call(context.Background(), srv.URL, nil)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusInternalServerError, remote.Status)
	assert.Equal(t, int32(1), calls.Load(), "status responses must not be retried")
}

func TestCallClientErrorNotRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	_, err := c.Call(context.Background(), srv.URL, nil)

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, http.StatusNotFound, remote.Status)
}

func TestCallRetriesTransientFailureOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Kill the connection mid-request to simulate a reset
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte(`{"recovered":true}`))
	}))
	defer srv.Close()

	c := NewClient(2 * time.Second)
	body, err := c.Call(context.Background(), srv.URL, nil)
	require.NoError(t, err)
	assert.JSONEq(t, `{"recovered":true}`, string(body))
	assert.Equal(t, int32(2), calls.Load())
}

func TestCallNetworkErrorAfterRetry(t *testing.T) {
	// A server that is immediately closed: every dial fails
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	c := NewClient(time.Second)
	_, err := c.Call(context.Background(), addr, nil)
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestCallTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(50 * time.Millisecond)
	start := time.Now()
	_, err := c.Call(context.Background(), srv.URL, nil)
	elapsed := time.Since(start)

	assert.ErrorIs(t, err, ErrTimeout)
	assert.Less(t, elapsed, 450*time.Millisecond, "timeout must fire near the configured bound")
}

func TestCallBadPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	c := NewClient(time.Second)
	_, err := c.Call(context.Background(), srv.URL, nil)
	assert.ErrorIs(t, err, ErrBadPayload)
}

func TestCallRespectsCallerContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	c := NewClient(10 * time.Second)
	_, err := c.Call(ctx, srv.URL, nil)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected ErrTimeout from caller deadline, got %v", err)
	}
}
