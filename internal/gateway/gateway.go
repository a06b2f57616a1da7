// ABOUTME: Outbound HTTP gateway normalizing external service calls
// ABOUTME: Enforces a timeout, retries transient faults once, and tags all failures

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"time"
)

// DefaultTimeout bounds a Call when no timeout is configured.
const DefaultTimeout = 5 * time.Second

// maxResponseBytes caps how much of a remote response is read.
const maxResponseBytes = 1 << 20 // 1MB

// ErrTimeout indicates the call exceeded its deadline.
var ErrTimeout = errors.New("gateway: request timed out")

// ErrNetwork indicates a transport-level failure (dial, reset, DNS).
var ErrNetwork = errors.New("gateway: network failure")

// ErrBadPayload indicates the remote responded 2xx with a non-JSON body.
var ErrBadPayload = errors.New("gateway: response is not valid JSON")

// RemoteError indicates a well-formed error response from the remote service.
// These are never retried.
type RemoteError struct {
	Status int
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("gateway: remote returned status %d", e.Status)
}

// Client wraps outbound HTTP requests with a timeout bound and a single
// retry on transient network failure. Every outcome is either a parsed
// JSON payload or one of the tagged errors above; raw transport faults
// never escape.
type Client struct {
	http    *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient creates a gateway client. A non-positive timeout falls back
// to DefaultTimeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		http:    &http.Client{},
		timeout: timeout,
		logger:  slog.Default().With("component", "gateway"),
	}
}

// Call performs a GET against endpoint with the given query parameters.
// The whole call, including the retry, runs under one deadline.
func (c *Client) Call(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := c.attempt(ctx, endpoint, params)
	if err != nil && isTransient(err) && ctx.Err() == nil {
		c.logger.Debug("retrying after transient failure", "endpoint", endpoint, "error", err)
		body, err = c.attempt(ctx, endpoint, params)
	}
	if err != nil {
		c.logger.Warn("gateway call failed", "endpoint", endpoint, "error", err)
		return nil, err
	}
	return body, nil
}

// isTransient reports whether the failure is worth one retry. Remote status
// responses and malformed payloads are not transient; the remote already
// answered.
func isTransient(err error) bool {
	return errors.Is(err, ErrNetwork) || errors.Is(err, ErrTimeout)
}

func (c *Client) attempt(ctx context.Context, endpoint string, params url.Values) (json.RawMessage, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid endpoint %q: %v", ErrNetwork, endpoint, err)
	}
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: building request: %v", ErrNetwork, err)
	}
	req.Header.Set("User-Agent", "loom/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	// Drain before closing so the connection goes back to the pool
	defer func() {
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &RemoteError{Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if !json.Valid(body) {
		return nil, ErrBadPayload
	}

	return json.RawMessage(body), nil
}

// classifyTransportError maps raw transport faults onto the gateway's
// tagged errors.
func classifyTransportError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrTimeout
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return ErrTimeout
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
