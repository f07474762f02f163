package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/toolhost/toolhost/internal/httpkit"
)

// HTTPConfig configures an HTTP MCP transport that communicates with a
// remote MCP server over streamable HTTP (JSON-RPC over POST).
type HTTPConfig struct {
	// URL is the MCP server endpoint.
	URL string

	// Headers are additional HTTP headers sent with every request
	// (e.g., Authorization).
	Headers map[string]string

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// HTTPTransport communicates with an MCP server over streamable HTTP.
// Each JSON-RPC request is sent as an HTTP POST; the response comes back
// in the response body, so no correlation table is needed. Server-push
// notifications are not delivered over this transport.
type HTTPTransport struct {
	url        string
	headers    map[string]string
	httpClient *http.Client
	logger     *slog.Logger

	nextID    atomic.Int64
	connected atomic.Bool

	mu        sync.RWMutex
	sessionID string // Mcp-Session header for session affinity
}

// NewHTTPTransport creates an HTTP transport for the given config.
// The underlying HTTP client is constructed via httpkit.
func NewHTTPTransport(cfg HTTPConfig) *HTTPTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &HTTPTransport{
		url:     cfg.URL,
		headers: cfg.Headers,
		httpClient: httpkit.NewClient(
			httpkit.WithLogger(logger),
		),
		logger: logger,
	}
}

// SetNotificationHandler is accepted for interface symmetry. The HTTP
// transport has no inbound stream, so the handler is never invoked.
func (t *HTTPTransport) SetNotificationHandler(NotificationHandler) {}

// SetDisconnectHandler is accepted for interface symmetry. HTTP failures
// surface per-request rather than as connection-level events.
func (t *HTTPTransport) SetDisconnectHandler(DisconnectHandler) {}

// Connected reports whether Connect has succeeded.
func (t *HTTPTransport) Connected() bool {
	return t.connected.Load()
}

// Connect validates the endpoint URL. There is no persistent socket to
// establish; reachability is checked by the handshake that follows.
func (t *HTTPTransport) Connect(_ context.Context) error {
	u, err := url.Parse(t.url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return &ConnectionError{Op: "connect", Err: fmt.Errorf("invalid MCP endpoint %q", t.url)}
	}
	t.connected.Store(true)
	t.logger.Info("MCP HTTP endpoint configured", "url", t.url)
	return nil
}

// Request sends a JSON-RPC request via HTTP POST and returns the result.
func (t *HTTPTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.Connected() {
		return nil, &ConnectionError{Op: method, Err: errNotConnected}
	}

	id := t.nextID.Add(1)
	body, err := json.Marshal(NewRequest(id, method, params))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	respBody, err := t.post(ctx, body, true)
	if err != nil {
		return nil, &ConnectionError{Op: method, Err: err}
	}

	var resp Response
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if resp.Error != nil {
		return nil, resp.Error
	}
	return resp.Result, nil
}

// Notify sends a JSON-RPC notification via HTTP POST. No response
// content is expected, but the HTTP status is checked.
func (t *HTTPTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.Connected() {
		return &ConnectionError{Op: method, Err: errNotConnected}
	}

	body, err := json.Marshal(NewNotification(method, params))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if _, err := t.post(ctx, body, false); err != nil {
		return &ConnectionError{Op: method, Err: err}
	}
	return nil
}

// Disconnect drops the session. The connection pool belongs to httpkit
// and keeps serving other transports.
func (t *HTTPTransport) Disconnect() error {
	t.connected.Store(false)
	t.mu.Lock()
	t.sessionID = ""
	t.mu.Unlock()
	return nil
}

// post performs one JSON-RPC POST, maintaining Mcp-Session affinity.
// When wantBody is false an empty 200/202 response is acceptable.
func (t *HTTPTransport) post(ctx context.Context, body []byte, wantBody bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create HTTP request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}

	t.mu.RLock()
	if t.sessionID != "" {
		req.Header.Set("Mcp-Session", t.sessionID)
	}
	t.mu.RUnlock()

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to %s: %w", t.url, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 1<<20)

	// Capture session ID from response.
	if sid := resp.Header.Get("Mcp-Session"); sid != "" {
		t.mu.Lock()
		t.sessionID = sid
		t.mu.Unlock()
	}

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		errBody := httpkit.ReadErrorBody(resp.Body, 1<<20)
		return nil, fmt.Errorf("MCP server returned %d: %s", resp.StatusCode, errBody)
	}

	if !wantBody {
		return nil, nil
	}

	out, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20)) // 10 MiB limit
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}
	return out, nil
}
