package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketConfig configures a websocket MCP transport.
type WebSocketConfig struct {
	// URL is the MCP server endpoint. http(s) schemes are converted to
	// ws(s) automatically.
	URL string

	// Headers are additional HTTP headers sent with the upgrade request
	// (e.g., Authorization).
	Headers map[string]string

	// RequestTimeout is the default per-request timeout (default 30s).
	RequestTimeout time.Duration

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// WebSocketTransport communicates with an MCP server over a websocket.
// Each JSON-RPC message is one text frame; responses are correlated by
// ID through the shared session table, exactly as for stdio.
type WebSocketTransport struct {
	*rpcSession

	config WebSocketConfig
	logger *slog.Logger

	state   atomic.Int32
	nextID  atomic.Int64
	closing atomic.Bool

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// NewWebSocketTransport creates a websocket transport for the given config.
func NewWebSocketTransport(cfg WebSocketConfig) *WebSocketTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &WebSocketTransport{
		rpcSession: newRPCSession(logger),
		config:     cfg,
		logger:     logger,
	}
}

// Connected reports whether the websocket is established.
func (t *WebSocketTransport) Connected() bool {
	return t.state.Load() == stateConnected
}

// Connect dials the websocket endpoint and starts the reader goroutine.
func (t *WebSocketTransport) Connect(ctx context.Context) error {
	if !t.state.CompareAndSwap(stateDisconnected, stateConnecting) {
		return &ConnectionError{Op: "connect", Err: fmt.Errorf("already connected")}
	}

	wsURL, err := toWebSocketURL(t.config.URL)
	if err != nil {
		t.state.Store(stateDisconnected)
		return &ConnectionError{Op: "connect", Err: err}
	}

	header := make(http.Header, len(t.config.Headers))
	for k, v := range t.config.Headers {
		header.Set(k, v)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		t.state.Store(stateDisconnected)
		if resp != nil {
			return &ConnectionError{Op: "dial " + wsURL, Err: fmt.Errorf("%w (status %d)", err, resp.StatusCode)}
		}
		return &ConnectionError{Op: "dial " + wsURL, Err: err}
	}

	t.writeMu.Lock()
	t.conn = conn
	t.writeMu.Unlock()

	go t.readLoop(conn)

	t.state.Store(stateConnected)
	t.logger.Info("MCP websocket connected", "url", wsURL)
	return nil
}

// Request sends a JSON-RPC request frame and waits for the matching
// response, the default timeout, or teardown.
func (t *WebSocketTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.Connected() {
		return nil, &ConnectionError{Op: method, Err: errNotConnected}
	}

	id := t.nextID.Add(1)
	ch := t.addPending(id)

	if err := t.writeJSON(NewRequest(id, method, params)); err != nil {
		t.removePending(id)
		return nil, &ConnectionError{Op: method, Err: err}
	}

	return awaitResponse(ctx, method, ch, t.config.RequestTimeout, func() { t.removePending(id) })
}

// Notify sends a JSON-RPC notification frame.
func (t *WebSocketTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.Connected() {
		return &ConnectionError{Op: method, Err: errNotConnected}
	}
	if err := t.writeJSON(NewNotification(method, params)); err != nil {
		return &ConnectionError{Op: method, Err: err}
	}
	return nil
}

// Disconnect sends a close frame, rejects all pending requests, and
// drops the socket. Idempotent.
func (t *WebSocketTransport) Disconnect() error {
	if !t.closing.CompareAndSwap(false, true) {
		return nil
	}

	t.state.Store(stateDisconnected)
	t.failPending()

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	if t.conn == nil {
		return nil
	}

	deadline := time.Now().Add(time.Second)
	_ = t.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	err := t.conn.Close()
	t.conn = nil
	return err
}

// writeJSON marshals and writes one frame. Gorilla permits a single
// concurrent writer, so writes are serialized here.
func (t *WebSocketTransport) writeJSON(v any) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.conn == nil {
		return errConnectionClosed
	}
	if err := t.conn.WriteJSON(v); err != nil {
		return fmt.Errorf("write websocket frame: %w", err)
	}
	return nil
}

// readLoop reads frames until the socket errors or closes. An error
// outside an explicit Disconnect is an unexpected disconnect.
func (t *WebSocketTransport) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if t.closing.Load() {
				return
			}
			t.state.Store(stateDisconnected)
			t.failPending()
			t.logger.Warn("MCP websocket closed unexpectedly", "error", err)
			if h := t.disconnectHandler(); h != nil {
				h(&ConnectionError{Op: "websocket read", Err: err})
			}
			return
		}
		t.handleLine(data)
	}
}

// toWebSocketURL normalizes an endpoint URL to the ws/wss scheme.
func toWebSocketURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid MCP endpoint %q: %w", raw, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("invalid MCP endpoint %q: unsupported scheme %s", raw, u.Scheme)
	}
	return u.String(), nil
}
