package mcp

import (
	"context"
	"encoding/json"
)

// NotificationHandler receives inbound server notifications. Called from
// the transport's read loop; implementations must not block.
type NotificationHandler func(Event)

// DisconnectHandler is called when a transport disconnects unexpectedly
// (process exit, broken socket). It is not called for an explicit
// Disconnect.
type DisconnectHandler func(err error)

// Transport is the interface for MCP server communication. Each
// implementation owns exactly one connection (subprocess, HTTP endpoint,
// or websocket) and handles framing, encoding, and request/response
// correlation.
type Transport interface {
	// Connect establishes the connection. For stdio transports this
	// spawns the subprocess. Returns a *ConnectionError on failure.
	Connect(ctx context.Context) error

	// Request sends a JSON-RPC request and waits for the matching
	// response, the transport's default timeout (override with a
	// context deadline), or disconnect — whichever comes first. A
	// server-side error is returned as *RPCError.
	Request(ctx context.Context, method string, params any) (json.RawMessage, error)

	// Notify sends a JSON-RPC notification. Fire-and-forget.
	Notify(ctx context.Context, method string, params any) error

	// Disconnect shuts down the connection, rejecting all pending
	// requests. Idempotent.
	Disconnect() error

	// Connected reports whether the transport is currently connected.
	Connected() bool

	// SetNotificationHandler installs the inbound notification handler.
	// Must be called before Connect.
	SetNotificationHandler(NotificationHandler)

	// SetDisconnectHandler installs the unexpected-disconnect handler.
	// Must be called before Connect.
	SetDisconnectHandler(DisconnectHandler)
}
