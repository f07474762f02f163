package mcp

import (
	"errors"
	"fmt"
	"time"
)

// errConnectionClosed is the uniform rejection for requests that were
// still pending when their transport was torn down.
var errConnectionClosed = errors.New("connection closed")

// errNotConnected is returned for operations attempted on a transport
// that is not in the connected state.
var errNotConnected = errors.New("transport not connected")

// ConnectionError is a transport-level failure: spawn error, unexpected
// process exit, write-after-close. Fatal to that one connection, never
// to the client as a whole.
type ConnectionError struct {
	Server string // server name, when known
	Op     string // what was being attempted
	Err    error
}

// Error implements the error interface.
func (e *ConnectionError) Error() string {
	if e.Server != "" {
		return fmt.Sprintf("mcp server %s: %s: %v", e.Server, e.Op, e.Err)
	}
	return fmt.Sprintf("mcp %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying cause.
func (e *ConnectionError) Unwrap() error { return e.Err }

// TimeoutError is returned when a single operation (connect or request)
// exceeds its deadline. Scoped to that operation; the transport stays up.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// RateLimitError is returned synchronously, before any process or
// network interaction, when a category's token bucket is empty.
type RateLimitError struct {
	Category   string
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s tools: retry after %d ms",
		e.Category, e.RetryAfter.Milliseconds())
}

// NotFoundError is returned when a tool, server, resource, or prompt
// cannot be resolved. Never retried automatically.
type NotFoundError struct {
	Kind string // "tool", "server", "resource", or "prompt"
	Name string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.Name)
}
