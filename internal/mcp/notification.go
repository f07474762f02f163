package mcp

import "encoding/json"

// NotificationKind classifies inbound server notifications into a closed
// set of known kinds plus a generic fallback, so consumers can switch on
// a tag instead of raw method strings while still observing methods this
// client does not know about.
type NotificationKind int

// Known notification kinds.
const (
	// NotificationGeneric is the fallback for unrecognized methods.
	NotificationGeneric NotificationKind = iota

	// NotificationInitialized signals handshake completion.
	NotificationInitialized

	// NotificationCancelled signals server-side cancellation of a request.
	NotificationCancelled

	// NotificationProgress carries progress updates for long operations.
	NotificationProgress

	// NotificationMessage carries a server log message.
	NotificationMessage
)

// String returns the kind name for logging.
func (k NotificationKind) String() string {
	switch k {
	case NotificationInitialized:
		return "initialized"
	case NotificationCancelled:
		return "cancelled"
	case NotificationProgress:
		return "progress"
	case NotificationMessage:
		return "message"
	default:
		return "notification"
	}
}

// Event is an inbound notification delivered to the transport's
// notification handler. Params is the raw JSON payload; Method is
// preserved for generic events.
type Event struct {
	Kind   NotificationKind
	Method string
	Params json.RawMessage
}

// kindForMethod maps a notification method name to its kind.
func kindForMethod(method string) NotificationKind {
	switch method {
	case "notifications/initialized":
		return NotificationInitialized
	case "notifications/cancelled":
		return NotificationCancelled
	case "notifications/progress":
		return NotificationProgress
	case "notifications/message":
		return NotificationMessage
	default:
		return NotificationGeneric
	}
}
