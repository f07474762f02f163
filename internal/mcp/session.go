package mcp

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"sync"
)

// rpcSession holds the message-correlation state shared by streaming
// transports (stdio, websocket): the pending-request table and the
// notification/disconnect handlers. Request IDs map to buffered
// channels; a response resolves its channel, teardown closes it.
type rpcSession struct {
	logger *slog.Logger

	pendingMu sync.Mutex
	pending   map[int64]chan *Response

	handlerMu      sync.RWMutex
	onNotification NotificationHandler
	onDisconnect   DisconnectHandler
}

func newRPCSession(logger *slog.Logger) *rpcSession {
	return &rpcSession{
		logger:  logger,
		pending: make(map[int64]chan *Response),
	}
}

// SetNotificationHandler installs the inbound notification handler.
func (s *rpcSession) SetNotificationHandler(h NotificationHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onNotification = h
}

// SetDisconnectHandler installs the unexpected-disconnect handler.
func (s *rpcSession) SetDisconnectHandler(h DisconnectHandler) {
	s.handlerMu.Lock()
	defer s.handlerMu.Unlock()
	s.onDisconnect = h
}

func (s *rpcSession) notificationHandler() NotificationHandler {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.onNotification
}

func (s *rpcSession) disconnectHandler() DisconnectHandler {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	return s.onDisconnect
}

// addPending registers a new in-flight request and returns the channel
// its response will arrive on.
func (s *rpcSession) addPending(id int64) chan *Response {
	ch := make(chan *Response, 1)
	s.pendingMu.Lock()
	s.pending[id] = ch
	s.pendingMu.Unlock()
	return ch
}

// removePending removes and returns the pending channel for id, or nil
// if no request with that id is outstanding. Each entry is removed
// exactly once — by the matching response, by its timeout, or by
// teardown.
func (s *rpcSession) removePending(id int64) chan *Response {
	s.pendingMu.Lock()
	defer s.pendingMu.Unlock()
	ch := s.pending[id]
	delete(s.pending, id)
	return ch
}

// failPending rejects every outstanding request with a connection-closed
// error by closing its channel.
func (s *rpcSession) failPending() {
	s.pendingMu.Lock()
	orphans := s.pending
	s.pending = make(map[int64]chan *Response)
	s.pendingMu.Unlock()

	for _, ch := range orphans {
		close(ch)
	}
}

// handleLine parses one inbound message and routes it: lines with an id
// resolve a pending request, lines without one are notifications. Parse
// failures are protocol errors — logged and dropped, never fatal to the
// connection.
func (s *rpcSession) handleLine(line []byte) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return
	}

	var msg struct {
		JSONRPC string          `json:"jsonrpc"`
		ID      *int64          `json:"id"`
		Method  string          `json:"method"`
		Result  json.RawMessage `json:"result"`
		Error   *RPCError       `json:"error"`
		Params  json.RawMessage `json:"params"`
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		s.logger.Warn("discarding unparseable line from MCP server",
			"error", err,
			"line", truncate(string(line), 200),
		)
		return
	}

	switch {
	case msg.ID != nil && msg.Method == "":
		// Response: a late response whose request already timed out
		// finds no entry and is dropped.
		ch := s.removePending(*msg.ID)
		if ch == nil {
			s.logger.Warn("response with no matching pending request", "id", *msg.ID)
			return
		}
		ch <- &Response{
			JSONRPC: msg.JSONRPC,
			ID:      *msg.ID,
			Result:  append(json.RawMessage(nil), msg.Result...),
			Error:   msg.Error,
		}

	case msg.ID == nil && msg.Method != "":
		ev := Event{
			Kind:   kindForMethod(msg.Method),
			Method: msg.Method,
			Params: append(json.RawMessage(nil), msg.Params...),
		}
		if h := s.notificationHandler(); h != nil {
			h(ev)
		} else {
			s.logger.Debug("dropping notification with no handler", "method", msg.Method)
		}

	default:
		// Server-to-client requests are not part of this client's
		// surface; log and move on.
		s.logger.Warn("unexpected message shape from MCP server",
			"method", msg.Method,
		)
	}
}

// truncate shortens s to at most n bytes for log output.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
