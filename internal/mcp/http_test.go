package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// jsonrpcTestServer serves canned JSON-RPC results keyed by method and
// records what it saw.
type jsonrpcTestServer struct {
	mu       sync.Mutex
	results  map[string]any
	methods  []string
	sessions []string
}

func (s *jsonrpcTestServer) handler(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.methods = append(s.methods, req.Method)
	s.sessions = append(s.sessions, r.Header.Get("Mcp-Session"))
	result, ok := s.results[req.Method]
	s.mu.Unlock()

	w.Header().Set("Mcp-Session", "session-abc")
	w.Header().Set("Content-Type", "application/json")

	if req.ID == 0 {
		// Notification: acknowledge without a body.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	resp := Response{JSONRPC: jsonrpcVersion, ID: req.ID}
	if ok {
		data, _ := json.Marshal(result)
		resp.Result = data
	} else {
		resp.Error = &RPCError{Code: CodeMethodNotFound, Message: "method not found"}
	}
	json.NewEncoder(w).Encode(resp)
}

func TestHTTPConnectRejectsBadURL(t *testing.T) {
	tr := NewHTTPTransport(HTTPConfig{URL: "ftp://example.com/mcp"})

	err := tr.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect error = %v, want ConnectionError", err)
	}
}

func TestHTTPRequestRoundtrip(t *testing.T) {
	backend := &jsonrpcTestServer{results: map[string]any{
		"tools/list": toolsListResult{Tools: []ToolDefinition{{Name: "search"}}},
	}}
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	raw, err := tr.Request(context.Background(), "tools/list", nil)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		t.Fatalf("unmarshal result: %v", err)
	}
	if len(result.Tools) != 1 || result.Tools[0].Name != "search" {
		t.Errorf("result = %+v, want one tool named search", result)
	}
}

func TestHTTPRequestRPCError(t *testing.T) {
	backend := &jsonrpcTestServer{}
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	_, err := tr.Request(context.Background(), "prompts/get", nil)
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Request error = %v, want RPCError", err)
	}
	if rpcErr.Code != CodeMethodNotFound {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeMethodNotFound)
	}
}

func TestHTTPSessionAffinity(t *testing.T) {
	backend := &jsonrpcTestServer{results: map[string]any{"ping": map[string]any{}}}
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	for i := 0; i < 2; i++ {
		if _, err := tr.Request(context.Background(), "ping", nil); err != nil {
			t.Fatalf("Request #%d: %v", i+1, err)
		}
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.sessions[0] != "" {
		t.Errorf("first request session = %q, want empty", backend.sessions[0])
	}
	if backend.sessions[1] != "session-abc" {
		t.Errorf("second request session = %q, want session-abc echoed back", backend.sessions[1])
	}
}

func TestHTTPCustomHeaders(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(Response{JSONRPC: jsonrpcVersion, ID: 1, Result: json.RawMessage(`{}`)})
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{
		URL:     srv.URL,
		Headers: map[string]string{"Authorization": "Bearer tok123"},
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if _, err := tr.Request(context.Background(), "ping", nil); err != nil {
		t.Fatalf("Request: %v", err)
	}
	if gotAuth != "Bearer tok123" {
		t.Errorf("Authorization = %q, want Bearer tok123", gotAuth)
	}
}

func TestHTTPNotify(t *testing.T) {
	backend := &jsonrpcTestServer{}
	srv := httptest.NewServer(http.HandlerFunc(backend.handler))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	if err := tr.Notify(context.Background(), "notifications/initialized", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if len(backend.methods) != 1 || backend.methods[0] != "notifications/initialized" {
		t.Errorf("server saw %v, want the notification method", backend.methods)
	}
}

func TestHTTPServerErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "internal error", http.StatusInternalServerError)
	}))
	defer srv.Close()

	tr := NewHTTPTransport(HTTPConfig{URL: srv.URL})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	_, err := tr.Request(context.Background(), "ping", nil)
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Request error = %v, want ConnectionError", err)
	}
}
