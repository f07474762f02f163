package mcp

import (
	"context"
	"errors"
	"testing"
	"time"
)

// echoServer spawns a subprocess that strips the method (and params)
// from each request line, turning every request into a minimal matching
// response. Good enough to exercise framing and ID correlation without
// a real MCP server.
func echoServer(t *testing.T, cfg StdioConfig) *StdioTransport {
	t.Helper()
	cfg.Command = "sed"
	cfg.Args = []string{"-u", `s/,"method.*/}/`}
	tr := NewStdioTransport(cfg)
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { tr.Disconnect() })
	return tr
}

func TestStdioConnectSpawnFailure(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "/nonexistent/mcp-server"})

	err := tr.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect error = %v, want ConnectionError", err)
	}
	if tr.Connected() {
		t.Error("Connected() = true after failed spawn")
	}
}

func TestStdioConnectEarlyExit(t *testing.T) {
	// A child that dies inside the startup grace window fails Connect.
	tr := NewStdioTransport(StdioConfig{Command: "false"})

	err := tr.Connect(context.Background())
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect error = %v, want ConnectionError", err)
	}
	if tr.Connected() {
		t.Error("Connected() = true after early exit")
	}
}

func TestStdioRequestBeforeConnect(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{Command: "cat"})

	_, err := tr.Request(context.Background(), "ping", nil)
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("Request error = %v, want ConnectionError", err)
	}
}

func TestStdioRequestResponseCorrelation(t *testing.T) {
	tr := echoServer(t, StdioConfig{})

	if !tr.Connected() {
		t.Fatal("Connected() = false after Connect")
	}

	// Several requests in sequence each settle with their own response.
	for i := 0; i < 3; i++ {
		if _, err := tr.Request(context.Background(), "ping", nil); err != nil {
			t.Fatalf("Request #%d: %v", i+1, err)
		}
	}
}

func TestStdioRequestTimeout(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{
		Command:        "sleep",
		Args:           []string{"60"},
		RequestTimeout: 50 * time.Millisecond,
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	_, err := tr.Request(context.Background(), "tools/list", nil)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Request error = %v, want TimeoutError", err)
	}
	if timeoutErr.Op != "tools/list" {
		t.Errorf("TimeoutError.Op = %q, want tools/list", timeoutErr.Op)
	}

	// Timing out one request abandons it, not the connection.
	if !tr.Connected() {
		t.Error("Connected() = false after request timeout")
	}
}

func TestStdioCallerDeadlineOverridesDefault(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{
		Command:        "sleep",
		Args:           []string{"60"},
		RequestTimeout: 30 * time.Second,
	})
	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := tr.Request(ctx, "ping", nil)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Request error = %v, want TimeoutError", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("request took %s, want the 50ms caller deadline to win", elapsed)
	}
}

func TestStdioUsableAfterTimeout(t *testing.T) {
	tr := echoServer(t, StdioConfig{})

	// An already-expired deadline times the first request out before
	// the response arrives.
	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	_, err := tr.Request(ctx, "ping", nil)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Request error = %v, want TimeoutError", err)
	}

	// The next request on the same transport succeeds normally.
	if _, err := tr.Request(context.Background(), "ping", nil); err != nil {
		t.Fatalf("Request after timeout: %v", err)
	}
}

func TestStdioNotify(t *testing.T) {
	tr := echoServer(t, StdioConfig{})

	if err := tr.Notify(context.Background(), "notifications/initialized", nil); err != nil {
		t.Fatalf("Notify: %v", err)
	}
}

func TestStdioDisconnectIdempotent(t *testing.T) {
	tr := echoServer(t, StdioConfig{RequestTimeout: 200 * time.Millisecond})

	if err := tr.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if tr.Connected() {
		t.Error("Connected() = true after Disconnect")
	}
	if err := tr.Disconnect(); err != nil {
		t.Errorf("second Disconnect: %v", err)
	}

	_, err := tr.Request(context.Background(), "ping", nil)
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Errorf("Request after Disconnect error = %v, want ConnectionError", err)
	}
}

func TestStdioUnexpectedExitFiresHandler(t *testing.T) {
	tr := NewStdioTransport(StdioConfig{
		Command: "sh",
		Args:    []string{"-c", "sleep 0.2"},
	})

	dropped := make(chan error, 1)
	tr.SetDisconnectHandler(func(err error) { dropped <- err })

	if err := tr.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer tr.Disconnect()

	select {
	case err := <-dropped:
		if err == nil {
			t.Error("disconnect handler called with nil error")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect handler not called after process exit")
	}
	if tr.Connected() {
		t.Error("Connected() = true after process exit")
	}
}

func TestAwaitResponseClosedChannel(t *testing.T) {
	ch := make(chan *Response, 1)
	close(ch)

	_, err := awaitResponse(context.Background(), "tools/call", ch, time.Second, func() {})
	var connErr *ConnectionError
	if !errors.As(err, &connErr) {
		t.Fatalf("awaitResponse error = %v, want ConnectionError", err)
	}
}

func TestAwaitResponseRPCError(t *testing.T) {
	ch := make(chan *Response, 1)
	ch <- &Response{
		JSONRPC: jsonrpcVersion,
		ID:      1,
		Error:   &RPCError{Code: CodeMethodNotFound, Message: "nope"},
	}

	_, err := awaitResponse(context.Background(), "prompts/get", ch, time.Second, func() {})
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("awaitResponse error = %v, want RPCError", err)
	}
	if rpcErr.Code != CodeMethodNotFound {
		t.Errorf("Code = %d, want %d", rpcErr.Code, CodeMethodNotFound)
	}
}

func TestAwaitResponseTimeoutAbandons(t *testing.T) {
	ch := make(chan *Response, 1)
	abandoned := false

	_, err := awaitResponse(context.Background(), "ping", ch, 20*time.Millisecond, func() { abandoned = true })
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("awaitResponse error = %v, want TimeoutError", err)
	}
	if !abandoned {
		t.Error("abandon callback not invoked on timeout")
	}
}

func TestMergeEnv(t *testing.T) {
	t.Setenv("STDIO_TEST_BASE", "inherited")

	env := mergeEnv(map[string]string{"MCP_API_KEY": "secret", "AAA_FIRST": "1"})

	var foundBase, foundKey bool
	for _, kv := range env {
		switch kv {
		case "STDIO_TEST_BASE=inherited":
			foundBase = true
		case "MCP_API_KEY=secret":
			foundKey = true
		}
	}
	if !foundBase {
		t.Error("inherited variable missing from merged environment")
	}
	if !foundKey {
		t.Error("override variable missing from merged environment")
	}
}
