package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// Defaults for stdio transport timing.
const (
	// defaultConnectTimeout bounds Connect when the caller's context
	// carries no deadline.
	defaultConnectTimeout = 30 * time.Second

	// defaultRequestTimeout is the per-request timer applied when the
	// caller's context carries no deadline.
	defaultRequestTimeout = 30 * time.Second

	// spawnGraceDelay lets immediate spawn failures surface before
	// Connect declares success. Process-start failures are inherently
	// asynchronous: a bad interpreter path or missing library exits the
	// child moments after a successful fork.
	spawnGraceDelay = 50 * time.Millisecond

	// shutdownRequestTimeout bounds the graceful shutdown request sent
	// during Disconnect. Its outcome is ignored either way.
	shutdownRequestTimeout = 5 * time.Second

	// exitGracePeriod is how long Disconnect waits for the child to
	// exit after SIGTERM before escalating to SIGKILL.
	exitGracePeriod = 5 * time.Second
)

// Transport connection states.
const (
	stateDisconnected int32 = iota
	stateConnecting
	stateConnected
)

// StdioConfig configures a stdio MCP transport that communicates with
// a subprocess over stdin/stdout using newline-delimited JSON-RPC.
type StdioConfig struct {
	// Command is the executable to run.
	Command string

	// Args are command-line arguments passed to the executable.
	Args []string

	// Env are additional environment variables for the subprocess,
	// merged over the current process environment.
	Env map[string]string

	// Dir is the working directory for the subprocess. Empty means
	// inherit the current directory.
	Dir string

	// ConnectTimeout bounds Connect (default 30s).
	ConnectTimeout time.Duration

	// RequestTimeout is the default per-request timeout (default 30s).
	// Individual requests override it with a context deadline.
	RequestTimeout time.Duration

	// Logger is the structured logger for transport diagnostics.
	Logger *slog.Logger
}

// StdioTransport communicates with an MCP server running as a
// subprocess. JSON-RPC messages are newline-delimited on stdin/stdout;
// responses are correlated to requests by ID, so out-of-order responses
// and interleaved notifications are handled correctly.
type StdioTransport struct {
	*rpcSession

	config StdioConfig
	logger *slog.Logger

	state  atomic.Int32
	nextID atomic.Int64

	// closing suppresses unexpected-disconnect handling during an
	// explicit Disconnect.
	closing atomic.Bool

	procMu sync.Mutex
	cmd    *exec.Cmd
	exited chan struct{} // closed by watchExit when the process is gone

	writeMu sync.Mutex
	stdin   io.WriteCloser
}

// NewStdioTransport creates a stdio transport for the given config.
// The subprocess is not started until Connect.
func NewStdioTransport(cfg StdioConfig) *StdioTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &StdioTransport{
		rpcSession: newRPCSession(logger),
		config:     cfg,
		logger:     logger,
	}
}

// Connected reports whether the subprocess is up and the session usable.
func (t *StdioTransport) Connected() bool {
	return t.state.Load() == stateConnected
}

// Connect spawns the subprocess and wires the line-oriented reader on
// its stdout. A short grace delay lets immediate spawn failures surface
// before success is declared. Returns *ConnectionError on spawn failure
// or early exit.
func (t *StdioTransport) Connect(ctx context.Context) error {
	if !t.state.CompareAndSwap(stateDisconnected, stateConnecting) {
		return &ConnectionError{Op: "connect", Err: errors.New("already connected")}
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.ConnectTimeout)
		defer cancel()
	}

	t.logger.Info("starting MCP subprocess",
		"command", t.config.Command,
		"args", t.config.Args,
	)

	cmd := exec.Command(t.config.Command, t.config.Args...)
	cmd.Env = mergeEnv(t.config.Env)
	cmd.Dir = t.config.Dir

	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.state.Store(stateDisconnected)
		return &ConnectionError{Op: "create stdin pipe", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		t.state.Store(stateDisconnected)
		return &ConnectionError{Op: "create stdout pipe", Err: err}
	}
	// Capture stderr for logging — not part of the protocol.
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		t.state.Store(stateDisconnected)
		return &ConnectionError{Op: "create stderr pipe", Err: err}
	}

	if err := cmd.Start(); err != nil {
		stderr.Close()
		stdout.Close()
		stdin.Close()
		t.state.Store(stateDisconnected)
		return &ConnectionError{Op: "spawn " + t.config.Command, Err: err}
	}

	t.procMu.Lock()
	t.cmd = cmd
	t.exited = make(chan struct{})
	t.procMu.Unlock()

	t.writeMu.Lock()
	t.stdin = stdin
	t.writeMu.Unlock()

	go t.watchExit(cmd)
	go t.readLoop(stdout)
	go t.drainStderr(stderr)

	// Grace window: a child that dies right away (bad interpreter,
	// missing module) should fail Connect, not the first request.
	select {
	case <-t.exited:
		t.state.Store(stateDisconnected)
		return &ConnectionError{
			Op:  "spawn " + t.config.Command,
			Err: fmt.Errorf("process exited during startup: %s", exitReason(cmd)),
		}
	case <-ctx.Done():
		t.closing.Store(true)
		_ = cmd.Process.Kill()
		<-t.exited
		t.state.Store(stateDisconnected)
		return &ConnectionError{Op: "connect", Err: ctx.Err()}
	case <-time.After(spawnGraceDelay):
	}

	t.state.Store(stateConnected)
	t.logger.Info("MCP subprocess started", "pid", cmd.Process.Pid)
	return nil
}

// Request sends a JSON-RPC request and waits for the matching response.
// Every request settles exactly once: with the response, with a
// *TimeoutError when the per-request timer fires, or with a
// *ConnectionError when the transport is torn down first. A timeout
// abandons only this request; the transport stays connected.
func (t *StdioTransport) Request(ctx context.Context, method string, params any) (json.RawMessage, error) {
	if !t.Connected() {
		return nil, &ConnectionError{Op: method, Err: errNotConnected}
	}

	id := t.nextID.Add(1)
	data, err := json.Marshal(NewRequest(id, method, params))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	ch := t.addPending(id)

	if err := t.writeLine(data); err != nil {
		t.removePending(id)
		return nil, &ConnectionError{Op: method, Err: err}
	}

	return awaitResponse(ctx, method, ch, t.config.RequestTimeout, func() { t.removePending(id) })
}

// Notify sends a JSON-RPC notification. No response is expected and no
// ID is assigned.
func (t *StdioTransport) Notify(ctx context.Context, method string, params any) error {
	if !t.Connected() {
		return &ConnectionError{Op: method, Err: errNotConnected}
	}

	data, err := json.Marshal(NewNotification(method, params))
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	if err := t.writeLine(data); err != nil {
		return &ConnectionError{Op: method, Err: err}
	}
	return nil
}

// Disconnect attempts one graceful shutdown request (outcome ignored),
// then unconditionally tears the connection down: pending requests are
// rejected, the child gets SIGTERM, and SIGKILL if it lingers past the
// grace period. Idempotent.
func (t *StdioTransport) Disconnect() error {
	if !t.closing.CompareAndSwap(false, true) {
		return nil
	}

	if t.state.Load() == stateConnected {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownRequestTimeout)
		_, _ = t.Request(ctx, "shutdown", nil)
		cancel()
	}

	t.state.Store(stateDisconnected)
	t.failPending()

	t.writeMu.Lock()
	if t.stdin != nil {
		t.stdin.Close()
		t.stdin = nil
	}
	t.writeMu.Unlock()

	t.procMu.Lock()
	cmd, exited := t.cmd, t.exited
	t.procMu.Unlock()

	if cmd == nil || cmd.Process == nil {
		return nil
	}

	t.logger.Info("stopping MCP subprocess", "pid", cmd.Process.Pid)
	_ = cmd.Process.Signal(syscall.SIGTERM)

	select {
	case <-exited:
	case <-time.After(exitGracePeriod):
		t.logger.Warn("MCP subprocess did not exit gracefully, killing",
			"pid", cmd.Process.Pid,
		)
		_ = cmd.Process.Kill()
		<-exited
	}

	return nil
}

// writeLine writes one framed message followed by the newline delimiter.
func (t *StdioTransport) writeLine(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if t.stdin == nil {
		return errConnectionClosed
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write to subprocess stdin: %w", err)
	}
	return nil
}

// readLoop reads newline-delimited messages from the child's stdout
// until EOF. Each connection gets its own reader goroutine; no read
// here ever blocks another transport.
func (t *StdioTransport) readLoop(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10<<20) // allow large tool results
	for scanner.Scan() {
		t.handleLine(scanner.Bytes())
	}
	// EOF or read error: watchExit owns the disconnect transition.
}

// watchExit waits for the subprocess to exit. An exit during an explicit
// Disconnect is expected; any other exit tears the session down and
// reports it through the disconnect handler.
func (t *StdioTransport) watchExit(cmd *exec.Cmd) {
	err := cmd.Wait()

	t.procMu.Lock()
	close(t.exited)
	t.procMu.Unlock()

	if t.closing.Load() {
		return
	}

	prev := t.state.Swap(stateDisconnected)
	t.failPending()

	reason := exitReason(cmd)
	t.logger.Warn("MCP subprocess exited unexpectedly",
		"command", t.config.Command,
		"reason", reason,
	)

	// During the Connect grace window the connect path reports the
	// failure itself; afterwards the disconnect handler carries it.
	if prev == stateConnecting {
		return
	}

	if h := t.disconnectHandler(); h != nil {
		if err == nil {
			err = errors.New(reason)
		}
		h(&ConnectionError{Op: "process exit", Err: err})
	}
}

// drainStderr reads stderr lines and logs them at debug level.
func (t *StdioTransport) drainStderr(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug("MCP subprocess stderr", "line", scanner.Text())
	}
}

// awaitResponse waits for one of the three outcomes of an in-flight
// request: matching response, timeout, or teardown (closed channel).
// The abandon callback removes the pending entry when the timer or the
// caller's deadline wins the race.
func awaitResponse(ctx context.Context, method string, ch chan *Response, timeout time.Duration, abandon func()) (json.RawMessage, error) {
	start := time.Now()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case resp, ok := <-ch:
		if !ok {
			return nil, &ConnectionError{Op: method, Err: errConnectionClosed}
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	case <-timer.C:
		abandon()
		return nil, &TimeoutError{Op: method, Timeout: timeout}
	case <-ctx.Done():
		abandon()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			// The caller's deadline overrode the default timer.
			return nil, &TimeoutError{Op: method, Timeout: time.Since(start).Round(time.Millisecond)}
		}
		return nil, ctx.Err()
	}
}

// mergeEnv overlays the configured variables on the current process
// environment, sorted for reproducible spawns.
func mergeEnv(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+overrides[k])
	}
	return env
}

// exitReason describes how a process ended, for logs and errors.
func exitReason(cmd *exec.Cmd) string {
	ps := cmd.ProcessState
	if ps == nil {
		return "unknown"
	}
	if ws, ok := ps.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return fmt.Sprintf("signal %s", ws.Signal())
	}
	return fmt.Sprintf("exit code %d", ps.ExitCode())
}
