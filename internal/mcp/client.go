package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/toolhost/toolhost/internal/buildinfo"
	"github.com/toolhost/toolhost/internal/ratelimit"
	"github.com/toolhost/toolhost/internal/tools"
)

// Transport kinds accepted in ServerConfig.
const (
	TransportStdio     = "stdio"
	TransportHTTP      = "http"
	TransportWebSocket = "websocket"
)

// Rate limit categories. Built-in and browser_* tools draw from the
// browser bucket; all server-dispatched calls draw from the mcp bucket.
const (
	RateCategoryBrowser = "browser"
	RateCategoryMCP     = "mcp"
)

// Default bucket sizes, replenished over one minute.
const (
	defaultBrowserRateCapacity = 10
	defaultMCPRateCapacity     = 60
)

// ServerConfig is the identity and launch parameters for one tool
// server. Immutable once a transport has been created from it.
type ServerConfig struct {
	// Name is the unique key for this server. Tools it exposes are
	// listed under "{name}/{tool}". A later config with the same name
	// overwrites the earlier connection.
	Name string

	// Transport selects the transport kind; empty means stdio.
	Transport string

	// Stdio launch parameters.
	Command string
	Args    []string
	Env     map[string]string
	Dir     string

	// HTTP/websocket endpoint parameters.
	URL     string
	Headers map[string]string

	// IncludeTools limits discovery to the named tools; ExcludeTools
	// skips the named tools. Include wins when both are set.
	IncludeTools []string
	ExcludeTools []string
}

// ServerConnection tracks one connected server: its config, transport,
// negotiated capabilities, and discovered tools. Ready is set only
// after a successful handshake; a connection that failed handshake or
// tool discovery stays registered as degraded.
type ServerConnection struct {
	Config        ServerConfig
	Transport     Transport
	Ready         bool
	Capabilities  ServerCapabilities
	Tools         []ToolDefinition
	ServerName    string
	ServerVersion string
	Protocol      string
}

// ServerStatus is a read-only snapshot of one connection for callers.
type ServerStatus struct {
	Name          string `json:"name"`
	Ready         bool   `json:"ready"`
	Connected     bool   `json:"connected"`
	Tools         int    `json:"tools"`
	ServerName    string `json:"server_name,omitempty"`
	ServerVersion string `json:"server_version,omitempty"`
}

// CallRecorder receives an audit record for every tool invocation.
// Implementations must be safe for concurrent use.
type CallRecorder interface {
	RecordCall(server, tool string, callErr error, elapsed time.Duration) error
}

// TransportFactory builds a transport from a server config. Overridable
// for tests.
type TransportFactory func(ServerConfig) (Transport, error)

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithBuiltins sets the built-in tool registry the client aggregates
// alongside configured servers.
func WithBuiltins(r *tools.Registry) Option {
	return func(c *Client) { c.builtins = r }
}

// WithRateLimits replaces the default per-category rate limiters.
func WithRateLimits(r *ratelimit.Registry) Option {
	return func(c *Client) { c.limits = r }
}

// WithRecorder attaches a tool-call audit recorder.
func WithRecorder(r CallRecorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithTransportFactory overrides how transports are constructed.
func WithTransportFactory(f TransportFactory) Option {
	return func(c *Client) { c.factory = f }
}

// WithConnectTimeout bounds each server's connect attempt during
// Initialize (default 30s).
func WithConnectTimeout(d time.Duration) Option {
	return func(c *Client) { c.connectTimeout = d }
}

// WithRequestTimeout sets the default per-request timeout for
// constructed transports (default 30s).
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) { c.requestTimeout = d }
}

// Client aggregates zero or more MCP servers plus the built-in tool
// registry behind one interface. Server-sourced tools are exposed under
// qualified "{server}/{tool}" names; built-in tools keep their bare
// names and are checked first during bare-name resolution.
//
// The server and tool maps are mutated only by the client's own call
// sites (connect, disconnect, shutdown) and are guarded by mu, since
// connect-time population can race with concurrent CallTool/ListTools
// reads.
type Client struct {
	logger         *slog.Logger
	builtins       *tools.Registry
	limits         *ratelimit.Registry
	recorder       CallRecorder
	factory        TransportFactory
	connectTimeout time.Duration
	requestTimeout time.Duration

	mu        sync.RWMutex
	servers   map[string]*ServerConnection
	order     []string                  // registration order, for probing
	toolIndex map[string]ToolDefinition // qualified name -> definition
}

// NewClient creates an MCP client. Built-ins default to an empty
// registry; rate limiters default to 10 browser and 60 mcp calls per
// minute.
func NewClient(opts ...Option) *Client {
	c := &Client{
		logger:         slog.Default(),
		connectTimeout: defaultConnectTimeout,
		requestTimeout: defaultRequestTimeout,
		servers:        make(map[string]*ServerConnection),
		toolIndex:      make(map[string]ToolDefinition),
	}
	for _, o := range opts {
		o(c)
	}
	c.logger = c.logger.With("component", "mcp")
	if c.builtins == nil {
		c.builtins = tools.NewRegistry()
	}
	if c.limits == nil {
		c.limits = ratelimit.NewRegistry()
		c.limits.Add(RateCategoryBrowser, defaultBrowserRateCapacity, time.Minute)
		c.limits.Add(RateCategoryMCP, defaultMCPRateCapacity, time.Minute)
	}
	if c.factory == nil {
		c.factory = c.defaultFactory
	}
	return c
}

func (c *Client) defaultFactory(cfg ServerConfig) (Transport, error) {
	logger := c.logger.With("mcp_server", cfg.Name)
	switch cfg.Transport {
	case "", TransportStdio:
		return NewStdioTransport(StdioConfig{
			Command:        cfg.Command,
			Args:           cfg.Args,
			Env:            cfg.Env,
			Dir:            cfg.Dir,
			ConnectTimeout: c.connectTimeout,
			RequestTimeout: c.requestTimeout,
			Logger:         logger,
		}), nil
	case TransportHTTP:
		return NewHTTPTransport(HTTPConfig{
			URL:     cfg.URL,
			Headers: cfg.Headers,
			Logger:  logger,
		}), nil
	case TransportWebSocket:
		return NewWebSocketTransport(WebSocketConfig{
			URL:            cfg.URL,
			Headers:        cfg.Headers,
			RequestTimeout: c.requestTimeout,
			Logger:         logger,
		}), nil
	default:
		return nil, fmt.Errorf("unknown transport %q for server %s", cfg.Transport, cfg.Name)
	}
}

// Initialize connects every configured server. Per-server failures are
// logged and skipped — one broken server never aborts the batch. A
// server that connects but fails handshake or tool discovery stays
// registered as degraded; a server whose transport-level connect fails
// is absent entirely. Returns an error only when ctx is cancelled.
func (c *Client) Initialize(ctx context.Context, configs []ServerConfig) error {
	for _, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return err
		}
		c.connectServer(ctx, cfg)
	}

	c.mu.RLock()
	serverCount := len(c.servers)
	toolCount := len(c.toolIndex)
	c.mu.RUnlock()

	c.logger.Info("MCP initialization complete",
		"servers", serverCount,
		"server_tools", toolCount,
		"builtin_tools", len(c.builtins.Names()),
	)
	return nil
}

// connectServer spins up one server: transport connect, handshake, tool
// discovery. Each stage failure is logged; later stages are skipped.
func (c *Client) connectServer(ctx context.Context, cfg ServerConfig) {
	name := cfg.Name

	tr, err := c.factory(cfg)
	if err != nil {
		c.logger.Error("MCP transport construction failed", "server", name, "error", err)
		return
	}

	tr.SetNotificationHandler(func(ev Event) { c.handleNotification(name, ev) })
	tr.SetDisconnectHandler(func(err error) { c.handleServerDisconnect(name, err) })

	cctx, cancel := context.WithTimeout(ctx, c.connectTimeout)
	err = tr.Connect(cctx)
	cancel()
	if err != nil {
		c.logger.Error("MCP server connection failed", "server", name, "error", err)
		return
	}

	conn := &ServerConnection{Config: cfg, Transport: tr}

	c.mu.Lock()
	if old := c.servers[name]; old != nil {
		// Name collision: the newcomer wins, the old connection goes.
		go func() { _ = old.Transport.Disconnect() }()
	} else {
		c.order = append(c.order, name)
	}
	c.servers[name] = conn
	c.mu.Unlock()

	if err := c.handshake(ctx, conn); err != nil {
		c.logger.Error("MCP handshake failed, server registered as degraded",
			"server", name, "error", err)
		return
	}

	c.mu.RLock()
	hasTools := conn.Capabilities.Tools != nil
	c.mu.RUnlock()
	if !hasTools {
		c.logger.Debug("MCP server advertises no tool support", "server", name)
		return
	}

	if err := c.harvestTools(ctx, conn); err != nil {
		c.logger.Error("MCP tool discovery failed", "server", name, "error", err)
	}
}

// handshake performs the MCP initialize exchange: initialize request,
// capability capture, then the initialized notification.
func (c *Client) handshake(ctx context.Context, conn *ServerConnection) error {
	params := map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]any{
			"name":    "toolhost",
			"version": buildinfo.Version,
		},
	}

	raw, err := conn.Transport.Request(ctx, "initialize", params)
	if err != nil {
		return fmt.Errorf("initialize: %w", err)
	}

	var result initializeResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("unmarshal initialize result: %w", err)
	}

	if err := conn.Transport.Notify(ctx, "notifications/initialized", nil); err != nil {
		return fmt.Errorf("send initialized notification: %w", err)
	}

	c.mu.Lock()
	conn.Ready = true
	conn.Capabilities = result.Capabilities
	conn.ServerName = result.ServerInfo.Name
	conn.ServerVersion = result.ServerInfo.Version
	conn.Protocol = result.ProtocolVersion
	c.mu.Unlock()

	c.logger.Info("MCP server initialized",
		"server", conn.Config.Name,
		"server_name", result.ServerInfo.Name,
		"server_version", result.ServerInfo.Version,
		"protocol_version", result.ProtocolVersion,
	)
	return nil
}

// harvestTools fetches the server's tool list, applies include/exclude
// filters, and merges it into the aggregate catalog under qualified
// names.
func (c *Client) harvestTools(ctx context.Context, conn *ServerConnection) error {
	raw, err := conn.Transport.Request(ctx, "tools/list", nil)
	if err != nil {
		return fmt.Errorf("tools/list: %w", err)
	}

	var result toolsListResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return fmt.Errorf("unmarshal tools/list result: %w", err)
	}

	includeSet := toSet(conn.Config.IncludeTools)
	excludeSet := toSet(conn.Config.ExcludeTools)

	kept := make([]ToolDefinition, 0, len(result.Tools))
	for _, td := range result.Tools {
		if len(includeSet) > 0 {
			if !includeSet[td.Name] {
				continue
			}
		} else if excludeSet[td.Name] {
			continue
		}
		kept = append(kept, td)
	}

	server := conn.Config.Name
	c.mu.Lock()
	conn.Tools = kept
	for _, td := range kept {
		qualified := td
		qualified.Name = QualifiedName(server, td.Name)
		c.toolIndex[qualified.Name] = qualified
	}
	c.mu.Unlock()

	c.logger.Info("discovered MCP tools",
		"server", server,
		"count", len(kept),
		"filtered", len(result.Tools)-len(kept),
	)
	return nil
}

// QualifiedName returns the catalog name for a server-sourced tool.
func QualifiedName(server, tool string) string {
	return server + "/" + tool
}

// ListTools returns the merged catalog snapshot: built-in tools under
// their bare names, server tools under qualified names, sorted.
func (c *Client) ListTools() []ToolDefinition {
	var out []ToolDefinition
	for _, t := range c.builtins.List() {
		out = append(out, ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	c.mu.RLock()
	for _, td := range c.toolIndex {
		out = append(out, td)
	}
	c.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// callTarget is the resolved destination of a tool call.
type callTarget struct {
	builtin bool
	server  string
	tool    string
}

// resolveTool maps a caller-supplied name to a backend, in order:
// explicit "server/tool" form, the browser_* built-in convention,
// built-in registry membership, then a linear search of each connected
// server's advertised tools. An unresolvable name is a NotFoundError —
// returned before any rate limiter or transport is touched.
func (c *Client) resolveTool(name string) (callTarget, error) {
	if server, tool, ok := strings.Cut(name, "/"); ok && server != "" && tool != "" {
		return callTarget{server: server, tool: tool}, nil
	}

	if strings.HasPrefix(name, "browser_") || c.builtins.Has(name) {
		return callTarget{builtin: true, tool: name}, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, sname := range c.order {
		conn := c.servers[sname]
		if conn == nil {
			continue
		}
		for _, td := range conn.Tools {
			if td.Name == name {
				return callTarget{server: sname, tool: name}, nil
			}
		}
	}

	return callTarget{}, &NotFoundError{Kind: "tool", Name: name}
}

// CallTool resolves name to a backend and invokes it. The category rate
// limiter is checked before any dispatch: built-in and browser tools
// draw from the browser bucket, server tools from the mcp bucket. An
// exhausted bucket fails the call immediately with a retry-after hint.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	target, err := c.resolveTool(name)
	if err != nil {
		return "", err
	}

	if target.builtin {
		if err := c.checkRate(RateCategoryBrowser); err != nil {
			return "", err
		}
		start := time.Now()
		out, err := c.builtins.Call(ctx, target.tool, args)
		c.record("", target.tool, err, time.Since(start))
		return out, err
	}

	if err := c.checkRate(RateCategoryMCP); err != nil {
		return "", err
	}

	c.mu.RLock()
	conn := c.servers[target.server]
	c.mu.RUnlock()
	if conn == nil {
		return "", &NotFoundError{Kind: "server", Name: target.server}
	}

	start := time.Now()
	out, err := c.callServerTool(ctx, conn, target.tool, args)
	c.record(target.server, target.tool, err, time.Since(start))
	return out, err
}

func (c *Client) callServerTool(ctx context.Context, conn *ServerConnection, tool string, args map[string]any) (string, error) {
	if args == nil {
		args = map[string]any{}
	}
	raw, err := conn.Transport.Request(ctx, "tools/call", map[string]any{
		"name":      tool,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("tools/call %s: %w", tool, err)
	}

	var result callToolResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("unmarshal tools/call result: %w", err)
	}

	text := ExtractText(result.Content)
	if result.IsError {
		return "", fmt.Errorf("MCP tool %s returned error: %s", tool, text)
	}
	return text, nil
}

// ListResources fans resources/list out to every ready server that
// advertises resource support and merges the results. Individual server
// failures are logged and tolerated.
func (c *Client) ListResources(ctx context.Context) ([]Resource, error) {
	conns := c.readyConnections(func(caps ServerCapabilities) bool { return caps.Resources != nil })

	var (
		mu  sync.Mutex
		out []Resource
		wg  sync.WaitGroup
	)
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *ServerConnection) {
			defer wg.Done()
			raw, err := conn.Transport.Request(ctx, "resources/list", nil)
			if err != nil {
				c.logger.Warn("resources/list failed", "server", conn.Config.Name, "error", err)
				return
			}
			var result resourcesListResult
			if err := json.Unmarshal(raw, &result); err != nil {
				c.logger.Warn("unmarshal resources/list result", "server", conn.Config.Name, "error", err)
				return
			}
			mu.Lock()
			out = append(out, result.Resources...)
			mu.Unlock()
		}(conn)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].URI < out[j].URI })
	return out, nil
}

// ReadResource routes a resource URI to its owning server by prefix
// match against server names. With exactly one connected server the
// routing is unambiguous and the prefix check is waived; with several
// and no match the read fails rather than guessing an owner.
func (c *Client) ReadResource(ctx context.Context, uri string) ([]ResourceContents, error) {
	conns := c.readyConnections(nil)
	if len(conns) == 0 {
		return nil, &NotFoundError{Kind: "server", Name: uri}
	}

	var owner *ServerConnection
	for _, conn := range conns {
		if strings.HasPrefix(uri, conn.Config.Name) {
			owner = conn
			break
		}
	}
	if owner == nil {
		if len(conns) != 1 {
			return nil, &NotFoundError{Kind: "resource", Name: uri}
		}
		owner = conns[0]
	}

	raw, err := owner.Transport.Request(ctx, "resources/read", map[string]any{"uri": uri})
	if err != nil {
		return nil, fmt.Errorf("resources/read %s: %w", uri, err)
	}

	var result readResourceResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("unmarshal resources/read result: %w", err)
	}
	return result.Contents, nil
}

// ListPrompts fans prompts/list out to every ready server that
// advertises prompt support and merges the results.
func (c *Client) ListPrompts(ctx context.Context) ([]Prompt, error) {
	conns := c.readyConnections(func(caps ServerCapabilities) bool { return caps.Prompts != nil })

	var (
		mu  sync.Mutex
		out []Prompt
		wg  sync.WaitGroup
	)
	for _, conn := range conns {
		wg.Add(1)
		go func(conn *ServerConnection) {
			defer wg.Done()
			raw, err := conn.Transport.Request(ctx, "prompts/list", nil)
			if err != nil {
				c.logger.Warn("prompts/list failed", "server", conn.Config.Name, "error", err)
				return
			}
			var result promptsListResult
			if err := json.Unmarshal(raw, &result); err != nil {
				c.logger.Warn("unmarshal prompts/list result", "server", conn.Config.Name, "error", err)
				return
			}
			mu.Lock()
			out = append(out, result.Prompts...)
			mu.Unlock()
		}(conn)
	}
	wg.Wait()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// GetPrompt probes ready servers in registration order and returns the
// first successful result. A server answering "method not found" is
// skipped; any other error is surfaced immediately.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*GetPromptResult, error) {
	params := map[string]any{"name": name}
	if len(args) > 0 {
		params["arguments"] = args
	}

	for _, conn := range c.readyConnections(nil) {
		raw, err := conn.Transport.Request(ctx, "prompts/get", params)
		if err != nil {
			var rpcErr *RPCError
			if errors.As(err, &rpcErr) && rpcErr.Code == CodeMethodNotFound {
				continue
			}
			return nil, fmt.Errorf("prompts/get %s from %s: %w", name, conn.Config.Name, err)
		}

		var result GetPromptResult
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal prompts/get result: %w", err)
		}
		return &result, nil
	}

	return nil, &NotFoundError{Kind: "prompt", Name: name}
}

// Ping checks whether a named server is responsive.
func (c *Client) Ping(ctx context.Context, server string) error {
	c.mu.RLock()
	conn := c.servers[server]
	c.mu.RUnlock()
	if conn == nil {
		return &NotFoundError{Kind: "server", Name: server}
	}
	_, err := conn.Transport.Request(ctx, "ping", nil)
	return err
}

// GetServers returns a status snapshot for every registered server in
// registration order.
func (c *Client) GetServers() []ServerStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]ServerStatus, 0, len(c.order))
	for _, name := range c.order {
		conn := c.servers[name]
		if conn == nil {
			continue
		}
		out = append(out, ServerStatus{
			Name:          name,
			Ready:         conn.Ready,
			Connected:     conn.Transport.Connected(),
			Tools:         len(conn.Tools),
			ServerName:    conn.ServerName,
			ServerVersion: conn.ServerVersion,
		})
	}
	return out
}

// RateLimitStatus returns the current token count and capacity for a
// category.
func (c *Client) RateLimitStatus(category string) (ratelimit.Status, error) {
	lim, err := c.limits.Get(category)
	if err != nil {
		return ratelimit.Status{}, err
	}
	return lim.Status(), nil
}

// Shutdown disconnects every server concurrently, waits for all to
// settle, and clears the aggregate state. Individual disconnect errors
// are logged, never fatal. Idempotent.
func (c *Client) Shutdown() error {
	c.mu.Lock()
	servers := c.servers
	c.servers = make(map[string]*ServerConnection)
	c.order = nil
	c.toolIndex = make(map[string]ToolDefinition)
	c.mu.Unlock()

	if len(servers) == 0 {
		return nil
	}

	var wg sync.WaitGroup
	for name, conn := range servers {
		wg.Add(1)
		go func(name string, conn *ServerConnection) {
			defer wg.Done()
			if err := conn.Transport.Disconnect(); err != nil {
				c.logger.Warn("MCP server disconnect failed", "server", name, "error", err)
			}
		}(name, conn)
	}
	wg.Wait()

	c.logger.Info("MCP client shut down", "servers", len(servers))
	return nil
}

// handleServerDisconnect removes a server that dropped unexpectedly and
// strips its qualified tools from the catalog, leaving the rest intact.
func (c *Client) handleServerDisconnect(name string, err error) {
	c.mu.Lock()
	conn := c.servers[name]
	if conn == nil {
		c.mu.Unlock()
		return
	}
	delete(c.servers, name)
	for i, n := range c.order {
		if n == name {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	prefix := name + "/"
	for qualified := range c.toolIndex {
		if strings.HasPrefix(qualified, prefix) {
			delete(c.toolIndex, qualified)
		}
	}
	c.mu.Unlock()

	c.logger.Warn("MCP server disconnected", "server", name, "error", err)
}

// handleNotification logs inbound server notifications by kind.
func (c *Client) handleNotification(server string, ev Event) {
	switch ev.Kind {
	case NotificationMessage:
		c.logger.Info("MCP server message", "server", server, "params", string(ev.Params))
	case NotificationProgress:
		c.logger.Debug("MCP progress", "server", server, "params", string(ev.Params))
	case NotificationCancelled:
		c.logger.Debug("MCP request cancelled by server", "server", server, "params", string(ev.Params))
	case NotificationInitialized:
		c.logger.Debug("MCP server reports initialized", "server", server)
	default:
		c.logger.Debug("MCP notification", "server", server, "method", ev.Method)
	}
}

// readyConnections snapshots the ready connections in registration
// order, optionally filtered by capability.
func (c *Client) readyConnections(want func(ServerCapabilities) bool) []*ServerConnection {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]*ServerConnection, 0, len(c.order))
	for _, name := range c.order {
		conn := c.servers[name]
		if conn == nil || !conn.Ready {
			continue
		}
		if want != nil && !want(conn.Capabilities) {
			continue
		}
		out = append(out, conn)
	}
	return out
}

// checkRate consumes one token from a category bucket, or fails with a
// RateLimitError carrying the retry-after hint.
func (c *Client) checkRate(category string) error {
	lim, err := c.limits.Get(category)
	if err != nil {
		// Unconfigured category: log once per call site rather than
		// blocking tool execution.
		c.logger.Warn("no rate limiter for category", "category", category)
		return nil
	}
	if !lim.TryConsume(1) {
		return &RateLimitError{
			Category:   category,
			RetryAfter: lim.TimeUntilAvailable(),
		}
	}
	return nil
}

// record writes a call audit entry when a recorder is attached.
func (c *Client) record(server, tool string, callErr error, elapsed time.Duration) {
	if c.recorder == nil {
		return
	}
	if err := c.recorder.RecordCall(server, tool, callErr, elapsed); err != nil {
		c.logger.Warn("tool call audit write failed", "tool", tool, "error", err)
	}
}

// toSet converts a string slice to a set for O(1) lookups.
func toSet(items []string) map[string]bool {
	if len(items) == 0 {
		return nil
	}
	m := make(map[string]bool, len(items))
	for _, item := range items {
		m[item] = true
	}
	return m
}
