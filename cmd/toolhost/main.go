// Toolhost is an MCP client and tool aggregator.
//
// It connects to the MCP servers listed in a single YAML configuration
// file (discovered automatically, see [config.DefaultSearchPaths]),
// merges their tools, resources, and prompts into one catalog alongside
// any built-in tools, and exposes the result through CLI subcommands.
//
// Usage:
//
//	toolhost list                  List all available tools
//	toolhost call <tool> [json]    Call a tool with JSON arguments
//	toolhost resources [uri]       List resources, or read one by URI
//	toolhost prompts [name]        List prompts, or fetch one by name
//	toolhost status                Show server connections and rate limits
//	toolhost version               Print version and build information
//	toolhost -o json list          Output as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/toolhost/toolhost/internal/buildinfo"
	"github.com/toolhost/toolhost/internal/config"
	"github.com/toolhost/toolhost/internal/history"
	"github.com/toolhost/toolhost/internal/mcp"
	"github.com/toolhost/toolhost/internal/ratelimit"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit, os.Stdout, and os.Args out of the application logic so the
// full lifecycle can be driven from tests.
func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the toolhost command. Arguments are
// parsed by hand: the flag package relies on package-level globals,
// which makes it impossible to call run() concurrently from tests, and
// the argument surface is small enough that manual parsing is clearer
// than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "list":
		return runList(ctx, stdout, stderr, configPath, outputFmt)
	case "call":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: toolhost call <tool> [json-arguments]")
		}
		return runCall(ctx, stdout, stderr, configPath, cmdArgs)
	case "resources":
		return runResources(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "prompts":
		return runPrompts(ctx, stdout, stderr, configPath, outputFmt, cmdArgs)
	case "status":
		return runStatus(ctx, stdout, stderr, configPath, outputFmt)
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// bootClient loads configuration, builds the MCP client, and connects
// every configured server. The returned cleanup shuts the client (and
// the audit store, if enabled) down.
func bootClient(ctx context.Context, stderr io.Writer, configPath string) (*mcp.Client, func(), error) {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := slog.LevelInfo
	if cfg.LogLevel != "" {
		if level, err = config.ParseLogLevel(cfg.LogLevel); err != nil {
			return nil, nil, err
		}
	}
	logger := newLogger(stderr, level)
	logger.Debug("config loaded", "path", cfgPath)

	limits := ratelimit.NewRegistry()
	limits.Add(mcp.RateCategoryBrowser, cfg.RateLimits.Browser.Capacity,
		time.Duration(cfg.RateLimits.Browser.WindowSec)*time.Second)
	limits.Add(mcp.RateCategoryMCP, cfg.RateLimits.MCP.Capacity,
		time.Duration(cfg.RateLimits.MCP.WindowSec)*time.Second)

	opts := []mcp.Option{
		mcp.WithLogger(logger),
		mcp.WithRateLimits(limits),
		mcp.WithConnectTimeout(cfg.ConnectTimeout()),
		mcp.WithRequestTimeout(cfg.RequestTimeout()),
	}

	var audit *history.Store
	if cfg.History.Enabled {
		audit, err = history.NewStore(cfg.History.Path)
		if err != nil {
			return nil, nil, fmt.Errorf("open history store: %w", err)
		}
		opts = append(opts, mcp.WithRecorder(audit))
	}

	client := mcp.NewClient(opts...)

	servers := make([]mcp.ServerConfig, 0, len(cfg.Servers))
	for _, s := range cfg.Servers {
		servers = append(servers, mcp.ServerConfig{
			Name:         s.Name,
			Transport:    s.Transport,
			Command:      s.Command,
			Args:         s.Args,
			Env:          s.Env,
			Dir:          s.Dir,
			URL:          s.URL,
			Headers:      s.Headers,
			IncludeTools: s.IncludeTools,
			ExcludeTools: s.ExcludeTools,
		})
	}

	if err := client.Initialize(ctx, servers); err != nil {
		client.Shutdown()
		if audit != nil {
			audit.Close()
		}
		return nil, nil, fmt.Errorf("initialize MCP servers: %w", err)
	}

	cleanup := func() {
		client.Shutdown()
		if audit != nil {
			audit.Close()
		}
	}
	return client, cleanup, nil
}

// runList prints the merged tool catalog.
func runList(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	client, cleanup, err := bootClient(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	tools := client.ListTools()
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tools)
	}

	for _, t := range tools {
		if t.Description != "" {
			fmt.Fprintf(stdout, "%-40s %s\n", t.Name, t.Description)
		} else {
			fmt.Fprintln(stdout, t.Name)
		}
	}
	return nil
}

// runCall invokes one tool. The second argument, when present, is a
// JSON object of tool arguments.
func runCall(ctx context.Context, stdout, stderr io.Writer, configPath string, cmdArgs []string) error {
	toolName := cmdArgs[0]

	var args map[string]any
	if len(cmdArgs) > 1 {
		if err := json.Unmarshal([]byte(cmdArgs[1]), &args); err != nil {
			return fmt.Errorf("parse tool arguments: %w", err)
		}
	}

	client, cleanup, err := bootClient(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	result, err := client.CallTool(ctx, toolName, args)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, result)
	return nil
}

// runResources lists resources from all servers, or reads one when a
// URI is given.
func runResources(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, cmdArgs []string) error {
	client, cleanup, err := bootClient(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(cmdArgs) > 0 {
		contents, err := client.ReadResource(ctx, cmdArgs[0])
		if err != nil {
			return err
		}
		for _, c := range contents {
			if c.Text != "" {
				fmt.Fprintln(stdout, c.Text)
			} else if c.Blob != "" {
				fmt.Fprintf(stdout, "[binary resource %s, %d bytes base64]\n", c.URI, len(c.Blob))
			}
		}
		return nil
	}

	resources, err := client.ListResources(ctx)
	if err != nil {
		return err
	}
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(resources)
	}
	for _, r := range resources {
		if r.Description != "" {
			fmt.Fprintf(stdout, "%-50s %s\n", r.URI, r.Description)
		} else {
			fmt.Fprintln(stdout, r.URI)
		}
	}
	return nil
}

// runPrompts lists prompts from all servers, or fetches one by name.
// Arguments after the name are key=value pairs.
func runPrompts(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string, cmdArgs []string) error {
	client, cleanup, err := bootClient(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	if len(cmdArgs) > 0 {
		promptArgs := make(map[string]string)
		for _, kv := range cmdArgs[1:] {
			k, v, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("prompt argument %q is not key=value", kv)
			}
			promptArgs[k] = v
		}

		result, err := client.GetPrompt(ctx, cmdArgs[0], promptArgs)
		if err != nil {
			return err
		}
		if outputFmt == "json" {
			enc := json.NewEncoder(stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		}
		for _, m := range result.Messages {
			fmt.Fprintf(stdout, "[%s] %s\n", m.Role, m.Content.Text)
		}
		return nil
	}

	prompts, err := client.ListPrompts(ctx)
	if err != nil {
		return err
	}
	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(prompts)
	}
	for _, p := range prompts {
		if p.Description != "" {
			fmt.Fprintf(stdout, "%-30s %s\n", p.Name, p.Description)
		} else {
			fmt.Fprintln(stdout, p.Name)
		}
	}
	return nil
}

// runStatus shows server connection state and rate limiter levels.
func runStatus(ctx context.Context, stdout, stderr io.Writer, configPath, outputFmt string) error {
	client, cleanup, err := bootClient(ctx, stderr, configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	servers := client.GetServers()

	type statusReport struct {
		Servers    []mcp.ServerStatus `json:"servers"`
		RateLimits []ratelimit.Status `json:"rate_limits"`
	}
	report := statusReport{Servers: servers}
	for _, category := range []string{mcp.RateCategoryBrowser, mcp.RateCategoryMCP} {
		if status, err := client.RateLimitStatus(category); err == nil {
			report.RateLimits = append(report.RateLimits, status)
		}
	}

	if outputFmt == "json" {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Fprintln(stdout, "Servers:")
	if len(servers) == 0 {
		fmt.Fprintln(stdout, "  (none connected)")
	}
	for _, s := range servers {
		state := "degraded"
		if s.Ready {
			state = "ready"
		}
		if !s.Connected {
			state = "disconnected"
		}
		fmt.Fprintf(stdout, "  %-20s %-12s %d tools", s.Name, state, s.Tools)
		if s.ServerName != "" {
			fmt.Fprintf(stdout, "  (%s %s)", s.ServerName, s.ServerVersion)
		}
		fmt.Fprintln(stdout)
	}

	fmt.Fprintln(stdout, "Rate limits:")
	for _, rl := range report.RateLimits {
		fmt.Fprintf(stdout, "  %-10s %.0f/%d tokens\n", rl.Category, rl.Tokens, rl.Capacity)
	}
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Toolhost - MCP client and tool aggregator")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: toolhost [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  list                  List all available tools")
	fmt.Fprintln(w, "  call <tool> [json]    Call a tool with JSON arguments")
	fmt.Fprintln(w, "  resources [uri]       List resources, or read one by URI")
	fmt.Fprintln(w, "  prompts [name] [k=v]  List prompts, or fetch one by name")
	fmt.Fprintln(w, "  status                Show server connections and rate limits")
	fmt.Fprintln(w, "  version               Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/toolhost/config.yaml, /etc/toolhost/config.yaml")
	return nil
}

// newLogger builds the structured logger used for all diagnostics.
// Logs go to stderr so command output on stdout stays clean.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// loadConfig locates and parses the YAML configuration file. If explicit
// is non-empty, that exact path is used (and must exist). Otherwise
// [config.FindConfig] searches the default locations.
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}
