package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestRunNoArgsPrintsUsage(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if err := run(context.Background(), &stdout, &stderr, nil); err != nil {
		t.Fatalf("run() = %v, want nil", err)
	}
	if !strings.Contains(stdout.String(), "Usage: toolhost") {
		t.Errorf("stdout = %q, want usage text", stdout.String())
	}
}

func TestRunHelpFlag(t *testing.T) {
	for _, flag := range []string{"-h", "-help", "--help"} {
		t.Run(flag, func(t *testing.T) {
			var stdout, stderr bytes.Buffer
			if err := run(context.Background(), &stdout, &stderr, []string{flag}); err != nil {
				t.Fatalf("run(%s) = %v, want nil", flag, err)
			}
			if !strings.Contains(stdout.String(), "Usage: toolhost") {
				t.Errorf("stdout = %q, want usage text", stdout.String())
			}
		})
	}
}

func TestRunUnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), &stdout, &stderr, []string{"frobnicate"})
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("run(frobnicate) = %v, want unknown command error", err)
	}
}

func TestRunUnknownFlag(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), &stdout, &stderr, []string{"-bogus"})
	if err == nil || !strings.Contains(err.Error(), "unknown flag") {
		t.Errorf("run(-bogus) = %v, want unknown flag error", err)
	}
}

func TestRunBadOutputFormat(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), &stdout, &stderr, []string{"-o", "xml", "version"})
	if err == nil || !strings.Contains(err.Error(), "unknown output format") {
		t.Errorf("run(-o xml) = %v, want output format error", err)
	}
}

func TestRunVersionText(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if err := run(context.Background(), &stdout, &stderr, []string{"version"}); err != nil {
		t.Fatalf("run(version) = %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "Toolhost") {
		t.Errorf("version output = %q, want Toolhost banner", out)
	}
	if !strings.Contains(out, "go_version:") {
		t.Errorf("version output = %q, want go_version field", out)
	}
}

func TestRunVersionJSON(t *testing.T) {
	var stdout, stderr bytes.Buffer

	if err := run(context.Background(), &stdout, &stderr, []string{"-o", "json", "version"}); err != nil {
		t.Fatalf("run(-o json version) = %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, `"version"`) || !strings.Contains(out, `"go_version"`) {
		t.Errorf("json version output = %q, want version fields", out)
	}
}

func TestRunCallRequiresTool(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), &stdout, &stderr, []string{"call"})
	if err == nil || !strings.Contains(err.Error(), "usage: toolhost call") {
		t.Errorf("run(call) = %v, want usage error", err)
	}
}

func TestRunListMissingConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), &stdout, &stderr,
		[]string{"-config", "/nonexistent/config.yaml", "list"})
	if err == nil || !strings.Contains(err.Error(), "config file not found") {
		t.Errorf("run(list) with bad config = %v, want config error", err)
	}
}

func TestRunListEmptyConfig(t *testing.T) {
	// A config with no servers still works: the catalog is just empty.
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("data_dir: "+dir+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", cfgPath, "list"}); err != nil {
		t.Fatalf("run(list) = %v", err)
	}
	if strings.TrimSpace(stdout.String()) != "" {
		t.Errorf("list output = %q, want empty for no servers", stdout.String())
	}
}

func TestRunStatusEmptyConfig(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte("data_dir: "+dir+"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	var stdout, stderr bytes.Buffer
	if err := run(context.Background(), &stdout, &stderr, []string{"-config", cfgPath, "status"}); err != nil {
		t.Fatalf("run(status) = %v", err)
	}
	out := stdout.String()
	if !strings.Contains(out, "(none connected)") {
		t.Errorf("status output = %q, want none connected", out)
	}
	if !strings.Contains(out, "browser") || !strings.Contains(out, "mcp") {
		t.Errorf("status output = %q, want rate limit categories", out)
	}
}
