package tools

import (
	"context"
	"errors"
	"testing"
)

func testTool(name, result string) *Tool {
	return &Tool{
		Name:        name,
		Description: "test tool " + name,
		InputSchema: map[string]any{"type": "object"},
		Handler: func(_ context.Context, _ map[string]any) (string, error) {
			return result, nil
		},
	}
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry()
	r.Register(testTool("browser_navigate", "ok"))

	if !r.Has("browser_navigate") {
		t.Error("Has(browser_navigate) = false, want true")
	}
	if r.Has("browser_click") {
		t.Error("Has(browser_click) = true, want false")
	}

	tool := r.Get("browser_navigate")
	if tool == nil {
		t.Fatal("Get returned nil")
	}
	if tool.Description != "test tool browser_navigate" {
		t.Errorf("Description = %q", tool.Description)
	}
}

func TestRegistry_RegisterOverwrites(t *testing.T) {
	r := NewRegistry()
	r.Register(testTool("echo", "first"))
	r.Register(testTool("echo", "second"))

	got, err := r.Call(context.Background(), "echo", nil)
	if err != nil {
		t.Fatalf("Call: %v", err)
	}
	if got != "second" {
		t.Errorf("Call = %q, want %q", got, "second")
	}
	if n := len(r.List()); n != 1 {
		t.Errorf("List has %d tools, want 1", n)
	}
}

func TestRegistry_ListSorted(t *testing.T) {
	r := NewRegistry()
	r.Register(testTool("zeta", ""))
	r.Register(testTool("alpha", ""))
	r.Register(testTool("mid", ""))

	names := r.Names()
	want := []string{"alpha", "mid", "zeta"}
	if len(names) != len(want) {
		t.Fatalf("Names = %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestRegistry_CallUnknown(t *testing.T) {
	r := NewRegistry()

	_, err := r.Call(context.Background(), "nope", nil)
	if err == nil {
		t.Fatal("Call succeeded, want error")
	}

	var unavailable *ErrToolUnavailable
	if !errors.As(err, &unavailable) {
		t.Fatalf("error = %T, want *ErrToolUnavailable", err)
	}
	if unavailable.ToolName != "nope" {
		t.Errorf("ToolName = %q, want %q", unavailable.ToolName, "nope")
	}
}
