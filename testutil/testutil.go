// Package testutil provides shared helpers for package tests: ephemeral
// stores, workspace fixtures, and a scripted model client.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/inkgate/inkgate/internal/llm"
	"github.com/inkgate/inkgate/internal/store"
)

// OpenStore returns a store backed by a database in a test temp dir,
// closed automatically when the test ends.
func OpenStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "sessions.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

// WriteWorkspaceFile creates a file (and parents) under root and
// returns its path.
func WriteWorkspaceFile(t *testing.T, root, rel, content string) string {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

// ScriptedClient replays pre-recorded event streams, one per Stream
// call, in order. The final request is recorded for assertions.
type ScriptedClient struct {
	Turns    [][]llm.Event
	Requests []*llm.Request

	next int
}

// Stream returns the next scripted turn. Running past the script yields
// a bare done event.
func (c *ScriptedClient) Stream(ctx context.Context, req *llm.Request) (<-chan llm.Event, error) {
	c.Requests = append(c.Requests, req)

	var turn []llm.Event
	if c.next < len(c.Turns) {
		turn = c.Turns[c.next]
		c.next++
	} else {
		turn = []llm.Event{{Type: llm.EventDone}}
	}

	out := make(chan llm.Event, len(turn))
	for _, ev := range turn {
		out <- ev
	}
	close(out)
	return out, nil
}

// ContentTurn builds a scripted turn that streams the given text
// fragments and finishes.
func ContentTurn(fragments ...string) []llm.Event {
	var turn []llm.Event
	for _, f := range fragments {
		turn = append(turn, llm.Event{Type: llm.EventContentDelta, Text: f})
	}
	return append(turn, llm.Event{Type: llm.EventDone})
}

// ToolCallTurn builds a scripted turn that requests the given tool
// calls after optional leading text.
func ToolCallTurn(text string, calls ...llm.ToolCall) []llm.Event {
	var turn []llm.Event
	if text != "" {
		turn = append(turn, llm.Event{Type: llm.EventContentDelta, Text: text})
	}
	turn = append(turn, llm.Event{Type: llm.EventToolCalls, Calls: calls})
	return append(turn, llm.Event{Type: llm.EventDone})
}
