package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sseHandler(t *testing.T, chunks []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, chunk := range chunks {
			_, _ = w.Write([]byte("data: " + chunk + "\n\n"))
		}
		_, _ = w.Write([]byte("data: [DONE]\n\n"))
	}
}

func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func TestStreamContentDeltas(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"choices":[{"delta":{"content":"Hel"}}]}`,
		`{"choices":[{"delta":{"content":"lo"}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"stop"}]}`,
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "")
	events, err := client.Stream(context.Background(), &Request{Model: "m",
		Messages: []Message{{Role: RoleUser, Content: "hi"}}})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 3)
	assert.Equal(t, EventContentDelta, got[0].Type)
	assert.Equal(t, "Hel", got[0].Text)
	assert.Equal(t, "lo", got[1].Text)
	assert.Equal(t, EventDone, got[2].Type)
}

func TestStreamAccumulatesToolCallDeltas(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"id":"call_1","function":{"name":"read_file","arguments":"{\"pa"}}]}}]}`,
		`{"choices":[{"delta":{"tool_calls":[{"index":0,"function":{"arguments":"th\":\"a.txt\"}"}}]}}]}`,
		`{"choices":[{"delta":{},"finish_reason":"tool_calls"}]}`,
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "")
	events, err := client.Stream(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)

	got := collect(t, events)
	require.Len(t, got, 2)
	require.Equal(t, EventToolCalls, got[0].Type)
	require.Len(t, got[0].Calls, 1)
	assert.Equal(t, "call_1", got[0].Calls[0].ID)
	assert.Equal(t, "read_file", got[0].Calls[0].Name)
	assert.Equal(t, `{"path":"a.txt"}`, got[0].Calls[0].Arguments)
	assert.Equal(t, EventDone, got[1].Type)
}

func TestStreamUsage(t *testing.T) {
	srv := httptest.NewServer(sseHandler(t, []string{
		`{"choices":[{"delta":{"content":"x"},"finish_reason":"stop"}]}`,
		`{"choices":[],"usage":{"prompt_tokens":120,"completion_tokens":30,"prompt_tokens_details":{"cached_tokens":40},"completion_tokens_details":{"reasoning_tokens":8}}}`,
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "")
	events, err := client.Stream(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)

	var usage *Usage
	for _, ev := range collect(t, events) {
		if ev.Type == EventUsage {
			usage = ev.Usage
		}
	}
	require.NotNil(t, usage)
	assert.Equal(t, int64(120), usage.InputTokens)
	assert.Equal(t, int64(30), usage.OutputTokens)
	assert.Equal(t, int64(40), usage.CacheTokens)
	assert.Equal(t, int64(8), usage.ReasoningTokens)
}

func TestStreamNonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "")
	_, err := client.Stream(context.Background(), &Request{Model: "m"})
	require.Error(t, err)
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Contains(t, terr.Error(), "404")
}

func TestStreamSendsAuthHeader(t *testing.T) {
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		sseHandler(t, nil)(w, r)
	}))
	defer srv.Close()

	client := NewOpenAIClient(srv.URL+"/v1", "sk-test")
	events, err := client.Stream(context.Background(), &Request{Model: "m"})
	require.NoError(t, err)
	collect(t, events)
	assert.Equal(t, "Bearer sk-test", auth)
}

func TestBuildWireRequest(t *testing.T) {
	req := &Request{
		Model: "m",
		Messages: []Message{
			{Role: RoleSystem, Content: "sys"},
			{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "c1", Name: "bash", Arguments: `{}`}}},
			{Role: RoleTool, Content: "result", ToolCallID: "c1"},
		},
		Tools: []ToolDefinition{{Name: "bash", Description: "d", Parameters: map[string]any{"type": "object"}}},
	}

	wr := buildWireRequest(req)
	assert.True(t, wr.Stream)
	assert.True(t, wr.StreamOptions.IncludeUsage)
	require.Len(t, wr.Messages, 3)

	// Assistant tool-call messages omit content; others carry it.
	assert.NotNil(t, wr.Messages[0].Content)
	assert.Nil(t, wr.Messages[1].Content)
	require.Len(t, wr.Messages[1].ToolCalls, 1)
	assert.Equal(t, "bash", wr.Messages[1].ToolCalls[0].Function.Name)
	assert.Equal(t, "c1", wr.Messages[2].ToolCallID)

	require.Len(t, wr.Tools, 1)
	assert.Equal(t, "function", wr.Tools[0].Type)
}
