// Package llm provides the client contract for OpenAI-compatible chat
// completion providers and the typed event stream the orchestrator
// consumes.
package llm

import (
	"context"
	"fmt"
)

// Role identifies a message author.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one entry in the model-visible conversation context.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a fully accumulated tool invocation request from the
// model.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON
}

// ToolDefinition advertises an available tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Usage carries token counters reported by the provider.
type Usage struct {
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	CacheTokens     int64
}

// Request describes one streaming exchange.
type Request struct {
	Model    string
	Messages []Message
	Tools    []ToolDefinition
}

// EventType identifies a stream event.
type EventType string

const (
	// EventContentDelta carries a text fragment.
	EventContentDelta EventType = "content_delta"
	// EventToolCalls carries the turn's accumulated tool calls; the
	// provider signalled that generation paused for tool results.
	EventToolCalls EventType = "tool_calls"
	// EventUsage carries token counters (typically the final chunk).
	EventUsage EventType = "usage"
	// EventDone marks normal stream completion.
	EventDone EventType = "done"
	// EventError marks stream failure; Err is set.
	EventError EventType = "error"
)

// Event is one element of the ordered stream a client produces.
type Event struct {
	Type  EventType
	Text  string
	Calls []ToolCall
	Usage *Usage
	Err   error
}

// Client opens streaming exchanges against a model provider. The
// returned channel is closed after a terminal EventDone or EventError.
type Client interface {
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

// TransportError reports an upstream connection or protocol failure.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}
