package orchestrator

import (
	"github.com/inkgate/inkgate/internal/llm"
	"github.com/inkgate/inkgate/internal/store"
)

// EventType identifies an exchange progress event delivered to the
// transport layer.
type EventType string

const (
	// EventContent carries a display text fragment.
	EventContent EventType = "content"
	// EventReasoning carries a reasoning text fragment.
	EventReasoning EventType = "reasoning"
	// EventApprovalRequest announces a tool call suspended on a human
	// decision.
	EventApprovalRequest EventType = "tool_approval_request"
	// EventToolResult carries one finalized tool invocation, delivered
	// in request order.
	EventToolResult EventType = "tool_invocation_completed"
	// EventUsage carries the exchange's accumulated token counters.
	EventUsage EventType = "usage"
)

// ApprovalRequest describes a suspended tool call for the client.
type ApprovalRequest struct {
	TicketID    string         `json:"ticket_id"`
	Tool        string         `json:"tool"`
	Args        map[string]any `json:"args"`
	Description string         `json:"description"`
}

// Event is one element of the ordered exchange progress stream.
type Event struct {
	Type       EventType
	Text       string
	Approval   *ApprovalRequest
	Invocation *store.ToolInvocation
	Usage      *llm.Usage
}

// Emitter receives exchange progress events. Calls arrive from a single
// goroutine in the order clients must observe them.
type Emitter func(Event)
