// Package store persists sessions, messages, tool invocations and
// attachment blobs in SQLite. Writes for one session are serialized;
// independent sessions may write concurrently through their own stores
// or the shared connection pool.
package store

import "fmt"

// InvocationStatus is the terminal status of a tool invocation record.
type InvocationStatus string

const (
	InvocationOK       InvocationStatus = "ok"
	InvocationError    InvocationStatus = "error"
	InvocationBlocked  InvocationStatus = "blocked"
	InvocationDenied   InvocationStatus = "denied"
	InvocationRejected InvocationStatus = "rejected"
)

// TokenUsage tracks cumulative token counters for a session.
type TokenUsage struct {
	InputTokens     int64
	OutputTokens    int64
	ReasoningTokens int64
	CacheTokens     int64
	TotalTokens     int64
}

// ToolInvocation is the durable record of one resolved tool call.
// Created only after the call is approved-and-executed or rejected;
// never mutated afterwards.
type ToolInvocation struct {
	Tool      string
	Arguments string
	Result    string
	Error     string
	Status    InvocationStatus
}

// Source is an attachment shown with a message. Content is stored as a
// deduplicated blob and inflated on load.
type Source struct {
	Title   string
	Hash    string
	Content string
}

// Message is one conversation entry. Ordinal is strictly increasing
// within a session.
type Message struct {
	ID        int64
	Role      string
	Ordinal   int
	Content   string
	Reasoning string
	CreatedAt int64
	Tools     []ToolInvocation
	Sources   []Source
}

// Session is a conversation with its full ordered message list.
type Session struct {
	ID        string
	Title     string
	ModelID   string
	CreatedAt int64
	UpdatedAt int64
	Usage     TokenUsage
	Messages  []Message
}

// SessionSummary is the list-view projection of a session.
type SessionSummary struct {
	ID           string
	Title        string
	ModelID      string
	CreatedAt    int64
	UpdatedAt    int64
	MessageCount int
	Preview      string
	Usage        TokenUsage
}

// Turn is the atomic unit written when an exchange completes: the
// assistant message, its reasoning segment, its ordered tool
// invocations, and the token usage delta.
type Turn struct {
	Content     string
	Reasoning   string
	Invocations []ToolInvocation
	Usage       TokenUsage
}

// StorageError reports a failed persistence operation.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
