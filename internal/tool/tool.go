// Package tool defines the capability-polymorphic executor contract and
// the registry that dispatches tool calls by name. Executors own their
// own resource caps but perform no security checks: they are reachable
// only through the orchestrator's post-gate path and trust that inputs
// were already validated.
package tool

import (
	"context"
	"fmt"
)

// ErrKind classifies executor failures.
type ErrKind string

const (
	ErrInvalidArgs ErrKind = "invalid_args"
	ErrNotFound    ErrKind = "not_found"
	ErrTimeout     ErrKind = "timeout"
	ErrIO          ErrKind = "io"
	ErrExit        ErrKind = "exit"
)

// ExecError reports a failed tool execution. It is surfaced to the
// model as content, never as a protocol error.
type ExecError struct {
	Tool string
	Kind ErrKind
	Err  error
}

func (e *ExecError) Error() string {
	return fmt.Sprintf("tool %s failed [%s]: %v", e.Tool, e.Kind, e.Err)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// Result is a successful execution outcome.
type Result struct {
	Content string
}

// Tool is the uniform executor contract. Execute must honor ctx
// cancellation and deadlines.
type Tool interface {
	Name() string
	Description() string
	InputSchema() map[string]any
	Execute(ctx context.Context, args map[string]any) (*Result, error)
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key].(string)
	return v, ok
}
