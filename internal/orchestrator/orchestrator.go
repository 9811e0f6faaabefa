// Package orchestrator drives one streaming exchange: it relays model
// output while separating reasoning from display text, and routes every
// tool call through the security gate, the permission policy and, when
// required, a human approval ticket before execution.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/inkgate/inkgate/internal/approval"
	"github.com/inkgate/inkgate/internal/gate"
	"github.com/inkgate/inkgate/internal/llm"
	"github.com/inkgate/inkgate/internal/logging"
	"github.com/inkgate/inkgate/internal/policy"
	"github.com/inkgate/inkgate/internal/reasoning"
	"github.com/inkgate/inkgate/internal/store"
	"github.com/inkgate/inkgate/internal/tool"
)

const defaultMaxIterations = 25

const defaultSystemPrompt = `You are a helpful coding assistant with access to tools for reading, writing and searching files in the user's workspace, and for running shell commands. Use tools when they help answer the question. Be concise.`

// pathArgTools names the tools whose "path" argument must pass the
// security gate before dispatch.
var pathArgTools = map[string]bool{
	"read_file":  true,
	"write_file": true,
	"grep":       true,
}

// Orchestrator wires the exchange pipeline together. All fields must be
// set except SystemPrompt and MaxIterations, which have defaults.
type Orchestrator struct {
	Client    llm.Client
	Model     string
	Registry  *tool.Registry
	Gate      *gate.Gate
	Policy    *policy.Store
	Approvals *approval.Coordinator
	Store     *store.Store

	SystemPrompt  string
	MaxIterations int
}

// outcome is the finalized result of one tool call. done is closed when
// the call has reached a terminal state; after that inv and reply are
// immutable.
type outcome struct {
	call  llm.ToolCall
	inv   store.ToolInvocation
	reply string // tool result content returned to the model
	done  chan struct{}
}

// RunExchange executes one full exchange for the session: it streams the
// model, resolves tool calls, loops until the model stops calling tools,
// and commits the completed turn atomically. On cancellation, open
// tickets are superseded and the content finalized so far is still
// committed.
func (o *Orchestrator) RunExchange(ctx context.Context, sess *store.Session, emit Emitter) (*store.Message, error) {
	maxIter := o.MaxIterations
	if maxIter <= 0 {
		maxIter = defaultMaxIterations
	}

	messages := o.buildHistory(sess)
	defs := o.toolDefinitions()

	var display, reasoningText strings.Builder
	var invocations []store.ToolInvocation
	var usage llm.Usage

	commit := func() (*store.Message, error) {
		return o.Store.CommitTurn(sess.ID, store.Turn{
			Content:     display.String(),
			Reasoning:   reasoningText.String(),
			Invocations: invocations,
			Usage: store.TokenUsage{
				InputTokens:     usage.InputTokens,
				OutputTokens:    usage.OutputTokens,
				ReasoningTokens: usage.ReasoningTokens,
				CacheTokens:     usage.CacheTokens,
			},
		})
	}

	// commitPartial persists whatever the exchange produced before an
	// abnormal exit. Skips the write when nothing accumulated, so a
	// failure before the first delta does not leave an empty message.
	commitPartial := func(cause string) {
		if display.Len() == 0 && reasoningText.Len() == 0 && len(invocations) == 0 {
			return
		}
		if _, cerr := commit(); cerr != nil {
			logging.Error("orchestrator: commit after %s failed: %v", cause, cerr)
		}
	}

	for iter := 0; iter < maxIter; iter++ {
		events, err := o.Client.Stream(ctx, &llm.Request{
			Model:    o.Model,
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			commitPartial("stream open failure")
			return nil, err
		}

		scanner := reasoning.NewScanner()
		var calls []llm.ToolCall
		var streamErr error

		for ev := range events {
			switch ev.Type {
			case llm.EventContentDelta:
				d, r := scanner.Write(ev.Text)
				if d != "" {
					display.WriteString(d)
					emit(Event{Type: EventContent, Text: d})
				}
				if r != "" {
					reasoningText.WriteString(r)
					emit(Event{Type: EventReasoning, Text: r})
				}
			case llm.EventToolCalls:
				calls = ev.Calls
			case llm.EventUsage:
				if ev.Usage != nil {
					usage.InputTokens += ev.Usage.InputTokens
					usage.OutputTokens += ev.Usage.OutputTokens
					usage.ReasoningTokens += ev.Usage.ReasoningTokens
					usage.CacheTokens += ev.Usage.CacheTokens
				}
			case llm.EventError:
				streamErr = ev.Err
			}
		}

		d, r := scanner.Finish()
		if d != "" {
			display.WriteString(d)
			emit(Event{Type: EventContent, Text: d})
		}
		if r != "" {
			reasoningText.WriteString(r)
			emit(Event{Type: EventReasoning, Text: r})
		}

		if streamErr != nil {
			commitPartial("stream failure")
			return nil, streamErr
		}
		if err := ctx.Err(); err != nil {
			commitPartial("cancellation")
			return nil, err
		}

		messages = append(messages, llm.Message{
			Role:      llm.RoleAssistant,
			Content:   scanner.Display(),
			ToolCalls: calls,
		})

		if len(calls) == 0 {
			break
		}

		results, spliced, err := o.resolveCalls(ctx, calls, emit)
		invocations = append(invocations, spliced...)
		if err != nil {
			commitPartial("cancellation")
			return nil, err
		}
		messages = append(messages, results...)
	}

	emit(Event{Type: EventUsage, Usage: &usage})
	return commit()
}

// resolveCalls takes the turn's tool calls through gate, policy and
// approval, executes the permitted ones, and returns the tool result
// messages spliced in request order. Approved calls may execute as soon
// as their decision lands, in any order; splicing alone enforces the
// ordering the model observes. On cancellation all still-pending
// tickets are superseded and the invocations finalized so far are
// returned with the context error.
func (o *Orchestrator) resolveCalls(ctx context.Context, calls []llm.ToolCall, emit Emitter) ([]llm.Message, []store.ToolInvocation, error) {
	outcomes := make([]*outcome, len(calls))
	var tickets []*approval.Ticket

	// Every ticket opened here reaches a terminal state before this
	// function returns (resolved, or superseded on cancellation), so the
	// coordinator can drop them instead of holding them forever.
	defer func() {
		for _, t := range tickets {
			if err := o.Approvals.Forget(t.ID); err != nil {
				logging.Debug("orchestrator: forget ticket %s: %v", t.ID, err)
			}
		}
	}()

	for i, call := range calls {
		oc := &outcome{call: call, done: make(chan struct{})}
		outcomes[i] = oc
		oc.inv = store.ToolInvocation{Tool: call.Name, Arguments: call.Arguments}

		args, err := parseArgs(call.Arguments)
		if err != nil {
			oc.finish(store.InvocationError, "", fmt.Sprintf("malformed arguments: %v", err),
				fmt.Sprintf("Tool call failed: malformed arguments: %v", err))
			continue
		}

		if blocked := o.gateCheck(call.Name, args); blocked != nil {
			logging.Warn("orchestrator: gate blocked %s: %v", call.Name, blocked)
			oc.finish(store.InvocationBlocked, "", blocked.Error(), blocked.Message())
			continue
		}

		scope := ""
		if call.Name == "bash" {
			cmd, _ := args["command"].(string)
			scope = policy.ScopeForCommand(cmd)
		}

		switch o.Policy.Decide(call.Name, scope) {
		case policy.DecisionDeny:
			oc.finish(store.InvocationDenied, "", "denied by permission policy",
				fmt.Sprintf("The %s tool call was denied by the user's permission policy.", call.Name))

		case policy.DecisionAllow:
			go o.executeCall(ctx, oc, args)

		default: // ask
			t := o.Approvals.Open(approval.Request{
				Tool:        call.Name,
				Args:        args,
				Description: describeCall(call.Name, args),
			})
			tickets = append(tickets, t)
			emit(Event{Type: EventApprovalRequest, Approval: &ApprovalRequest{
				TicketID:    t.ID,
				Tool:        call.Name,
				Args:        args,
				Description: t.Request.Description,
			}})

			go func(t *approval.Ticket, oc *outcome, args map[string]any) {
				decision, err := t.Wait(ctx)
				if err != nil || decision.State == approval.StateSuperseded {
					oc.finish(store.InvocationRejected, "", "superseded",
						"The tool call was cancelled before a decision was made.")
					return
				}
				if !decision.Approved() {
					oc.finish(store.InvocationRejected, "", "rejected by user",
						fmt.Sprintf("The user rejected the %s tool call.", oc.call.Name))
					return
				}
				o.executeCall(ctx, oc, args)
			}(t, oc, args)
		}
	}

	var results []llm.Message
	var spliced []store.ToolInvocation
	for i, oc := range outcomes {
		select {
		case <-oc.done:
		case <-ctx.Done():
			o.supersedeAll(tickets)
			// Collect the calls that did finish before the cut.
			for _, rest := range outcomes[i:] {
				select {
				case <-rest.done:
					spliced = append(spliced, rest.inv)
				default:
				}
			}
			return results, spliced, ctx.Err()
		}

		emit(Event{Type: EventToolResult, Invocation: &oc.inv})
		results = append(results, llm.Message{
			Role:       llm.RoleTool,
			Content:    oc.reply,
			ToolCallID: oc.call.ID,
		})
		spliced = append(spliced, oc.inv)
	}
	return results, spliced, nil
}

// finish records the terminal state of a call. Must be called exactly
// once per outcome.
func (oc *outcome) finish(status store.InvocationStatus, result, errText, reply string) {
	oc.inv.Status = status
	oc.inv.Result = result
	oc.inv.Error = errText
	oc.reply = reply
	close(oc.done)
}

// executeCall runs the tool exactly once and finalizes the outcome.
func (o *Orchestrator) executeCall(ctx context.Context, oc *outcome, args map[string]any) {
	res, err := o.Registry.Dispatch(ctx, oc.call.Name, args)
	if err != nil {
		oc.finish(store.InvocationError, "", err.Error(),
			fmt.Sprintf("Tool execution failed: %v", err))
		return
	}
	oc.finish(store.InvocationOK, res.Content, "", res.Content)
}

// gateCheck applies the mandatory validation layer. For path tools the
// path argument is rewritten to its resolved absolute form so the
// executor never re-interprets the raw input.
func (o *Orchestrator) gateCheck(name string, args map[string]any) *gate.BlockedError {
	if name == "bash" {
		cmd, _ := args["command"].(string)
		if err := gate.ValidateCommand(cmd); err != nil {
			var blocked *gate.BlockedError
			if b, ok := err.(*gate.BlockedError); ok {
				blocked = b
			} else {
				blocked = &gate.BlockedError{Kind: gate.BlockDangerousCommand, Subject: cmd}
			}
			return blocked
		}
		return nil
	}

	if !pathArgTools[name] {
		return nil
	}
	p, ok := args["path"].(string)
	if !ok || p == "" {
		return nil
	}
	resolved, err := o.Gate.ValidatePath(p)
	if err != nil {
		if b, ok := err.(*gate.BlockedError); ok {
			return b
		}
		return &gate.BlockedError{Kind: gate.BlockOutsideWorkspace, Subject: p, Reason: err.Error()}
	}
	args["path"] = resolved
	return nil
}

func (o *Orchestrator) supersedeAll(tickets []*approval.Ticket) {
	for _, t := range tickets {
		if err := o.Approvals.Supersede(t.ID); err != nil {
			// Already resolved; nothing to do.
			logging.Debug("orchestrator: supersede %s: %v", t.ID, err)
		}
	}
}

// buildHistory rebuilds the model-visible conversation from the stored
// session: the system prompt followed by each message's display content.
func (o *Orchestrator) buildHistory(sess *store.Session) []llm.Message {
	prompt := o.SystemPrompt
	if prompt == "" {
		prompt = defaultSystemPrompt
	}

	messages := []llm.Message{{Role: llm.RoleSystem, Content: prompt}}
	for _, m := range sess.Messages {
		content := m.Content
		if m.Role == string(llm.RoleUser) && len(m.Sources) > 0 {
			content = renderSources(m)
		}
		messages = append(messages, llm.Message{Role: llm.Role(m.Role), Content: content})
	}
	return messages
}

// renderSources appends attachment content below the user's text so the
// model sees the same material the client displayed.
func renderSources(m store.Message) string {
	var b strings.Builder
	b.WriteString(m.Content)
	for _, src := range m.Sources {
		b.WriteString("\n\n--- ")
		b.WriteString(src.Title)
		b.WriteString(" ---\n")
		b.WriteString(src.Content)
	}
	return b.String()
}

func (o *Orchestrator) toolDefinitions() []llm.ToolDefinition {
	tools := o.Registry.All()
	defs := make([]llm.ToolDefinition, 0, len(tools))
	for _, t := range tools {
		defs = append(defs, llm.ToolDefinition{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.InputSchema(),
		})
	}
	return defs
}

func parseArgs(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal([]byte(raw), &args); err != nil {
		return nil, err
	}
	return args, nil
}

// describeCall builds the human-readable summary shown with an approval
// prompt.
func describeCall(name string, args map[string]any) string {
	switch name {
	case "bash":
		cmd, _ := args["command"].(string)
		return fmt.Sprintf("Run shell command: %s", cmd)
	case "read_file":
		p, _ := args["path"].(string)
		return fmt.Sprintf("Read file: %s", p)
	case "write_file":
		p, _ := args["path"].(string)
		return fmt.Sprintf("Write file: %s", p)
	case "grep":
		pat, _ := args["pattern"].(string)
		return fmt.Sprintf("Search workspace for: %s", pat)
	default:
		return fmt.Sprintf("Execute tool: %s", name)
	}
}
