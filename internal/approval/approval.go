// Package approval tracks outstanding human decisions on tool calls.
// Each pending call gets a ticket; the exchange that opened it waits on
// the ticket's channel while decisions arrive on an unrelated code path
// and are routed back by ticket id.
package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/inkgate/inkgate/internal/logging"
)

// State is a ticket's lifecycle state. Pending transitions exactly once
// to one of the terminal states.
type State string

const (
	StatePending    State = "pending"
	StateApproved   State = "approved"
	StateRejected   State = "rejected"
	StateSuperseded State = "superseded"
)

// Request describes the tool call awaiting a decision.
type Request struct {
	Tool        string
	Args        map[string]any
	Description string
}

// Decision is the terminal outcome delivered to the waiter.
type Decision struct {
	State State
}

// Approved reports whether the decision permits execution.
func (d Decision) Approved() bool {
	return d.State == StateApproved
}

// TicketError reports a failed coordinator operation.
type TicketError struct {
	TicketID string
	Reason   string
}

func (e *TicketError) Error() string {
	return fmt.Sprintf("ticket %s: %s", e.TicketID, e.Reason)
}

// Ticket is the handle returned to the waiting exchange.
type Ticket struct {
	ID      string
	Request Request

	state State
	done  chan Decision
}

// Wait blocks until the ticket reaches a terminal state or ctx is
// cancelled. Safe to call once per ticket.
func (t *Ticket) Wait(ctx context.Context) (Decision, error) {
	select {
	case d := <-t.done:
		return d, nil
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
}

// Coordinator routes asynchronous decisions to their tickets. Safe for
// concurrent use; any number of tickets may be open at once and
// decisions may arrive in any order.
type Coordinator struct {
	mu      sync.Mutex
	tickets map[string]*Ticket
}

// NewCoordinator creates an empty coordinator.
func NewCoordinator() *Coordinator {
	return &Coordinator{tickets: make(map[string]*Ticket)}
}

// Open registers a new pending ticket and returns its handle.
func (c *Coordinator) Open(req Request) *Ticket {
	t := &Ticket{
		ID:      uuid.NewString(),
		Request: req,
		state:   StatePending,
		done:    make(chan Decision, 1),
	}

	c.mu.Lock()
	c.tickets[t.ID] = t
	c.mu.Unlock()

	logging.Info("approval: opened ticket %s for tool %s", t.ID, req.Tool)
	return t
}

// Resolve transitions one pending ticket to Approved or Rejected.
// Resolving an unknown or already-terminal ticket returns an error and
// changes nothing; it never overwrites an earlier decision.
func (c *Coordinator) Resolve(ticketID string, approve bool) error {
	state := StateRejected
	if approve {
		state = StateApproved
	}
	return c.finish(ticketID, state)
}

// Supersede forces a pending ticket to the Superseded terminal state
// and unblocks its waiter. Called when the owning exchange is
// cancelled. Superseding an already-terminal ticket is an error, same
// as Resolve.
func (c *Coordinator) Supersede(ticketID string) error {
	return c.finish(ticketID, StateSuperseded)
}

func (c *Coordinator) finish(ticketID string, state State) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tickets[ticketID]
	if !ok {
		return &TicketError{TicketID: ticketID, Reason: "not found"}
	}
	if t.state != StatePending {
		return &TicketError{TicketID: ticketID, Reason: fmt.Sprintf("already %s", t.state)}
	}

	t.state = state
	t.done <- Decision{State: state}
	logging.Info("approval: ticket %s resolved as %s", ticketID, state)
	return nil
}

// Pending returns the ids of all tickets still awaiting a decision.
func (c *Coordinator) Pending() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	var ids []string
	for id, t := range c.tickets {
		if t.state == StatePending {
			ids = append(ids, id)
		}
	}
	return ids
}

// Get returns the request attached to a ticket.
func (c *Coordinator) Get(ticketID string) (Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tickets[ticketID]
	if !ok {
		return Request{}, &TicketError{TicketID: ticketID, Reason: "not found"}
	}
	return t.Request, nil
}

// State returns the current state of a ticket.
func (c *Coordinator) State(ticketID string) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tickets[ticketID]
	if !ok {
		return "", &TicketError{TicketID: ticketID, Reason: "not found"}
	}
	return t.state, nil
}

// Forget drops a terminal ticket from the coordinator. Pending tickets
// cannot be forgotten; supersede them first.
func (c *Coordinator) Forget(ticketID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	t, ok := c.tickets[ticketID]
	if !ok {
		return &TicketError{TicketID: ticketID, Reason: "not found"}
	}
	if t.state == StatePending {
		return &TicketError{TicketID: ticketID, Reason: "still pending"}
	}
	delete(c.tickets, ticketID)
	return nil
}
