package approval

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveApprove(t *testing.T) {
	c := NewCoordinator()
	ticket := c.Open(Request{Tool: "bash", Description: "Run shell command: ls"})

	require.NoError(t, c.Resolve(ticket.ID, true))

	d, err := ticket.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Approved())
	assert.Equal(t, StateApproved, d.State)
}

func TestResolveReject(t *testing.T) {
	c := NewCoordinator()
	ticket := c.Open(Request{Tool: "write_file"})

	require.NoError(t, c.Resolve(ticket.ID, false))

	d, err := ticket.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, d.Approved())
}

func TestResolveOnce(t *testing.T) {
	c := NewCoordinator()
	ticket := c.Open(Request{Tool: "bash"})

	require.NoError(t, c.Resolve(ticket.ID, true))

	// A second decision must fail and must not overwrite the first.
	err := c.Resolve(ticket.ID, false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already approved")

	d, err := ticket.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, d.Approved())
}

func TestResolveUnknownTicket(t *testing.T) {
	c := NewCoordinator()
	err := c.Resolve("no-such-ticket", true)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestOutOfOrderResolution(t *testing.T) {
	c := NewCoordinator()
	first := c.Open(Request{Tool: "read_file"})
	second := c.Open(Request{Tool: "write_file"})

	// Decisions arrive in reverse order; each must reach its own ticket.
	require.NoError(t, c.Resolve(second.ID, false))
	require.NoError(t, c.Resolve(first.ID, true))

	d1, err := first.Wait(context.Background())
	require.NoError(t, err)
	assert.True(t, d1.Approved())

	d2, err := second.Wait(context.Background())
	require.NoError(t, err)
	assert.False(t, d2.Approved())
}

func TestSupersede(t *testing.T) {
	c := NewCoordinator()
	ticket := c.Open(Request{Tool: "bash"})

	require.NoError(t, c.Supersede(ticket.ID))

	d, err := ticket.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateSuperseded, d.State)
	assert.False(t, d.Approved())

	// A late approve must not resurrect the ticket.
	err = c.Resolve(ticket.ID, true)
	require.Error(t, err)

	state, err := c.State(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, StateSuperseded, state)
}

func TestWaitCancellation(t *testing.T) {
	c := NewCoordinator()
	ticket := c.Open(Request{Tool: "bash"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := ticket.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The ticket itself is still pending and resolvable.
	state, err := c.State(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, StatePending, state)
	assert.NoError(t, c.Resolve(ticket.ID, true))
}

func TestForget(t *testing.T) {
	c := NewCoordinator()
	ticket := c.Open(Request{Tool: "bash"})

	// Pending tickets cannot be dropped.
	require.Error(t, c.Forget(ticket.ID))

	require.NoError(t, c.Resolve(ticket.ID, true))
	require.NoError(t, c.Forget(ticket.ID))

	_, err := c.State(ticket.ID)
	assert.Error(t, err)
}

func TestGet(t *testing.T) {
	c := NewCoordinator()
	ticket := c.Open(Request{Tool: "bash", Args: map[string]any{"command": "git status"}})

	req, err := c.Get(ticket.ID)
	require.NoError(t, err)
	assert.Equal(t, "bash", req.Tool)
	assert.Equal(t, "git status", req.Args["command"])

	_, err = c.Get("missing")
	assert.Error(t, err)
}
