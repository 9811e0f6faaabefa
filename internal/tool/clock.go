package tool

import (
	"context"
	"fmt"
	"time"
)

// Clock reports the current date and time.
type Clock struct {
	// Now allows tests to pin the clock. Defaults to time.Now.
	Now func() time.Time
}

func (Clock) Name() string { return "now" }

func (Clock) Description() string {
	return "Get the current date and time in RFC 3339 format. Only use this when the user specifically asks for it or when current datetime is needed."
}

func (Clock) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"timezone": map[string]any{
				"type":        "string",
				"description": "The timezone to use for the datetime. Options: 'local' for local time (default) or 'utc' for UTC time.",
				"enum":        []any{"utc", "local"},
			},
		},
		"required": []any{},
	}
}

func (t Clock) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	now := time.Now()
	if t.Now != nil {
		now = t.Now()
	}

	tz, _ := stringArg(args, "timezone")
	if tz == "utc" {
		now = now.UTC()
	}
	return &Result{Content: fmt.Sprintf("The current datetime is %s.", now.Format(time.RFC3339))}, nil
}
