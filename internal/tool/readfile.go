package tool

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/inkgate/inkgate/internal/logging"
)

// MaxReadBytes caps how much file content a single read returns.
const MaxReadBytes = 256 * 1024

// ReadFile reads a file from the workspace.
type ReadFile struct{}

func (ReadFile) Name() string { return "read_file" }

func (ReadFile) Description() string {
	return "Read the contents of a file from the filesystem"
}

func (ReadFile) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path to the file to read",
			},
		},
		"required": []any{"path"},
	}
}

func (t ReadFile) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrInvalidArgs, Err: errors.New("missing path")}
	}

	content, err := os.ReadFile(path)
	if err != nil {
		kind := ErrIO
		if errors.Is(err, fs.ErrNotExist) {
			kind = ErrNotFound
		}
		return nil, &ExecError{Tool: t.Name(), Kind: kind, Err: err}
	}

	truncated := false
	if len(content) > MaxReadBytes {
		content = content[:MaxReadBytes]
		truncated = true
	}

	logging.Info("tool: read %s (%d bytes)", path, len(content))
	out := string(content)
	if truncated {
		out += fmt.Sprintf("\n... [truncated at %d bytes]", MaxReadBytes)
	}
	return &Result{Content: out}, nil
}
