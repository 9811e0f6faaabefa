package tool

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/inkgate/inkgate/internal/logging"
)

// MaxWriteBytes caps the content size a single write accepts.
const MaxWriteBytes = 1024 * 1024

// WriteFile writes content to a file in the workspace.
type WriteFile struct{}

func (WriteFile) Name() string { return "write_file" }

func (WriteFile) Description() string {
	return "Write content to a file on the filesystem"
}

func (WriteFile) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"path": map[string]any{
				"type":        "string",
				"description": "The path where the file should be written",
			},
			"content": map[string]any{
				"type":        "string",
				"description": "The content to write to the file",
			},
		},
		"required": []any{"path", "content"},
	}
}

func (t WriteFile) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	path, ok := stringArg(args, "path")
	if !ok {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrInvalidArgs, Err: errors.New("missing path")}
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrInvalidArgs, Err: errors.New("missing content")}
	}
	if len(content) > MaxWriteBytes {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrInvalidArgs,
			Err: fmt.Errorf("content exceeds %d bytes", MaxWriteBytes)}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrIO, Err: err}
	}

	logging.Info("tool: wrote %s (%d bytes)", path, len(content))
	return &Result{Content: fmt.Sprintf("File written successfully: %s", path)}, nil
}
