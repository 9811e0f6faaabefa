package tool

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, tl := range []Tool{ReadFile{}, WriteFile{}, Grep{}, Bash{}, Clock{}} {
		require.NoError(t, r.Register(tl))
	}
	return r
}

func TestRegistryRegisterDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register(ReadFile{}))
	assert.Error(t, r.Register(ReadFile{}))
}

func TestRegistryAllSorted(t *testing.T) {
	r := newTestRegistry(t)
	var names []string
	for _, tl := range r.All() {
		names = append(names, tl.Name())
	}
	assert.Equal(t, []string{"bash", "grep", "now", "read_file", "write_file"}, names)
}

func TestDispatchUnknownTool(t *testing.T) {
	r := newTestRegistry(t)
	_, err := r.Dispatch(context.Background(), "teleport", nil)
	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, ErrNotFound, execErr.Kind)
}

func TestDispatchSchemaValidation(t *testing.T) {
	r := newTestRegistry(t)

	// Missing required "path".
	_, err := r.Dispatch(context.Background(), "read_file", map[string]any{})
	var execErr *ExecError
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, ErrInvalidArgs, execErr.Kind)

	// Wrong type for "command".
	_, err = r.Dispatch(context.Background(), "bash", map[string]any{"command": 42})
	require.True(t, errors.As(err, &execErr))
	assert.Equal(t, ErrInvalidArgs, execErr.Kind)
}

func TestDispatchExecutes(t *testing.T) {
	r := newTestRegistry(t)
	path := filepath.Join(t.TempDir(), "f.txt")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0o644))

	res, err := r.Dispatch(context.Background(), "read_file", map[string]any{"path": path})
	require.NoError(t, err)
	assert.Equal(t, "content", res.Content)
}
