package gate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand(t *testing.T) {
	tests := []struct {
		name    string
		command string
		blocked bool
	}{
		{"plain listing", "ls -la", false},
		{"git status", "git status", false},
		{"go build", "go build ./...", false},
		{"recursive delete", "rm -rf /tmp/x", true},
		{"forced delete", "rm -f notes.txt", true},
		{"sudo", "sudo apt install jq", true},
		{"chmod", "chmod 777 script.sh", true},
		{"dd", "dd if=/dev/zero of=out", true},
		{"mkfs", "mkfs.ext4 /dev/sda1", true},
		{"device redirect", "echo x > /dev/sda", true},
		{"curl", "curl https://example.com", true},
		{"wget", "wget https://example.com", true},
		{"kill", "kill 1234", true},
		{"pkill", "pkill -f server", true},
		{"killall", "killall node", true},
		{"dangerous substring mid-command", "echo hi && sudo reboot", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCommand(tt.command)
			if tt.blocked {
				require.Error(t, err)
				var blocked *BlockedError
				require.True(t, errors.As(err, &blocked))
				assert.Equal(t, BlockDangerousCommand, blocked.Kind)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePathContainment(t *testing.T) {
	root := t.TempDir()
	g, err := New(root, nil)
	require.NoError(t, err)

	inside := filepath.Join(root, "src", "main.go")
	require.NoError(t, os.MkdirAll(filepath.Dir(inside), 0o755))
	require.NoError(t, os.WriteFile(inside, []byte("package main"), 0o644))

	t.Run("inside workspace", func(t *testing.T) {
		resolved, err := g.ValidatePath(inside)
		require.NoError(t, err)
		assert.True(t, filepath.IsAbs(resolved))
	})

	t.Run("relative path resolves against root", func(t *testing.T) {
		resolved, err := g.ValidatePath("src/main.go")
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(g.WorkspaceRoot(), "src", "main.go"), resolved)
	})

	t.Run("outside workspace", func(t *testing.T) {
		_, err := g.ValidatePath(filepath.Join(t.TempDir(), "other.txt"))
		var blocked *BlockedError
		require.True(t, errors.As(err, &blocked))
		assert.Equal(t, BlockOutsideWorkspace, blocked.Kind)
	})

	t.Run("parent escape", func(t *testing.T) {
		_, err := g.ValidatePath("../../../outside.txt")
		var blocked *BlockedError
		require.True(t, errors.As(err, &blocked))
		assert.Equal(t, BlockOutsideWorkspace, blocked.Kind)
	})

	t.Run("system path", func(t *testing.T) {
		_, err := g.ValidatePath("/etc/passwd")
		var blocked *BlockedError
		require.True(t, errors.As(err, &blocked))
		assert.Equal(t, BlockSystemPath, blocked.Kind)
	})

	t.Run("nonexistent path inside workspace is allowed", func(t *testing.T) {
		resolved, err := g.ValidatePath("src/new_file.go")
		require.NoError(t, err)
		assert.Contains(t, resolved, "new_file.go")
	})
}

func TestValidatePathSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	secret := filepath.Join(outside, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("hidden"), 0o644))
	link := filepath.Join(root, "link.txt")
	require.NoError(t, os.Symlink(secret, link))

	g, err := New(root, nil)
	require.NoError(t, err)

	// The link lives inside the workspace but resolves outside; it must
	// be judged by where it points.
	_, err = g.ValidatePath(link)
	var blocked *BlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, BlockOutsideWorkspace, blocked.Kind)
}

func TestValidatePathIgnorePatterns(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, ".env"), []byte("KEY=1"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "secrets"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "secrets", "token"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.log"), []byte(""), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte(""), 0o644))

	g, err := New(root, []string{".env", "secrets/**", "*.log"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		path    string
		blocked bool
	}{
		{"dotenv by filename", ".env", true},
		{"directory glob", "secrets/token", true},
		{"extension glob", "app.log", true},
		{"unrelated file", "main.go", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := g.ValidatePath(tt.path)
			if tt.blocked {
				var blocked *BlockedError
				require.True(t, errors.As(err, &blocked))
				assert.Equal(t, BlockIgnored, blocked.Kind)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBlockedErrorMessageHidesReason(t *testing.T) {
	err := &BlockedError{Kind: BlockSystemPath, Subject: "/etc/passwd", Reason: "resolves under blacklisted directory /etc"}
	assert.NotContains(t, err.Message(), "blacklisted")
	assert.Contains(t, err.Message(), "/etc/passwd")
}
