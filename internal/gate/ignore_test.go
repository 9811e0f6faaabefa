package gate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadIgnorePatterns(t *testing.T) {
	dir := t.TempDir()
	content := "# secrets\n.env\n\nsecrets/**\n*.pem\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, IgnoreFileName), []byte(content), 0o644))

	patterns := LoadIgnorePatterns(dir)
	assert.Equal(t, []string{".env", "secrets/**", "*.pem"}, patterns)
}

func TestLoadIgnorePatternsMissingFile(t *testing.T) {
	assert.Empty(t, LoadIgnorePatterns(t.TempDir()))
}

func TestMatchesPattern(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		pattern string
		match   bool
	}{
		{"bare filename matches at any depth", "/ws/deep/nested/.env", ".env", true},
		{"bare filename no match", "/ws/main.go", ".env", false},
		{"extension glob", "/ws/key.pem", "*.pem", true},
		{"extension glob matches basename only", "/ws/sub/key.pem", "*.pem", true},
		{"double star prefix", "secrets/a/b/token", "secrets/**", true},
		{"single star does not cross separators", "a/b.txt", "a/*/c.txt", false},
		{"question mark", "/ws/a1.txt", "a?.txt", true},
		{"literal dots escaped", "/ws/axtxt", "a.txt", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.match, matchesPattern(tt.path, tt.pattern))
		})
	}
}
