package policy

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatchPicksUpExternalEdits(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	s, err := Load(path)
	require.NoError(t, err)

	stop, err := s.Watch()
	require.NoError(t, err)
	defer stop()

	require.Equal(t, DecisionAsk, s.Decide("bash", "git status"))

	content := "rules:\n  - subject: \"bash:git status\"\n    effect: allow\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	assert.Eventually(t, func() bool {
		return s.Decide("bash", "git status") == DecisionAllow
	}, 2*time.Second, 10*time.Millisecond)
}

func TestWatchIgnoresMalformedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - subject: bash\n    effect: allow\n"), 0o644))

	s, err := Load(path)
	require.NoError(t, err)
	stop, err := s.Watch()
	require.NoError(t, err)
	defer stop()

	// A broken write must not wipe the in-memory rules.
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - subject: bash\n    effect: whenever\n"), 0o644))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, DecisionAllow, s.Decide("bash", ""))
}

func TestWatchNotFileBacked(t *testing.T) {
	s := NewStore(nil)
	_, err := s.Watch()
	assert.Error(t, err)
}
