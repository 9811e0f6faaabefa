package policy

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecide(t *testing.T) {
	s := NewStore([]Rule{
		{Subject: "read_file", Effect: Allow},
		{Subject: "write_file", Effect: Deny},
		{Subject: "bash:git status", Effect: Allow},
		{Subject: "bash:rm", Effect: Deny},
	})

	tests := []struct {
		name  string
		tool  string
		scope string
		want  Decision
	}{
		{"bare allow", "read_file", "", DecisionAllow},
		{"bare deny", "write_file", "", DecisionDeny},
		{"no rule asks", "grep", "", DecisionAsk},
		{"scoped allow", "bash", "git status", DecisionAllow},
		{"scoped deny", "bash", "rm", DecisionDeny},
		{"unmatched scope falls back to bare, none there", "bash", "ls", DecisionAsk},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.Decide(tt.tool, tt.scope))
		})
	}
}

func TestDecideDenyBeatsAllow(t *testing.T) {
	s := NewStore([]Rule{
		{Subject: "bash", Effect: Allow},
		{Subject: "bash", Effect: Deny},
	})
	assert.Equal(t, DecisionDeny, s.Decide("bash", ""))
}

func TestDecideScopedBeatsBare(t *testing.T) {
	s := NewStore([]Rule{
		{Subject: "bash", Effect: Allow},
		{Subject: "bash:rm", Effect: Deny},
	})
	assert.Equal(t, DecisionDeny, s.Decide("bash", "rm"))
	assert.Equal(t, DecisionAllow, s.Decide("bash", "ls"))
}

func TestAddValidation(t *testing.T) {
	s := NewStore(nil)
	assert.Error(t, s.Add(Rule{Subject: "", Effect: Allow}))
	assert.Error(t, s.Add(Rule{Subject: "bash", Effect: Effect("maybe")}))
	assert.NoError(t, s.Add(Rule{Subject: "bash", Effect: Allow}))
	// Duplicate is a no-op.
	assert.NoError(t, s.Add(Rule{Subject: "bash", Effect: Allow}))
	assert.Len(t, s.Rules(), 1)
}

func TestRemove(t *testing.T) {
	s := NewStore([]Rule{
		{Subject: "bash", Effect: Allow},
		{Subject: "bash", Effect: Deny},
		{Subject: "grep", Effect: Allow},
	})
	n, err := s.Remove("bash")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, DecisionAsk, s.Decide("bash", ""))
	assert.Equal(t, DecisionAllow, s.Decide("grep", ""))
}

func TestAddVisibleToConcurrentReaders(t *testing.T) {
	s := NewStore(nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				// Must never observe a torn rule set; result is either
				// ask (before the add) or allow (after).
				d := s.Decide("read_file", "")
				if d != DecisionAsk && d != DecisionAllow {
					t.Errorf("unexpected decision %q", d)
					return
				}
			}
		}()
	}
	require.NoError(t, s.Add(Rule{Subject: "read_file", Effect: Allow}))
	wg.Wait()
	assert.Equal(t, DecisionAllow, s.Decide("read_file", ""))
}

func TestScopeForCommand(t *testing.T) {
	tests := []struct {
		command string
		want    string
	}{
		{"ls -la", "ls"},
		{"git status", "git status"},
		{"git push origin main", "git push"},
		{"git", "git"},
		{"", ""},
		{"   ", ""},
		{"go test ./...", "go"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ScopeForCommand(tt.command), "command %q", tt.command)
	}
}

func TestLoadAndPersist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")

	s, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, s.Rules())

	require.NoError(t, s.Add(Rule{Subject: "bash:git status", Effect: Allow}))
	require.NoError(t, s.Add(Rule{Subject: "write_file", Effect: Deny}))

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, s.Rules(), reloaded.Rules())
}

func TestLoadRejectsMalformedEffect(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - subject: bash\n    effect: sometimes\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}
