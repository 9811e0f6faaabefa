// Package policy stores the user-configured permission rules consulted
// before a tool call escalates to a human. Rules are read from an
// immutable snapshot swapped atomically on update, so concurrent
// readers never observe a partially written rule set.
package policy

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/inkgate/inkgate/internal/logging"
)

// Effect is the outcome a rule assigns to its subject.
type Effect string

const (
	Allow Effect = "allow"
	Deny  Effect = "deny"
)

// Decision is the result of a policy lookup.
type Decision string

const (
	DecisionAllow Decision = "allow"
	DecisionDeny  Decision = "deny"
	DecisionAsk   Decision = "ask"
)

// Rule binds a subject to an effect. A subject is either a bare tool
// name ("bash") or a scoped one ("bash:git status").
type Rule struct {
	Subject string `yaml:"subject"`
	Effect  Effect `yaml:"effect"`
}

// RuleError reports an invalid rule.
type RuleError struct {
	Subject string
	Reason  string
}

func (e *RuleError) Error() string {
	return fmt.Sprintf("invalid rule %q: %s", e.Subject, e.Reason)
}

// ruleset is an immutable snapshot of the ordered rule list.
type ruleset struct {
	rules []Rule
}

// Store holds the mutable rule set behind an atomic snapshot pointer.
// Readers call Decide lock-free; writers serialize on mu and publish a
// fresh snapshot.
type Store struct {
	mu       sync.Mutex
	snapshot atomic.Pointer[ruleset]
	path     string // rules file, empty for in-memory stores
}

// NewStore creates an in-memory store seeded with the given rules.
func NewStore(rules []Rule) *Store {
	s := &Store{}
	s.snapshot.Store(&ruleset{rules: append([]Rule(nil), rules...)})
	return s
}

// Decide returns the policy decision for a tool call. Lookup order:
// exact scoped subject, then bare tool name, then Ask. An explicit Deny
// outranks an explicit Allow for the same subject.
func (s *Store) Decide(tool, scope string) Decision {
	snap := s.snapshot.Load()

	if scope != "" {
		if d, ok := snap.lookup(tool + ":" + scope); ok {
			return d
		}
	}
	if d, ok := snap.lookup(tool); ok {
		return d
	}
	return DecisionAsk
}

func (rs *ruleset) lookup(subject string) (Decision, bool) {
	found := false
	decision := DecisionAsk
	for _, r := range rs.rules {
		if r.Subject != subject {
			continue
		}
		if r.Effect == Deny {
			return DecisionDeny, true
		}
		found = true
		decision = DecisionAllow
	}
	return decision, found
}

// Add appends a rule and publishes a new snapshot. Duplicate
// subject/effect pairs are dropped. If the store is file-backed the
// updated list is persisted before the snapshot swaps, so a crash
// never leaves the file ahead of or behind memory for long.
func (s *Store) Add(rule Rule) error {
	if strings.TrimSpace(rule.Subject) == "" {
		return &RuleError{Subject: rule.Subject, Reason: "empty subject"}
	}
	if rule.Effect != Allow && rule.Effect != Deny {
		return &RuleError{Subject: rule.Subject, Reason: fmt.Sprintf("unknown effect %q", rule.Effect)}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.snapshot.Load().rules
	for _, r := range current {
		if r.Subject == rule.Subject && r.Effect == rule.Effect {
			return nil
		}
	}

	next := make([]Rule, len(current), len(current)+1)
	copy(next, current)
	next = append(next, rule)

	if s.path != "" {
		if err := writeRulesFile(s.path, next); err != nil {
			return err
		}
	}
	s.snapshot.Store(&ruleset{rules: next})
	logging.Info("policy: added rule %s=%s", rule.Subject, rule.Effect)
	return nil
}

// Remove deletes all rules with the given subject. Returns the number
// removed.
func (s *Store) Remove(subject string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current := s.snapshot.Load().rules
	next := make([]Rule, 0, len(current))
	for _, r := range current {
		if r.Subject != subject {
			next = append(next, r)
		}
	}
	removed := len(current) - len(next)
	if removed == 0 {
		return 0, nil
	}

	if s.path != "" {
		if err := writeRulesFile(s.path, next); err != nil {
			return 0, err
		}
	}
	s.snapshot.Store(&ruleset{rules: next})
	logging.Info("policy: removed %d rule(s) for %s", removed, subject)
	return removed, nil
}

// Rules returns a copy of the current ordered rule list.
func (s *Store) Rules() []Rule {
	return append([]Rule(nil), s.snapshot.Load().rules...)
}

// ScopeForCommand derives the persistable scope for a shell command:
// the first word, or the first two for git so "git status" and
// "git push" stay distinct.
func ScopeForCommand(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ""
	}
	if fields[0] == "git" && len(fields) > 1 {
		return fields[0] + " " + fields[1]
	}
	return fields[0]
}
