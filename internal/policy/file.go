package policy

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/inkgate/inkgate/internal/logging"
)

// rulesFile is the on-disk YAML shape.
type rulesFile struct {
	Rules []Rule `yaml:"rules"`
}

// Load opens a file-backed store. A missing file is not an error; the
// store starts empty and the file is created on the first Add.
func Load(path string) (*Store, error) {
	s := &Store{path: path}

	content, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		s.snapshot.Store(&ruleset{})
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}

	rules, err := parseRules(content)
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(&ruleset{rules: rules})
	logging.Info("policy: loaded %d rule(s) from %s", len(rules), path)
	return s, nil
}

func parseRules(content []byte) ([]Rule, error) {
	var f rulesFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	for _, r := range f.Rules {
		if r.Effect != Allow && r.Effect != Deny {
			return nil, &RuleError{Subject: r.Subject, Reason: fmt.Sprintf("unknown effect %q", r.Effect)}
		}
	}
	return f.Rules, nil
}

func writeRulesFile(path string, rules []Rule) error {
	out, err := yaml.Marshal(rulesFile{Rules: rules})
	if err != nil {
		return fmt.Errorf("failed to encode rules: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create rules directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace rules file: %w", err)
	}
	return nil
}

// Watch reloads the store when the rules file changes on disk, so
// external edits become visible to running sessions without a restart.
// The returned stop function closes the watcher.
func (s *Store) Watch() (func(), error) {
	if s.path == "" {
		return nil, errors.New("policy: store is not file-backed")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(s.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch rules directory: %w", err)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != s.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
					continue
				}
				s.reload()
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Warn("policy: watcher error: %v", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}

func (s *Store) reload() {
	content, err := os.ReadFile(s.path)
	if err != nil {
		logging.Warn("policy: failed to reload rules file: %v", err)
		return
	}
	rules, err := parseRules(content)
	if err != nil {
		logging.Warn("policy: ignoring malformed rules file: %v", err)
		return
	}

	s.mu.Lock()
	s.snapshot.Store(&ruleset{rules: rules})
	s.mu.Unlock()
	logging.Info("policy: reloaded %d rule(s) from %s", len(rules), s.path)
}
