// Package gate implements the unconditional validation layer for
// filesystem paths and shell commands. Gate checks run before permission
// policy lookup and before any human approval, and cannot be disabled by
// configuration or overridden by an approve decision.
package gate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/inkgate/inkgate/internal/logging"
)

// BlockKind classifies why the gate rejected an input.
type BlockKind string

const (
	BlockOutsideWorkspace BlockKind = "outside_workspace"
	BlockSystemPath       BlockKind = "system_path"
	BlockIgnored          BlockKind = "ignored"
	BlockDangerousCommand BlockKind = "dangerous_command"
)

// BlockedError reports a gate rejection. The Reason field carries the
// internal explanation and is meant for logs; callers surface the
// user-facing Message instead.
type BlockedError struct {
	Kind    BlockKind
	Subject string // the offending path or command
	Reason  string
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked [%s] %s: %s", e.Kind, e.Subject, e.Reason)
}

// Message returns the explanation shown to the model. It never includes
// the raw internal reason.
func (e *BlockedError) Message() string {
	switch e.Kind {
	case BlockIgnored:
		return fmt.Sprintf("I cannot access '%s' because it is protected by the project's ignore file. This is a security measure to prevent access to sensitive files.", e.Subject)
	case BlockSystemPath:
		return fmt.Sprintf("I cannot access '%s' because it is a protected system file or directory. Access to this location is blocked for security reasons.", e.Subject)
	case BlockOutsideWorkspace:
		return fmt.Sprintf("I cannot access '%s' because it is outside the current workspace. I can only access files within the workspace for security reasons.", e.Subject)
	case BlockDangerousCommand:
		return "Command blocked for security reasons. Commands like rm, sudo, chmod, dd, curl, wget, and kill operations are not allowed."
	default:
		return fmt.Sprintf("I cannot access '%s' due to security restrictions.", e.Subject)
	}
}

// dangerousPatterns is the fixed set of substrings that ValidateCommand
// rejects: recursive/forced deletes, privilege escalation, permission
// changes, raw device access, outbound network fetches, and process
// termination. The list is not configurable.
var dangerousPatterns = []string{
	"rm -rf", "rm -f", "sudo ", "chmod ", "dd ", "mkfs", "fdisk",
	"> /dev/", "curl", "wget", "kill ", "pkill", "killall",
}

// ValidateCommand checks a shell command against the mandatory blocked
// patterns. It is independent of the permission policy and of any
// pending human decision.
func ValidateCommand(command string) error {
	for _, pattern := range dangerousPatterns {
		if strings.Contains(command, pattern) {
			logging.Warn("gate: blocked dangerous command %q (pattern %q)", command, pattern)
			return &BlockedError{
				Kind:    BlockDangerousCommand,
				Subject: command,
				Reason:  fmt.Sprintf("matches dangerous pattern %q", pattern),
			}
		}
	}
	logging.Debug("gate: command allowed: %q", command)
	return nil
}

// Gate validates paths against a workspace root, a built-in blacklist of
// sensitive system locations, and project ignore patterns.
type Gate struct {
	workspaceRoot  string
	blacklist      []string
	ignorePatterns []string
}

// systemBlacklist returns the sensitive system paths that are always
// off-limits, regardless of the workspace root.
func systemBlacklist() []string {
	paths := []string{
		"/etc", "/bin", "/sbin", "/usr/bin", "/usr/sbin",
		"/root", "/var", "/sys", "/proc",
	}
	if home := os.Getenv("HOME"); home != "" {
		paths = append(paths,
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".gnupg"),
			filepath.Join(home, ".aws"),
			filepath.Join(home, ".config", "gcloud"),
		)
	}
	return paths
}

// New creates a Gate rooted at workspaceRoot. The root is resolved
// through symlinks so later containment checks compare real locations.
func New(workspaceRoot string, ignorePatterns []string) (*Gate, error) {
	abs, err := filepath.Abs(workspaceRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve workspace root: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	logging.Debug("gate: initialized with root %s, %d ignore patterns", abs, len(ignorePatterns))
	return &Gate{
		workspaceRoot:  abs,
		blacklist:      systemBlacklist(),
		ignorePatterns: ignorePatterns,
	}, nil
}

// WorkspaceRoot returns the resolved workspace root.
func (g *Gate) WorkspaceRoot() string {
	return g.workspaceRoot
}

// ValidatePath validates a path and returns its resolved absolute form.
// Symlinks are resolved before any check runs (resolve-then-validate).
// Paths that do not exist yet, such as write targets, are normalized
// lexically but their deepest existing ancestor is still resolved.
func (g *Gate) ValidatePath(path string) (string, error) {
	resolved, err := g.resolve(path)
	if err != nil {
		return "", err
	}

	for _, blocked := range g.blacklist {
		if within(resolved, blocked) {
			logging.Warn("gate: blocked path %s (blacklisted %s)", resolved, blocked)
			return "", &BlockedError{
				Kind:    BlockSystemPath,
				Subject: path,
				Reason:  fmt.Sprintf("resolves under blacklisted directory %s", blocked),
			}
		}
	}

	if !within(resolved, g.workspaceRoot) {
		logging.Warn("gate: blocked path %s (outside workspace %s)", resolved, g.workspaceRoot)
		return "", &BlockedError{
			Kind:    BlockOutsideWorkspace,
			Subject: path,
			Reason:  fmt.Sprintf("resolves outside workspace root %s", g.workspaceRoot),
		}
	}

	if g.isIgnored(resolved) {
		logging.Warn("gate: blocked path %s (ignored)", resolved)
		return "", &BlockedError{
			Kind:    BlockIgnored,
			Subject: path,
			Reason:  "matches a project ignore pattern",
		}
	}

	logging.Debug("gate: path allowed: %s", resolved)
	return resolved, nil
}

// resolve turns path into an absolute, symlink-free form. For paths
// that do not exist, the longest existing ancestor is resolved and the
// remaining components are appended after lexical cleaning, so a
// symlinked parent cannot smuggle a new file outside the workspace.
func (g *Gate) resolve(path string) (string, error) {
	abs := path
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(g.workspaceRoot, abs)
	}
	abs = filepath.Clean(abs)

	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}

	dir := abs
	var rest []string
	for {
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		rest = append([]string{filepath.Base(dir)}, rest...)
		dir = parent
		if resolved, err := filepath.EvalSymlinks(dir); err == nil {
			return filepath.Join(append([]string{resolved}, rest...)...), nil
		}
	}
	return abs, nil
}

// within reports whether path is root or a descendant of root.
func within(path, root string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// isIgnored checks the resolved path against the project ignore
// patterns. Patterns without a path separator match the file name at
// any depth, like .gitignore; patterns with one match the path relative
// to the workspace root.
func (g *Gate) isIgnored(path string) bool {
	rel, err := filepath.Rel(g.workspaceRoot, path)
	if err != nil {
		rel = path
	}
	for _, pattern := range g.ignorePatterns {
		if matchesPattern(rel, pattern) {
			return true
		}
	}
	return false
}
