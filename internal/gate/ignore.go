package gate

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/inkgate/inkgate/internal/logging"
)

// IgnoreFileName is the project ignore file consulted by the gate.
const IgnoreFileName = ".inkgateignore"

// LoadIgnorePatterns reads the ignore file from dir if present. Blank
// lines and lines starting with '#' are skipped. A missing file yields
// no patterns.
func LoadIgnorePatterns(dir string) []string {
	content, err := os.ReadFile(filepath.Join(dir, IgnoreFileName))
	if err != nil {
		logging.Debug("gate: no %s file found in %s", IgnoreFileName, dir)
		return nil
	}

	var patterns []string
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, line)
	}
	logging.Debug("gate: loaded %d patterns from %s", len(patterns), IgnoreFileName)
	return patterns
}

// matchesPattern checks a path against a glob-like pattern. Patterns
// with no path separator match against the file name only, so ".env"
// blocks /any/dir/.env.
func matchesPattern(path, pattern string) bool {
	if !strings.Contains(pattern, "/") && !strings.HasPrefix(pattern, "**") {
		re, err := regexp.Compile(globToRegex(pattern))
		if err != nil {
			return false
		}
		return re.MatchString(filepath.Base(path))
	}

	re, err := regexp.Compile(globToRegex(pattern))
	if err != nil {
		logging.Warn("gate: invalid ignore pattern %q", pattern)
		return false
	}
	return re.MatchString(path)
}

// globToRegex converts a simple glob pattern to an anchored regex.
// "**" crosses path separators, "*" and "?" do not.
func globToRegex(pattern string) string {
	var b strings.Builder
	b.WriteString("^")
	runes := []rune(pattern)
	for i := 0; i < len(runes); i++ {
		switch runes[i] {
		case '*':
			if i+1 < len(runes) && runes[i+1] == '*' {
				i++
				b.WriteString(".*")
			} else {
				b.WriteString("[^/]*")
			}
		case '?':
			b.WriteString("[^/]")
		case '.', '+', '^', '$', '(', ')', '[', ']', '{', '}', '|', '\\':
			b.WriteRune('\\')
			b.WriteRune(runes[i])
		default:
			b.WriteRune(runes[i])
		}
	}
	b.WriteString("$")
	return b.String()
}
