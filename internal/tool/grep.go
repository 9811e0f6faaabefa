package tool

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/inkgate/inkgate/internal/logging"
)

const (
	// DefaultGrepResults is returned when the caller does not cap results.
	DefaultGrepResults = 50
	// MaxGrepResults bounds any single search.
	MaxGrepResults = 200
)

// binaryExtensions lists file extensions skipped during recursive search.
var binaryExtensions = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".bmp": true,
	".ico": true, ".webp": true, ".pdf": true, ".zip": true, ".tar": true,
	".gz": true, ".rar": true, ".7z": true, ".exe": true, ".dll": true,
	".so": true, ".dylib": true, ".bin": true, ".dat": true, ".mp4": true,
	".mov": true, ".avi": true, ".mkv": true, ".iso": true, ".db": true,
	".sqlite": true, ".sqlite3": true,
}

// Grep searches file contents with a regular expression. The optional
// PathOK filter lets the caller exclude paths during directory walks
// (the orchestrator wires the security gate in here so recursive
// searches respect the project ignore list).
type Grep struct {
	PathOK func(path string) bool
}

func (Grep) Name() string { return "grep" }

func (Grep) Description() string {
	return "Search for a pattern in files using regex. Searches recursively from a given directory or in a specific file."
}

func (Grep) InputSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"pattern": map[string]any{
				"type":        "string",
				"description": "The regex pattern to search for",
			},
			"path": map[string]any{
				"type":        "string",
				"description": "The file or directory path to search in. If a directory, searches recursively.",
			},
			"case_sensitive": map[string]any{
				"type":        "boolean",
				"description": "Whether the search should be case-sensitive (default: false)",
			},
			"max_results": map[string]any{
				"type":        "integer",
				"description": "Maximum number of results to return (default: 50)",
				"minimum":     1,
				"maximum":     MaxGrepResults,
			},
		},
		"required": []any{"pattern", "path"},
	}
}

// Match is one grep hit.
type Match struct {
	File    string
	Line    int
	Content string
}

func (t Grep) Execute(ctx context.Context, args map[string]any) (*Result, error) {
	pattern, ok := stringArg(args, "pattern")
	if !ok {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrInvalidArgs, Err: errors.New("missing pattern")}
	}
	path, ok := stringArg(args, "path")
	if !ok {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrInvalidArgs, Err: errors.New("missing path")}
	}

	caseSensitive := false
	if v, ok := args["case_sensitive"].(bool); ok {
		caseSensitive = v
	}
	maxResults := DefaultGrepResults
	if v, ok := numberArg(args, "max_results"); ok {
		maxResults = v
	}
	if maxResults > MaxGrepResults {
		maxResults = MaxGrepResults
	}

	expr := pattern
	if !caseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return nil, &ExecError{Tool: t.Name(), Kind: ErrInvalidArgs, Err: fmt.Errorf("invalid pattern: %w", err)}
	}

	matches, err := t.search(ctx, path, re, maxResults)
	if err != nil {
		return nil, err
	}

	logging.Info("tool: grep found %d result(s) for %q in %s", len(matches), pattern, path)
	if len(matches) == 0 {
		return &Result{Content: fmt.Sprintf("No matches found for pattern '%s' in %s", pattern, path)}, nil
	}

	var b strings.Builder
	plural := "es"
	if len(matches) == 1 {
		plural = ""
	}
	fmt.Fprintf(&b, "Found %d match%s for pattern '%s' in %s:\n\n", len(matches), plural, pattern, path)
	for _, m := range matches {
		fmt.Fprintf(&b, "  - %s:%d: %s\n", m.File, m.Line, strings.TrimSpace(m.Content))
	}
	return &Result{Content: b.String()}, nil
}

func (t Grep) search(ctx context.Context, path string, re *regexp.Regexp, maxResults int) ([]Match, error) {
	info, err := os.Stat(path)
	if err != nil {
		kind := ErrIO
		if errors.Is(err, fs.ErrNotExist) {
			kind = ErrNotFound
		}
		return nil, &ExecError{Tool: t.Name(), Kind: kind, Err: err}
	}

	var matches []Match
	if !info.IsDir() {
		searchFile(path, re, maxResults, &matches)
		return matches, nil
	}

	walkErr := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			return nil
		}
		if binaryExtensions[strings.ToLower(filepath.Ext(p))] {
			return nil
		}
		if t.PathOK != nil && !t.PathOK(p) {
			logging.Debug("tool: grep skipping filtered path %s", p)
			return nil
		}
		searchFile(p, re, maxResults, &matches)
		if len(matches) >= maxResults {
			return fs.SkipAll
		}
		return nil
	})
	if walkErr != nil && !errors.Is(walkErr, fs.SkipAll) {
		if errors.Is(walkErr, context.Canceled) || errors.Is(walkErr, context.DeadlineExceeded) {
			return nil, &ExecError{Tool: t.Name(), Kind: ErrTimeout, Err: walkErr}
		}
		return nil, &ExecError{Tool: t.Name(), Kind: ErrIO, Err: walkErr}
	}
	return matches, nil
}

func searchFile(path string, re *regexp.Regexp, maxResults int, matches *[]Match) {
	if len(*matches) >= maxResults {
		return
	}
	f, err := os.Open(path)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		if re.MatchString(scanner.Text()) {
			*matches = append(*matches, Match{File: path, Line: line, Content: scanner.Text()})
			if len(*matches) >= maxResults {
				return
			}
		}
	}
}

// numberArg extracts an integer argument that may arrive as float64
// after JSON decoding.
func numberArg(args map[string]any, key string) (int, bool) {
	switch v := args[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	case int64:
		return int(v), true
	default:
		return 0, false
	}
}
