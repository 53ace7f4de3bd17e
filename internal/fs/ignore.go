package fs

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultIgnorePatterns are applied to every walk. Existing pointer files are never
// offloaded again, and the ignore file itself stays local.
var defaultIgnorePatterns = []string{
	IgnoreFileName,
	"*.revid",
	"*.remusic",
	"*.repic",
	"*.refile",
}

type ignorePattern struct {
	glob      string
	matchPath bool // match the relative path instead of the basename
	dirOnly   bool // pattern ended in '/'
}

// IgnoreMatcher checks relative paths against gitignore-like glob patterns.
// A pattern containing '/' is matched against the whole relative path, otherwise
// against the basename. A trailing '/' restricts the pattern to directories.
type IgnoreMatcher struct {
	patterns []ignorePattern
}

// NewIgnoreMatcher parses raw pattern lines. Blank lines and '#' comments are dropped.
func NewIgnoreMatcher(lines []string) *IgnoreMatcher {
	m := &IgnoreMatcher{}
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		p := ignorePattern{}
		if trimmed, ok := strings.CutSuffix(line, "/"); ok {
			p.dirOnly = true
			line = trimmed
		}
		p.glob = strings.TrimPrefix(line, "/")
		p.matchPath = strings.Contains(line, "/")
		m.patterns = append(m.patterns, p)
	}
	return m
}

// Match reports whether a file at relPath should be skipped.
func (m *IgnoreMatcher) Match(relPath string) bool {
	return m.match(relPath, false)
}

// MatchDir reports whether a directory at relPath should be pruned.
func (m *IgnoreMatcher) MatchDir(relPath string) bool {
	return m.match(relPath, true)
}

func (m *IgnoreMatcher) match(relPath string, isDir bool) bool {
	if relPath == "" {
		return false
	}
	slashed := filepath.ToSlash(relPath)
	base := filepath.Base(relPath)

	for _, p := range m.patterns {
		if p.dirOnly && !isDir {
			continue
		}
		subject := base
		if p.matchPath {
			subject = slashed
		}
		// filepath.Match only fails on malformed patterns, which never match.
		if ok, err := filepath.Match(p.glob, subject); err == nil && ok {
			return true
		}
	}
	return false
}

// ParseIgnoreFile reads raw lines from an ignore file.
// A missing file yields no lines and no error.
func ParseIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("opening ignore file: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading ignore file: %w", err)
	}
	return lines, nil
}
