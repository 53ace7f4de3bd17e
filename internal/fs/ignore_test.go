package fs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestNewIgnoreMatcher(t *testing.T) {
	t.Run("drops blank lines and comments", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"", "  ", "# comment", "*.log"})
		if len(m.patterns) != 1 {
			t.Fatalf("expected 1 pattern, got %d", len(m.patterns))
		}
		if m.patterns[0].glob != "*.log" {
			t.Errorf("expected *.log, got %s", m.patterns[0].glob)
		}
	})

	t.Run("classifies patterns", func(t *testing.T) {
		t.Parallel()
		m := NewIgnoreMatcher([]string{"*.log", "build/output", "cache/"})
		if m.patterns[0].matchPath || m.patterns[0].dirOnly {
			t.Error("*.log should be a plain basename pattern")
		}
		if !m.patterns[1].matchPath {
			t.Error("build/output should be a path pattern")
		}
		if !m.patterns[2].dirOnly || m.patterns[2].matchPath {
			t.Error("cache/ should be a basename directory pattern")
		}
	})
}

func TestIgnoreMatcher_Match(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		relPath  string
		dir      bool
		want     bool
	}{
		{"basename glob in root", []string{"*.log"}, "app.log", false, true},
		{"basename glob in subdirectory", []string{"*.log"}, filepath.Join("sub", "app.log"), false, true},
		{"different extension", []string{"*.log"}, "app.txt", false, false},
		{"path pattern", []string{"build/output"}, filepath.Join("build", "output"), false, true},
		{"path pattern wrong parent", []string{"build/output"}, filepath.Join("src", "output"), false, false},
		{"leading slash anchors to root", []string{"/notes.txt"}, "notes.txt", false, true},
		{"directory pattern skips files", []string{"cache/"}, "cache", false, false},
		{"directory pattern prunes dirs", []string{"cache/"}, filepath.Join("a", "cache"), true, true},
		{"file pattern also prunes dirs", []string{"node_modules"}, "node_modules", true, true},
		{"question mark", []string{"?.txt"}, "a.txt", false, true},
		{"question mark single char only", []string{"?.txt"}, "ab.txt", false, false},
		{"malformed pattern never matches", []string{"[abc"}, "a", false, false},
		{"no patterns", nil, "anything.txt", false, false},
		{"empty path", []string{"*"}, "", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			m := NewIgnoreMatcher(tt.patterns)
			got := m.Match(tt.relPath)
			if tt.dir {
				got = m.MatchDir(tt.relPath)
			}
			if got != tt.want {
				t.Errorf("match(%q, dir=%v) = %v, want %v", tt.relPath, tt.dir, got, tt.want)
			}
		})
	}
}

func TestParseIgnoreFile(t *testing.T) {
	t.Run("returns raw lines", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), IgnoreFileName)
		if err := os.WriteFile(path, []byte("*.log\n# comment\n\n*.tmp\nbuild/\n"), 0644); err != nil {
			t.Fatalf("writing ignore file: %v", err)
		}

		lines, err := ParseIgnoreFile(path)
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if len(lines) != 5 {
			t.Fatalf("expected 5 raw lines, got %d", len(lines))
		}
		if m := NewIgnoreMatcher(lines); len(m.patterns) != 3 {
			t.Errorf("expected 3 parsed patterns, got %d", len(m.patterns))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()
		lines, err := ParseIgnoreFile(filepath.Join(t.TempDir(), "nope"))
		if err != nil {
			t.Fatalf("ParseIgnoreFile() error = %v", err)
		}
		if lines != nil {
			t.Errorf("expected nil, got %v", lines)
		}
	})
}
