package staging

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"refile-go/internal/testutil"
)

func newTestArea(t *testing.T, capacity int64) *Area {
	t.Helper()
	a, err := New(filepath.Join(t.TempDir(), "tmp"), capacity, testutil.NewStubIDGenerator())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a
}

func countFiles(t *testing.T, dir string) int {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() error = %v", err)
	}
	return len(entries)
}

func TestStage(t *testing.T) {
	t.Run("writes body to a unique file", func(t *testing.T) {
		a := newTestArea(t, 0)

		s1, err := a.Stage(strings.NewReader("hello"), 0)
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		s2, err := a.Stage(strings.NewReader("hello"), 0)
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}

		if s1.Path == s2.Path {
			t.Errorf("expected distinct paths, got %s twice", s1.Path)
		}
		if filepath.Base(s1.Path) != "upload-id-1" {
			t.Errorf("path = %s, want upload-id-1", filepath.Base(s1.Path))
		}
		got, err := os.ReadFile(s1.Path)
		if err != nil {
			t.Fatalf("ReadFile() error = %v", err)
		}
		if string(got) != "hello" || s1.Size != 5 {
			t.Errorf("staged %q (size %d), want hello (5)", got, s1.Size)
		}
		if a.InFlight() != 10 {
			t.Errorf("InFlight() = %d, want 10", a.InFlight())
		}
	})

	t.Run("body at the limit is accepted", func(t *testing.T) {
		a := newTestArea(t, 0)
		s, err := a.Stage(bytes.NewReader(make([]byte, 8)), 8)
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		s.Cleanup()
	})

	t.Run("body over the limit leaves nothing behind", func(t *testing.T) {
		a := newTestArea(t, 0)
		_, err := a.Stage(bytes.NewReader(make([]byte, 9)), 8)
		if !errors.Is(err, ErrTooLarge) {
			t.Fatalf("Stage() error = %v, want ErrTooLarge", err)
		}
		if n := countFiles(t, a.Dir()); n != 0 {
			t.Errorf("staging dir has %d files, want 0", n)
		}
		if a.InFlight() != 0 {
			t.Errorf("InFlight() = %d, want 0", a.InFlight())
		}
	})

	t.Run("capacity is enforced across files", func(t *testing.T) {
		a := newTestArea(t, 10)
		s, err := a.Stage(bytes.NewReader(make([]byte, 6)), 0)
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		if _, err := a.Stage(bytes.NewReader(make([]byte, 6)), 0); !errors.Is(err, ErrFull) {
			t.Fatalf("Stage() error = %v, want ErrFull", err)
		}

		s.Cleanup()
		if _, err := a.Stage(bytes.NewReader(make([]byte, 6)), 0); err != nil {
			t.Errorf("Stage() after cleanup error = %v", err)
		}
	})
}

func TestCleanup(t *testing.T) {
	a := newTestArea(t, 0)
	s, err := a.Stage(strings.NewReader("data"), 0)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	s.Cleanup()
	s.Cleanup()

	if _, err := os.Stat(s.Path); !os.IsNotExist(err) {
		t.Errorf("staged file still exists: %v", err)
	}
	if a.InFlight() != 0 {
		t.Errorf("InFlight() = %d, want 0", a.InFlight())
	}

	t.Run("after the file was moved", func(t *testing.T) {
		s, err := a.Stage(strings.NewReader("data"), 0)
		if err != nil {
			t.Fatalf("Stage() error = %v", err)
		}
		if err := os.Rename(s.Path, filepath.Join(t.TempDir(), "moved")); err != nil {
			t.Fatalf("Rename() error = %v", err)
		}
		s.Cleanup()
		if a.InFlight() != 0 {
			t.Errorf("InFlight() = %d, want 0", a.InFlight())
		}
	})
}

func TestSweep(t *testing.T) {
	a := newTestArea(t, 0)
	clock := testutil.FixedClock()

	old := filepath.Join(a.Dir(), "upload-old")
	fresh := filepath.Join(a.Dir(), "upload-fresh")
	other := filepath.Join(a.Dir(), "keep.me")
	for _, p := range []string{old, fresh, other} {
		if err := os.WriteFile(p, []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	now := clock.Now()
	os.Chtimes(old, now.Add(-2*time.Hour), now.Add(-2*time.Hour))
	os.Chtimes(fresh, now, now)
	os.Chtimes(other, now.Add(-2*time.Hour), now.Add(-2*time.Hour))

	removed, err := a.Sweep(time.Hour, now)
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Sweep() removed %d, want 1", removed)
	}
	if _, err := os.Stat(old); !os.IsNotExist(err) {
		t.Error("old upload file was not removed")
	}
	for _, p := range []string{fresh, other} {
		if _, err := os.Stat(p); err != nil {
			t.Errorf("%s should remain: %v", filepath.Base(p), err)
		}
	}
}
