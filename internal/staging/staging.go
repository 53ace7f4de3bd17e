// Package staging holds incoming upload bodies on disk until the store takes them.
//
// Scratch files live in a single directory on the same filesystem as the object
// area so that the store can move them into place with a rename. Every staged file
// has a unique name and is removed by Cleanup unless the store consumed it.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"refile-go/internal/refile"
)

const filePrefix = "upload-"

var (
	// ErrTooLarge is returned when a body exceeds the per-file limit.
	ErrTooLarge = errors.New("upload exceeds size limit")

	// ErrFull is returned when the area's total in-flight bytes would exceed its capacity.
	ErrFull = errors.New("staging area full")
)

// Area is a directory of scratch files with an optional cap on total in-flight bytes.
// Safe for concurrent use.
type Area struct {
	dir      string
	capacity int64
	ids      refile.IDGenerator

	mu       sync.Mutex
	inFlight int64
}

// New creates the scratch directory if needed. capacity 0 means unlimited.
func New(dir string, capacity int64, ids refile.IDGenerator) (*Area, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}
	if ids == nil {
		ids = refile.UUIDGenerator{}
	}
	return &Area{dir: dir, capacity: capacity, ids: ids}, nil
}

// Dir returns the scratch directory.
func (a *Area) Dir() string {
	return a.dir
}

// Staged is one scratch file.
type Staged struct {
	Path string
	Size int64

	area     *Area
	released bool
}

// Stage copies r into a new scratch file. At most limit bytes are accepted when
// limit > 0; a longer body yields ErrTooLarge and leaves nothing behind.
func (a *Area) Stage(r io.Reader, limit int64) (*Staged, error) {
	path := filepath.Join(a.dir, filePrefix+a.ids.New())
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("creating staging file: %w", err)
	}

	success := false
	defer func() {
		if !success {
			os.Remove(path)
		}
	}()

	src := r
	if limit > 0 {
		src = io.LimitReader(r, limit+1)
	}
	n, err := io.Copy(f, src)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("writing staging file: %w", err)
	}
	if limit > 0 && n > limit {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, limit)
	}

	if err := a.reserve(n); err != nil {
		return nil, err
	}

	success = true
	return &Staged{Path: path, Size: n, area: a}, nil
}

func (a *Area) reserve(n int64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.capacity > 0 && a.inFlight+n > a.capacity {
		return fmt.Errorf("%w: would exceed capacity of %d bytes", ErrFull, a.capacity)
	}
	a.inFlight += n
	return nil
}

// InFlight returns the bytes currently held by staged files.
func (a *Area) InFlight() int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.inFlight
}

// Sweep removes scratch files older than maxAge, left behind by a crashed process.
// Returns the number of files removed.
func (a *Area) Sweep(maxAge time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return 0, fmt.Errorf("reading staging directory: %w", err)
	}

	removed := 0
	for _, e := range entries {
		if !e.Type().IsRegular() || !strings.HasPrefix(e.Name(), filePrefix) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < maxAge {
			continue
		}
		if err := os.Remove(filepath.Join(a.dir, e.Name())); err == nil {
			removed++
		}
	}
	return removed, nil
}

// Cleanup releases the file's capacity and removes it if it still exists.
// Safe to call more than once and after the file has been moved away.
func (s *Staged) Cleanup() {
	if s.released {
		return
	}
	s.released = true

	s.area.mu.Lock()
	s.area.inFlight -= s.Size
	s.area.mu.Unlock()

	os.Remove(s.Path)
}
