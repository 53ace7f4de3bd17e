package refile

import (
	"io"
	"io/fs"
	"time"
)

// StatData holds platform-specific file metadata not exposed by fs.FileInfo.
type StatData struct {
	Atime time.Time
}

// FilesystemManager provides an interface for filesystem operations.
// It abstracts file access to enable testing without touching the real filesystem.
type FilesystemManager interface {
	// Resolve validates a raw path and returns a Path object.
	// It resolves the path to an absolute path, stats it, and validates
	// it's a regular file or directory (not a symlink, device, etc.).
	Resolve(rawPath string) (*Path, error)

	// Open opens a file for reading.
	Open(path *Path) (io.ReadCloser, error)

	// Stat returns fresh file info for a path.
	Stat(path *Path) (fs.FileInfo, error)

	// FindFiles discovers regular, non-ignored files under a directory.
	FindFiles(path *Path, recursive bool) ([]*Path, error)

	// ExtractStatData returns the platform stat fields used for pointer hints.
	ExtractStatData(info fs.FileInfo) (*StatData, error)
}
