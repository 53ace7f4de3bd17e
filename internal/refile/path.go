package refile

import "io/fs"

// Path is an absolute filesystem path together with the stat taken when it was
// resolved. Push compares that stat with a fresh one before removing an
// original, so a file edited mid-upload is left alone.
type Path struct {
	abs  string
	info fs.FileInfo
}

// NewPath is used by FilesystemManager implementations.
func NewPath(abs string, info fs.FileInfo) *Path {
	return &Path{abs: abs, info: info}
}

func (p *Path) String() string { return p.abs }

// IsDir reports whether the path was a directory when resolved.
func (p *Path) IsDir() bool {
	return p.info != nil && p.info.IsDir()
}

// Info returns the stat taken at resolve time.
func (p *Path) Info() fs.FileInfo { return p.info }
