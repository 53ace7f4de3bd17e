// Package pointer implements the portable pointer file format.
//
// A pointer is a small JSON side-file that stands in for a file whose bytes live
// elsewhere. It records the content digest, size, mime type, logical name and the
// canonical URL of the remote copy, so the file can be located and verified without
// embedding its bytes. Pointer files are named after the original path plus a
// mime-derived extension:
//
//	video/*  -> .revid
//	audio/*  -> .remusic
//	image/*  -> .repic
//	other    -> .refile
package pointer

import (
	"strings"
	"time"
)

const (
	// Version is the only pointer format version understood by this package.
	Version = 1

	// Type is the fixed discriminator stored in every pointer.
	Type = "refile"

	hashPrefix = "sha256:"
)

// FileHints carries optional filesystem attributes of the original file.
// Times are Unix milliseconds.
type FileHints struct {
	Mode  *uint32 `json:"mode,omitempty"`
	Mtime *int64  `json:"mtime,omitempty"`
	Atime *int64  `json:"atime,omitempty"`
}

// Pointer is the decoded form of a pointer file. Field order is the serialized order.
type Pointer struct {
	V         int        `json:"v"`
	Type      string     `json:"type"`
	Mime      string     `json:"mime"`
	URL       string     `json:"url"`
	Hash      string     `json:"hash"`
	Size      int64      `json:"size"`
	Name      string     `json:"name"`
	CreatedAt int64      `json:"createdAt"`
	Backend   string     `json:"backend,omitempty"`
	Meta      *FileHints `json:"meta,omitempty"`
}

// Params are the caller-supplied fields of a new pointer.
type Params struct {
	Mime    string
	URL     string
	Hash    string // "sha256:<hex>"
	Size    int64
	Name    string
	Backend string
	Meta    *FileHints
}

// New creates a pointer stamped with the current time.
func New(p Params) *Pointer {
	return NewAt(p, time.Now())
}

// NewAt creates a pointer stamped with the given creation time.
// All other fields are copied through verbatim.
func NewAt(p Params, now time.Time) *Pointer {
	return &Pointer{
		V:         Version,
		Type:      Type,
		Mime:      p.Mime,
		URL:       p.URL,
		Hash:      p.Hash,
		Size:      p.Size,
		Name:      p.Name,
		CreatedAt: now.UnixMilli(),
		Backend:   p.Backend,
		Meta:      p.Meta,
	}
}

// Digest returns the hex digest without its "sha256:" prefix.
func (p *Pointer) Digest() string {
	return strings.TrimPrefix(p.Hash, hashPrefix)
}

// Created returns CreatedAt as a time.Time.
func (p *Pointer) Created() time.Time {
	return time.UnixMilli(p.CreatedAt)
}
