package refile

import "io"

// ObjectStore is the local content-addressed object store.
type ObjectStore interface {
	// Store hashes the file at tmpPath and places it in the object area under its digest.
	// The temporary file is always removed, whether the call succeeds or not.
	// Storing bytes that already exist is safe and only rewrites the metadata record.
	Store(tmpPath, filename, mime string) (*StoreResult, error)

	// StoreReader stages r into the store's scratch area and then calls Store.
	StoreReader(r io.Reader, filename, mime string) (*StoreResult, error)

	// Resolve looks up a short id. Returns nil with no error when the id is unknown,
	// its metadata record is gone, or its object file is gone.
	Resolve(shortID string) (*Resolved, error)
}

// MetaArea persists FileMeta records, one per unique digest.
type MetaArea interface {
	// PutMeta writes or overwrites the record for meta.Digest.
	PutMeta(meta *FileMeta) error

	// GetMeta returns the record for a digest, or nil if none exists.
	GetMeta(digest string) (*FileMeta, error)

	// ListDigests returns the digest of every persisted record.
	ListDigests() ([]string, error)

	// Close releases any resources held by the metadata area.
	Close() error
}
