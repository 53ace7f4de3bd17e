package refile

import "time"

// FileMeta is the persisted metadata record for one unique digest.
// It is created at store time and replaced wholesale when identical bytes are stored again.
type FileMeta struct {
	Digest     string `json:"hash"`
	Filename   string `json:"filename"`
	Mime       string `json:"mime"`
	Size       int64  `json:"size"`
	UploadedAt int64  `json:"uploadedAt"` // Unix milliseconds
	// Object is the physical object file name inside the object area.
	// Empty for records written before the field existed.
	Object string `json:"object,omitempty"`
}

// UploadTime returns UploadedAt as a time.Time.
func (m *FileMeta) UploadTime() time.Time {
	return time.UnixMilli(m.UploadedAt)
}

// StoreResult describes a completed LocalStore.Store call.
type StoreResult struct {
	Digest  string
	ShortID string
	Size    int64
	// Deduplicated is true when the object already existed and the upload was discarded.
	Deduplicated bool
}

// Resolved is a successfully resolved local object.
type Resolved struct {
	Path string
	Meta *FileMeta
}
