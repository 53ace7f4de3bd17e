package database

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"refile-go/internal/refile"
)

const metaExt = ".json"

// FilesystemMetaArea keeps one JSON record per digest in a directory:
// <dir>/<digest>.json with keys hash, filename, mime, size, uploadedAt, object.
type FilesystemMetaArea struct {
	dir string
}

// NewFilesystemMetaArea creates the directory if needed.
func NewFilesystemMetaArea(dir string) (*FilesystemMetaArea, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating metadata directory: %w", err)
	}
	return &FilesystemMetaArea{dir: dir}, nil
}

func (a *FilesystemMetaArea) recordPath(digest string) string {
	return filepath.Join(a.dir, digest+metaExt)
}

// PutMeta replaces the record atomically: readers see the old or the new record, never a mix.
func (a *FilesystemMetaArea) PutMeta(meta *refile.FileMeta) error {
	if !refile.IsDigest(meta.Digest) {
		return fmt.Errorf("%w: bad digest %q", refile.ErrInvalidInput, meta.Digest)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	tmp, err := os.CreateTemp(a.dir, ".meta-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing metadata: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, a.recordPath(meta.Digest)); err != nil {
		return fmt.Errorf("renaming metadata into place: %w", err)
	}

	success = true
	return nil
}

// GetMeta returns nil for unknown digests and for records that cannot be parsed.
func (a *FilesystemMetaArea) GetMeta(digest string) (*refile.FileMeta, error) {
	if !refile.IsDigest(digest) {
		return nil, nil
	}

	data, err := os.ReadFile(a.recordPath(digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading metadata for %s: %w", digest, err)
	}

	var m refile.FileMeta
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nil
	}
	if m.Digest == "" {
		m.Digest = digest
	}
	return &m, nil
}

// ListDigests returns the digests of all records in lexical order.
func (a *FilesystemMetaArea) ListDigests() ([]string, error) {
	entries, err := os.ReadDir(a.dir)
	if err != nil {
		return nil, fmt.Errorf("listing metadata: %w", err)
	}

	var digests []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		d, ok := strings.CutSuffix(e.Name(), metaExt)
		if ok && refile.IsDigest(d) {
			digests = append(digests, d)
		}
	}
	return digests, nil
}

func (a *FilesystemMetaArea) Close() error { return nil }

var _ refile.MetaArea = (*FilesystemMetaArea)(nil)
