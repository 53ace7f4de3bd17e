// Package store implements the local content-addressed object store.
//
// Layout under the data directory:
//
//	files/<digest><ext>   one physical object per unique digest
//	tmp/upload-<uuid>     scratch files for uploads in flight
//
// Metadata records live in a refile.MetaArea. The short-id index is built from the
// metadata area once, at construction. The metadata area must not be changed by
// other processes while a LocalStore is running: such changes are only picked up
// after a restart.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"refile-go/internal/refile"
	"refile-go/internal/staging"
)

const (
	filesDirName   = "files"
	scratchDirName = "tmp"

	// maxExtLength bounds the extension kept on object file names.
	maxExtLength = 16

	// staleScratchAge is how old a leftover scratch file must be before startup removes it.
	staleScratchAge = time.Hour
)

// LocalStore is a content-addressed object store on the local filesystem.
// Safe for concurrent use.
type LocalStore struct {
	filesDir string
	scratch  *staging.Area
	metas    refile.MetaArea
	logger   refile.Logger
	clock    refile.Clock
	rename   func(oldpath, newpath string) error

	mu    sync.RWMutex
	index map[string]string // short id -> digest
}

// New opens the store rooted at dataDir and rebuilds the short-id index from metas.
func New(dataDir string, metas refile.MetaArea, logger refile.Logger, clock refile.Clock) (*LocalStore, error) {
	if logger == nil {
		logger = refile.NewNopLogger()
	}
	if clock == nil {
		clock = refile.RealClock{}
	}

	filesDir := filepath.Join(dataDir, filesDirName)
	if err := os.MkdirAll(filesDir, 0755); err != nil {
		return nil, fmt.Errorf("creating object directory: %w", err)
	}
	scratch, err := staging.New(filepath.Join(dataDir, scratchDirName), 0, refile.UUIDGenerator{})
	if err != nil {
		return nil, err
	}

	s := &LocalStore{
		filesDir: filesDir,
		scratch:  scratch,
		metas:    metas,
		logger:   logger,
		clock:    clock,
		rename:   os.Rename,
		index:    make(map[string]string),
	}

	if n, err := scratch.Sweep(staleScratchAge, clock.Now()); err != nil {
		logger.Warn("sweeping scratch directory failed", "error", err)
	} else if n > 0 {
		logger.Info("removed stale scratch files", "count", n)
	}

	if err := s.rebuildIndex(); err != nil {
		return nil, err
	}
	return s, nil
}

// rebuildIndex replaces the index with one built from the metadata area.
// Digests are scanned in sorted order; on a short-id collision the first digest
// keeps the id and later ones are left out of the index.
func (s *LocalStore) rebuildIndex() error {
	digests, err := s.metas.ListDigests()
	if err != nil {
		return fmt.Errorf("listing metadata: %w", err)
	}
	sort.Strings(digests)

	index := make(map[string]string, len(digests))
	for _, d := range digests {
		if !refile.IsDigest(d) {
			s.logger.Warn("ignoring malformed digest in metadata", "digest", d)
			continue
		}
		short := refile.ShortID(d)
		if prev, ok := index[short]; ok {
			s.logger.Warn("short id collision, digest not indexed", "id", short, "indexed", prev, "skipped", d)
			continue
		}
		index[short] = d
	}

	s.mu.Lock()
	s.index = index
	s.mu.Unlock()

	s.logger.Info("object index rebuilt", "objects", len(index))
	return nil
}

// Scratch returns the store's upload scratch area. Files staged there can be
// handed to Store, which moves them into place with a rename.
func (s *LocalStore) Scratch() *staging.Area {
	return s.scratch
}

// Len returns the number of indexed short ids.
func (s *LocalStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.index)
}

func (s *LocalStore) lookup(short string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.index[short]
	return d, ok
}

// Store implements refile.ObjectStore.
// A Store that loses its short id to a colliding digest after placing the object
// removes the object again and writes no metadata.
func (s *LocalStore) Store(tmpPath, filename, mime string) (*refile.StoreResult, error) {
	defer os.Remove(tmpPath)

	digest, err := digestFile(tmpPath)
	if err != nil {
		return nil, err
	}
	short := refile.ShortID(digest)

	if indexed, ok := s.lookup(short); ok && indexed != digest {
		return nil, fmt.Errorf("%w: %s already maps to %s", refile.ErrShortIDCollision, short, indexed)
	}

	prev, err := s.metas.GetMeta(digest)
	if err != nil {
		return nil, fmt.Errorf("reading existing metadata: %w", err)
	}

	object := digest + objectExt(filename)
	deduplicated := false
	if prev != nil {
		if name := objectName(prev); s.objectExists(name) {
			object = name
			deduplicated = true
		}
	}
	if !deduplicated && s.objectExists(object) {
		deduplicated = true
	}

	objectPath := filepath.Join(s.filesDir, object)
	if !deduplicated {
		if err := s.moveInto(tmpPath, objectPath); err != nil {
			return nil, err
		}
	}

	info, err := os.Stat(objectPath)
	if err != nil {
		return nil, fmt.Errorf("stat stored object: %w", err)
	}

	claimed, err := s.claim(short, digest)
	if err != nil {
		if !deduplicated {
			os.Remove(objectPath)
		}
		return nil, err
	}

	meta := &refile.FileMeta{
		Digest:     digest,
		Filename:   filename,
		Mime:       mime,
		Size:       info.Size(),
		UploadedAt: s.clock.Now().UnixMilli(),
		Object:     object,
	}
	if err := s.metas.PutMeta(meta); err != nil {
		if claimed {
			s.release(short, digest)
		}
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	s.logger.Debug("object placed", "digest", digest, "object", object, "deduplicated", deduplicated)

	return &refile.StoreResult{
		Digest:       digest,
		ShortID:      short,
		Size:         info.Size(),
		Deduplicated: deduplicated,
	}, nil
}

// claim maps short to digest in the index. It reports whether this call added
// the entry, and fails when a different digest already holds the id, which
// happens when a concurrent Store of a colliding digest got there first.
func (s *LocalStore) claim(short, digest string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	indexed, ok := s.index[short]
	if !ok {
		s.index[short] = digest
		return true, nil
	}
	if indexed != digest {
		return false, fmt.Errorf("%w: %s already maps to %s", refile.ErrShortIDCollision, short, indexed)
	}
	return false, nil
}

func (s *LocalStore) release(short, digest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.index[short] == digest {
		delete(s.index, short)
	}
}

// StoreReader implements refile.ObjectStore.
func (s *LocalStore) StoreReader(r io.Reader, filename, mime string) (*refile.StoreResult, error) {
	staged, err := s.scratch.Stage(r, 0)
	if err != nil {
		return nil, fmt.Errorf("staging content: %w", err)
	}
	defer staged.Cleanup()

	return s.Store(staged.Path, filename, mime)
}

// Resolve implements refile.ObjectStore.
func (s *LocalStore) Resolve(shortID string) (*refile.Resolved, error) {
	if !refile.IsShortID(shortID) {
		return nil, nil
	}
	digest, ok := s.lookup(shortID)
	if !ok {
		return nil, nil
	}

	meta, err := s.metas.GetMeta(digest)
	if err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	if meta == nil {
		return nil, nil
	}

	path := filepath.Join(s.filesDir, objectName(meta))
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("stat object: %w", err)
	}
	return &refile.Resolved{Path: path, Meta: meta}, nil
}

func (s *LocalStore) objectExists(name string) bool {
	info, err := os.Stat(filepath.Join(s.filesDir, name))
	return err == nil && info.Mode().IsRegular()
}

// moveInto places src at dst by rename, falling back to copying into a temp file
// beside dst and renaming that, so dst never appears partially written.
func (s *LocalStore) moveInto(src, dst string) error {
	err := s.rename(src, dst)
	if err == nil {
		return nil
	}
	s.logger.Debug("rename failed, copying instead", "src", src, "error", err)

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening upload: %w", err)
	}
	defer in.Close()

	tmp, err := os.CreateTemp(s.filesDir, ".copy-*")
	if err != nil {
		return fmt.Errorf("creating temp object: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return fmt.Errorf("copying object: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp object: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := s.rename(tmpPath, dst); err != nil {
		return fmt.Errorf("renaming object into place: %w", err)
	}

	success = true
	return nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("opening upload: %w", err)
	}
	defer f.Close()
	return refile.Digest(f)
}

// objectName returns the physical file name for a record. Records without an
// object name fall back to digest plus the extension of their filename.
func objectName(meta *refile.FileMeta) string {
	if meta.Object != "" && filepath.Base(meta.Object) == meta.Object && strings.HasPrefix(meta.Object, meta.Digest) {
		return meta.Object
	}
	return meta.Digest + objectExt(meta.Filename)
}

// objectExt returns the lowercased extension of filename when it is short and
// alphanumeric, otherwise "".
func objectExt(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) < 2 || len(ext) > maxExtLength {
		return ""
	}
	for _, c := range ext[1:] {
		if (c < 'a' || c > 'z') && (c < '0' || c > '9') {
			return ""
		}
	}
	return ext
}

var _ refile.ObjectStore = (*LocalStore)(nil)
