package refile

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"refile-go/internal/pointer"
)

// PushOptions control how local files are offloaded.
type PushOptions struct {
	Recursive bool
	// Verify probes the remote copy after upload and fails if it is not reachable.
	Verify bool
	// Remove deletes the original once its pointer is written (and verified, if requested).
	Remove bool
}

// PushResult describes one offloaded file.
type PushResult struct {
	Source      string
	PointerPath string
	Pointer     *pointer.Pointer
	Removed     bool
}

// Push uploads a file (or every file under a directory) through the fallback chain
// and writes a pointer file next to each one.
// Files that already are pointers are skipped.
func (s *RelayService) Push(ctx context.Context, path *Path, opts PushOptions) ([]*PushResult, error) {
	if s.chain == nil || len(s.chain.Backends()) == 0 {
		return nil, fmt.Errorf("no backends configured")
	}

	if !path.IsDir() {
		if pointer.IsPointerPath(path.String()) {
			return nil, fmt.Errorf("%w: %s is already a pointer", ErrInvalidInput, path.String())
		}
		res, err := s.pushOne(ctx, path, opts)
		if err != nil {
			return nil, err
		}
		return []*PushResult{res}, nil
	}

	files, err := s.fsmgr.FindFiles(path, opts.Recursive)
	if err != nil {
		return nil, fmt.Errorf("finding files: %w", err)
	}

	var results []*PushResult
	for _, f := range files {
		if pointer.IsPointerPath(f.String()) {
			continue
		}
		res, err := s.pushOne(ctx, f, opts)
		if err != nil {
			return results, fmt.Errorf("pushing %s: %w", f.String(), err)
		}
		results = append(results, res)
	}
	return results, nil
}

// pushOne offloads a single regular file.
func (s *RelayService) pushOne(ctx context.Context, path *Path, opts PushOptions) (*PushResult, error) {
	s.logger.Debug("pushing file", "path", path.String())

	r, err := s.fsmgr.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	data, err := io.ReadAll(r)
	r.Close()
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	mime, err := s.mimes.Detect(path.String(), "")
	if err != nil {
		return nil, fmt.Errorf("detecting mime type: %w", err)
	}
	if !s.mimes.Allowed(mime) {
		return nil, fmt.Errorf("%w: %s", ErrMimeNotAllowed, mime)
	}

	name := filepath.Base(path.String())
	digest := DigestBytes(data)

	res, err := s.chain.Upload(ctx, data, name, mime)
	if err != nil {
		return nil, err
	}

	p := pointer.NewAt(pointer.Params{
		Mime:    mime,
		URL:     res.URL,
		Hash:    FormatHash(digest),
		Size:    int64(len(data)),
		Name:    name,
		Backend: res.Provider,
		Meta:    s.fileHints(path),
	}, s.clock.Now())

	ptrPath := pointer.PathFor(path.String(), mime)
	if err := pointer.Write(ptrPath, p); err != nil {
		return nil, fmt.Errorf("writing pointer: %w", err)
	}

	result := &PushResult{Source: path.String(), PointerPath: ptrPath, Pointer: p}

	if opts.Verify {
		if b := s.chain.Lookup(res.Provider); b != nil && !b.Verify(ctx, res.URL) {
			return result, fmt.Errorf("remote copy not reachable at %s", res.URL)
		}
	}

	if opts.Remove {
		if err := s.removeIfUnchanged(path, int64(len(data))); err != nil {
			return result, err
		}
		result.Removed = true
	}

	s.logger.Info("file pushed", "path", path.String(), "backend", res.Provider, "url", res.URL)
	return result, nil
}

// fileHints captures mode and times of the original file for the pointer.
func (s *RelayService) fileHints(path *Path) *pointer.FileHints {
	info := path.Info()
	if info == nil {
		return nil
	}

	mode := uint32(info.Mode().Perm())
	mtime := info.ModTime().UnixMilli()
	hints := &pointer.FileHints{Mode: &mode, Mtime: &mtime}

	stat, err := s.fsmgr.ExtractStatData(info)
	if err != nil {
		s.logger.Debug("no stat data for pointer hints", "path", path.String(), "error", err)
		return hints
	}
	atime := stat.Atime.UnixMilli()
	hints.Atime = &atime
	return hints
}

// removeIfUnchanged deletes the original only if it still matches what was uploaded.
func (s *RelayService) removeIfUnchanged(path *Path, uploadedSize int64) error {
	info, err := s.fsmgr.Stat(path)
	if err != nil {
		return fmt.Errorf("re-stat file: %w", err)
	}
	if info.Size() != uploadedSize {
		return fmt.Errorf("file changed during push: size %d -> %d", uploadedSize, info.Size())
	}
	if orig := path.Info(); orig != nil && !orig.ModTime().Equal(info.ModTime()) {
		return fmt.Errorf("file changed during push: mtime %v -> %v", orig.ModTime(), info.ModTime())
	}
	if err := os.Remove(path.String()); err != nil {
		return fmt.Errorf("removing original: %w", err)
	}
	return nil
}
