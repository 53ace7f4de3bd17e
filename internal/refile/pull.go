package refile

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"refile-go/internal/pointer"
)

// PullOptions control how pointers are materialized back into files.
type PullOptions struct {
	// Overwrite replaces an existing file at the original path.
	Overwrite bool
	// KeepPointer leaves the pointer file in place after a successful pull.
	KeepPointer bool
}

// VerifyResult reports the state of a pointer's remote copy.
type VerifyResult struct {
	Pointer   *pointer.Pointer
	Trusted   bool
	Reachable bool
}

// Pull downloads the object a pointer refers to, checks it against the pointer's
// size and digest, and writes it to the pointer's original path.
// Returns the path written.
func (s *RelayService) Pull(ctx context.Context, pointerPath string, opts PullOptions) (string, error) {
	p, ok := pointer.Read(pointerPath)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrInvalidPointer, pointerPath)
	}
	if !s.trust.IsTrustedURL(p.URL) {
		return "", fmt.Errorf("%w: %s", ErrUntrustedURL, p.URL)
	}

	outPath := pointer.OriginalPath(pointerPath)
	if outPath == pointerPath {
		return "", fmt.Errorf("%w: %s has no pointer extension", ErrInvalidInput, pointerPath)
	}
	if _, err := os.Stat(outPath); err == nil && !opts.Overwrite {
		return "", fmt.Errorf("output file already exists: %s", outPath)
	}

	res, err := s.fetcherFor(p).Download(ctx, p.URL)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", p.URL, err)
	}

	if int64(len(res.Data)) != p.Size {
		return "", fmt.Errorf("%w: size %d, pointer says %d", ErrIntegrity, len(res.Data), p.Size)
	}
	if got := DigestBytes(res.Data); got != p.Digest() {
		return "", fmt.Errorf("%w: digest %s, pointer says %s", ErrIntegrity, got, p.Digest())
	}

	mode := fs.FileMode(0644)
	if p.Meta != nil && p.Meta.Mode != nil {
		mode = fs.FileMode(*p.Meta.Mode).Perm()
	}
	if err := writeFileAtomic(outPath, res.Data, mode); err != nil {
		return "", err
	}
	if err := applyTimes(outPath, p.Meta); err != nil {
		return "", err
	}

	if !opts.KeepPointer {
		if err := os.Remove(pointerPath); err != nil {
			return "", fmt.Errorf("removing pointer: %w", err)
		}
	}

	s.logger.Info("pointer pulled", "pointer", pointerPath, "path", outPath, "size", p.Size)
	return outPath, nil
}

// Verify checks a pointer's validity and probes its remote copy.
// Untrusted URLs are never probed.
func (s *RelayService) Verify(ctx context.Context, pointerPath string) (*VerifyResult, error) {
	p, ok := pointer.Read(pointerPath)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrInvalidPointer, pointerPath)
	}

	result := &VerifyResult{Pointer: p, Trusted: s.trust.IsTrustedURL(p.URL)}
	if result.Trusted {
		result.Reachable = s.fetcherFor(p).Verify(ctx, p.URL)
	}
	return result, nil
}

// fetcherFor prefers the backend that produced the pointer.
func (s *RelayService) fetcherFor(p *pointer.Pointer) Fetcher {
	if s.chain != nil && p.Backend != "" {
		if b := s.chain.Lookup(p.Backend); b != nil {
			return b
		}
	}
	return s.fetcher
}

// writeFileAtomic writes data to path using a temp file in the same directory + rename.
func writeFileAtomic(path string, data []byte, mode fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".pull-*")
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
		return fmt.Errorf("writing data: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, mode); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming into place: %w", err)
	}

	success = true
	return nil
}

// applyTimes restores mtime/atime hints. A missing atime falls back to mtime.
func applyTimes(path string, hints *pointer.FileHints) error {
	if hints == nil || hints.Mtime == nil {
		return nil
	}
	mtime := time.UnixMilli(*hints.Mtime)
	atime := mtime
	if hints.Atime != nil {
		atime = time.UnixMilli(*hints.Atime)
	}
	if err := os.Chtimes(path, atime, mtime); err != nil {
		return fmt.Errorf("setting file times: %w", err)
	}
	return nil
}
