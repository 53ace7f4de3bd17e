//go:build !linux

package fs

import (
	"errors"
	"io/fs"

	"refile-go/internal/refile"
)

// ExtractStatData is not supported on this platform; pointers are written without atime.
func (m *OSFilesystemManager) ExtractStatData(fs.FileInfo) (*refile.StatData, error) {
	return nil, errors.New("stat data not available on this platform")
}
