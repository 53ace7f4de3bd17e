package database

import (
	"sort"
	"sync"

	"refile-go/internal/refile"
)

// MemoryMetaArea is an in-process MetaArea for tests and throwaway servers.
type MemoryMetaArea struct {
	mu      sync.RWMutex
	records map[string]refile.FileMeta
}

func NewMemoryMetaArea() *MemoryMetaArea {
	return &MemoryMetaArea{records: make(map[string]refile.FileMeta)}
}

func (a *MemoryMetaArea) PutMeta(meta *refile.FileMeta) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.records[meta.Digest] = *meta
	return nil
}

func (a *MemoryMetaArea) GetMeta(digest string) (*refile.FileMeta, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	m, ok := a.records[digest]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (a *MemoryMetaArea) ListDigests() ([]string, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	digests := make([]string, 0, len(a.records))
	for d := range a.records {
		digests = append(digests, d)
	}
	sort.Strings(digests)
	return digests, nil
}

// Delete removes a record. Used by tests to simulate a vanished record.
func (a *MemoryMetaArea) Delete(digest string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, digest)
}

func (a *MemoryMetaArea) Close() error { return nil }

var _ refile.MetaArea = (*MemoryMetaArea)(nil)
