package vault

import (
	"context"
	"fmt"
	"sync"

	"refile-go/internal/refile"
)

// MemoryBackend is an in-memory implementation of the Backend interface.
// Objects are addressed as memory://<name>/<digest>. Useful for tests and dry runs.
// This implementation is safe for concurrent use.
type MemoryBackend struct {
	name    string
	maxSize int64
	mu      sync.RWMutex
	objects map[string]memoryObject // url -> object
}

type memoryObject struct {
	data []byte
	mime string
}

// NewMemoryBackend creates a new in-memory backend with the given name.
func NewMemoryBackend(name string, maxSize int64) *MemoryBackend {
	return &MemoryBackend{
		name:    name,
		maxSize: maxSize,
		objects: make(map[string]memoryObject),
	}
}

func (m *MemoryBackend) Name() string   { return m.name }
func (m *MemoryBackend) MaxSize() int64 { return m.maxSize }

// Upload is idempotent: the same bytes always map to the same URL.
func (m *MemoryBackend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	digest := refile.DigestBytes(data)
	url := fmt.Sprintf("memory://%s/%s", m.name, digest)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[url] = memoryObject{data: append([]byte(nil), data...), mime: mime}
	return &refile.UploadResult{URL: url, ID: digest}, nil
}

func (m *MemoryBackend) Download(_ context.Context, url string) (*refile.DownloadResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[url]
	if !ok {
		return nil, fmt.Errorf("%s: object not found: %s", m.name, url)
	}
	ct := obj.mime
	if ct == "" {
		ct = refile.DefaultContentType
	}
	return &refile.DownloadResult{Data: append([]byte(nil), obj.data...), ContentType: ct}, nil
}

func (m *MemoryBackend) Verify(_ context.Context, url string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[url]
	return ok
}

// Len returns the number of stored objects.
func (m *MemoryBackend) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}

var _ refile.Backend = (*MemoryBackend)(nil)
