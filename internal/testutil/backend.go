package testutil

import (
	"context"
	"fmt"
	"sync"

	"refile-go/internal/refile"
)

// FakeBackend is a scriptable refile.Backend. It keeps uploads in memory under
// "fake://<name>/<n>" URLs and fails every upload when Err is set.
type FakeBackend struct {
	name    string
	maxSize int64

	mu      sync.Mutex
	Err     error
	calls   int
	objects map[string][]byte
	// Block makes Upload wait for ctx to end before returning its error.
	Block bool
}

// NewFakeBackend creates a fake backend. maxSize 0 means unlimited.
func NewFakeBackend(name string, maxSize int64) *FakeBackend {
	return &FakeBackend{name: name, maxSize: maxSize, objects: make(map[string][]byte)}
}

// NewFailingBackend creates a fake backend whose uploads always fail with err.
func NewFailingBackend(name string, err error) *FakeBackend {
	b := NewFakeBackend(name, 0)
	b.Err = err
	return b
}

func (b *FakeBackend) Name() string   { return b.name }
func (b *FakeBackend) MaxSize() int64 { return b.maxSize }

// Calls returns how many times Upload was invoked.
func (b *FakeBackend) Calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls
}

func (b *FakeBackend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	b.mu.Lock()
	b.calls++
	n := b.calls
	err, block := b.Err, b.Block
	b.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	id := fmt.Sprintf("%d", n)
	url := fmt.Sprintf("fake://%s/%s", b.name, id)

	b.mu.Lock()
	b.objects[url] = append([]byte(nil), data...)
	b.mu.Unlock()
	return &refile.UploadResult{URL: url, ID: id}, nil
}

func (b *FakeBackend) Download(_ context.Context, url string) (*refile.DownloadResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[url]
	if !ok {
		return nil, fmt.Errorf("%s: not found: %s", b.name, url)
	}
	return &refile.DownloadResult{Data: append([]byte(nil), data...), ContentType: refile.DefaultContentType}, nil
}

func (b *FakeBackend) Verify(_ context.Context, url string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.objects[url]
	return ok
}

// Put seeds an object at url, replacing any previous content.
func (b *FakeBackend) Put(url string, data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[url] = data
}

var _ refile.Backend = (*FakeBackend)(nil)
