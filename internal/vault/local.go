package vault

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"refile-go/internal/refile"
)

// DefaultLocalMaxSize is the local backend's default ceiling.
const DefaultLocalMaxSize = 100 * 1024 * 1024

// LocalBackend places objects in this node's own store and serves them from base_url.
type LocalBackend struct {
	*HTTPFetcher
	name    string
	store   refile.ObjectStore
	baseURL string
	maxSize int64
}

func NewLocalBackend(name string, store refile.ObjectStore, baseURL string, maxSize int64, client *http.Client) *LocalBackend {
	if maxSize == 0 {
		maxSize = DefaultLocalMaxSize
	}
	return &LocalBackend{
		HTTPFetcher: NewHTTPFetcher(name, client),
		name:        name,
		store:       store,
		baseURL:     strings.TrimSuffix(baseURL, "/"),
		maxSize:     maxSize,
	}
}

func (b *LocalBackend) Name() string   { return b.name }
func (b *LocalBackend) MaxSize() int64 { return b.maxSize }

func (b *LocalBackend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	res, err := b.store.StoreReader(bytes.NewReader(data), filename, mime)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	u := b.baseURL + "/f/" + res.ShortID + "/" + refile.EscapeComponent(filename)
	return &refile.UploadResult{URL: u, ID: res.ShortID}, nil
}

// resolve maps one of this node's object URLs to the stored object.
func (b *LocalBackend) resolve(rawURL string) (*refile.Resolved, bool, error) {
	rest, ok := underBase(rawURL, b.baseURL+"/f")
	if !ok {
		return nil, false, nil
	}
	shortID, _, _ := strings.Cut(rest, "/")
	res, err := b.store.Resolve(shortID)
	return res, true, err
}

// Download reads this node's objects from disk and anything else over HTTP.
func (b *LocalBackend) Download(ctx context.Context, rawURL string) (*refile.DownloadResult, error) {
	res, local, err := b.resolve(rawURL)
	if !local {
		return b.HTTPFetcher.Download(ctx, rawURL)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", b.name, err)
	}
	if res == nil {
		return nil, fmt.Errorf("%s: object not found: %s", b.name, rawURL)
	}

	data, err := os.ReadFile(res.Path)
	if err != nil {
		return nil, fmt.Errorf("%s: reading object: %w", b.name, err)
	}
	return &refile.DownloadResult{Data: data, ContentType: res.Meta.Mime}, nil
}

func (b *LocalBackend) Verify(ctx context.Context, rawURL string) bool {
	res, local, err := b.resolve(rawURL)
	if !local {
		return b.HTTPFetcher.Verify(ctx, rawURL)
	}
	return err == nil && res != nil
}

var _ refile.Backend = (*LocalBackend)(nil)
