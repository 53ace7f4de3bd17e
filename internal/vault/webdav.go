package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/studio-b12/gowebdav"

	"refile-go/internal/refile"
)

// WebDAVOptions configures a WebDAVBackend.
type WebDAVOptions struct {
	URL      string
	User     string
	Password string
	// Root is the collection objects are written into.
	Root string
	// PublicURL is where Root is readable without credentials. Defaults to URL + Root.
	PublicURL string
	MaxSize   int64
	Timeout   time.Duration
}

// WebDAVBackend writes objects to {root}/{digest}{ext} on a WebDAV server.
type WebDAVBackend struct {
	*HTTPFetcher
	name      string
	client    *gowebdav.Client
	root      string
	publicURL string
	maxSize   int64
}

func NewWebDAVBackend(name string, opts WebDAVOptions, client *http.Client) (*WebDAVBackend, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("webdav backend requires a url")
	}
	root := "/" + strings.Trim(opts.Root, "/")

	dav := gowebdav.NewClient(opts.URL, opts.User, opts.Password)
	if opts.Timeout > 0 {
		dav.SetTimeout(opts.Timeout)
	}

	publicURL := opts.PublicURL
	if publicURL == "" {
		publicURL = strings.TrimSuffix(opts.URL, "/") + strings.TrimSuffix(root, "/")
	}

	return &WebDAVBackend{
		HTTPFetcher: NewHTTPFetcher(name, client),
		name:        name,
		client:      dav,
		root:        root,
		publicURL:   strings.TrimSuffix(publicURL, "/"),
		maxSize:     opts.MaxSize,
	}, nil
}

func (b *WebDAVBackend) Name() string   { return b.name }
func (b *WebDAVBackend) MaxSize() int64 { return b.maxSize }

// PublicURL returns the base URL objects are served from.
func (b *WebDAVBackend) PublicURL() string { return b.publicURL }

func (b *WebDAVBackend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := refile.DigestBytes(data) + strings.ToLower(path.Ext(filename))
	if err := b.client.MkdirAll(b.root, 0755); err != nil {
		return nil, fmt.Errorf("%s: creating %s: %w", b.name, b.root, err)
	}
	target := gowebdav.Join(b.root, name)
	if err := b.client.WriteStream(target, bytes.NewReader(data), 0644); err != nil {
		return nil, fmt.Errorf("%s: writing %s: %w", b.name, target, err)
	}

	return &refile.UploadResult{URL: b.publicURL + "/" + url.PathEscape(name), ID: name}, nil
}

// pathFor maps a URL under the public base to a path on the server.
func (b *WebDAVBackend) pathFor(rawURL string) (string, bool) {
	rest, ok := underBase(rawURL, b.publicURL)
	if !ok || strings.ContainsAny(rest, "/?#") {
		return "", false
	}
	name, err := url.PathUnescape(rest)
	if err != nil {
		return "", false
	}
	return gowebdav.Join(b.root, name), true
}

// Download reads objects through the WebDAV client. The server's content type is
// not available from a stream, so it is sniffed from the bytes.
func (b *WebDAVBackend) Download(ctx context.Context, rawURL string) (*refile.DownloadResult, error) {
	p, ok := b.pathFor(rawURL)
	if !ok {
		return b.HTTPFetcher.Download(ctx, rawURL)
	}

	rc, err := b.client.ReadStream(p)
	if err != nil {
		return nil, fmt.Errorf("%s: reading %s: %w", b.name, p, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: reading %s: %w", b.name, p, err)
	}
	return &refile.DownloadResult{Data: data, ContentType: mimetype.Detect(data).String()}, nil
}

func (b *WebDAVBackend) Verify(ctx context.Context, rawURL string) bool {
	p, ok := b.pathFor(rawURL)
	if !ok {
		return b.HTTPFetcher.Verify(ctx, rawURL)
	}
	_, err := b.client.Stat(p)
	return err == nil
}

var _ refile.Backend = (*WebDAVBackend)(nil)
