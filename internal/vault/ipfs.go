package vault

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	shell "github.com/ipfs/go-ipfs-api"

	"refile-go/internal/refile"
)

// DefaultIPFSGateway serves CIDs added to the local node.
const DefaultIPFSGateway = "https://ipfs.io"

// IPFSBackend adds objects to an IPFS node through its HTTP API.
// Object URLs point at a gateway: {gateway}/ipfs/{cid}?filename={name}.
type IPFSBackend struct {
	*HTTPFetcher
	name    string
	shell   *shell.Shell
	gateway string
	maxSize int64
}

// NewIPFSBackend connects to the node API at apiURL (e.g. "localhost:5001").
func NewIPFSBackend(name, apiURL, gateway string, maxSize int64, timeout time.Duration, client *http.Client) *IPFSBackend {
	if gateway == "" {
		gateway = DefaultIPFSGateway
	}
	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}
	return &IPFSBackend{
		HTTPFetcher: NewHTTPFetcher(name, client),
		name:        name,
		shell:       sh,
		gateway:     strings.TrimSuffix(gateway, "/"),
		maxSize:     maxSize,
	}
}

func (b *IPFSBackend) Name() string   { return b.name }
func (b *IPFSBackend) MaxSize() int64 { return b.maxSize }

// Gateway returns the base URL objects are served from.
func (b *IPFSBackend) Gateway() string { return b.gateway }

func (b *IPFSBackend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !b.shell.IsUp() {
		return nil, fmt.Errorf("%s: node unavailable", b.name)
	}

	cid, err := b.shell.Add(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: adding to ipfs: %w", b.name, err)
	}

	u := b.gateway + "/ipfs/" + cid
	if filename != "" {
		u += "?filename=" + url.QueryEscape(filename)
	}
	return &refile.UploadResult{URL: u, ID: cid}, nil
}

// cidFor extracts the CID from a gateway URL of this backend.
func (b *IPFSBackend) cidFor(rawURL string) (string, bool) {
	rest, ok := underBase(rawURL, b.gateway+"/ipfs")
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(rest, "/?#"); i >= 0 {
		rest = rest[:i]
	}
	return rest, rest != ""
}

// Download reads the object from the node with cat; foreign URLs go over HTTP.
func (b *IPFSBackend) Download(ctx context.Context, rawURL string) (*refile.DownloadResult, error) {
	cid, ok := b.cidFor(rawURL)
	if !ok {
		return b.HTTPFetcher.Download(ctx, rawURL)
	}

	rc, err := b.shell.Cat("/ipfs/" + cid)
	if err != nil {
		return nil, fmt.Errorf("%s: cat %s: %w", b.name, cid, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("%s: reading %s: %w", b.name, cid, err)
	}
	return &refile.DownloadResult{Data: data, ContentType: refile.DefaultContentType}, nil
}

var _ refile.Backend = (*IPFSBackend)(nil)
