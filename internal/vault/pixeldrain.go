package vault

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"refile-go/internal/refile"
)

const (
	// DefaultPixeldrainEndpoint is the public pixeldrain instance.
	DefaultPixeldrainEndpoint = "https://pixeldrain.com"

	// DefaultPixeldrainMaxSize is pixeldrain's per-file limit.
	DefaultPixeldrainMaxSize = 20 * 1024 * 1024 * 1024
)

// PixeldrainBackend uploads with PUT /api/file/{name}, authenticated by API key.
type PixeldrainBackend struct {
	*HTTPFetcher
	name     string
	endpoint string
	apiKey   string
	maxSize  int64
}

func NewPixeldrainBackend(name, endpoint, apiKey string, maxSize int64, client *http.Client) *PixeldrainBackend {
	if endpoint == "" {
		endpoint = DefaultPixeldrainEndpoint
	}
	if maxSize == 0 {
		maxSize = DefaultPixeldrainMaxSize
	}
	return &PixeldrainBackend{
		HTTPFetcher: NewHTTPFetcher(name, client),
		name:        name,
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		apiKey:      apiKey,
		maxSize:     maxSize,
	}
}

func (b *PixeldrainBackend) Name() string   { return b.name }
func (b *PixeldrainBackend) MaxSize() int64 { return b.maxSize }

func (b *PixeldrainBackend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	target := b.endpoint + "/api/file/" + url.PathEscape(filename)
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, target, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if mime != "" {
		req.Header.Set("Content-Type", mime)
	}
	if b.apiKey != "" {
		req.SetBasicAuth("", b.apiKey)
	}

	resp, err := b.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", b.name, err)
	}
	if out.ID == "" {
		return nil, fmt.Errorf("%s: %w (missing id)", b.name, ErrIncompleteResponse)
	}
	return &refile.UploadResult{URL: b.endpoint + "/api/file/" + out.ID, ID: out.ID}, nil
}

var _ refile.Backend = (*PixeldrainBackend)(nil)
