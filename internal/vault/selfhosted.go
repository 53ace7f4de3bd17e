package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"refile-go/internal/refile"
)

// DefaultSelfHostedMaxSize matches the relay server's default upload limit.
const DefaultSelfHostedMaxSize = 500 * 1024 * 1024

// SelfHostedBackend uploads to another refile relay over its HTTP API.
type SelfHostedBackend struct {
	*HTTPFetcher
	name     string
	endpoint string
	apiKey   string
	maxSize  int64
}

// NewSelfHostedBackend creates a backend for the relay at endpoint.
// maxSize 0 selects DefaultSelfHostedMaxSize.
func NewSelfHostedBackend(name, endpoint, apiKey string, maxSize int64, client *http.Client) *SelfHostedBackend {
	if maxSize == 0 {
		maxSize = DefaultSelfHostedMaxSize
	}
	return &SelfHostedBackend{
		HTTPFetcher: NewHTTPFetcher(name, client),
		name:        name,
		endpoint:    strings.TrimSuffix(endpoint, "/"),
		apiKey:      apiKey,
		maxSize:     maxSize,
	}
}

func (b *SelfHostedBackend) Name() string   { return b.name }
func (b *SelfHostedBackend) MaxSize() int64 { return b.maxSize }

func (b *SelfHostedBackend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	body, contentType, err := multipartBody(nil, "file", filename, mime, data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint+"/upload", body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	if b.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+b.apiKey)
	}

	resp, err := b.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out struct {
		URL string `json:"url"`
		ID  string `json:"id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("%s: decoding response: %w", b.name, err)
	}
	if out.URL == "" || out.ID == "" {
		return nil, fmt.Errorf("%s: %w (missing url or id)", b.name, ErrIncompleteResponse)
	}
	return &refile.UploadResult{URL: out.URL, ID: out.ID}, nil
}

var _ refile.Backend = (*SelfHostedBackend)(nil)
