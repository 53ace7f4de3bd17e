package vault

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"refile-go/internal/refile"
)

const (
	// DefaultCatboxEndpoint is the catbox.moe upload API.
	DefaultCatboxEndpoint = "https://catbox.moe/user/api.php"

	// DefaultCatboxMaxSize is catbox.moe's per-file limit.
	DefaultCatboxMaxSize = 200 * 1024 * 1024
)

// CatboxBackend uploads anonymously, or to an account when a user hash is set.
type CatboxBackend struct {
	*HTTPFetcher
	name     string
	endpoint string
	userHash string
	maxSize  int64
}

func NewCatboxBackend(name, endpoint, userHash string, maxSize int64, client *http.Client) *CatboxBackend {
	if endpoint == "" {
		endpoint = DefaultCatboxEndpoint
	}
	if maxSize == 0 {
		maxSize = DefaultCatboxMaxSize
	}
	return &CatboxBackend{
		HTTPFetcher: NewHTTPFetcher(name, client),
		name:        name,
		endpoint:    endpoint,
		userHash:    userHash,
		maxSize:     maxSize,
	}
}

func (b *CatboxBackend) Name() string   { return b.name }
func (b *CatboxBackend) MaxSize() int64 { return b.maxSize }

// Upload posts the file; catbox answers with the file URL as plain text.
func (b *CatboxBackend) Upload(ctx context.Context, data []byte, filename, mime string) (*refile.UploadResult, error) {
	fields := []formField{{"reqtype", "fileupload"}}
	if b.userHash != "" {
		fields = append(fields, formField{"userhash", b.userHash})
	}
	body, contentType, err := multipartBody(fields, "fileToUpload", filename, mime, data)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := b.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return nil, fmt.Errorf("%s: reading response: %w", b.name, err)
	}
	url := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(url, "https://") && !strings.HasPrefix(url, "http://") {
		return nil, fmt.Errorf("%s: %w: %q", b.name, ErrIncompleteResponse, truncate(url, maxErrorBody))
	}
	return &refile.UploadResult{URL: url, ID: path.Base(url)}, nil
}

func truncate(s string, n int) string {
	if r := []rune(s); len(r) > n {
		return string(r[:n])
	}
	return s
}

var _ refile.Backend = (*CatboxBackend)(nil)
