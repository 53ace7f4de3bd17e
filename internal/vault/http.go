package vault

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"refile-go/internal/refile"
)

// DefaultHTTPTimeout bounds a whole HTTP exchange when the caller supplies no client.
const DefaultHTTPTimeout = 5 * time.Minute

// maxErrorBody is how much of an error response body is kept in a StatusError.
const maxErrorBody = 200

// ErrIncompleteResponse is returned when a backend answers 2xx without a usable location.
var ErrIncompleteResponse = errors.New("server returned incomplete response")

// StatusError is a non-2xx answer from a remote backend.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string // truncated
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: HTTP %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Body)
}

// newStatusError consumes resp.Body.
func newStatusError(provider string, resp *http.Response) *StatusError {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*4))
	text := strings.TrimSpace(string(body))
	if r := []rune(text); len(r) > maxErrorBody {
		text = string(r[:maxErrorBody])
	}
	return &StatusError{Provider: provider, StatusCode: resp.StatusCode, Body: text}
}

func isSuccess(code int) bool {
	return code >= 200 && code < 300
}

// HTTPFetcher downloads and probes plain HTTP(S) URLs.
// It is the generic dereferencer for pointers whose backend is not configured.
type HTTPFetcher struct {
	name   string
	client *http.Client
}

// NewHTTPFetcher creates a fetcher. A nil client gets DefaultHTTPTimeout.
func NewHTTPFetcher(name string, client *http.Client) *HTTPFetcher {
	if client == nil {
		client = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &HTTPFetcher{name: name, client: client}
}

func (f *HTTPFetcher) Download(ctx context.Context, url string) (*refile.DownloadResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	defer resp.Body.Close()

	if !isSuccess(resp.StatusCode) {
		return nil, newStatusError(f.name, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s: reading body: %w", f.name, err)
	}

	ct := resp.Header.Get("Content-Type")
	if ct == "" {
		ct = refile.DefaultContentType
	}
	return &refile.DownloadResult{Data: data, ContentType: ct}, nil
}

func (f *HTTPFetcher) Verify(ctx context.Context, url string) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return isSuccess(resp.StatusCode)
}

// do sends req and decodes nothing; non-2xx answers become a StatusError.
// The caller closes the returned body.
func (f *HTTPFetcher) do(req *http.Request) (*http.Response, error) {
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.name, err)
	}
	if !isSuccess(resp.StatusCode) {
		defer resp.Body.Close()
		return nil, newStatusError(f.name, resp)
	}
	return resp, nil
}

type formField struct {
	name, value string
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

// multipartBody builds a form with plain fields followed by one file part.
func multipartBody(fields []formField, fileField, filename, mime string, data []byte) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	for _, f := range fields {
		if err := mw.WriteField(f.name, f.value); err != nil {
			return nil, "", fmt.Errorf("writing form field %s: %w", f.name, err)
		}
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`,
		quoteEscaper.Replace(fileField), quoteEscaper.Replace(filename)))
	if mime == "" {
		mime = refile.DefaultContentType
	}
	h.Set("Content-Type", mime)

	part, err := mw.CreatePart(h)
	if err != nil {
		return nil, "", fmt.Errorf("creating file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("writing file part: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, "", fmt.Errorf("closing form: %w", err)
	}
	return body, mw.FormDataContentType(), nil
}

// underBase reports whether url lives under base, returning the remainder.
func underBase(url, base string) (string, bool) {
	if base == "" {
		return "", false
	}
	base = strings.TrimSuffix(base, "/") + "/"
	rest, ok := strings.CutPrefix(url, base)
	return rest, ok && rest != ""
}

var _ refile.Fetcher = (*HTTPFetcher)(nil)
