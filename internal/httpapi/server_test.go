package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"os"
	"strings"
	"testing"
	"time"

	"refile-go/internal/fs"
	"refile-go/internal/metrics"
	"refile-go/internal/policy"
	"refile-go/internal/refile"
	"refile-go/internal/store"
	"refile-go/internal/testutil"
)

type testServer struct {
	*Server
	store *store.LocalStore
	http  *httptest.Server
}

type serverOptions struct {
	apiKey        string
	maxUploadSize int64
	mimes         []string
}

func newTestServer(t *testing.T, opts serverOptions) *testServer {
	t.Helper()

	st, err := store.New(t.TempDir(), testutil.NewTestMetaArea(), nil, testutil.FixedClock())
	if err != nil {
		t.Fatalf("store.New() error = %v", err)
	}
	svc := refile.NewRelayService(
		st,
		refile.NewFallbackChain(nil, time.Second, nil),
		testutil.NewFakeBackend("fetcher", 0),
		fs.NewOSFilesystemManager(nil),
		policy.NewHostTrustPolicy(nil),
		policy.NewPrefixMimePolicy(opts.mimes),
		refile.NewNopLogger(),
		testutil.FixedClock(),
		refile.ServiceConfig{BaseURL: "http://localhost:8787"},
	)

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	srv := New(Config{
		APIKey:        opts.apiKey,
		MaxUploadSize: opts.maxUploadSize,
		Version:       "test",
	}, svc, st.Scratch(), metrics.New(), log)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	return &testServer{Server: srv, store: st, http: hs}
}

func multipartRequest(t *testing.T, url, field, filename, mime string, content []byte) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	mw.WriteField("note", "ignored")
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, field, filename))
	if mime != "" {
		h.Set("Content-Type", mime)
	}
	part, err := mw.CreatePart(h)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(content)
	mw.Close()

	req, err := http.NewRequest(http.MethodPost, url, body)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func do(t *testing.T, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return resp, body
}

func TestUploadAndRetrieve(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	content := []byte("0123456789")

	resp, body := do(t, multipartRequest(t, ts.http.URL+"/upload", "file", "a.txt", "text/plain", content))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d, body %s", resp.StatusCode, body)
	}

	var up refile.UploadResponse
	if err := json.Unmarshal(body, &up); err != nil {
		t.Fatalf("decoding upload response: %v", err)
	}
	digest := testutil.SHA256Hex(content)
	if up.Hash != "sha256:"+digest || up.ID != digest[:12] || up.Size != 10 || up.Mime != "text/plain" {
		t.Errorf("upload response = %+v", up)
	}
	if want := "http://localhost:8787/f/" + up.ID + "/a.txt"; up.URL != want {
		t.Errorf("url = %q, want %q", up.URL, want)
	}

	get, _ := http.NewRequest(http.MethodGet, ts.http.URL+"/f/"+up.ID+"/a.txt", nil)
	resp, body = do(t, get)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("retrieve status = %d", resp.StatusCode)
	}
	if !bytes.Equal(body, content) {
		t.Errorf("retrieved %q, want %q", body, content)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type = %q, want text/plain", ct)
	}
	if cl := resp.Header.Get("Content-Length"); cl != "10" {
		t.Errorf("Content-Length = %q, want 10", cl)
	}
	if cd := resp.Header.Get("Content-Disposition"); cd != `inline; filename="a.txt"` {
		t.Errorf("Content-Disposition = %q", cd)
	}
	if origin := resp.Header.Get("Access-Control-Allow-Origin"); origin != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want *", origin)
	}

	head, _ := http.NewRequest(http.MethodHead, ts.http.URL+"/f/"+up.ID+"/anything.bin", nil)
	resp, body = do(t, head)
	if resp.StatusCode != http.StatusOK || len(body) != 0 {
		t.Errorf("HEAD = %d with %d body bytes", resp.StatusCode, len(body))
	}
	if resp.ContentLength != 10 {
		t.Errorf("HEAD Content-Length = %d, want 10", resp.ContentLength)
	}

	meta, _ := http.NewRequest(http.MethodGet, ts.http.URL+"/meta/"+up.ID, nil)
	resp, body = do(t, meta)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("meta status = %d", resp.StatusCode)
	}
	var fm refile.FileMeta
	if err := json.Unmarshal(body, &fm); err != nil {
		t.Fatalf("decoding meta: %v", err)
	}
	if fm.Digest != digest || fm.Filename != "a.txt" {
		t.Errorf("meta = %+v", fm)
	}
}

func TestUploadDeduplicates(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	var ids []string
	for _, name := range []string{"a.txt", "b.txt"} {
		resp, body := do(t, multipartRequest(t, ts.http.URL+"/upload", "file", name, "text/plain", []byte("same bytes")))
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("upload %s status = %d", name, resp.StatusCode)
		}
		var up refile.UploadResponse
		json.Unmarshal(body, &up)
		ids = append(ids, up.ID)
	}
	if ids[0] != ids[1] {
		t.Errorf("ids differ: %v", ids)
	}
	if ts.store.Len() != 1 {
		t.Errorf("store Len() = %d, want 1", ts.store.Len())
	}
	if n := ts.store.Scratch().InFlight(); n != 0 {
		t.Errorf("scratch in flight = %d, want 0", n)
	}
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name       string
		opts       serverOptions
		field      string
		filename   string
		mime       string
		content    string
		auth       string
		wantStatus int
		wantError  string
	}{
		{
			name:       "missing file field",
			field:      "upload",
			filename:   "a.txt",
			content:    "x",
			wantStatus: http.StatusBadRequest,
			wantError:  `Missing "file" field`,
		},
		{
			name:       "missing filename",
			field:      "file",
			filename:   "",
			mime:       "text/plain",
			content:    "x",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "too large",
			opts:       serverOptions{maxUploadSize: 4},
			field:      "file",
			filename:   "a.txt",
			content:    "0123456789",
			wantStatus: http.StatusRequestEntityTooLarge,
		},
		{
			name:       "mime not allowed",
			opts:       serverOptions{mimes: []string{"image/"}},
			field:      "file",
			filename:   "a.txt",
			mime:       "text/plain",
			content:    "hello",
			wantStatus: http.StatusUnsupportedMediaType,
		},
		{
			name:       "missing token",
			opts:       serverOptions{apiKey: "secret"},
			field:      "file",
			filename:   "a.txt",
			content:    "x",
			wantStatus: http.StatusUnauthorized,
			wantError:  "Unauthorized",
		},
		{
			name:       "wrong token",
			opts:       serverOptions{apiKey: "secret"},
			field:      "file",
			filename:   "a.txt",
			content:    "x",
			auth:       "Bearer nope",
			wantStatus: http.StatusUnauthorized,
			wantError:  "Unauthorized",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, tt.opts)
			req := multipartRequest(t, ts.http.URL+"/upload", tt.field, tt.filename, tt.mime, []byte(tt.content))
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			resp, body := do(t, req)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", resp.StatusCode, tt.wantStatus, body)
			}
			var e errorResponse
			if err := json.Unmarshal(body, &e); err != nil || e.Error == "" {
				t.Errorf("body %s is not an error response", body)
			}
			if tt.wantError != "" && e.Error != tt.wantError {
				t.Errorf("error = %q, want %q", e.Error, tt.wantError)
			}
			if ts.store.Len() != 0 {
				t.Errorf("store Len() = %d after failed upload", ts.store.Len())
			}
			entries, _ := os.ReadDir(ts.store.Scratch().Dir())
			if len(entries) != 0 {
				t.Errorf("scratch area holds %d files after failed upload", len(entries))
			}
		})
	}
}

func TestUploadWithToken(t *testing.T) {
	ts := newTestServer(t, serverOptions{apiKey: "secret"})
	req := multipartRequest(t, ts.http.URL+"/upload", "file", "a.txt", "text/plain", []byte("x"))
	req.Header.Set("Authorization", "Bearer secret")
	if resp, body := do(t, req); resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, body %s", resp.StatusCode, body)
	}
}

func TestServeMissing(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	for _, path := range []string{"/f/000000000000/x.txt", "/f/not-an-id/x.txt", "/meta/000000000000", "/nowhere"} {
		req, _ := http.NewRequest(http.MethodGet, ts.http.URL+path, nil)
		resp, body := do(t, req)
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404", path, resp.StatusCode)
		}
		if strings.TrimSpace(string(body)) != `{"error":"Not found"}` {
			t.Errorf("GET %s body = %s", path, body)
		}
	}
}

func TestServeObjectFileGone(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	resp, body := do(t, multipartRequest(t, ts.http.URL+"/upload", "file", "a.txt", "text/plain", []byte("gone soon")))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("upload status = %d", resp.StatusCode)
	}
	var up refile.UploadResponse
	json.Unmarshal(body, &up)

	res, err := ts.store.Resolve(up.ID)
	if err != nil || res == nil {
		t.Fatalf("Resolve() = %v, %v", res, err)
	}
	os.Remove(res.Path)

	req, _ := http.NewRequest(http.MethodGet, ts.http.URL+"/f/"+up.ID+"/a.txt", nil)
	if resp, _ := do(t, req); resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestHealthAndProbes(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	req, _ := http.NewRequest(http.MethodGet, ts.http.URL+"/health", nil)
	resp, body := do(t, req)
	var health map[string]string
	json.Unmarshal(body, &health)
	if resp.StatusCode != http.StatusOK || health["status"] != "ok" || health["service"] != ServiceName || health["version"] != "test" {
		t.Errorf("health = %d %v", resp.StatusCode, health)
	}

	for _, path := range []string{"/livez", "/readyz", "/metrics"} {
		req, _ := http.NewRequest(http.MethodGet, ts.http.URL+path, nil)
		if resp, _ := do(t, req); resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}

	ts.isReady.Store(false)
	req, _ = http.NewRequest(http.MethodGet, ts.http.URL+"/readyz", nil)
	if resp, _ := do(t, req); resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("readyz while draining = %d, want 503", resp.StatusCode)
	}
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, serverOptions{apiKey: "secret"})
	req, _ := http.NewRequest(http.MethodOptions, ts.http.URL+"/upload", nil)
	resp, _ := do(t, req)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("OPTIONS status = %d, want 204", resp.StatusCode)
	}
	if resp.Header.Get("Access-Control-Allow-Origin") != "*" {
		t.Error("preflight missing Access-Control-Allow-Origin")
	}
}

func TestContentDispositionEscapesFilename(t *testing.T) {
	tests := []struct {
		name    string
		escaped string
	}{
		{`my "file".txt`, "my%20%22file%22.txt"},
		{"a&b.txt", "a%26b.txt"},
		{"x+y=z@host:$1.txt", "x%2By%3Dz%40host%3A%241.txt"},
	}

	ts := newTestServer(t, serverOptions{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := do(t, multipartRequest(t, ts.http.URL+"/upload", "file", strings.ReplaceAll(tt.name, `"`, `\"`), "text/plain", []byte("content of "+tt.name)))
			if resp.StatusCode != http.StatusOK {
				t.Fatalf("upload status = %d, body %s", resp.StatusCode, body)
			}
			var up refile.UploadResponse
			json.Unmarshal(body, &up)

			if !strings.HasSuffix(up.URL, "/"+tt.escaped) {
				t.Errorf("url = %q, want suffix %q", up.URL, tt.escaped)
			}
			req, _ := http.NewRequest(http.MethodHead, ts.http.URL+"/f/"+up.ID+"/x", nil)
			resp, _ = do(t, req)
			if cd := resp.Header.Get("Content-Disposition"); cd != `inline; filename="`+tt.escaped+`"` {
				t.Errorf("Content-Disposition = %q", cd)
			}
		})
	}
}

func TestServeShutsDownOnCancel(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ts.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/livez")
	if err != nil {
		t.Fatalf("GET /livez: %v", err)
	}
	resp.Body.Close()

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() error = %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve() did not return after cancel")
	}
	if ts.Ready() {
		t.Error("Ready() = true after shutdown")
	}
}
