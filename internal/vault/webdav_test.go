package vault

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/webdav"

	"refile-go/internal/testutil"
)

func newWebDAVServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(&webdav.Handler{
		FileSystem: webdav.NewMemFS(),
		LockSystem: webdav.NewMemLS(),
	})
	t.Cleanup(srv.Close)
	return srv
}

func TestWebDAVBackend_Roundtrip(t *testing.T) {
	srv := newWebDAVServer(t)
	b, err := NewWebDAVBackend("dav", WebDAVOptions{URL: srv.URL, Root: "/objects/"}, srv.Client())
	if err != nil {
		t.Fatalf("NewWebDAVBackend() error: %v", err)
	}
	if want := srv.URL + "/objects"; b.PublicURL() != want {
		t.Errorf("PublicURL() = %q, want %q", b.PublicURL(), want)
	}

	ctx := context.Background()
	data := []byte("hello webdav, this is plain text")
	res, err := b.Upload(ctx, data, "Notes.TXT", "text/plain")
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	name := testutil.SHA256Hex(data) + ".txt"
	if res.ID != name || res.URL != srv.URL+"/objects/"+name {
		t.Errorf("Upload() = %+v", res)
	}

	got, err := b.Download(ctx, res.URL)
	if err != nil {
		t.Fatalf("Download() error: %v", err)
	}
	if string(got.Data) != string(data) {
		t.Errorf("Download() = %q, want %q", got.Data, data)
	}
	if !strings.HasPrefix(got.ContentType, "text/plain") {
		t.Errorf("ContentType = %q, want text/plain", got.ContentType)
	}

	if !b.Verify(ctx, res.URL) {
		t.Error("Verify() = false for uploaded object")
	}
	if b.Verify(ctx, srv.URL+"/objects/missing.txt") {
		t.Error("Verify() = true for missing object")
	}
}

func TestWebDAVBackend_UploadIsIdempotent(t *testing.T) {
	srv := newWebDAVServer(t)
	b, err := NewWebDAVBackend("dav", WebDAVOptions{URL: srv.URL, Root: "r"}, srv.Client())
	if err != nil {
		t.Fatalf("NewWebDAVBackend() error: %v", err)
	}

	ctx := context.Background()
	first, err := b.Upload(ctx, []byte("same"), "a.bin", "")
	if err != nil {
		t.Fatalf("first Upload() error: %v", err)
	}
	second, err := b.Upload(ctx, []byte("same"), "b.bin", "")
	if err != nil {
		t.Fatalf("second Upload() error: %v", err)
	}
	if first.URL != second.URL {
		t.Errorf("URLs differ: %s != %s", first.URL, second.URL)
	}
}

func TestWebDAVBackend_RequiresURL(t *testing.T) {
	if _, err := NewWebDAVBackend("dav", WebDAVOptions{}, nil); err == nil {
		t.Error("NewWebDAVBackend() without url should fail")
	}
}
