package vault

import (
	"context"
	"strings"
	"testing"

	"refile-go/internal/testutil"
)

func TestMemoryBackend_UploadAndDownload(t *testing.T) {
	b := NewMemoryBackend("mem", 0)
	ctx := context.Background()

	tests := []struct {
		name    string
		content string
		mime    string
		wantCT  string
	}{
		{name: "text", content: "hello world", mime: "text/plain", wantCT: "text/plain"},
		{name: "empty", content: "", mime: "", wantCT: "application/octet-stream"},
		{name: "large", content: strings.Repeat("x", 10000), mime: "application/pdf", wantCT: "application/pdf"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := b.Upload(ctx, []byte(tt.content), tt.name+".bin", tt.mime)
			if err != nil {
				t.Fatalf("Upload() error: %v", err)
			}
			digest := testutil.SHA256Hex([]byte(tt.content))
			if res.ID != digest || res.URL != "memory://mem/"+digest {
				t.Errorf("Upload() = %+v", res)
			}

			got, err := b.Download(ctx, res.URL)
			if err != nil {
				t.Fatalf("Download() error: %v", err)
			}
			if string(got.Data) != tt.content {
				t.Errorf("Download() data = %q, want %q", got.Data, tt.content)
			}
			if got.ContentType != tt.wantCT {
				t.Errorf("ContentType = %q, want %q", got.ContentType, tt.wantCT)
			}
			if !b.Verify(ctx, res.URL) {
				t.Error("Verify() = false after upload")
			}
		})
	}
}

func TestMemoryBackend_UploadIdempotent(t *testing.T) {
	b := NewMemoryBackend("mem", 0)
	ctx := context.Background()

	first, err := b.Upload(ctx, []byte("same"), "a.txt", "text/plain")
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	second, err := b.Upload(ctx, []byte("same"), "b.txt", "text/plain")
	if err != nil {
		t.Fatalf("Upload() error: %v", err)
	}
	if first.URL != second.URL {
		t.Errorf("URLs differ: %s != %s", first.URL, second.URL)
	}
	if b.Len() != 1 {
		t.Errorf("Len() = %d, want 1", b.Len())
	}
}

func TestMemoryBackend_Missing(t *testing.T) {
	b := NewMemoryBackend("mem", 0)
	if _, err := b.Download(context.Background(), "memory://mem/nope"); err == nil {
		t.Error("Download() of missing object should fail")
	}
	if b.Verify(context.Background(), "memory://mem/nope") {
		t.Error("Verify() of missing object = true")
	}
}

func TestMemoryBackend_CancelledContext(t *testing.T) {
	b := NewMemoryBackend("mem", 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := b.Upload(ctx, []byte("x"), "x", ""); err == nil {
		t.Error("Upload() with cancelled context should fail")
	}
}
