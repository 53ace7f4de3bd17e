package refile

import "context"

// DefaultContentType is used when a remote omits a content type.
const DefaultContentType = "application/octet-stream"

// Backend is a remote (or local) storage provider that can hold uploaded objects.
// Implementations live in the vault package.
type Backend interface {
	// Name identifies the backend in pointers, logs and aggregate errors.
	Name() string

	// MaxSize is the largest upload the backend accepts, in bytes. Zero means unlimited.
	MaxSize() int64

	// Upload stores data and returns where it can be fetched from.
	// A result is only returned when both URL and ID are known.
	Upload(ctx context.Context, data []byte, filename, mime string) (*UploadResult, error)

	// Fetcher downloads and probes previously uploaded objects by URL.
	Fetcher
}

// Fetcher reads objects back by URL.
type Fetcher interface {
	// Download fetches the full body behind url.
	Download(ctx context.Context, url string) (*DownloadResult, error)

	// Verify probes whether url exists without transferring the body.
	// Transport failures are reported as false, never as an error.
	Verify(ctx context.Context, url string) bool
}

// UploadResult is the location of an uploaded object.
type UploadResult struct {
	URL string
	ID  string
}

// DownloadResult is a fully read remote object.
type DownloadResult struct {
	Data        []byte
	ContentType string
}
