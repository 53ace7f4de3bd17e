package refile

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ReplicateMode controls whether uploads received by the relay are also pushed
// through the fallback chain.
type ReplicateMode string

const (
	ReplicateOff        ReplicateMode = "off"
	ReplicateBestEffort ReplicateMode = "best-effort"
	ReplicateRequired   ReplicateMode = "required"
)

// ParseReplicateMode maps a config string to a ReplicateMode. Empty means off.
func ParseReplicateMode(s string) (ReplicateMode, error) {
	switch ReplicateMode(s) {
	case "", ReplicateOff:
		return ReplicateOff, nil
	case ReplicateBestEffort, ReplicateRequired:
		return ReplicateMode(s), nil
	default:
		return "", fmt.Errorf("unknown replicate mode: %s", s)
	}
}

// ServiceConfig holds the non-dependency settings of a RelayService.
type ServiceConfig struct {
	// BaseURL is the public root under which stored objects are served.
	BaseURL   string
	Replicate ReplicateMode
}

// UploadRequest is an already-extracted upload handed over by the transport.
// TempPath is owned by the caller, who must remove it if Upload fails before storing.
type UploadRequest struct {
	TempPath string
	Filename string
	Mime     string
}

// UploadResponse is the result returned to upload clients.
type UploadResponse struct {
	URL     string       `json:"url"`
	ID      string       `json:"id"`
	Hash    string       `json:"hash"`
	Size    int64        `json:"size"`
	Mime    string       `json:"mime"`
	Replica *ChainResult `json:"replica,omitempty"`
	// Deduplicated is true when the bytes were already stored.
	Deduplicated bool `json:"-"`
}

// RelayService is the orchestration layer that coordinates the local store, the
// fallback chain and the pointer format for the transport and the CLI.
type RelayService struct {
	store   ObjectStore
	chain   *FallbackChain
	fetcher Fetcher
	fsmgr   FilesystemManager
	trust   TrustPolicy
	mimes   MimePolicy
	logger  Logger
	clock   Clock
	cfg     ServiceConfig
}

// NewRelayService creates a new RelayService with the provided dependencies.
// fetcher is used to dereference pointers whose backend is not part of the chain.
func NewRelayService(store ObjectStore, chain *FallbackChain, fetcher Fetcher, fsmgr FilesystemManager, trust TrustPolicy, mimes MimePolicy, logger Logger, clock Clock, cfg ServiceConfig) *RelayService {
	if cfg.Replicate == "" {
		cfg.Replicate = ReplicateOff
	}
	return &RelayService{
		store:   store,
		chain:   chain,
		fetcher: fetcher,
		fsmgr:   fsmgr,
		trust:   trust,
		mimes:   mimes,
		logger:  logger,
		clock:   clock,
		cfg:     cfg,
	}
}

// Upload stores an uploaded file locally and, depending on the replicate mode,
// pushes a copy through the fallback chain.
func (s *RelayService) Upload(ctx context.Context, req *UploadRequest) (*UploadResponse, error) {
	if req.Filename == "" {
		return nil, fmt.Errorf("%w: missing filename", ErrInvalidInput)
	}

	mime, err := s.mimes.Detect(req.TempPath, req.Mime)
	if err != nil {
		return nil, fmt.Errorf("detecting mime type: %w", err)
	}
	if !s.mimes.Allowed(mime) {
		return nil, fmt.Errorf("%w: %s", ErrMimeNotAllowed, mime)
	}

	res, err := s.store.Store(req.TempPath, req.Filename, mime)
	if err != nil {
		return nil, fmt.Errorf("storing upload: %w", err)
	}

	s.logger.Info("object stored",
		"id", res.ShortID,
		"size", res.Size,
		"mime", mime,
		"deduplicated", res.Deduplicated,
	)

	resp := &UploadResponse{
		URL:  s.ObjectURL(res.ShortID, req.Filename),
		ID:   res.ShortID,
		Hash: FormatHash(res.Digest),
		Size: res.Size,
		Mime: mime,

		Deduplicated: res.Deduplicated,
	}

	if s.cfg.Replicate == ReplicateOff || s.chain == nil || len(s.chain.Backends()) == 0 {
		return resp, nil
	}

	replica, err := s.replicate(ctx, res.ShortID, req.Filename, mime)
	if err != nil {
		if s.cfg.Replicate == ReplicateRequired {
			return nil, fmt.Errorf("replicating upload: %w", err)
		}
		s.logger.Warn("replication failed", "id", res.ShortID, "error", err)
		return resp, nil
	}
	resp.Replica = replica
	return resp, nil
}

// replicate reads a stored object back and uploads it through the chain.
func (s *RelayService) replicate(ctx context.Context, shortID, filename, mime string) (*ChainResult, error) {
	resolved, err := s.store.Resolve(shortID)
	if err != nil {
		return nil, fmt.Errorf("resolving stored object: %w", err)
	}
	if resolved == nil {
		return nil, fmt.Errorf("stored object %s vanished before replication", shortID)
	}

	data, err := os.ReadFile(resolved.Path)
	if err != nil {
		return nil, fmt.Errorf("reading stored object: %w", err)
	}

	return s.chain.Upload(ctx, data, filename, mime)
}

// Resolve looks up a locally stored object by short id.
// Malformed or unknown ids resolve to nil.
func (s *RelayService) Resolve(shortID string) (*Resolved, error) {
	if !IsShortID(shortID) {
		return nil, nil
	}
	return s.store.Resolve(shortID)
}

// ObjectURL builds the public URL of a stored object.
func (s *RelayService) ObjectURL(shortID, filename string) string {
	return strings.TrimSuffix(s.cfg.BaseURL, "/") + "/f/" + shortID + "/" + EscapeComponent(filename)
}

// IsClientError reports whether err was caused by the caller rather than the system.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidInput) ||
		errors.Is(err, ErrMimeNotAllowed) ||
		errors.Is(err, ErrShortIDCollision) ||
		errors.Is(err, ErrInvalidPointer) ||
		errors.Is(err, ErrUntrustedURL)
}
