package vault

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"refile-go/internal/config"
	"refile-go/internal/refile"
)

// Deps carries what backends need beyond their own config section.
type Deps struct {
	// Store backs the "local" backend.
	Store refile.ObjectStore
	// BaseURL is this node's public root, used by the "local" backend.
	BaseURL string
	// HTTPClient is shared by the HTTP based backends. Nil gets a default client.
	HTTPClient *http.Client
	// Timeout bounds the webdav and ipfs clients, which manage their own transport.
	Timeout time.Duration
}

// NewBackendFromConfig creates a Backend implementation based on the vault config type.
func NewBackendFromConfig(ctx context.Context, cfg config.VaultConfig, deps Deps) (refile.Backend, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryBackend(cfg.Name, cfg.MaxSize), nil
	case "local":
		if deps.Store == nil {
			return nil, fmt.Errorf("local vault %q requires a local store", cfg.Name)
		}
		return NewLocalBackend(cfg.Name, deps.Store, deps.BaseURL, cfg.MaxSize, deps.HTTPClient), nil
	case "selfhosted":
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("selfhosted vault %q requires endpoint to be set", cfg.Name)
		}
		return NewSelfHostedBackend(cfg.Name, cfg.Endpoint, cfg.APIKey, cfg.MaxSize, deps.HTTPClient), nil
	case "catbox":
		return NewCatboxBackend(cfg.Name, cfg.Endpoint, cfg.UserHash, cfg.MaxSize, deps.HTTPClient), nil
	case "pixeldrain":
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("pixeldrain vault %q requires api_key to be set", cfg.Name)
		}
		return NewPixeldrainBackend(cfg.Name, cfg.Endpoint, cfg.APIKey, cfg.MaxSize, deps.HTTPClient), nil
	case "s3":
		b, err := NewS3Backend(ctx, cfg.Name, S3Options{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
			MaxSize:   cfg.MaxSize,
		}, deps.HTTPClient)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "webdav":
		b, err := NewWebDAVBackend(cfg.Name, WebDAVOptions{
			URL:       cfg.WebDAVURL,
			User:      cfg.WebDAVUser,
			Password:  cfg.WebDAVPassword,
			Root:      cfg.WebDAVRoot,
			PublicURL: cfg.WebDAVPublicURL,
			MaxSize:   cfg.MaxSize,
			Timeout:   deps.Timeout,
		}, deps.HTTPClient)
		if err != nil {
			return nil, err
		}
		return b, nil
	case "ipfs":
		if cfg.IPFSAPI == "" {
			return nil, fmt.Errorf("ipfs vault %q requires ipfs_api to be set", cfg.Name)
		}
		return NewIPFSBackend(cfg.Name, cfg.IPFSAPI, cfg.IPFSGateway, cfg.MaxSize, deps.Timeout, deps.HTTPClient), nil
	default:
		return nil, fmt.Errorf("unknown vault type: %s", cfg.Type)
	}
}

// NewBackendsFromConfig builds every configured vault, preserving order.
func NewBackendsFromConfig(ctx context.Context, cfgs []config.VaultConfig, deps Deps) ([]refile.Backend, error) {
	backends := make([]refile.Backend, 0, len(cfgs))
	for _, cfg := range cfgs {
		b, err := NewBackendFromConfig(ctx, cfg, deps)
		if err != nil {
			return nil, fmt.Errorf("creating vault %q: %w", cfg.Name, err)
		}
		backends = append(backends, b)
	}
	return backends, nil
}

// PublicBase returns the URL root a backend serves objects from, if it has a
// configurable one. Hosts of these roots are added to the trust allow-list.
func PublicBase(b refile.Backend) string {
	switch v := b.(type) {
	case *S3Backend:
		return v.PublicURL()
	case *WebDAVBackend:
		return v.PublicURL()
	case *IPFSBackend:
		return v.Gateway()
	case *SelfHostedBackend:
		return v.endpoint
	case *PixeldrainBackend:
		return v.endpoint
	default:
		return ""
	}
}
