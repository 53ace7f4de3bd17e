package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"go.uber.org/multierr"

	"refile-go/internal/config"
	"refile-go/internal/database"
	"refile-go/internal/fs"
	"refile-go/internal/httpapi"
	"refile-go/internal/metrics"
	"refile-go/internal/policy"
	"refile-go/internal/refile"
	"refile-go/internal/store"
	"refile-go/internal/vault"
)

// RefileApp is the application layer between the CLI and RelayService.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw string paths, and releases resources on Close.
type RefileApp struct {
	cfg     *config.Config
	metas   refile.MetaArea
	store   *store.LocalStore
	chain   *refile.FallbackChain
	fsmgr   *fs.OSFilesystemManager
	trust   *policy.HostTrustPolicy
	metrics *metrics.Metrics
	service *refile.RelayService
	op      *Operation
	clock   refile.Clock
	log     *slog.Logger
	logFile io.Closer
}

// NewRefileApp creates a fully wired RefileApp from the given config.
// operation names the CLI command being run (e.g. "push", "serve").
// The caller must call Close when done.
func NewRefileApp(ctx context.Context, cfg *config.Config, operation string) (*RefileApp, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	replicate, err := refile.ParseReplicateMode(cfg.Chain.Replicate)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	clock := refile.RealClock{}
	op := NewOperation(operation, refile.UUIDGenerator{}, clock)

	logger, logFile, err := newLogger(cfg.LogDir, cfg.Log, op.ID)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	adapter := &slogAdapter{l: logger}

	metas, err := database.NewMetaAreaFromConfig(cfg.Database, cfg.Store.DataDir)
	if err != nil {
		logFile.Close()
		return nil, fmt.Errorf("opening metadata area: %w", err)
	}

	st, err := store.New(cfg.Store.DataDir, metas, adapter, clock)
	if err != nil {
		err = multierr.Combine(err, metas.Close(), logFile.Close())
		return nil, fmt.Errorf("opening local store: %w", err)
	}

	attemptTimeout := time.Duration(cfg.Chain.AttemptTimeoutSec) * time.Second
	if attemptTimeout <= 0 {
		attemptTimeout = config.DefaultAttemptTimeoutSec * time.Second
	}
	httpClient := &http.Client{Timeout: vault.DefaultHTTPTimeout}

	backends, err := vault.NewBackendsFromConfig(ctx, cfg.Vaults, vault.Deps{
		Store:      st,
		BaseURL:    cfg.Server.BaseURL,
		HTTPClient: httpClient,
		Timeout:    attemptTimeout,
	})
	if err != nil {
		err = multierr.Combine(err, metas.Close(), logFile.Close())
		return nil, fmt.Errorf("creating backends: %w", err)
	}

	m := metrics.New()
	chain := refile.NewFallbackChain(backends, attemptTimeout, adapter)
	chain.SetObserver(m)

	trust := policy.NewHostTrustPolicy(cfg.Trust.Hosts, trustedExtras(cfg.Server.BaseURL, backends)...)
	fsmgr := fs.NewOSFilesystemManager(cfg.Filesystem.Ignore)

	svc := refile.NewRelayService(
		st,
		chain,
		vault.NewHTTPFetcher("http", httpClient),
		fsmgr,
		trust,
		policy.NewPrefixMimePolicy(cfg.Trust.AllowedMimePrefixes),
		adapter,
		clock,
		refile.ServiceConfig{BaseURL: cfg.Server.BaseURL, Replicate: replicate},
	)

	logger.Debug("app ready", "operation", operation, "backends", len(backends), "objects", st.Len())

	return &RefileApp{
		cfg:     cfg,
		metas:   metas,
		store:   st,
		chain:   chain,
		fsmgr:   fsmgr,
		trust:   trust,
		metrics: m,
		service: svc,
		op:      op,
		clock:   clock,
		log:     logger,
		logFile: logFile,
	}, nil
}

// trustedExtras returns the hosts of this node's base URL and of every backend's
// public root, so pointers written by this node always pass the trust policy.
func trustedExtras(baseURL string, backends []refile.Backend) []string {
	var hosts []string
	if h := policy.HostOf(baseURL); h != "" {
		hosts = append(hosts, h)
	}
	for _, b := range backends {
		if h := policy.HostOf(vault.PublicBase(b)); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Push resolves the given path and uploads the file (or the files of a directory),
// replacing each with a pointer when opts.Remove is set.
func (a *RefileApp) Push(ctx context.Context, rawPath string, opts refile.PushOptions) ([]*refile.PushResult, error) {
	p, err := a.fsmgr.Resolve(rawPath)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("resolving path: %w", err))
	}
	results, err := a.service.Push(ctx, p, opts)
	return results, a.op.Record(err)
}

// Pull restores the original file described by a pointer and returns its path.
// The pointer path may be relative; resolution uses filepath.Abs only.
func (a *RefileApp) Pull(ctx context.Context, rawPath string, opts refile.PullOptions) (string, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return "", a.op.Record(fmt.Errorf("resolving path: %w", err))
	}
	out, err := a.service.Pull(ctx, absPath, opts)
	return out, a.op.Record(err)
}

// Verify reports whether a pointer's URL is trusted and still reachable.
func (a *RefileApp) Verify(ctx context.Context, rawPath string) (*refile.VerifyResult, error) {
	absPath, err := filepath.Abs(rawPath)
	if err != nil {
		return nil, a.op.Record(fmt.Errorf("resolving path: %w", err))
	}
	res, err := a.service.Verify(ctx, absPath)
	return res, a.op.Record(err)
}

// Info looks up a locally stored object by short id. Returns nil when absent.
func (a *RefileApp) Info(shortID string) (*refile.Resolved, error) {
	res, err := a.service.Resolve(shortID)
	return res, a.op.Record(err)
}

// SchemaStatus checks the metadata schema version. checked is false for
// metadata areas without a versioned schema.
func (a *RefileApp) SchemaStatus() (checked bool, err error) {
	sa, ok := a.metas.(interface{ SchemaStatus() error })
	if !ok {
		return false, nil
	}
	return true, sa.SchemaStatus()
}

// ObjectURL returns the public URL of a locally stored object.
func (a *RefileApp) ObjectURL(shortID, filename string) string {
	return a.service.ObjectURL(shortID, filename)
}

// Backends returns the configured backends in chain order.
func (a *RefileApp) Backends() []refile.Backend {
	return a.chain.Backends()
}

// TrustedHosts returns the effective trust allow-list.
func (a *RefileApp) TrustedHosts() []string {
	return a.trust.Hosts()
}

// Serve runs the HTTP transport until ctx is cancelled.
func (a *RefileApp) Serve(ctx context.Context, version string) error {
	listen := a.cfg.Server.ListenAddr
	if listen == "" {
		listen = config.DefaultListenAddr
	}
	srv := httpapi.New(httpapi.Config{
		ListenAddr:      listen,
		APIKey:          a.cfg.Server.APIKey,
		MaxUploadSize:   a.cfg.Server.MaxUploadSize,
		ShutdownTimeout: time.Duration(a.cfg.Server.ShutdownTimeoutSec) * time.Second,
		Version:         version,
	}, a.service, a.store.Scratch(), a.metrics, a.log)

	a.log.Info("serving", "listen", listen, "baseURL", a.cfg.Server.BaseURL, "objects", a.store.Len())
	return a.op.Record(srv.Run(ctx))
}

// Close finishes the operation and releases the metadata area and the log file.
func (a *RefileApp) Close() error {
	a.log.Info("operation finished",
		"operation", a.op.Name,
		"status", a.op.Status,
		"duration", a.clock.Now().Sub(a.op.StartedAt).Round(time.Millisecond),
	)

	var err error
	if cerr := a.metas.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("closing metadata area: %w", cerr))
	}
	if cerr := a.logFile.Close(); cerr != nil {
		err = multierr.Append(err, fmt.Errorf("closing log file: %w", cerr))
	}
	return err
}
