package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

const (
	// DefaultListenAddr is where `refile serve` listens when nothing is configured.
	DefaultListenAddr = ":8787"

	// DefaultMaxUploadSize bounds a single upload body (500 MB).
	DefaultMaxUploadSize = 500 * 1024 * 1024

	// DefaultAttemptTimeoutSec bounds a single backend attempt in the fallback chain.
	DefaultAttemptTimeoutSec = 60

	// DefaultShutdownTimeoutSec bounds graceful HTTP shutdown.
	DefaultShutdownTimeoutSec = 10
)

// Config represents the main configuration for refile.
type Config struct {
	BaseDir    string           `toml:"base_dir"`
	LogDir     string           `toml:"log_dir"`
	Server     ServerConfig     `toml:"server"`
	Store      StoreConfig      `toml:"store"`
	Database   DatabaseConfig   `toml:"database"`
	Vaults     []VaultConfig    `toml:"vaults"`
	Chain      ChainConfig      `toml:"chain"`
	Trust      TrustConfig      `toml:"trust"`
	Filesystem FilesystemConfig `toml:"filesystem"`
	Log        LogConfig        `toml:"log"`
}

// ServerConfig holds the HTTP transport settings.
type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
	// BaseURL is the public root used to build object URLs.
	BaseURL            string `toml:"base_url"`
	APIKey             string `toml:"api_key,omitempty"`
	MaxUploadSize      int64  `toml:"max_upload_size"`
	ShutdownTimeoutSec int    `toml:"shutdown_timeout_sec"`
}

// StoreConfig holds the local object store settings.
type StoreConfig struct {
	DataDir string `toml:"data_dir"`
}

// DatabaseConfig represents configuration for the metadata area.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
type DatabaseConfig struct {
	Type string `toml:"type"`           // "filesystem" (default), "sqlite", "postgres" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite; defaults to <data_dir>/meta.db
	DSN  string `toml:"dsn,omitempty"`  // only used for type=postgres
}

// VaultConfig represents configuration for one remote backend.
// This uses a tagged union pattern - the Type field determines which other fields are relevant.
// The order of [[vaults]] entries is the fallback chain priority.
type VaultConfig struct {
	Type string `toml:"type"` // "selfhosted", "catbox", "pixeldrain", "s3", "webdav", "ipfs", "local" or "memory"
	Name string `toml:"name"`
	// MaxSize overrides the backend's default size ceiling. Zero keeps the default.
	MaxSize int64 `toml:"max_size,omitempty"`

	// HTTP backends (selfhosted, catbox, pixeldrain)
	Endpoint string `toml:"endpoint,omitempty"`
	APIKey   string `toml:"api_key,omitempty"`
	UserHash string `toml:"user_hash,omitempty"` // catbox only

	// S3-specific fields (only used when Type == "s3")
	S3Bucket    string `toml:"s3_bucket,omitempty"`
	S3Prefix    string `toml:"s3_prefix,omitempty"`
	S3Region    string `toml:"s3_region,omitempty"`
	S3Endpoint  string `toml:"s3_endpoint,omitempty"`
	S3AccessKey string `toml:"s3_access_key,omitempty"`
	S3SecretKey string `toml:"s3_secret_key,omitempty"`
	S3PublicURL string `toml:"s3_public_url,omitempty"`

	// WebDAV-specific fields (only used when Type == "webdav")
	WebDAVURL       string `toml:"webdav_url,omitempty"`
	WebDAVUser      string `toml:"webdav_user,omitempty"`
	WebDAVPassword  string `toml:"webdav_password,omitempty"`
	WebDAVRoot      string `toml:"webdav_root,omitempty"`
	WebDAVPublicURL string `toml:"webdav_public_url,omitempty"`

	// IPFS-specific fields (only used when Type == "ipfs")
	IPFSAPI     string `toml:"ipfs_api,omitempty"`
	IPFSGateway string `toml:"ipfs_gateway,omitempty"`
}

// ChainConfig controls the fallback chain and server-side replication.
type ChainConfig struct {
	AttemptTimeoutSec int    `toml:"attempt_timeout_sec"`
	Replicate         string `toml:"replicate"` // "off", "best-effort" or "required"
}

// TrustConfig holds the remote host allow-list and the upload mime allow-list.
type TrustConfig struct {
	// Hosts replaces the built-in allow-list when non-empty.
	Hosts               []string `toml:"hosts,omitempty"`
	AllowedMimePrefixes []string `toml:"allowed_mime_prefixes,omitempty"`
}

// FilesystemConfig holds filesystem-related settings.
type FilesystemConfig struct {
	Ignore []string `toml:"ignore"`
}

// LogConfig controls the log file sink.
type LogConfig struct {
	Level      string `toml:"level"` // "debug", "info", "warn" or "error"
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
}

// NewConfig creates a new Config rooted at baseDir with a single local backend.
func NewConfig(baseDir string) *Config {
	return &Config{
		BaseDir: baseDir,
		LogDir:  filepath.Join(baseDir, "log"),
		Server: ServerConfig{
			ListenAddr:         DefaultListenAddr,
			BaseURL:            "http://localhost" + DefaultListenAddr,
			MaxUploadSize:      DefaultMaxUploadSize,
			ShutdownTimeoutSec: DefaultShutdownTimeoutSec,
		},
		Store:    StoreConfig{DataDir: filepath.Join(baseDir, "data")},
		Database: DatabaseConfig{Type: "filesystem"},
		Vaults:   []VaultConfig{{Type: "local", Name: "local"}},
		Chain: ChainConfig{
			AttemptTimeoutSec: DefaultAttemptTimeoutSec,
			Replicate:         "off",
		},
		Log: LogConfig{Level: "info", MaxSizeMB: 50, MaxBackups: 5},
	}
}

// ApplyEnv overrides secrets and addresses from the environment.
// getenv is os.Getenv in production.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("REFILE_API_KEY"); v != "" {
		c.Server.APIKey = v
	}
	if v := getenv("REFILE_BASE_URL"); v != "" {
		c.Server.BaseURL = v
	}
	if v := getenv("REFILE_LISTEN_ADDR"); v != "" {
		c.Server.ListenAddr = v
	}
}

// Validate checks cross-field constraints that decoding cannot express.
func (c *Config) Validate() error {
	if c.Store.DataDir == "" {
		return fmt.Errorf("store.data_dir is required")
	}
	if c.Server.MaxUploadSize < 0 {
		return fmt.Errorf("server.max_upload_size must not be negative")
	}
	seen := make(map[string]bool, len(c.Vaults))
	for i, v := range c.Vaults {
		if v.Name == "" {
			return fmt.Errorf("vaults[%d]: name is required", i)
		}
		if seen[v.Name] {
			return fmt.Errorf("vaults[%d]: duplicate name %q", i, v.Name)
		}
		seen[v.Name] = true
	}
	return nil
}

// Manager handles reading and writing configuration.
type Manager struct{}

// Read decodes a Config from the provided reader.
func (m *Manager) Read(r io.Reader) (*Config, error) {
	var cfg Config
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return &cfg, nil
}

// Write encodes a Config to the provided writer.
func (m *Manager) Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return nil
}

// ReadFromFile reads a Config from the specified file path.
func ReadFromFile(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	cfg, err := m.Read(f)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// writeToFile writes a Config to a new owner-only file at path.
func writeToFile(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	m := &Manager{}
	if err := m.Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}

// Init initializes a new config file at the specified path with the provided Config.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := writeToFile(path, cfg); err != nil {
		return fmt.Errorf("initializing config: %w", err)
	}
	return nil
}
