package database

import (
	"fmt"
	"path/filepath"

	"refile-go/internal/config"
	"refile-go/internal/refile"
)

// NewMetaAreaFromConfig creates a MetaArea implementation based on the database config type.
// dataDir is the store's data directory, used for the default locations.
func NewMetaAreaFromConfig(cfg config.DatabaseConfig, dataDir string) (refile.MetaArea, error) {
	switch cfg.Type {
	case "", "filesystem":
		if dataDir == "" {
			return nil, fmt.Errorf("data_dir required for filesystem metadata")
		}
		return metaArea(NewFilesystemMetaArea(filepath.Join(dataDir, "meta")))
	case "sqlite":
		path := cfg.Path
		if path == "" {
			if dataDir == "" {
				return nil, fmt.Errorf("path or data_dir required for sqlite database")
			}
			path = filepath.Join(dataDir, "meta.db")
		}
		return metaArea(NewSQLiteMetaArea(path))
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("dsn required for postgres database")
		}
		return metaArea(NewPostgresMetaArea(cfg.DSN))
	case "memory":
		return NewMemoryMetaArea(), nil
	default:
		return nil, fmt.Errorf("unknown database type: %s", cfg.Type)
	}
}

// metaArea keeps a failed constructor's typed nil out of the interface.
func metaArea[T refile.MetaArea](area T, err error) (refile.MetaArea, error) {
	if err != nil {
		return nil, err
	}
	return area, nil
}
