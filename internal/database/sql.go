package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	"refile-go/internal/database/migrations"
	"refile-go/internal/refile"
)

// SQLMetaArea stores FileMeta records in a SQL table.
// The same statements run on SQLite and PostgreSQL.
type SQLMetaArea struct {
	db     *sql.DB
	driver string
}

// NewSQLiteMetaArea opens (creating if needed) a SQLite database at path and
// migrates it to the latest schema. path can be ":memory:".
func NewSQLiteMetaArea(path string) (*SQLMetaArea, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	return newMigratedMetaArea(db, migrations.DriverSQLite)
}

// NewPostgresMetaArea connects to PostgreSQL and migrates it to the latest schema.
func NewPostgresMetaArea(dsn string) (*SQLMetaArea, error) {
	db, err := sql.Open(migrations.DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	return newMigratedMetaArea(db, migrations.DriverPostgres)
}

// NewSQLMetaAreaFromDB wraps an already-migrated connection.
func NewSQLMetaAreaFromDB(db *sql.DB, driver string) *SQLMetaArea {
	return &SQLMetaArea{db: db, driver: driver}
}

func newMigratedMetaArea(db *sql.DB, driver string) (*SQLMetaArea, error) {
	if err := migrations.MigrateUp(db, driver); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrating metadata schema: %w", err)
	}
	return NewSQLMetaAreaFromDB(db, driver), nil
}

// OpenConnection opens and configures a SQLite connection.
// A ":memory:" database lives in a single connection, so the pool is capped at one.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open(migrations.DriverSQLite, path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

const upsertMeta = `INSERT INTO file_meta (hash, filename, mime, size, uploaded_at, object)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (hash) DO UPDATE SET
    filename = excluded.filename,
    mime = excluded.mime,
    size = excluded.size,
    uploaded_at = excluded.uploaded_at,
    object = excluded.object`

func (s *SQLMetaArea) PutMeta(meta *refile.FileMeta) error {
	_, err := s.db.ExecContext(context.Background(), upsertMeta,
		meta.Digest, meta.Filename, meta.Mime, meta.Size, meta.UploadedAt, meta.Object)
	if err != nil {
		return fmt.Errorf("writing metadata for %s: %w", meta.Digest, err)
	}
	return nil
}

func (s *SQLMetaArea) GetMeta(digest string) (*refile.FileMeta, error) {
	row := s.db.QueryRowContext(context.Background(),
		`SELECT hash, filename, mime, size, uploaded_at, object FROM file_meta WHERE hash = $1`, digest)

	var m refile.FileMeta
	if err := row.Scan(&m.Digest, &m.Filename, &m.Mime, &m.Size, &m.UploadedAt, &m.Object); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading metadata for %s: %w", digest, err)
	}
	return &m, nil
}

func (s *SQLMetaArea) ListDigests() ([]string, error) {
	rows, err := s.db.QueryContext(context.Background(), `SELECT hash FROM file_meta ORDER BY hash`)
	if err != nil {
		return nil, fmt.Errorf("listing metadata: %w", err)
	}
	defer rows.Close()

	var digests []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scanning digest: %w", err)
		}
		digests = append(digests, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing metadata: %w", err)
	}
	return digests, nil
}

// SchemaStatus reports whether the schema matches the migrations built into
// this binary. Nil means it is current.
func (s *SQLMetaArea) SchemaStatus() error {
	return migrations.CheckDBMigrationStatus(s.db, s.driver)
}

func (s *SQLMetaArea) Close() error {
	return s.db.Close()
}

var _ refile.MetaArea = (*SQLMetaArea)(nil)
