package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite" // Register sqlite driver

	"github.com/mbourse/masi-api/internal/platform/httpx"
)

//go:embed migrations/001_initial.sql
var migration string

type DB struct {
	*sql.DB
	path string
}

// Open opens the database file at path and applies the schema. The path is
// the only place the location is known; nothing else holds it globally.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// In-memory databases are per-connection; multiple connections each get a
	// separate empty database. Limit to one connection so migrations and
	// queries all see the same data.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &DB{DB: db, path: path}, nil
}

// Path returns the location the database was opened from.
func (d *DB) Path() string { return d.path }

// addedColumns lists columns missing from files written by older refresh
// scripts.
var addedColumns = []struct{ table, column, decl string }{
	{"stock_history", "volume", "REAL"},
	{"Company", "open", "REAL"},
	{"Company", "high", "REAL"},
	{"Company", "low", "REAL"},
}

func migrate(db *sql.DB) error {
	if _, err := db.Exec(migration); err != nil {
		return err
	}

	for _, c := range addedColumns {
		has, err := hasColumn(db, c.table, c.column)
		if err != nil {
			return err
		}
		if has {
			continue
		}
		stmt := fmt.Sprintf(`ALTER TABLE %q ADD COLUMN %q %s`, c.table, c.column, c.decl)
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("add %s.%s: %w", c.table, c.column, err)
		}
	}
	return nil
}

func hasColumn(db *sql.DB, table, column string) (bool, error) {
	rows, err := db.Query(`SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return false, fmt.Errorf("table info %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return false, err
		}
		if name == column {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Exists reports whether a database file is present at path.
func Exists(path string) bool {
	if path == ":memory:" {
		return true
	}
	_, err := os.Stat(path)
	return err == nil
}

// EnsureLocal downloads remoteURL to path when no file exists there yet.
// It is a no-op when the file is present or remoteURL is empty.
func EnsureLocal(ctx context.Context, client *http.Client, path, remoteURL string) error {
	if Exists(path) || remoteURL == "" {
		return nil
	}
	if client == nil {
		client = http.DefaultClient
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create database dir: %w", err)
		}
	}

	res, err := httpx.Do(ctx, client, func(ctx context.Context) (*http.Request, error) {
		return http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	})
	if err != nil {
		return fmt.Errorf("download database: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	tmp := path + ".download"
	f, err := os.Create(tmp) //nolint:gosec // path comes from configuration
	if err != nil {
		return fmt.Errorf("create %s: %w", tmp, err)
	}
	n, copyErr := io.Copy(f, res.Body)
	closeErr := f.Close()
	if err := errors.Join(copyErr, closeErr); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write database: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("install database: %w", err)
	}

	log.Info().Str("path", path).Int64("bytes", n).Msg("downloaded database")
	return nil
}
