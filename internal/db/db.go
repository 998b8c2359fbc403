package db

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Open connects to the database and applies the schema. For sqlite, dsn is a
// file path; for postgres, a connection URL.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	if driver == DriverSQLite {
		dsn = formatDBPath(dsn)
	}

	instance, err := sql.Open(driver, dsn)
	if err != nil {
		log.Error().Err(err).Str("driver", driver).Msg("failed to open database")
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}

	if err := instance.PingContext(ctx); err != nil {
		instance.Close()
		log.Error().Err(err).Str("driver", driver).Msg("failed to ping database")
		return nil, fmt.Errorf("failed to ping %s database: %w", driver, err)
	}

	log.Debug().Str("driver", driver).Msg("database connection successful")

	if err := migrate(ctx, instance); err != nil {
		instance.Close()
		log.Error().Err(err).Msg("failed to run migrations")
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	log.Info().Str("driver", driver).Msg("migrations completed successfully")

	return instance, nil
}

// Dialect returns the goqu dialect name for a database driver.
func Dialect(driver string) string {
	if driver == DriverPostgres {
		return "postgres"
	}
	return "sqlite3"
}

func formatDBPath(path string) string {
	if path == "" {
		path = "shortlink.db"
	}
	path = strings.TrimPrefix(path, "file:")

	// Add pragmas for better performance and safety
	// See: https://pkg.go.dev/modernc.org/sqlite#pkg-overview
	params := url.Values{}
	params.Set("mode", "rwc")
	params.Set("_time_format", "sqlite")
	params.Set("_pragma", "foreign_keys(1)")
	params.Add("_pragma", "journal_mode(WAL)")
	params.Add("_pragma", "synchronous(NORMAL)")
	params.Add("_pragma", "busy_timeout(5000)")

	return "file:" + path + "?" + params.Encode()
}

// Timestamps are stored as RFC 3339 text so the same schema works on both
// sqlite and postgres.
func migrate(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS links (
		id TEXT PRIMARY KEY,
		short_code TEXT UNIQUE NOT NULL,
		original_url TEXT NOT NULL,
		is_custom BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		expires_at TEXT NOT NULL,
		validity_minutes INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS clicks (
		id TEXT PRIMARY KEY,
		link_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		clicked_at TEXT NOT NULL,
		source TEXT NOT NULL,
		location TEXT NOT NULL,
		FOREIGN KEY(link_id) REFERENCES links(id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_links_created_at ON links(created_at);
	CREATE INDEX IF NOT EXISTS idx_clicks_link_id ON clicks(link_id);
	`

	_, err := db.ExecContext(ctx, schema)
	return err
}
