// Package geopackage reads GeoPackage feature layers through SpatiaLite.
package geopackage

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	"github.com/mattn/go-sqlite3"
)

// driverName is the sqlite3 driver with the SpatiaLite extension loaded.
const driverName = "sqlite3_spatialite"

func init() {
	sql.Register(driverName, &sqlite3.SQLiteDriver{
		Extensions: spatiaLiteLibraryPaths(),
	})
}

// spatiaLiteLibraryPaths returns the candidate SpatiaLite module paths, most specific first.
// SPATIALITE_LIBRARY_PATH overrides the platform defaults.
func spatiaLiteLibraryPaths() []string {
	if envPath := os.Getenv("SPATIALITE_LIBRARY_PATH"); envPath != "" {
		return []string{envPath}
	}

	return []string{
		// Alpine
		"/usr/lib/mod_spatialite.so",
		"/usr/lib/mod_spatialite.so.8",
		// Debian/Ubuntu
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so",
		"/usr/lib/x86_64-linux-gnu/mod_spatialite.so.8",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so",
		"/usr/lib/aarch64-linux-gnu/mod_spatialite.so.8",
		// Homebrew
		"/usr/local/lib/mod_spatialite.dylib",
		"/opt/homebrew/lib/mod_spatialite.dylib",
		// Resolved through the loader path
		"mod_spatialite.so",
		"mod_spatialite",
		"mod_spatialite.dylib",
	}
}

// openDB opens a SQLite database with SpatiaLite and verifies the extension is present.
func openDB(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, err
	}

	var version string
	if err := db.QueryRowContext(ctx, "SELECT spatialite_version()").Scan(&version); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("SpatiaLite extension not available: %w", err)
	}
	return db, nil
}
