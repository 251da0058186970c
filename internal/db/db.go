package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the scan database. The underlying driver is the pure-Go
// sqlite build, so deployments need no cgo toolchain.
type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the scan database at path and applies
// the connection pragmas. Schema management is separate: call MigrateUp
// before first use.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}

	// WAL keeps readers (the report tool) from blocking the scan loop's
	// writes. busy_timeout covers the brief writer-writer contention
	// between the scan loop and span maintenance.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := sqlDB.Exec(p); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	return &DB{sqlDB}, nil
}
