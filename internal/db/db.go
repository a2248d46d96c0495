// Package db stores capture sessions, telemetry and command cycles in SQLite.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/tfluna/internal/timeutil"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// MigrationsFS holds the schema migrations compiled into the binary.
var MigrationsFS = mustSub(embeddedMigrations, "migrations")

func mustSub(fsys fs.FS, dir string) fs.FS {
	sub, err := fs.Sub(fsys, dir)
	if err != nil {
		panic(err)
	}
	return sub
}

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

type DB struct {
	*sql.DB
	clock timeutil.Clock
}

// OpenDB opens the database at path without touching the schema. Use it
// for the migrate subcommand; everything else should call NewDB.
func OpenDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return &DB{DB: db, clock: timeutil.RealClock{}}, nil
}

// NewDB opens the database at path and applies any pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := OpenDB(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// UseClock sets the clock used to timestamp new rows.
func (db *DB) UseClock(c timeutil.Clock) {
	db.clock = c
}
