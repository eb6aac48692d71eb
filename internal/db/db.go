// Package db persists the installed-formula ledger in an embedded
// SQLite database, guarded by a single-writer file lock (§4.10).
package db

import (
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/zerobrew/zerobrew/internal/zberr"
)

// Record is one row of the installed ledger. StoreKey is the content
// digest of the bottle this (name, version) was materialized from —
// the same key used in the blob cache and store namespaces, letting
// GC cross-reference installed kegs against cached/interned digests.
type Record struct {
	Name        string
	Version     string
	StoreKey    string
	InstalledAt time.Time
}

// DB is the embedded installed-formula store. Opening a DB acquires
// the process-wide locks/db.lock flock for the database's whole
// lifetime, enforcing a single writer per root: a second process
// opening the same root fails fast with zberr.LockBusy instead of
// blocking (concurrent installs from multiple processes are
// unsupported).
type DB struct {
	sqlDB *sql.DB
	lock  *writerLock
}

// Open opens (creating if absent) the SQLite database at
// root/db/zb.sqlite3, prepares its schema, and acquires the writer
// lock under lockDir (typically root/locks).
func Open(root, lockDir string) (*DB, error) {
	lock, err := acquireWriterLock(lockDir)
	if err != nil {
		return nil, err
	}

	dbDir := filepath.Join(root, "db")
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		lock.release()
		return nil, &zberr.StoreCorruption{Message: "creating database directory", Err: err}
	}

	dbPath := filepath.Join(dbDir, "zb.sqlite3")
	sqlDB, err := sql.Open("sqlite", dbPath)
	if err != nil {
		lock.release()
		return nil, &zberr.StoreCorruption{Message: "opening database", Err: err}
	}
	sqlDB.SetMaxOpenConns(1)

	if _, err := sqlDB.Exec(schema); err != nil {
		sqlDB.Close()
		lock.release()
		return nil, &zberr.StoreCorruption{Message: "applying database schema", Err: err}
	}

	return &DB{sqlDB: sqlDB, lock: lock}, nil
}

// Close releases the writer lock and closes the underlying database
// handle.
func (d *DB) Close() error {
	closeErr := d.sqlDB.Close()
	lockErr := d.lock.release()
	if closeErr != nil {
		return &zberr.StoreCorruption{Message: "closing database", Err: closeErr}
	}
	return lockErr
}

const schema = `
CREATE TABLE IF NOT EXISTS installed (
	name         TEXT PRIMARY KEY,
	version      TEXT NOT NULL,
	store_key    TEXT NOT NULL,
	installed_at INTEGER NOT NULL
);
`

// Insert records a newly-materialized formula. A name already present
// is replaced — a formula has at most one installed version at a
// time.
func (d *DB) Insert(rec Record) error {
	_, err := d.sqlDB.Exec(
		`INSERT OR REPLACE INTO installed (name, version, store_key, installed_at)
		 VALUES (?, ?, ?, ?)`,
		rec.Name, rec.Version, rec.StoreKey, rec.InstalledAt.Unix(),
	)
	if err != nil {
		return &zberr.StoreCorruption{Message: "inserting installed record", Err: err}
	}
	return nil
}

// Remove deletes name from the ledger. Removing an absent name is not
// an error.
func (d *DB) Remove(name string) error {
	if _, err := d.sqlDB.Exec(`DELETE FROM installed WHERE name = ?`, name); err != nil {
		return &zberr.StoreCorruption{Message: "removing installed record", Err: err}
	}
	return nil
}

// Get returns the installed record for name, or NotInstalled if none
// exists. Reads are uncached and take no lock.
func (d *DB) Get(name string) (*Record, error) {
	row := d.sqlDB.QueryRow(
		`SELECT name, version, store_key, installed_at FROM installed WHERE name = ?`, name)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, &zberr.NotInstalled{Name: name}
	}
	if err != nil {
		return nil, &zberr.StoreCorruption{Message: "querying installed record", Err: err}
	}
	return rec, nil
}

// IsInstalled reports whether name has an installed record.
func (d *DB) IsInstalled(name string) (bool, error) {
	_, err := d.Get(name)
	if err == nil {
		return true, nil
	}
	var notInstalled *zberr.NotInstalled
	if errors.As(err, &notInstalled) {
		return false, nil
	}
	return false, err
}

// List returns every installed record, ordered by name.
func (d *DB) List() ([]Record, error) {
	rows, err := d.sqlDB.Query(
		`SELECT name, version, store_key, installed_at FROM installed ORDER BY name`)
	if err != nil {
		return nil, &zberr.StoreCorruption{Message: "listing installed records", Err: err}
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, &zberr.StoreCorruption{Message: "scanning installed record", Err: err}
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, &zberr.StoreCorruption{Message: "iterating installed records", Err: err}
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(s scanner) (*Record, error) {
	var rec Record
	var installedAt int64

	if err := s.Scan(&rec.Name, &rec.Version, &rec.StoreKey, &installedAt); err != nil {
		return nil, err
	}
	rec.InstalledAt = time.Unix(installedAt, 0).UTC()

	return &rec, nil
}
