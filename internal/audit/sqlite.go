package audit

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend persists audit entries to a queryable append-only table,
// the second required-shape backend the domain stack adds alongside the
// file backend: an operator who needs to answer "what did token X do last
// week" wants SQL, not a log-file grep. Schema is a single
// CREATE TABLE IF NOT EXISTS with no migrations to manage, since the table
// never changes shape after this version.
type SQLiteBackend struct {
	db *sql.DB
}

const createAuditTable = `
CREATE TABLE IF NOT EXISTS audit_entries (
	id                   TEXT PRIMARY KEY,
	timestamp            DATETIME NOT NULL,
	operation            TEXT NOT NULL,
	path                 TEXT NOT NULL,
	request_fingerprint  TEXT NOT NULL,
	response_fingerprint TEXT NOT NULL,
	status_code          INTEGER NOT NULL,
	error_label          TEXT,
	actor_token_hmac     TEXT NOT NULL,
	actor_policies       TEXT NOT NULL
)`

// NewSQLiteBackend opens (creating if necessary) a SQLite database at path
// and ensures the audit_entries table exists.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("audit: failed to open sqlite backend %q: %w", path, err)
	}
	if _, err := db.Exec(createAuditTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: failed to create audit_entries table: %w", err)
	}
	return &SQLiteBackend{db: db}, nil
}

// Name identifies this backend in error messages and metrics.
func (sb *SQLiteBackend) Name() string { return "sqlite" }

// Write inserts entry as a single row. A PRIMARY KEY collision (the same
// entry id submitted twice) is surfaced as an error rather than silently
// ignored, since the audit log is append-only by contract.
func (sb *SQLiteBackend) Write(ctx context.Context, entry Entry) error {
	policies := ""
	for i, p := range entry.ActorPolicies {
		if i > 0 {
			policies += ","
		}
		policies += p
	}
	_, err := sb.db.ExecContext(ctx, `
		INSERT INTO audit_entries
			(id, timestamp, operation, path, request_fingerprint, response_fingerprint,
			 status_code, error_label, actor_token_hmac, actor_policies)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.Operation, entry.Path,
		entry.RequestFingerprint, entry.ResponseFingerprint,
		entry.StatusCode, entry.ErrorLabel, entry.ActorTokenHMAC, policies)
	if err != nil {
		return fmt.Errorf("audit: failed to insert entry %s: %w", entry.ID, err)
	}
	return nil
}

// Close releases the underlying database handle, called during a clean
// shutdown.
func (sb *SQLiteBackend) Close() error {
	return sb.db.Close()
}
