// Package sqlite provides a durable sqlite-backed audit sink.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/toolwarden/toolwarden/internal/domain/audit"
)

// AuditStore implements audit.Store on an append-only sqlite table.
// Batches handed to Append are written in a single transaction.
type AuditStore struct {
	db *sql.DB
}

// NewAuditStore opens (or creates) the database at path and ensures the
// audit table exists.
func NewAuditStore(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	s := &AuditStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *AuditStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS audit_entries (
		id TEXT PRIMARY KEY,
		timestamp TEXT NOT NULL,
		user_id TEXT NOT NULL,
		action TEXT NOT NULL,
		resource TEXT NOT NULL,
		result TEXT NOT NULL,
		ip_address TEXT NOT NULL DEFAULT '',
		user_agent TEXT NOT NULL DEFAULT '',
		details TEXT NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_audit_entries_timestamp ON audit_entries (timestamp);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("migrate audit table: %w", err)
	}
	return nil
}

// Append inserts entries inside one transaction so a batch lands whole
// or not at all.
func (s *AuditStore) Append(ctx context.Context, entries ...audit.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit batch: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO audit_entries (
		id, timestamp, user_id, action, resource, result, ip_address, user_agent, details
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare audit insert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, e := range entries {
		detailsJSON, err := json.Marshal(e.Details)
		if err != nil {
			return fmt.Errorf("marshal audit details: %w", err)
		}
		ts := e.Timestamp.UTC().Format(time.RFC3339Nano)
		if _, err := stmt.ExecContext(ctx,
			e.ID, ts, e.UserID, e.Action, e.Resource, e.Result,
			e.IPAddress, e.UserAgent, string(detailsJSON),
		); err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit batch: %w", err)
	}
	return nil
}

// Flush is a no-op: every batch is committed durably in Append.
func (s *AuditStore) Flush(ctx context.Context) error {
	return nil
}

// Close closes the underlying database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

// Count returns the number of stored entries.
func (s *AuditStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_entries`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count audit entries: %w", err)
	}
	return n, nil
}

// Recent returns the most recent entries, newest first.
func (s *AuditStore) Recent(ctx context.Context, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	// Insertion order is chronological for an append-only trail, and
	// rowid avoids the trailing-zero ambiguity of RFC 3339 strings.
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, timestamp, user_id, action, resource, result, ip_address, user_agent, details
		FROM audit_entries
		ORDER BY rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []audit.Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func scanEntry(rows *sql.Rows) (audit.Entry, error) {
	var (
		e           audit.Entry
		ts          string
		detailsJSON string
	)
	if err := rows.Scan(&e.ID, &ts, &e.UserID, &e.Action, &e.Resource, &e.Result,
		&e.IPAddress, &e.UserAgent, &detailsJSON); err != nil {
		return audit.Entry{}, fmt.Errorf("scan audit entry: %w", err)
	}

	parsed, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return audit.Entry{}, fmt.Errorf("parse audit timestamp %q: %w", ts, err)
	}
	e.Timestamp = parsed

	if detailsJSON != "" {
		if err := json.Unmarshal([]byte(detailsJSON), &e.Details); err != nil {
			return audit.Entry{}, fmt.Errorf("unmarshal audit details: %w", err)
		}
	}
	return e, nil
}

// Compile-time interface verification.
var _ audit.Store = (*AuditStore)(nil)
