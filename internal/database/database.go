// Package database provides Postgres operations for the alert engine: the
// alerts table (single source of truth), the audit log, and read accessors
// for the collaborator-owned medication and purchase-order tables.
package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"alert-engine/internal/alert"
)

// DB wraps a database connection and provides alert, audit, and subject
// operations.
type DB struct {
	conn *sql.DB
}

// NewDB creates a new database connection using the provided DSN.
func NewDB(dsn string) (*DB, error) {
	conn, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	slog.Info("Successfully connected to PostgreSQL database")

	return &DB{conn: conn}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.conn != nil {
		slog.Info("Closing database connection")
		return db.conn.Close()
	}
	return nil
}

// alertColumns is the column list every alert scan uses, in scanAlert order.
const alertColumns = `id, medication_id, order_id, family, kind, severity, lifecycle_state,
		message, snapshot, subject_name, subject_detail, created_at, updated_at, resolved_at, resolved_by`

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanAlert reads one alert row in alertColumns order.
func scanAlert(row rowScanner) (*alert.Alert, error) {
	var (
		a             alert.Alert
		medicationID  sql.NullString
		orderID       sql.NullString
		snapshotJSON  sql.NullString
		subjectName   sql.NullString
		subjectDetail sql.NullString
		resolvedAt    sql.NullTime
		resolvedBy    sql.NullString
	)

	err := row.Scan(
		&a.ID,
		&medicationID,
		&orderID,
		&a.Family,
		&a.Kind,
		&a.Severity,
		&a.State,
		&a.Message,
		&snapshotJSON,
		&subjectName,
		&subjectDetail,
		&a.CreatedAt,
		&a.UpdatedAt,
		&resolvedAt,
		&resolvedBy,
	)
	if err != nil {
		return nil, err
	}

	a.MedicationID = medicationID.String
	a.OrderID = orderID.String
	a.SubjectName = subjectName.String
	a.SubjectDetail = subjectDetail.String
	a.Snapshot = unmarshalSnapshot(snapshotJSON, "alert_id", a.ID)
	if resolvedAt.Valid {
		t := resolvedAt.Time
		a.ResolvedAt = &t
	}
	a.ResolvedBy = resolvedBy.String

	return &a, nil
}

// unmarshalSnapshot deserializes the snapshot JSONB column. A malformed
// snapshot logs a warning and yields an empty snapshot rather than failing
// the read.
func unmarshalSnapshot(snapshotJSON sql.NullString, warnAttrs ...any) alert.Snapshot {
	var snap alert.Snapshot
	if !snapshotJSON.Valid || snapshotJSON.String == "" {
		return snap
	}
	if err := json.Unmarshal([]byte(snapshotJSON.String), &snap); err != nil {
		slog.Warn("Failed to unmarshal snapshot JSON", append([]any{"error", err}, warnAttrs...)...)
		return alert.Snapshot{}
	}
	return snap
}

// nullString converts an optional string to its SQL representation.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
