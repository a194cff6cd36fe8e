package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// AuditEntry is one row of the append-only audit_log table.
type AuditEntry struct {
	ID        string
	Entity    string
	EntityID  string
	Action    string
	Detail    string // JSON payload of the recorded event
	CreatedAt time.Time
}

// InsertAuditEntry appends an entry to the audit log.
func (db *DB) InsertAuditEntry(ctx context.Context, entry *AuditEntry) error {
	query := `
		INSERT INTO audit_log (id, entity, entity_id, action, detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := db.conn.ExecContext(ctx, query,
		entry.ID,
		entry.Entity,
		entry.EntityID,
		entry.Action,
		nullString(entry.Detail),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return nil
}

// AuditTrail lists the audit entries recorded for one entity, newest first.
func (db *DB) AuditTrail(ctx context.Context, entityID string, limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
		SELECT id, entity, entity_id, action, detail, created_at
		FROM audit_log
		WHERE entity_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := db.conn.QueryContext(ctx, query, entityID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit trail: %w", err)
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var entry AuditEntry
		var detail sql.NullString
		if err := rows.Scan(&entry.ID, &entry.Entity, &entry.EntityID, &entry.Action, &detail, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		entry.Detail = detail.String
		entries = append(entries, &entry)
	}
	return entries, rows.Err()
}
