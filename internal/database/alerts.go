package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"alert-engine/internal/alert"
)

// ErrDuplicateActive is returned by InsertAlert when another active alert for
// the same (subject, family) already exists. The partial unique indexes on
// the alerts table raise it when two evaluations race across processes; the
// caller re-reads and escalates instead of creating.
var ErrDuplicateActive = errors.New("active alert already exists for subject and family")

// severityOrder ranks severities in SQL, highest first.
const severityOrder = `
		CASE severity
			WHEN 'critical' THEN 0
			WHEN 'high' THEN 1
			WHEN 'medium' THEN 2
			ELSE 3
		END`

// InsertAlert persists a new alert record. The caller assigns the id and
// timestamps; lifecycle_state is stored as given (always active in practice).
func (db *DB) InsertAlert(ctx context.Context, a *alert.Alert) error {
	snapshotJSON, err := json.Marshal(a.Snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		INSERT INTO alerts (id, medication_id, order_id, family, kind, severity, lifecycle_state,
			message, snapshot, subject_name, subject_detail, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err = db.conn.ExecContext(ctx, query,
		a.ID,
		nullString(a.MedicationID),
		nullString(a.OrderID),
		string(a.Family),
		string(a.Kind),
		string(a.Severity),
		string(a.State),
		a.Message,
		string(snapshotJSON),
		nullString(a.SubjectName),
		nullString(a.SubjectDetail),
		a.CreatedAt,
		a.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" { // unique_violation
			return ErrDuplicateActive
		}
		return fmt.Errorf("failed to insert alert: %w", err)
	}
	return nil
}

// FindActive returns the single active alert for the given subject and
// family, or nil when none exists. Only lifecycle_state=active participates
// in deduplication; pending-restock records neither block a new alert nor
// get escalated.
func (db *DB) FindActive(ctx context.Context, family alert.Family, medicationID, orderID string) (*alert.Alert, error) {
	var subjectColumn, subjectID string
	switch {
	case medicationID != "":
		subjectColumn, subjectID = "medication_id", medicationID
	case orderID != "":
		subjectColumn, subjectID = "order_id", orderID
	default:
		return nil, fmt.Errorf("subject id is required")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE family = $1
		  AND lifecycle_state = 'active'
		  AND %s = $2
		ORDER BY created_at DESC
		LIMIT 1
	`, alertColumns, subjectColumn)

	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, string(family), subjectID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find active alert: %w", err)
	}
	return a, nil
}

// EscalateAlert rewrites the mutable fields of an active alert in place.
// Returns false when the alert is missing or no longer active.
func (db *DB) EscalateAlert(ctx context.Context, id string, kind alert.Kind, severity alert.Severity, message string, snap alert.Snapshot, at time.Time) (bool, error) {
	snapshotJSON, err := json.Marshal(snap)
	if err != nil {
		return false, fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	query := `
		UPDATE alerts
		SET kind = $2,
		    severity = $3,
		    message = $4,
		    snapshot = $5,
		    updated_at = $6
		WHERE id = $1 AND lifecycle_state = 'active'
	`
	result, err := db.conn.ExecContext(ctx, query, id, string(kind), string(severity), message, string(snapshotJSON), at)
	if err != nil {
		return false, fmt.Errorf("failed to escalate alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ResolveAlert marks a non-resolved alert as resolved. Returns false when the
// alert is missing or already resolved; a resolved alert is never reopened
// and its resolved_at never changes.
func (db *DB) ResolveAlert(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET lifecycle_state = 'resolved',
		    resolved_at = $2,
		    resolved_by = $3,
		    updated_at = $2
		WHERE id = $1 AND lifecycle_state <> 'resolved'
	`
	result, err := db.conn.ExecContext(ctx, query, id, at, resolvedBy)
	if err != nil {
		return false, fmt.Errorf("failed to resolve alert: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// SetAlertState moves a non-resolved alert to the given state, recording an
// optional operator note in the snapshot. Moving to resolved behaves exactly
// like ResolveAlert. Returns false when the alert is missing or resolved.
func (db *DB) SetAlertState(ctx context.Context, id string, state alert.State, note, actor string, at time.Time) (bool, error) {
	if state == alert.StateResolved {
		if note != "" {
			if _, err := db.setNote(ctx, id, note, at); err != nil {
				return false, err
			}
		}
		return db.ResolveAlert(ctx, id, actor, at)
	}

	query := `
		UPDATE alerts
		SET lifecycle_state = $2,
		    updated_at = $3
		WHERE id = $1 AND lifecycle_state <> 'resolved'
	`
	result, err := db.conn.ExecContext(ctx, query, id, string(state), at)
	if err != nil {
		return false, fmt.Errorf("failed to set alert state: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return false, nil
	}
	if note != "" {
		if _, err := db.setNote(ctx, id, note, at); err != nil {
			return false, err
		}
	}
	return true, nil
}

// setNote merges an operator note into the snapshot JSONB.
func (db *DB) setNote(ctx context.Context, id, note string, at time.Time) (bool, error) {
	query := `
		UPDATE alerts
		SET snapshot = jsonb_set(COALESCE(snapshot, '{}'::jsonb), '{note}', to_jsonb($2::text), true),
		    updated_at = $3
		WHERE id = $1
	`
	result, err := db.conn.ExecContext(ctx, query, id, note, at)
	if err != nil {
		return false, fmt.Errorf("failed to record alert note: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// GetAlert retrieves an alert by id, or nil when it does not exist.
func (db *DB) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE id = $1
	`, alertColumns)

	a, err := scanAlert(db.conn.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return a, nil
}

// ActiveAlerts lists active alerts, optionally filtered by kind and severity,
// ordered by severity (critical first) then recency.
func (db *DB) ActiveAlerts(ctx context.Context, kind alert.Kind, severity alert.Severity) ([]*alert.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE lifecycle_state = 'active'
	`, alertColumns)
	args := []interface{}{}

	if kind != "" {
		args = append(args, string(kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if severity != "" {
		args = append(args, string(severity))
		query += fmt.Sprintf(" AND severity = $%d", len(args))
	}
	query += fmt.Sprintf(" ORDER BY %s, created_at DESC", severityOrder)

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// ActiveByKinds lists the most recent active alerts restricted to the given
// kinds. This backs the degraded-mode notification fallback, where the kind
// set encodes a role's permitted families.
func (db *DB) ActiveByKinds(ctx context.Context, kinds []alert.Kind, limit int) ([]*alert.Alert, error) {
	if len(kinds) == 0 {
		return nil, nil
	}
	kindStrings := make([]string, len(kinds))
	for i, k := range kinds {
		kindStrings[i] = string(k)
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE lifecycle_state = 'active' AND kind = ANY($1)
		ORDER BY created_at DESC
		LIMIT $2
	`, alertColumns)

	rows, err := db.conn.QueryContext(ctx, query, pq.Array(kindStrings), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list active alerts by kind: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

// HistoryFilter narrows AlertHistory results. Zero values mean no filter;
// Limit defaults to 100.
type HistoryFilter struct {
	MedicationID string
	State        alert.State
	From         *time.Time
	To           *time.Time
	Limit        int
}

// AlertHistory lists alert records of every lifecycle state, newest first.
// This is the permanent audit view; resolved records are included.
func (db *DB) AlertHistory(ctx context.Context, filter HistoryFilter) ([]*alert.Alert, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM alerts
		WHERE 1=1
	`, alertColumns)
	args := []interface{}{}

	if filter.MedicationID != "" {
		args = append(args, filter.MedicationID)
		query += fmt.Sprintf(" AND medication_id = $%d", len(args))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		query += fmt.Sprintf(" AND lifecycle_state = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND created_at <= $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d", len(args))

	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert history: %w", err)
	}
	defer rows.Close()

	return collectAlerts(rows)
}

func collectAlerts(rows *sql.Rows) ([]*alert.Alert, error) {
	var alerts []*alert.Alert
	for rows.Next() {
		a, err := scanAlert(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		alerts = append(alerts, a)
	}
	return alerts, rows.Err()
}

// AlertStats aggregates the current alert population for dashboards and the
// manual scan endpoints.
type AlertStats struct {
	TotalActive   int
	ByKind        map[alert.Kind]int
	BySeverity    map[alert.Severity]int
	ByState       map[alert.State]int
	CreatedToday  int
	ResolvedToday int
}

// AlertStatistics computes aggregate counters over the alerts table.
// "Today" means the trailing 24 hours from now.
func (db *DB) AlertStatistics(ctx context.Context, now time.Time) (*AlertStats, error) {
	stats := &AlertStats{
		ByKind:     make(map[alert.Kind]int),
		BySeverity: make(map[alert.Severity]int),
		ByState:    make(map[alert.State]int),
	}

	stateRows, err := db.conn.QueryContext(ctx, `
		SELECT lifecycle_state, COUNT(*)
		FROM alerts
		GROUP BY lifecycle_state
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts by state: %w", err)
	}
	defer stateRows.Close()
	for stateRows.Next() {
		var state string
		var count int
		if err := stateRows.Scan(&state, &count); err != nil {
			return nil, fmt.Errorf("failed to scan state count: %w", err)
		}
		stats.ByState[alert.State(state)] = count
	}
	if err := stateRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate state counts: %w", err)
	}
	stats.TotalActive = stats.ByState[alert.StateActive]

	kindRows, err := db.conn.QueryContext(ctx, `
		SELECT kind, severity, COUNT(*)
		FROM alerts
		WHERE lifecycle_state = 'active'
		GROUP BY kind, severity
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to count active alerts by kind: %w", err)
	}
	defer kindRows.Close()
	for kindRows.Next() {
		var kind, severity string
		var count int
		if err := kindRows.Scan(&kind, &severity, &count); err != nil {
			return nil, fmt.Errorf("failed to scan kind count: %w", err)
		}
		stats.ByKind[alert.Kind(kind)] += count
		stats.BySeverity[alert.Severity(severity)] += count
	}
	if err := kindRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate kind counts: %w", err)
	}

	since := now.Add(-24 * time.Hour)
	err = db.conn.QueryRowContext(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE created_at >= $1),
			COUNT(*) FILTER (WHERE resolved_at >= $1)
		FROM alerts
	`, since).Scan(&stats.CreatedToday, &stats.ResolvedToday)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent alerts: %w", err)
	}

	return stats, nil
}
