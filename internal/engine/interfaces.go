// Package engine implements the alert lifecycle: classify a monitored
// subject, deduplicate against the active alert for its family, escalate in
// place, and resolve automatically when the condition clears.
package engine

import (
	"context"
	"time"

	"alert-engine/internal/alert"
	"alert-engine/internal/database"
	"alert-engine/internal/events"
)

// AlertStore persists alert records and enforces the one-active-alert rule
// per (subject, family).
type AlertStore interface {
	// InsertAlert persists a new alert. Returns database.ErrDuplicateActive
	// when an active alert for the same subject and family already exists.
	InsertAlert(ctx context.Context, a *alert.Alert) error

	// FindActive returns the active alert for a subject and family, or nil.
	FindActive(ctx context.Context, family alert.Family, medicationID, orderID string) (*alert.Alert, error)

	// EscalateAlert rewrites the mutable fields of an active alert in place.
	// Returns false when the alert is missing or no longer active.
	EscalateAlert(ctx context.Context, id string, kind alert.Kind, severity alert.Severity, message string, snap alert.Snapshot, at time.Time) (bool, error)

	// ResolveAlert marks a non-resolved alert as resolved. Returns false
	// when the alert is missing or already resolved.
	ResolveAlert(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error)

	// SetAlertState moves a non-resolved alert to the given state, recording
	// an optional operator note.
	SetAlertState(ctx context.Context, id string, state alert.State, note, actor string, at time.Time) (bool, error)

	// GetAlert retrieves an alert by id, or nil when it does not exist.
	GetAlert(ctx context.Context, id string) (*alert.Alert, error)

	// ActiveAlerts lists active alerts, optionally filtered by kind and
	// severity, most severe first.
	ActiveAlerts(ctx context.Context, kind alert.Kind, severity alert.Severity) ([]*alert.Alert, error)

	// AlertHistory lists alert records of every lifecycle state, newest first.
	AlertHistory(ctx context.Context, filter database.HistoryFilter) ([]*alert.Alert, error)

	// AlertStatistics computes aggregate counters over the alerts table.
	AlertStatistics(ctx context.Context, now time.Time) (*database.AlertStats, error)
}

// SubjectSource loads monitored-subject snapshots from the inventory tables.
type SubjectSource interface {
	// MedicationSubject returns one medication snapshot, or nil when the
	// medication does not exist or is soft-deleted.
	MedicationSubject(ctx context.Context, id string) (*alert.Subject, error)

	// StockSubjects lists the medications eligible for the stock scan.
	StockSubjects(ctx context.Context) ([]*alert.Subject, error)

	// ExpirySubjects lists the medications expiring on or before the horizon.
	ExpirySubjects(ctx context.Context, until time.Time) ([]*alert.Subject, error)

	// OrderSubject returns one purchase order snapshot, or nil when missing.
	OrderSubject(ctx context.Context, id string) (*alert.Subject, error)

	// DelayedOrders lists sent orders expected strictly before the cutoff.
	DelayedOrders(ctx context.Context, before time.Time) ([]*alert.Subject, error)
}

// EventSink receives lifecycle events after a transition has been committed.
// Implementations must isolate their subscribers; a failing consumer never
// reaches the engine.
type EventSink interface {
	Notify(ctx context.Context, ev *events.AlertEvent)
}
