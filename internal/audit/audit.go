// Package audit persists one audit-log row per alert lifecycle transition.
// The recorder runs as a fan-out subscriber, so a failed write loses the
// trail entry but never the transition itself.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"alert-engine/internal/database"
	"alert-engine/internal/events"
)

// entityAlerts is the entity tag recorded for alert transitions.
const entityAlerts = "alerts"

// EntryStore is the persistence capability the recorder needs.
type EntryStore interface {
	// InsertAuditEntry appends an entry to the audit log.
	InsertAuditEntry(ctx context.Context, entry *database.AuditEntry) error
}

// Recorder writes an audit entry for every alert event it receives.
type Recorder struct {
	store EntryStore
}

// NewRecorder creates a Recorder backed by the given store.
func NewRecorder(store EntryStore) *Recorder {
	return &Recorder{store: store}
}

// Name identifies the recorder in fan-out logs.
func (r *Recorder) Name() string {
	return "audit"
}

// OnAlertEvent records the transition. The action column carries the
// uppercased transition (CREATED, ESCALATED, RESOLVED) and the detail column
// the full event payload as JSON.
func (r *Recorder) OnAlertEvent(ctx context.Context, ev *events.AlertEvent) error {
	detail, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode audit detail: %w", err)
	}

	entry := &database.AuditEntry{
		ID:        uuid.New().String(),
		Entity:    entityAlerts,
		EntityID:  ev.Alert.ID,
		Action:    strings.ToUpper(string(ev.Type)),
		Detail:    string(detail),
		CreatedAt: ev.Timestamp,
	}
	if err := r.store.InsertAuditEntry(ctx, entry); err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}
