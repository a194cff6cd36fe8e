package notify

import (
	"time"

	"alert-engine/internal/alert"
	"alert-engine/internal/events"
)

// Envelope is the JSON payload stored in the per-role queues and the
// per-alert cache entries. It is a display projection, never authoritative;
// the alerts table remains the source of truth.
type Envelope struct {
	AlertID       string           `json:"alert_id"`
	EventType     alert.Transition `json:"event_type"`
	Kind          alert.Kind       `json:"kind"`
	Severity      alert.Severity   `json:"severity"`
	Message       string           `json:"message"`
	SubjectName   string           `json:"subject_name,omitempty"`
	SubjectDetail string           `json:"subject_detail,omitempty"`
	Batch         string           `json:"batch,omitempty"`
	DaysRemaining *int             `json:"days_remaining,omitempty"`
	DaysLate      *int             `json:"days_late,omitempty"`
	Timestamp     time.Time        `json:"timestamp"`
}

// NewEnvelope projects a lifecycle event into its queue payload.
func NewEnvelope(ev *events.AlertEvent) *Envelope {
	env := envelopeFromAlert(&ev.Alert)
	env.EventType = ev.Type
	env.Timestamp = ev.Timestamp
	return env
}

func envelopeFromAlert(a *alert.Alert) *Envelope {
	return &Envelope{
		AlertID:       a.ID,
		EventType:     alert.TransitionCreated,
		Kind:          a.Kind,
		Severity:      a.Severity,
		Message:       a.Message,
		SubjectName:   a.SubjectName,
		SubjectDetail: a.SubjectDetail,
		Batch:         a.Snapshot.Batch,
		DaysRemaining: a.Snapshot.DaysRemaining,
		DaysLate:      a.Snapshot.DaysLate,
		Timestamp:     a.CreatedAt,
	}
}
