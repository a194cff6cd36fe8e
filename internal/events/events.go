// Package events defines the payload emitted to fan-out subscribers and the
// outbound Kafka feed on every alert lifecycle transition.
package events

import (
	"time"

	"alert-engine/internal/alert"
)

// SchemaVersion is the current AlertEvent schema version. Bump on breaking
// payload changes so downstream consumers can branch.
const SchemaVersion = 1

// AlertEvent describes one lifecycle transition of one alert. The embedded
// alert is a value copy taken after the transition committed; subscribers may
// read it freely without racing the engine.
type AlertEvent struct {
	Type          alert.Transition `json:"event_type"`
	SchemaVersion int              `json:"schema_version"`
	Timestamp     time.Time        `json:"timestamp"`
	Alert         alert.Alert      `json:"alert"`
}

// New builds an AlertEvent for a committed transition.
func New(transition alert.Transition, a alert.Alert, at time.Time) *AlertEvent {
	return &AlertEvent{
		Type:          transition,
		SchemaVersion: SchemaVersion,
		Timestamp:     at.UTC(),
		Alert:         a,
	}
}
