package fanout

import (
	"context"
	"log/slog"

	"alert-engine/internal/alert"
	"alert-engine/internal/events"
)

// LogSubscriber is the diagnostic subscriber: it writes every transition to
// the process log. Critical alerts log at warn level so they stand out in
// default log configurations.
type LogSubscriber struct{}

// NewLogSubscriber creates the diagnostic log subscriber.
func NewLogSubscriber() *LogSubscriber {
	return &LogSubscriber{}
}

// Name implements Subscriber.
func (l *LogSubscriber) Name() string {
	return "log"
}

// OnAlertEvent implements Subscriber. It never fails.
func (l *LogSubscriber) OnAlertEvent(ctx context.Context, ev *events.AlertEvent) error {
	attrs := []any{
		"event_type", ev.Type,
		"alert_id", ev.Alert.ID,
		"kind", ev.Alert.Kind,
		"severity", ev.Alert.Severity,
		"subject", ev.Alert.SubjectRef(),
		"message", ev.Alert.Message,
	}
	if ev.Alert.Severity == alert.SeverityCritical && ev.Type != alert.TransitionResolved {
		slog.Warn("Alert event", attrs...)
		return nil
	}
	slog.Info("Alert event", attrs...)
	return nil
}
