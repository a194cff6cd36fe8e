package notify

import (
	"context"
	"fmt"
	"log/slog"

	"alert-engine/internal/alert"
	"alert-engine/internal/events"
)

// CacheStore is the slice of the delivery cache the notifier drives. Every
// method is already degraded-safe; none returns an error.
type CacheStore interface {
	Available(ctx context.Context) bool
	SetAlert(ctx context.Context, id string, env *Envelope)
	DeleteAlert(ctx context.Context, id string)
	PushNotification(ctx context.Context, role Role, env *Envelope)
	RemoveNotification(ctx context.Context, role Role, alertID string)
	RecentNotifications(ctx context.Context, role Role, count int) []*Envelope
	ClearQueue(ctx context.Context, role Role)
}

// AlertSource answers the store reads behind revalidation, the degraded-mode
// fallback, and queue synchronization.
type AlertSource interface {
	// GetAlert retrieves an alert by id, or nil when it does not exist.
	GetAlert(ctx context.Context, id string) (*alert.Alert, error)

	// ActiveAlerts lists active alerts, optionally filtered.
	ActiveAlerts(ctx context.Context, kind alert.Kind, severity alert.Severity) ([]*alert.Alert, error)

	// ActiveByKinds lists the most recent active alerts of the given kinds.
	ActiveByKinds(ctx context.Context, kinds []alert.Kind, limit int) ([]*alert.Alert, error)
}

// DefaultReadCount is how many notifications a read returns when the caller
// does not say.
const DefaultReadCount = 10

// Notifier bridges lifecycle events into the per-role queues and serves
// notification reads. It subscribes to the fan-out under the name "notify".
type Notifier struct {
	cache CacheStore
	store AlertSource
}

// NewNotifier creates a notifier over the given cache and alert store.
func NewNotifier(cache CacheStore, store AlertSource) *Notifier {
	return &Notifier{cache: cache, store: store}
}

// Name implements fanout.Subscriber.
func (n *Notifier) Name() string {
	return "notify"
}

// OnAlertEvent implements fanout.Subscriber. Created alerts are pushed to
// their target role queues; escalations replace the queued entry; resolved
// alerts leave the cache entirely.
func (n *Notifier) OnAlertEvent(ctx context.Context, ev *events.AlertEvent) error {
	env := NewEnvelope(ev)
	roles := TargetRoles(ev.Alert.Kind)

	switch ev.Type {
	case alert.TransitionCreated:
		n.cache.SetAlert(ctx, ev.Alert.ID, env)
		for _, role := range roles {
			n.cache.PushNotification(ctx, role, env)
		}
	case alert.TransitionEscalated:
		n.cache.SetAlert(ctx, ev.Alert.ID, env)
		for _, role := range roles {
			n.cache.RemoveNotification(ctx, role, ev.Alert.ID)
			n.cache.PushNotification(ctx, role, env)
		}
	case alert.TransitionResolved:
		n.cache.DeleteAlert(ctx, ev.Alert.ID)
		for _, role := range roles {
			n.cache.RemoveNotification(ctx, role, ev.Alert.ID)
		}
	}
	return nil
}

// Notifications returns the most recent notifications for a role, newest
// first. Queue entries are revalidated against the store and stale ones are
// dropped from the queue. When the cache is unreachable or the queue is
// empty, the read falls back to the store by the role's permitted kinds and
// re-populates the queue if it can.
func (n *Notifier) Notifications(ctx context.Context, role Role, count int) ([]*Envelope, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("unknown notification role %q", role)
	}
	if count <= 0 {
		count = DefaultReadCount
	}

	if n.cache.Available(ctx) {
		if envs := n.cache.RecentNotifications(ctx, role, count); len(envs) > 0 {
			return n.revalidate(ctx, role, envs), nil
		}
	}
	return n.fallback(ctx, role, count)
}

// revalidate drops queue entries whose alert is gone or no longer active.
// Store errors keep the cached entry; revalidation is best-effort.
func (n *Notifier) revalidate(ctx context.Context, role Role, envs []*Envelope) []*Envelope {
	fresh := make([]*Envelope, 0, len(envs))
	for _, env := range envs {
		a, err := n.store.GetAlert(ctx, env.AlertID)
		if err != nil {
			slog.Warn("Failed to revalidate notification, keeping cached entry",
				"alert_id", env.AlertID,
				"error", err,
			)
			fresh = append(fresh, env)
			continue
		}
		if a == nil || !a.Active() {
			slog.Debug("Dropping stale notification", "role", role, "alert_id", env.AlertID)
			n.cache.RemoveNotification(ctx, role, env.AlertID)
			n.cache.DeleteAlert(ctx, env.AlertID)
			continue
		}
		fresh = append(fresh, env)
	}
	return fresh
}

// fallback reads active alerts straight from the store, limited to the
// role's permitted kinds, and re-populates the role queue when the cache is
// reachable.
func (n *Notifier) fallback(ctx context.Context, role Role, count int) ([]*Envelope, error) {
	alerts, err := n.store.ActiveByKinds(ctx, PermittedKinds(role), count)
	if err != nil {
		return nil, fmt.Errorf("failed to read notifications from store: %w", err)
	}

	envs := make([]*Envelope, 0, len(alerts))
	for _, a := range alerts {
		envs = append(envs, envelopeFromAlert(a))
	}

	if len(envs) > 0 && n.cache.Available(ctx) {
		// Oldest first so the queue tail stays the most recent entry.
		for i := len(envs) - 1; i >= 0; i-- {
			n.cache.PushNotification(ctx, role, envs[i])
		}
		slog.Info("Re-populated notification queue from store", "role", role, "entries", len(envs))
	}
	return envs, nil
}

// ClearNotifications drops every queued notification for a role.
func (n *Notifier) ClearNotifications(ctx context.Context, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("unknown notification role %q", role)
	}
	n.cache.ClearQueue(ctx, role)
	return nil
}

// Sync rebuilds every role queue and per-alert entry from the currently
// active alerts. Run at startup so queues survive Redis restarts, and on
// demand when queues drift.
func (n *Notifier) Sync(ctx context.Context) error {
	alerts, err := n.store.ActiveAlerts(ctx, "", "")
	if err != nil {
		return fmt.Errorf("failed to list active alerts for sync: %w", err)
	}
	if !n.cache.Available(ctx) {
		slog.Warn("Cache unavailable, skipping notification sync")
		return nil
	}

	for _, role := range Roles() {
		n.cache.ClearQueue(ctx, role)
	}
	// ActiveAlerts returns most severe first; reverse the pushes so every
	// queue ends with its most urgent entries at the recent end.
	for i := len(alerts) - 1; i >= 0; i-- {
		a := alerts[i]
		env := envelopeFromAlert(a)
		n.cache.SetAlert(ctx, a.ID, env)
		for _, role := range TargetRoles(a.Kind) {
			n.cache.PushNotification(ctx, role, env)
		}
	}

	slog.Info("Notification queues synchronized", "alerts", len(alerts))
	return nil
}
