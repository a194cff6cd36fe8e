// Package fanout implements the publish/subscribe registry that decouples the
// lifecycle engine from its notification subscribers. Dispatch is synchronous
// and in registration order; a failing or panicking subscriber is isolated so
// it never blocks the remaining subscribers or the committed transition.
package fanout

import (
	"context"
	"log/slog"
	"sync"

	"alert-engine/internal/events"
)

// Subscriber is the single-method capability a fan-out consumer implements.
// Name identifies the subscriber in logs and makes Attach/Detach idempotent.
type Subscriber interface {
	Name() string
	OnAlertEvent(ctx context.Context, ev *events.AlertEvent) error
}

// Fanout is an ordered registry of subscribers.
type Fanout struct {
	mu   sync.RWMutex
	subs []Subscriber
}

// New creates an empty fan-out registry.
func New() *Fanout {
	return &Fanout{}
}

// Attach registers a subscriber at the end of the dispatch order.
// Re-attaching a subscriber with a name already registered is a no-op.
func (f *Fanout) Attach(s Subscriber) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.subs {
		if existing.Name() == s.Name() {
			return
		}
	}
	f.subs = append(f.subs, s)
}

// Detach removes the subscriber with the given name. Detaching a name that is
// not registered is a no-op.
func (f *Fanout) Detach(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, existing := range f.subs {
		if existing.Name() == name {
			f.subs = append(f.subs[:i], f.subs[i+1:]...)
			return
		}
	}
}

// Subscribers returns the registered subscriber names in dispatch order.
func (f *Fanout) Subscribers() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	names := make([]string, 0, len(f.subs))
	for _, s := range f.subs {
		names = append(names, s.Name())
	}
	return names
}

// Notify dispatches the event to every registered subscriber, in registration
// order. Errors and panics are logged per subscriber and never propagate.
func (f *Fanout) Notify(ctx context.Context, ev *events.AlertEvent) {
	f.mu.RLock()
	subs := make([]Subscriber, len(f.subs))
	copy(subs, f.subs)
	f.mu.RUnlock()

	for _, s := range subs {
		f.dispatch(ctx, s, ev)
	}
}

func (f *Fanout) dispatch(ctx context.Context, s Subscriber, ev *events.AlertEvent) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Subscriber panicked on alert event",
				"subscriber", s.Name(),
				"event_type", ev.Type,
				"alert_id", ev.Alert.ID,
				"panic", r,
			)
		}
	}()

	if err := s.OnAlertEvent(ctx, ev); err != nil {
		slog.Warn("Subscriber failed to handle alert event",
			"subscriber", s.Name(),
			"event_type", ev.Type,
			"alert_id", ev.Alert.ID,
			"error", err,
		)
	}
}
