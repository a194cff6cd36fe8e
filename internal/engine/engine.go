package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"alert-engine/internal/alert"
	"alert-engine/internal/database"
	"alert-engine/internal/events"
)

// Engine applies classification outcomes to the alert store and emits one
// lifecycle event per committed transition. Evaluations for the same
// (subject, family) pair are serialized in-process; the partial unique
// indexes on the alerts table back the same rule across processes.
type Engine struct {
	store            AlertStore
	subjects         SubjectSource
	sink             EventSink
	messages         *alert.MessageRegistry
	expiryWindowDays int

	now func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an engine. A nil sink disables event emission; out-of-range
// expiry windows fall back to the default horizon.
func New(store AlertStore, subjects SubjectSource, sink EventSink, expiryWindowDays int) *Engine {
	if expiryWindowDays < 1 || expiryWindowDays > 365 {
		expiryWindowDays = alert.DefaultExpiryWindowDays
	}
	return &Engine{
		store:            store,
		subjects:         subjects,
		sink:             sink,
		messages:         alert.NewMessageRegistry(),
		expiryWindowDays: expiryWindowDays,
		now:              time.Now,
		locks:            make(map[string]*sync.Mutex),
	}
}

// ExpiryWindowDays returns the anticipation horizon expiry scans use.
func (e *Engine) ExpiryWindowDays() int {
	return e.expiryWindowDays
}

// EvaluateStock classifies a medication's stock level and applies the
// resulting transition.
func (e *Engine) EvaluateStock(ctx context.Context, subject *alert.Subject) (alert.Transition, error) {
	if subject == nil {
		return alert.TransitionNone, fmt.Errorf("subject is required")
	}
	cond := alert.ClassifyStock(*subject)
	return e.apply(ctx, alert.FamilyStock, subject, cond)
}

// EvaluateExpiry classifies a medication's expiry date against the engine's
// anticipation window and applies the resulting transition.
func (e *Engine) EvaluateExpiry(ctx context.Context, subject *alert.Subject) (alert.Transition, error) {
	return e.evaluateExpiryWindow(ctx, subject, e.expiryWindowDays)
}

func (e *Engine) evaluateExpiryWindow(ctx context.Context, subject *alert.Subject, windowDays int) (alert.Transition, error) {
	if subject == nil {
		return alert.TransitionNone, fmt.Errorf("subject is required")
	}
	cond := alert.ClassifyExpiry(*subject, e.now(), windowDays)
	return e.apply(ctx, alert.FamilyExpiry, subject, cond)
}

// EvaluateOrder classifies a purchase order's delivery delay and applies the
// resulting transition.
func (e *Engine) EvaluateOrder(ctx context.Context, subject *alert.Subject) (alert.Transition, error) {
	if subject == nil {
		return alert.TransitionNone, fmt.Errorf("subject is required")
	}
	cond := alert.ClassifyOrderDelay(*subject, e.now())
	return e.apply(ctx, alert.FamilyOrderDelay, subject, cond)
}

// apply runs the lifecycle algorithm for one classified subject under the
// (subject, family) lock.
func (e *Engine) apply(ctx context.Context, family alert.Family, subject *alert.Subject, cond *alert.Condition) (alert.Transition, error) {
	unlock := e.lockSubject(family, subject.ID)
	defer unlock()

	medicationID, orderID := subjectIDs(subject)
	existing, err := e.store.FindActive(ctx, family, medicationID, orderID)
	if err != nil {
		return alert.TransitionNone, err
	}

	if cond == nil {
		if existing == nil {
			return alert.TransitionNone, nil
		}
		return e.autoResolve(ctx, existing)
	}

	if existing == nil {
		return e.create(ctx, family, subject, cond, medicationID, orderID)
	}
	return e.escalate(ctx, existing, subject, cond)
}

// create inserts a fresh active alert and emits created. When another
// process won the insert race, the winner's record is escalated instead.
func (e *Engine) create(ctx context.Context, family alert.Family, subject *alert.Subject, cond *alert.Condition, medicationID, orderID string) (alert.Transition, error) {
	now := e.now()
	snap := buildSnapshot(subject, cond, now)
	message, ok := e.messages.Build(*subject, *cond, snap)
	if !ok {
		return alert.TransitionNone, fmt.Errorf("no message builder for kind %q", cond.Kind)
	}

	a := &alert.Alert{
		ID:            uuid.New().String(),
		MedicationID:  medicationID,
		OrderID:       orderID,
		Family:        family,
		Kind:          cond.Kind,
		Severity:      cond.Severity,
		State:         alert.StateActive,
		Message:       message,
		Snapshot:      snap,
		SubjectName:   subject.Name,
		SubjectDetail: subject.Detail,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	err := e.store.InsertAlert(ctx, a)
	if errors.Is(err, database.ErrDuplicateActive) {
		existing, ferr := e.store.FindActive(ctx, family, medicationID, orderID)
		if ferr != nil {
			return alert.TransitionNone, ferr
		}
		if existing == nil {
			return alert.TransitionNone, err
		}
		return e.escalate(ctx, existing, subject, cond)
	}
	if err != nil {
		return alert.TransitionNone, err
	}

	slog.Info("Alert created",
		"alert_id", a.ID,
		"kind", a.Kind,
		"severity", a.Severity,
		"subject", a.SubjectRef(),
	)
	e.emit(ctx, alert.TransitionCreated, a)
	return alert.TransitionCreated, nil
}

// escalate rewrites an active alert when its classification changed. An
// unchanged (kind, severity) pair is a no-op without an event.
func (e *Engine) escalate(ctx context.Context, existing *alert.Alert, subject *alert.Subject, cond *alert.Condition) (alert.Transition, error) {
	if existing.Kind == cond.Kind && existing.Severity == cond.Severity {
		return alert.TransitionNone, nil
	}

	now := e.now()
	snap := buildSnapshot(subject, cond, now)
	message, ok := e.messages.Build(*subject, *cond, snap)
	if !ok {
		return alert.TransitionNone, fmt.Errorf("no message builder for kind %q", cond.Kind)
	}

	changed, err := e.store.EscalateAlert(ctx, existing.ID, cond.Kind, cond.Severity, message, snap, now)
	if err != nil {
		return alert.TransitionNone, err
	}
	if !changed {
		// Resolved concurrently between the read and the update.
		return alert.TransitionNone, nil
	}

	updated := *existing
	updated.Kind = cond.Kind
	updated.Severity = cond.Severity
	updated.Message = message
	updated.Snapshot = snap
	updated.UpdatedAt = now

	slog.Info("Alert escalated",
		"alert_id", updated.ID,
		"kind", updated.Kind,
		"severity", updated.Severity,
		"previous_kind", existing.Kind,
		"previous_severity", existing.Severity,
	)
	e.emit(ctx, alert.TransitionEscalated, &updated)
	return alert.TransitionEscalated, nil
}

// autoResolve closes an active alert whose condition no longer holds.
func (e *Engine) autoResolve(ctx context.Context, existing *alert.Alert) (alert.Transition, error) {
	now := e.now()
	resolved, err := e.store.ResolveAlert(ctx, existing.ID, alert.ResolvedBySystem, now)
	if err != nil {
		return alert.TransitionNone, err
	}
	if !resolved {
		return alert.TransitionNone, nil
	}

	closed := *existing
	closed.State = alert.StateResolved
	closed.ResolvedAt = &now
	closed.ResolvedBy = alert.ResolvedBySystem
	closed.UpdatedAt = now

	slog.Info("Alert auto-resolved",
		"alert_id", closed.ID,
		"kind", closed.Kind,
		"subject", closed.SubjectRef(),
	)
	e.emit(ctx, alert.TransitionResolved, &closed)
	return alert.TransitionResolved, nil
}

// Resolve closes an alert on behalf of an operator. Returns false when the
// alert is missing or already resolved; a resolved alert is never reopened
// and its resolved_at never changes.
func (e *Engine) Resolve(ctx context.Context, id, actor string) (bool, error) {
	a, err := e.store.GetAlert(ctx, id)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	if actor == "" {
		actor = "unknown"
	}

	unlock := e.lockSubject(a.Family, a.SubjectRef())
	defer unlock()

	now := e.now()
	resolved, err := e.store.ResolveAlert(ctx, a.ID, actor, now)
	if err != nil || !resolved {
		return resolved, err
	}

	closed := *a
	closed.State = alert.StateResolved
	closed.ResolvedAt = &now
	closed.ResolvedBy = actor
	closed.UpdatedAt = now

	slog.Info("Alert resolved", "alert_id", a.ID, "resolved_by", actor)
	e.emit(ctx, alert.TransitionResolved, &closed)
	return true, nil
}

// SetState moves an alert between operator-visible states. Moving to
// resolved behaves exactly like Resolve; an optional note lands in the
// snapshot.
func (e *Engine) SetState(ctx context.Context, id string, state alert.State, note, actor string) (bool, error) {
	switch state {
	case alert.StateActive, alert.StatePendingRestock, alert.StateResolved:
	default:
		return false, fmt.Errorf("unknown lifecycle state %q", state)
	}

	a, err := e.store.GetAlert(ctx, id)
	if err != nil {
		return false, err
	}
	if a == nil {
		return false, nil
	}
	if actor == "" {
		actor = "unknown"
	}

	unlock := e.lockSubject(a.Family, a.SubjectRef())
	defer unlock()

	now := e.now()
	changed, err := e.store.SetAlertState(ctx, id, state, note, actor, now)
	if err != nil || !changed {
		return changed, err
	}

	slog.Info("Alert state changed", "alert_id", id, "state", state, "actor", actor)
	if state == alert.StateResolved {
		closed := *a
		closed.State = alert.StateResolved
		closed.ResolvedAt = &now
		closed.ResolvedBy = actor
		closed.UpdatedAt = now
		if note != "" {
			closed.Snapshot.Note = note
		}
		e.emit(ctx, alert.TransitionResolved, &closed)
	}
	return true, nil
}

// CheckMedication re-evaluates the stock and expiry families for one
// medication, returning the transitions applied before any error. A missing
// or soft-deleted medication is a no-op.
func (e *Engine) CheckMedication(ctx context.Context, id string) ([]alert.Transition, error) {
	subject, err := e.subjects.MedicationSubject(ctx, id)
	if err != nil {
		return nil, err
	}
	if subject == nil {
		slog.Warn("Medication not found, skipping check", "medication_id", id)
		return nil, nil
	}

	stock, err := e.EvaluateStock(ctx, subject)
	if err != nil {
		return nil, err
	}
	expiry, err := e.EvaluateExpiry(ctx, subject)
	if err != nil {
		return []alert.Transition{stock}, err
	}
	return []alert.Transition{stock, expiry}, nil
}

// CheckOrder re-evaluates the delay family for one purchase order. A missing
// order is a no-op.
func (e *Engine) CheckOrder(ctx context.Context, id string) (alert.Transition, error) {
	subject, err := e.subjects.OrderSubject(ctx, id)
	if err != nil {
		return alert.TransitionNone, err
	}
	if subject == nil {
		slog.Warn("Purchase order not found, skipping check", "order_id", id)
		return alert.TransitionNone, nil
	}
	return e.EvaluateOrder(ctx, subject)
}

// ActiveAlerts lists active alerts, most severe first.
func (e *Engine) ActiveAlerts(ctx context.Context, kind alert.Kind, severity alert.Severity) ([]*alert.Alert, error) {
	return e.store.ActiveAlerts(ctx, kind, severity)
}

// History lists alert records of every lifecycle state, newest first.
func (e *Engine) History(ctx context.Context, filter database.HistoryFilter) ([]*alert.Alert, error) {
	return e.store.AlertHistory(ctx, filter)
}

// Alert retrieves one alert by id, or nil when it does not exist.
func (e *Engine) Alert(ctx context.Context, id string) (*alert.Alert, error) {
	return e.store.GetAlert(ctx, id)
}

// Stats aggregates the current alert population.
func (e *Engine) Stats(ctx context.Context) (*database.AlertStats, error) {
	return e.store.AlertStatistics(ctx, e.now())
}

func (e *Engine) emit(ctx context.Context, transition alert.Transition, a *alert.Alert) {
	if e.sink == nil {
		return
	}
	e.sink.Notify(ctx, events.New(transition, *a, e.now()))
}

// lockSubject blocks until the caller holds the (family, subject) lock and
// returns the release function.
func (e *Engine) lockSubject(family alert.Family, subjectID string) func() {
	key := string(family) + ":" + subjectID
	e.mu.Lock()
	l, ok := e.locks[key]
	if !ok {
		l = &sync.Mutex{}
		e.locks[key] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

func subjectIDs(s *alert.Subject) (medicationID, orderID string) {
	if s.Kind == alert.SubjectPurchaseOrder {
		return "", s.ID
	}
	return s.ID, ""
}

// buildSnapshot captures the subject values the classification was made on;
// message builders and notification consumers read from it, never from live
// inventory rows.
func buildSnapshot(subject *alert.Subject, cond *alert.Condition, now time.Time) alert.Snapshot {
	var snap alert.Snapshot
	switch alert.FamilyOf(cond.Kind) {
	case alert.FamilyStock:
		snap.Stock = subject.Stock
		snap.MinStock = subject.MinStock
	case alert.FamilyExpiry:
		if subject.ExpiryDate != nil {
			snap.ExpiryDate = subject.ExpiryDate.Format("2006-01-02")
			snap.DaysRemaining = alert.IntPtr(alert.DaysBetween(now, *subject.ExpiryDate))
		}
		snap.Batch = subject.Batch
	case alert.FamilyOrderDelay:
		snap.OrderNumber = subject.OrderNumber
		snap.Supplier = subject.Supplier
		if subject.ExpectedDate != nil {
			snap.DaysLate = alert.IntPtr(alert.DaysBetween(*subject.ExpectedDate, now))
		}
	}
	return snap
}
