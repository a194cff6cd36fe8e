package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"alert-engine/internal/alert"
	"alert-engine/internal/database"
	"alert-engine/internal/events"
)

// FakeStore is an in-memory test fake for AlertStore. It enforces the same
// rules as the real store: one active alert per (subject, family), updates
// only on active rows, resolution only once.
type FakeStore struct {
	mu     sync.Mutex
	Alerts map[string]*alert.Alert

	Inserted    []string
	Escalations []EscalateCall
	Resolutions []ResolveCall

	InsertErr   error
	FindErr     error
	EscalateErr error
	ResolveErr  error
	StateErr    error
	GetErr      error

	// InsertFunc, when set, runs before the default insert; a non-nil
	// return aborts the insert with that error.
	InsertFunc func(a *alert.Alert) error
}

type EscalateCall struct {
	ID       string
	Kind     alert.Kind
	Severity alert.Severity
	Message  string
}

type ResolveCall struct {
	ID         string
	ResolvedBy string
}

func NewFakeStore() *FakeStore {
	return &FakeStore{Alerts: make(map[string]*alert.Alert)}
}

func (f *FakeStore) InsertAlert(ctx context.Context, a *alert.Alert) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.InsertFunc != nil {
		if err := f.InsertFunc(a); err != nil {
			return err
		}
	}
	if f.InsertErr != nil {
		return f.InsertErr
	}
	for _, existing := range f.Alerts {
		if existing.State == alert.StateActive && existing.Family == a.Family && existing.SubjectRef() == a.SubjectRef() {
			return database.ErrDuplicateActive
		}
	}
	cp := *a
	f.Alerts[a.ID] = &cp
	f.Inserted = append(f.Inserted, a.ID)
	return nil
}

func (f *FakeStore) FindActive(ctx context.Context, family alert.Family, medicationID, orderID string) (*alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FindErr != nil {
		return nil, f.FindErr
	}
	subjectID := medicationID
	if subjectID == "" {
		subjectID = orderID
	}
	for _, a := range f.Alerts {
		if a.State == alert.StateActive && a.Family == family && a.SubjectRef() == subjectID {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (f *FakeStore) EscalateAlert(ctx context.Context, id string, kind alert.Kind, severity alert.Severity, message string, snap alert.Snapshot, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.EscalateErr != nil {
		return false, f.EscalateErr
	}
	f.Escalations = append(f.Escalations, EscalateCall{ID: id, Kind: kind, Severity: severity, Message: message})
	a, ok := f.Alerts[id]
	if !ok || a.State != alert.StateActive {
		return false, nil
	}
	a.Kind = kind
	a.Severity = severity
	a.Message = message
	a.Snapshot = snap
	a.UpdatedAt = at
	return true, nil
}

func (f *FakeStore) ResolveAlert(ctx context.Context, id, resolvedBy string, at time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ResolveErr != nil {
		return false, f.ResolveErr
	}
	f.Resolutions = append(f.Resolutions, ResolveCall{ID: id, ResolvedBy: resolvedBy})
	a, ok := f.Alerts[id]
	if !ok || a.State == alert.StateResolved {
		return false, nil
	}
	a.State = alert.StateResolved
	a.ResolvedAt = alert.TimePtr(at)
	a.ResolvedBy = resolvedBy
	a.UpdatedAt = at
	return true, nil
}

func (f *FakeStore) SetAlertState(ctx context.Context, id string, state alert.State, note, actor string, at time.Time) (bool, error) {
	if state == alert.StateResolved {
		return f.ResolveAlert(ctx, id, actor, at)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.StateErr != nil {
		return false, f.StateErr
	}
	a, ok := f.Alerts[id]
	if !ok || a.State == alert.StateResolved {
		return false, nil
	}
	a.State = state
	if note != "" {
		a.Snapshot.Note = note
	}
	a.UpdatedAt = at
	return true, nil
}

func (f *FakeStore) GetAlert(ctx context.Context, id string) (*alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.GetErr != nil {
		return nil, f.GetErr
	}
	a, ok := f.Alerts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (f *FakeStore) ActiveAlerts(ctx context.Context, kind alert.Kind, severity alert.Severity) ([]*alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*alert.Alert
	for _, a := range f.Alerts {
		if a.State != alert.StateActive {
			continue
		}
		if kind != "" && a.Kind != kind {
			continue
		}
		if severity != "" && a.Severity != severity {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Severity.Rank() != out[j].Severity.Rank() {
			return out[i].Severity.Rank() > out[j].Severity.Rank()
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (f *FakeStore) AlertHistory(ctx context.Context, filter database.HistoryFilter) ([]*alert.Alert, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*alert.Alert
	for _, a := range f.Alerts {
		if filter.MedicationID != "" && a.MedicationID != filter.MedicationID {
			continue
		}
		if filter.State != "" && a.State != filter.State {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *FakeStore) AlertStatistics(ctx context.Context, now time.Time) (*database.AlertStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &database.AlertStats{
		ByKind:     make(map[alert.Kind]int),
		BySeverity: make(map[alert.Severity]int),
		ByState:    make(map[alert.State]int),
	}
	since := now.Add(-24 * time.Hour)
	for _, a := range f.Alerts {
		stats.ByState[a.State]++
		if a.State == alert.StateActive {
			stats.ByKind[a.Kind]++
			stats.BySeverity[a.Severity]++
		}
		if !a.CreatedAt.Before(since) {
			stats.CreatedToday++
		}
		if a.ResolvedAt != nil && !a.ResolvedAt.Before(since) {
			stats.ResolvedToday++
		}
	}
	stats.TotalActive = stats.ByState[alert.StateActive]
	return stats, nil
}

// active returns the single active alert for a subject and family, bypassing
// the AlertStore interface, for test assertions.
func (f *FakeStore) active(family alert.Family, subjectID string) *alert.Alert {
	a, _ := f.FindActive(context.Background(), family, subjectID, subjectID)
	return a
}

// FakeSubjects is a test fake for SubjectSource.
type FakeSubjects struct {
	Medications map[string]*alert.Subject
	Orders      map[string]*alert.Subject
	Stock       []*alert.Subject
	Expiring    []*alert.Subject
	Delayed     []*alert.Subject

	MedicationErr error
	OrderErr      error
	ListErr       error
}

func NewFakeSubjects() *FakeSubjects {
	return &FakeSubjects{
		Medications: make(map[string]*alert.Subject),
		Orders:      make(map[string]*alert.Subject),
	}
}

func (f *FakeSubjects) MedicationSubject(ctx context.Context, id string) (*alert.Subject, error) {
	if f.MedicationErr != nil {
		return nil, f.MedicationErr
	}
	return f.Medications[id], nil
}

func (f *FakeSubjects) StockSubjects(ctx context.Context) ([]*alert.Subject, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Stock, nil
}

func (f *FakeSubjects) ExpirySubjects(ctx context.Context, until time.Time) ([]*alert.Subject, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Expiring, nil
}

func (f *FakeSubjects) OrderSubject(ctx context.Context, id string) (*alert.Subject, error) {
	if f.OrderErr != nil {
		return nil, f.OrderErr
	}
	return f.Orders[id], nil
}

func (f *FakeSubjects) DelayedOrders(ctx context.Context, before time.Time) ([]*alert.Subject, error) {
	if f.ListErr != nil {
		return nil, f.ListErr
	}
	return f.Delayed, nil
}

// FakeSink is a test fake for EventSink that records every emitted event.
type FakeSink struct {
	mu     sync.Mutex
	Events []*events.AlertEvent
}

func (f *FakeSink) Notify(ctx context.Context, ev *events.AlertEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Events = append(f.Events, ev)
}

func (f *FakeSink) Transitions() []alert.Transition {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]alert.Transition, len(f.Events))
	for i, ev := range f.Events {
		out[i] = ev.Type
	}
	return out
}
