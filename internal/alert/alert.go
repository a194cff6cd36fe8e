// Package alert defines the core alert domain: kinds, severities, lifecycle
// states, the persisted Alert record, subject snapshots, the threshold
// classifier, and the per-family message builders.
package alert

import (
	"time"
)

// Kind identifies the specific condition an alert represents.
type Kind string

const (
	KindStockLow       Kind = "stock-low"
	KindStockCritical  Kind = "stock-critical"
	KindStockExhausted Kind = "stock-exhausted"
	KindExpirySoon     Kind = "expiry-soon"
	KindExpiryImminent Kind = "expiry-imminent"
	KindExpired        Kind = "expired"
	KindOrderDelayed   Kind = "order-delayed"
)

// Severity is the ordered urgency of an alert, from low to critical.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRanks orders severities for comparison and sorting.
var severityRanks = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordinal position of the severity (low=0 .. critical=3).
// Unknown severities rank below low.
func (s Severity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return -1
}

// State is the lifecycle state of an alert record.
type State string

const (
	StateActive         State = "active"
	StatePendingRestock State = "pending-restock"
	StateResolved       State = "resolved"
)

// ResolvedBySystem is recorded as resolved_by when the engine resolves an
// alert automatically after its condition cleared.
const ResolvedBySystem = "system"

// Family groups the kind variants that represent the same underlying
// condition. Deduplication is enforced per (subject, family).
type Family string

const (
	FamilyStock      Family = "stock"
	FamilyExpiry     Family = "expiry"
	FamilyOrderDelay Family = "order_delay"
)

var familyKinds = map[Family][]Kind{
	FamilyStock:      {KindStockLow, KindStockCritical, KindStockExhausted},
	FamilyExpiry:     {KindExpirySoon, KindExpiryImminent, KindExpired},
	FamilyOrderDelay: {KindOrderDelayed},
}

// Kinds returns the alert kinds belonging to the family.
func (f Family) Kinds() []Kind {
	kinds := familyKinds[f]
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// FamilyOf returns the family a kind belongs to, or "" for unknown kinds.
func FamilyOf(k Kind) Family {
	switch k {
	case KindStockLow, KindStockCritical, KindStockExhausted:
		return FamilyStock
	case KindExpirySoon, KindExpiryImminent, KindExpired:
		return FamilyExpiry
	case KindOrderDelayed:
		return FamilyOrderDelay
	default:
		return ""
	}
}

// Transition is the outcome of one lifecycle evaluation.
type Transition string

const (
	TransitionNone      Transition = "none"
	TransitionCreated   Transition = "created"
	TransitionEscalated Transition = "escalated"
	TransitionResolved  Transition = "resolved"
)

// SubjectKind identifies what a monitored subject is.
type SubjectKind string

const (
	SubjectMedication    SubjectKind = "medication"
	SubjectPurchaseOrder SubjectKind = "purchase_order"
)

// Subject is a read-only snapshot of a monitored entity, supplied by the
// inventory collaborators. Optional numeric and temporal fields are nil when
// the source row has no value.
type Subject struct {
	Kind         SubjectKind
	ID           string
	Name         string
	Detail       string // presentation for medications, delay summary for orders
	Manufacturer string

	// Medication state.
	Stock      *int
	MinStock   *int
	ExpiryDate *time.Time
	Batch      string

	// Purchase order state.
	OrderNumber  string
	Supplier     string
	Status       string
	ExpectedDate *time.Time
	Received     bool
}

// Snapshot is the kind-specific context captured when an alert is created or
// escalated. It is immutable per transition and stored alongside the record
// for audit and message regeneration.
type Snapshot struct {
	Stock         *int   `json:"stock,omitempty"`
	MinStock      *int   `json:"min_stock,omitempty"`
	ExpiryDate    string `json:"expiry_date,omitempty"`
	DaysRemaining *int   `json:"days_remaining,omitempty"`
	Batch         string `json:"batch,omitempty"`
	OrderNumber   string `json:"order_number,omitempty"`
	Supplier      string `json:"supplier,omitempty"`
	DaysLate      *int   `json:"days_late,omitempty"`
	Note          string `json:"note,omitempty"`
}

// Alert is the persisted alert record. Records are never deleted; resolution
// is a state change and history is permanent.
type Alert struct {
	ID            string     `json:"id"`
	MedicationID  string     `json:"medication_id,omitempty"`
	OrderID       string     `json:"order_id,omitempty"`
	Family        Family     `json:"family"`
	Kind          Kind       `json:"kind"`
	Severity      Severity   `json:"severity"`
	State         State      `json:"state"`
	Message       string     `json:"message"`
	Snapshot      Snapshot   `json:"snapshot"`
	SubjectName   string     `json:"subject_name,omitempty"`
	SubjectDetail string     `json:"subject_detail,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
}

// SubjectRef returns the identifier the deduplication invariant keys on:
// the medication id for stock and expiry alerts, the order id otherwise.
func (a *Alert) SubjectRef() string {
	if a.MedicationID != "" {
		return a.MedicationID
	}
	return a.OrderID
}

// Active reports whether the alert is in the active lifecycle state.
// Pending-restock and resolved alerts are not active: they drop out of
// active listings and notification queues.
func (a *Alert) Active() bool {
	return a.State == StateActive
}

// IntPtr returns a pointer to v. Convenience for building snapshots and
// subjects with optional numeric fields.
func IntPtr(v int) *int {
	return &v
}

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time {
	return &t
}
