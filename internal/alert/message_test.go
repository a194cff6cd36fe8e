package alert

import (
	"testing"
)

func TestMessageRegistry_Build(t *testing.T) {
	r := NewMessageRegistry()

	med := Subject{
		Kind:   SubjectMedication,
		ID:     "med-1",
		Name:   "Amoxicillin 500mg",
		Detail: "box of 24 capsules",
	}

	tests := []struct {
		name    string
		subject Subject
		cond    Condition
		snap    Snapshot
		want    string
	}{
		{
			name:    "stock exhausted",
			subject: med,
			cond:    Condition{Kind: KindStockExhausted, Severity: SeverityCritical},
			snap:    Snapshot{Stock: IntPtr(0), MinStock: IntPtr(10)},
			want:    "Out of stock: Amoxicillin 500mg (box of 24 capsules)",
		},
		{
			name:    "stock critical",
			subject: med,
			cond:    Condition{Kind: KindStockCritical, Severity: SeverityHigh},
			snap:    Snapshot{Stock: IntPtr(4), MinStock: IntPtr(10)},
			want:    "Critical stock: Amoxicillin 500mg has 4 units (minimum: 10)",
		},
		{
			name:    "stock low",
			subject: med,
			cond:    Condition{Kind: KindStockLow, Severity: SeverityMedium},
			snap:    Snapshot{Stock: IntPtr(10), MinStock: IntPtr(10)},
			want:    "Minimum stock reached: Amoxicillin 500mg has 10 units (minimum: 10)",
		},
		{
			name:    "expired",
			subject: med,
			cond:    Condition{Kind: KindExpired, Severity: SeverityCritical},
			snap:    Snapshot{Batch: "L-204", DaysRemaining: IntPtr(-3)},
			want:    "EXPIRED: Amoxicillin 500mg (batch L-204) expired 3 days ago",
		},
		{
			name:    "expiry imminent",
			subject: med,
			cond:    Condition{Kind: KindExpiryImminent, Severity: SeverityHigh},
			snap:    Snapshot{Batch: "L-204", DaysRemaining: IntPtr(5)},
			want:    "Immediate expiry risk: Amoxicillin 500mg (batch L-204) expires in 5 days",
		},
		{
			name:    "expiry soon",
			subject: med,
			cond:    Condition{Kind: KindExpirySoon, Severity: SeverityMedium},
			snap:    Snapshot{Batch: "L-204", DaysRemaining: IntPtr(21)},
			want:    "Upcoming expiry: Amoxicillin 500mg (batch L-204) expires in 21 days",
		},
		{
			name:    "missing batch renders placeholder",
			subject: med,
			cond:    Condition{Kind: KindExpirySoon, Severity: SeverityMedium},
			snap:    Snapshot{DaysRemaining: IntPtr(21)},
			want:    "Upcoming expiry: Amoxicillin 500mg (batch n/a) expires in 21 days",
		},
		{
			name:    "order delayed several days",
			subject: Subject{Kind: SubjectPurchaseOrder, ID: "order-1"},
			cond:    Condition{Kind: KindOrderDelayed, Severity: SeverityHigh},
			snap:    Snapshot{OrderNumber: "OC-2025-0042", Supplier: "Laboratorios Andinos", DaysLate: IntPtr(4)},
			want:    "Order OC-2025-0042 delayed 4 days. Supplier: Laboratorios Andinos",
		},
		{
			name:    "order delayed one day is singular",
			subject: Subject{Kind: SubjectPurchaseOrder, ID: "order-1"},
			cond:    Condition{Kind: KindOrderDelayed, Severity: SeverityMedium},
			snap:    Snapshot{OrderNumber: "OC-2025-0042", Supplier: "Laboratorios Andinos", DaysLate: IntPtr(1)},
			want:    "Order OC-2025-0042 delayed 1 day. Supplier: Laboratorios Andinos",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := r.Build(tt.subject, tt.cond, tt.snap)
			if !ok {
				t.Fatalf("Build() ok = false, want builder for %s", tt.cond.Kind)
			}
			if got != tt.want {
				t.Errorf("Build() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMessageRegistry_UnknownFamily(t *testing.T) {
	r := NewMessageRegistry()
	_, ok := r.Build(Subject{}, Condition{Kind: Kind("temperature-high")}, Snapshot{})
	if ok {
		t.Error("Build() ok = true for unregistered family, want false")
	}
}

func TestMessageRegistry_RegisterOverride(t *testing.T) {
	r := NewMessageRegistry()
	r.Register(FamilyStock, func(s Subject, c Condition, snap Snapshot) string {
		return "custom"
	})

	got, ok := r.Build(Subject{Name: "x"}, Condition{Kind: KindStockLow, Severity: SeverityMedium}, Snapshot{})
	if !ok || got != "custom" {
		t.Errorf("Build() = %q, %v after override, want %q, true", got, ok, "custom")
	}
}
