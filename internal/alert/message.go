package alert

import (
	"fmt"
)

// MessageBuilder renders the human-readable message for a classified
// condition. Builders are pure; all context comes from the subject and the
// snapshot captured for the transition.
type MessageBuilder func(s Subject, c Condition, snap Snapshot) string

// MessageRegistry maps alert families to their message builders. New families
// extend the engine by registering an entry, not by subclassing anything.
type MessageRegistry struct {
	builders map[Family]MessageBuilder
}

// NewMessageRegistry returns a registry with the builders for the stock,
// expiry, and order-delay families registered.
func NewMessageRegistry() *MessageRegistry {
	r := &MessageRegistry{builders: make(map[Family]MessageBuilder)}
	r.Register(FamilyStock, buildStockMessage)
	r.Register(FamilyExpiry, buildExpiryMessage)
	r.Register(FamilyOrderDelay, buildOrderDelayMessage)
	return r
}

// Register adds or replaces the builder for a family.
func (r *MessageRegistry) Register(f Family, b MessageBuilder) {
	r.builders[f] = b
}

// Build renders the message for the condition's family. The boolean reports
// whether a builder was registered for it.
func (r *MessageRegistry) Build(s Subject, c Condition, snap Snapshot) (string, bool) {
	b, ok := r.builders[FamilyOf(c.Kind)]
	if !ok {
		return "", false
	}
	return b(s, c, snap), true
}

func buildStockMessage(s Subject, c Condition, snap Snapshot) string {
	stock, min := 0, 0
	if snap.Stock != nil {
		stock = *snap.Stock
	}
	if snap.MinStock != nil {
		min = *snap.MinStock
	}
	switch c.Kind {
	case KindStockExhausted:
		return fmt.Sprintf("Out of stock: %s (%s)", s.Name, s.Detail)
	case KindStockCritical:
		return fmt.Sprintf("Critical stock: %s has %d units (minimum: %d)", s.Name, stock, min)
	default:
		return fmt.Sprintf("Minimum stock reached: %s has %d units (minimum: %d)", s.Name, stock, min)
	}
}

func buildExpiryMessage(s Subject, c Condition, snap Snapshot) string {
	days := 0
	if snap.DaysRemaining != nil {
		days = *snap.DaysRemaining
	}
	batch := snap.Batch
	if batch == "" {
		batch = "n/a"
	}
	switch c.Kind {
	case KindExpired:
		return fmt.Sprintf("EXPIRED: %s (batch %s) expired %d days ago", s.Name, batch, -days)
	case KindExpiryImminent:
		return fmt.Sprintf("Immediate expiry risk: %s (batch %s) expires in %d days", s.Name, batch, days)
	default:
		return fmt.Sprintf("Upcoming expiry: %s (batch %s) expires in %d days", s.Name, batch, days)
	}
}

func buildOrderDelayMessage(s Subject, c Condition, snap Snapshot) string {
	late := 0
	if snap.DaysLate != nil {
		late = *snap.DaysLate
	}
	plural := "s"
	if late == 1 {
		plural = ""
	}
	return fmt.Sprintf("Order %s delayed %d day%s. Supplier: %s", snap.OrderNumber, late, plural, snap.Supplier)
}
