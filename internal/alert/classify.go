package alert

import (
	"time"
)

// DefaultExpiryWindowDays is the default anticipation horizon for expiry
// classification when no window is configured.
const DefaultExpiryWindowDays = 30

// OrderStatusSent is the purchase-order status that makes an order eligible
// for delay classification.
const OrderStatusSent = "sent"

// Condition is a classified (kind, severity) pair. A nil *Condition from a
// classifier means the subject is healthy for that family.
type Condition struct {
	Kind     Kind
	Severity Severity
}

// ClassifyStock maps a medication's stock level against its minimum
// threshold. A subject without a configured minimum (or without a stock
// value) never classifies; malformed data is "no condition", not an error.
func ClassifyStock(s Subject) *Condition {
	if s.Stock == nil || s.MinStock == nil {
		return nil
	}
	stock, min := *s.Stock, *s.MinStock
	switch {
	case stock == 0:
		return &Condition{Kind: KindStockExhausted, Severity: SeverityCritical}
	case stock < min:
		return &Condition{Kind: KindStockCritical, Severity: SeverityHigh}
	case stock == min:
		return &Condition{Kind: KindStockLow, Severity: SeverityMedium}
	default:
		return nil
	}
}

// ClassifyExpiry maps a medication's expiry date against the anticipation
// window, counted in whole calendar days from now. windowDays <= 0 falls
// back to DefaultExpiryWindowDays.
func ClassifyExpiry(s Subject, now time.Time, windowDays int) *Condition {
	if s.ExpiryDate == nil {
		return nil
	}
	if windowDays <= 0 {
		windowDays = DefaultExpiryWindowDays
	}
	days := DaysBetween(now, *s.ExpiryDate)
	switch {
	case days < 0:
		return &Condition{Kind: KindExpired, Severity: SeverityCritical}
	case days <= 7:
		return &Condition{Kind: KindExpiryImminent, Severity: SeverityHigh}
	case days <= windowDays:
		return &Condition{Kind: KindExpirySoon, Severity: SeverityMedium}
	default:
		return nil
	}
}

// ClassifyOrderDelay maps a sent, unreceived purchase order against its
// expected delivery date. Severity grows with the number of days late.
func ClassifyOrderDelay(s Subject, now time.Time) *Condition {
	if s.ExpectedDate == nil || s.Received || s.Status != OrderStatusSent {
		return nil
	}
	late := DaysBetween(*s.ExpectedDate, now)
	if late < 1 {
		return nil
	}
	severity := SeverityMedium
	switch {
	case late >= 7:
		severity = SeverityCritical
	case late >= 3:
		severity = SeverityHigh
	}
	return &Condition{Kind: KindOrderDelayed, Severity: severity}
}

// DaysBetween returns the number of whole calendar days from one instant to
// another, ignoring time of day. Negative when to precedes from.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
