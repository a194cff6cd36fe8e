// Package notify delivers alert notifications to per-role queues in Redis
// and answers notification reads, falling back to the alert store whenever
// the cache is unavailable.
package notify

import (
	"alert-engine/internal/alert"
)

// Role identifies a notification audience.
type Role string

const (
	RoleAdmin      Role = "admin"
	RolePurchasing Role = "purchasing"
	RolePharmacist Role = "pharmacist"
)

// Roles lists every known audience.
func Roles() []Role {
	return []Role{RoleAdmin, RolePurchasing, RolePharmacist}
}

// Valid reports whether the role is a known audience.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RolePurchasing, RolePharmacist:
		return true
	}
	return false
}

// TargetRoles returns the audiences notified about an alert kind. Stock and
// order-delay alerts concern purchasing, expiry alerts the pharmacist, and
// admin sees everything.
func TargetRoles(k alert.Kind) []Role {
	switch alert.FamilyOf(k) {
	case alert.FamilyStock, alert.FamilyOrderDelay:
		return []Role{RolePurchasing, RoleAdmin}
	case alert.FamilyExpiry:
		return []Role{RolePharmacist, RoleAdmin}
	default:
		return nil
	}
}

// PermittedKinds returns the alert kinds a role may see. The degraded-mode
// store fallback filters by them.
func PermittedKinds(r Role) []alert.Kind {
	switch r {
	case RoleAdmin:
		kinds := alert.FamilyStock.Kinds()
		kinds = append(kinds, alert.FamilyExpiry.Kinds()...)
		return append(kinds, alert.FamilyOrderDelay.Kinds()...)
	case RolePurchasing:
		return append(alert.FamilyStock.Kinds(), alert.FamilyOrderDelay.Kinds()...)
	case RolePharmacist:
		return alert.FamilyExpiry.Kinds()
	default:
		return nil
	}
}
