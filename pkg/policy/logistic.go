package policy

import "github.com/Ramsey-B/clover/pkg/models"

// LogisticPolicy is the capability set for shipment tracking records.
// Predicates take the owning route because driver access is derived from the
// route assignment, not the logistic itself.
type LogisticPolicy struct{}

// CanView allows staff and the owning route's driver
func (LogisticPolicy) CanView(p Principal, _ *models.Logistic, route *models.DeliveryRoute) bool {
	if p.IsStaff() {
		return true
	}
	return route != nil && route.DriverID != nil && *route.DriverID == p.ID
}

// CanAppendLocation allows the driver on the ground plus supervising staff
func (LogisticPolicy) CanAppendLocation(p Principal, _ *models.Logistic, route *models.DeliveryRoute) bool {
	switch p.Role {
	case models.RoleAdmin, models.RoleSupervisor:
		return true
	case models.RoleFieldAgent:
		return p.HasPermission(PermissionRoutesWrite)
	}
	return route != nil && route.DriverID != nil && *route.DriverID == p.ID
}

// CanUpdate is admin-only: logistics are bridge-maintained, not edited by hand
func (LogisticPolicy) CanUpdate(p Principal, _ *models.Logistic) bool {
	return p.Role == models.RoleAdmin
}

// CanDelete is always false: a logistic lives and dies with its route
func (LogisticPolicy) CanDelete(Principal, *models.Logistic) bool {
	return false
}
