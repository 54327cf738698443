package policy

import "github.com/Ramsey-B/clover/pkg/models"

// Fine-grained permission strings for staff sub-roles
const (
	PermissionRoutesWrite = "routes:write"
)

// RoutePolicy is the capability set for delivery routes
type RoutePolicy struct{}

// CanView allows staff to see any route and drivers their own assignments
func (RoutePolicy) CanView(p Principal, route *models.DeliveryRoute) bool {
	if p.IsStaff() {
		return true
	}
	return route.DriverID != nil && *route.DriverID == p.ID
}

// CanCreate covers logistics staff; field agents need the explicit write
// permission
func (RoutePolicy) CanCreate(p Principal) bool {
	switch p.Role {
	case models.RoleAdmin, models.RoleSupervisor:
		return true
	case models.RoleFieldAgent:
		return p.HasPermission(PermissionRoutesWrite)
	}
	return false
}

// CanUpdate allows route edits by logistics staff only
func (RoutePolicy) CanUpdate(p Principal, _ *models.DeliveryRoute) bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleSupervisor
}

// CanUpdateStatus additionally allows the assigned driver to move the route
// through its operational states
func (RoutePolicy) CanUpdateStatus(p Principal, route *models.DeliveryRoute) bool {
	if p.Role == models.RoleAdmin || p.Role == models.RoleSupervisor {
		return true
	}
	return route.DriverID != nil && *route.DriverID == p.ID
}

// CanCompleteDelivery restricts the terminal transition to the assigned
// driver or a supervisor
func (RoutePolicy) CanCompleteDelivery(p Principal, route *models.DeliveryRoute) bool {
	if p.Role == models.RoleAdmin || p.Role == models.RoleSupervisor {
		return true
	}
	return p.Role == models.RoleDriver && route.DriverID != nil && *route.DriverID == p.ID
}

// CanDelete allows admins to remove abandoned draft routes
func (RoutePolicy) CanDelete(p Principal, _ *models.DeliveryRoute) bool {
	return p.Role == models.RoleAdmin
}
