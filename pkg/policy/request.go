package policy

import "github.com/Ramsey-B/clover/pkg/models"

// RequestPolicy is the capability set for resource requests
type RequestPolicy struct{}

// CanView allows staff and suppliers to see any request; recipients only
// their own. A false result is rendered as a 404 by the handler so the
// existence of someone else's request is not leaked.
func (RequestPolicy) CanView(p Principal, request *models.Request) bool {
	if p.IsStaff() || p.Role == models.RoleSupplier || p.Role == models.RoleNGO {
		return true
	}
	return request.UserID == p.ID
}

// CanCreate allows recipients and NGOs raising needs on a community's behalf
func (RequestPolicy) CanCreate(p Principal) bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleRecipient || p.Role == models.RoleNGO
}

// CanUpdate allows the owner while the request is still open, or an admin
func (RequestPolicy) CanUpdate(p Principal, request *models.Request) bool {
	if p.Role == models.RoleAdmin {
		return true
	}
	return request.UserID == p.ID && !request.Status.IsTerminal()
}

// CanDelete is always false: requests are only terminally closed
func (RequestPolicy) CanDelete(Principal, *models.Request) bool {
	return false
}

// CanApprove moves a pending request into the matchable pool
func (RequestPolicy) CanApprove(p Principal, _ *models.Request) bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleSupervisor
}

// CanAssignSupplier covers the external allocation step's write
func (RequestPolicy) CanAssignSupplier(p Principal, _ *models.Request) bool {
	return p.Role == models.RoleAdmin || p.Role == models.RoleSupervisor
}

// CanRunJobs guards the manual batch-job trigger endpoints
func (RequestPolicy) CanRunJobs(p Principal) bool {
	return p.Role == models.RoleAdmin
}
