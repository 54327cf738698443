package policy

import "github.com/Ramsey-B/clover/pkg/models"

// ContributionPolicy is the capability set for funding pledges
type ContributionPolicy struct{}

// CanView allows staff, the pledging supplier, and the recipient who owns the
// funded request
func (ContributionPolicy) CanView(p Principal, contribution *models.Contribution, request *models.Request) bool {
	if p.IsStaff() {
		return true
	}
	if contribution.SupplierID == p.ID {
		return true
	}
	return request != nil && request.UserID == p.ID
}

// CanCreate allows suppliers to pledge
func (ContributionPolicy) CanCreate(p Principal) bool {
	return p.Role == models.RoleSupplier || p.Role == models.RoleAdmin
}

// CanRecede allows only the pledging supplier to ask for withdrawal
func (ContributionPolicy) CanRecede(p Principal, contribution *models.Contribution) bool {
	return contribution.SupplierID == p.ID
}

// CanApproveRecede is the admin half of the two-step withdrawal
func (ContributionPolicy) CanApproveRecede(p Principal) bool {
	return p.Role == models.RoleAdmin
}

// CanDelete is always false: receded pledges stay for the audit trail
func (ContributionPolicy) CanDelete(Principal, *models.Contribution) bool {
	return false
}
