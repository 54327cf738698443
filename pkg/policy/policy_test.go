package policy

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	requestcontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

func principal(role models.Role, permissions ...string) Principal {
	return Principal{ID: uuid.New(), Role: role, Permissions: permissions}
}

func TestRequestPolicyCanView(t *testing.T) {
	p := RequestPolicy{}
	owner := principal(models.RoleRecipient)
	other := principal(models.RoleRecipient)
	request := &models.Request{ID: uuid.New(), UserID: owner.ID}

	assert.True(t, p.CanView(owner, request))
	assert.False(t, p.CanView(other, request))
	assert.True(t, p.CanView(principal(models.RoleAdmin), request))
	assert.True(t, p.CanView(principal(models.RoleAuditor), request))
	assert.True(t, p.CanView(principal(models.RoleSupplier), request))
	assert.False(t, p.CanView(principal(models.RoleDriver), request))
}

func TestRequestPolicyCanCreate(t *testing.T) {
	p := RequestPolicy{}

	assert.True(t, p.CanCreate(principal(models.RoleRecipient)))
	assert.True(t, p.CanCreate(principal(models.RoleNGO)))
	assert.True(t, p.CanCreate(principal(models.RoleAdmin)))
	assert.False(t, p.CanCreate(principal(models.RoleSupplier)))
	assert.False(t, p.CanCreate(principal(models.RoleDriver)))
}

func TestRequestPolicyCanUpdateTerminal(t *testing.T) {
	p := RequestPolicy{}
	owner := principal(models.RoleRecipient)

	open := &models.Request{UserID: owner.ID, Status: models.RequestStatusPending}
	closed := &models.Request{UserID: owner.ID, Status: models.RequestStatusClosedNoMatch}

	assert.True(t, p.CanUpdate(owner, open))
	assert.False(t, p.CanUpdate(owner, closed))
	assert.True(t, p.CanUpdate(principal(models.RoleAdmin), closed))
}

func TestRequestPolicyApproveAndAssign(t *testing.T) {
	p := RequestPolicy{}
	request := &models.Request{ID: uuid.New(), Status: models.RequestStatusPending}

	assert.True(t, p.CanApprove(principal(models.RoleAdmin), request))
	assert.True(t, p.CanApprove(principal(models.RoleSupervisor), request))
	assert.False(t, p.CanApprove(principal(models.RoleSupplier), request))
	assert.True(t, p.CanAssignSupplier(principal(models.RoleAdmin), request))
	assert.False(t, p.CanAssignSupplier(principal(models.RoleFieldAgent), request))
}

func TestRequestPolicyCanDeleteAlwaysFalse(t *testing.T) {
	p := RequestPolicy{}
	request := &models.Request{}

	assert.False(t, p.CanDelete(principal(models.RoleAdmin), request))
	assert.False(t, p.CanDelete(principal(models.RoleRecipient), request))
}

func TestContributionPolicyRecede(t *testing.T) {
	p := ContributionPolicy{}
	supplier := principal(models.RoleSupplier)
	contribution := &models.Contribution{SupplierID: supplier.ID}

	assert.True(t, p.CanRecede(supplier, contribution))
	assert.False(t, p.CanRecede(principal(models.RoleSupplier), contribution))
	assert.False(t, p.CanRecede(principal(models.RoleAdmin), contribution))

	assert.True(t, p.CanApproveRecede(principal(models.RoleAdmin)))
	assert.False(t, p.CanApproveRecede(supplier))
}

func TestContributionPolicyCanView(t *testing.T) {
	p := ContributionPolicy{}
	supplier := principal(models.RoleSupplier)
	recipient := principal(models.RoleRecipient)
	contribution := &models.Contribution{SupplierID: supplier.ID}
	request := &models.Request{UserID: recipient.ID}

	assert.True(t, p.CanView(supplier, contribution, request))
	assert.True(t, p.CanView(recipient, contribution, request))
	assert.True(t, p.CanView(principal(models.RoleAuditor), contribution, nil))
	assert.False(t, p.CanView(principal(models.RoleSupplier), contribution, request))
}

func TestRoutePolicyDriverAccess(t *testing.T) {
	p := RoutePolicy{}
	driver := principal(models.RoleDriver)
	route := &models.DeliveryRoute{DriverID: &driver.ID}
	unassigned := &models.DeliveryRoute{}

	assert.True(t, p.CanView(driver, route))
	assert.False(t, p.CanView(driver, unassigned))
	assert.True(t, p.CanUpdateStatus(driver, route))
	assert.False(t, p.CanUpdateStatus(driver, unassigned))
	assert.True(t, p.CanCompleteDelivery(driver, route))
	assert.False(t, p.CanCompleteDelivery(principal(models.RoleDriver), route))
	assert.False(t, p.CanUpdate(driver, route))
}

func TestRoutePolicyFieldAgentPermission(t *testing.T) {
	p := RoutePolicy{}

	assert.False(t, p.CanCreate(principal(models.RoleFieldAgent)))
	assert.True(t, p.CanCreate(principal(models.RoleFieldAgent, PermissionRoutesWrite)))
	assert.True(t, p.CanCreate(principal(models.RoleSupervisor)))
	assert.False(t, p.CanCreate(principal(models.RoleSupplier)))
}

func TestLogisticPolicyRouteTraversal(t *testing.T) {
	p := LogisticPolicy{}
	driver := principal(models.RoleDriver)
	route := &models.DeliveryRoute{DriverID: &driver.ID}
	logistic := &models.Logistic{DeliveryRouteID: route.ID}

	assert.True(t, p.CanView(driver, logistic, route))
	assert.False(t, p.CanView(principal(models.RoleDriver), logistic, route))
	assert.True(t, p.CanAppendLocation(driver, logistic, route))
	assert.False(t, p.CanAppendLocation(principal(models.RoleRecipient), logistic, route))
	assert.False(t, p.CanDelete(principal(models.RoleAdmin), logistic))
}

func TestNotificationPolicyOwnerOnly(t *testing.T) {
	p := NotificationPolicy{}
	owner := principal(models.RoleAdmin)
	notification := &models.Notification{ActorID: owner.ID}

	assert.True(t, p.CanView(owner, notification))
	assert.False(t, p.CanView(principal(models.RoleAdmin), notification))
	assert.True(t, p.CanMarkRead(owner, notification))
}

func TestRequireReturnsForbidden(t *testing.T) {
	assert.NoError(t, Require(true, "view request"))

	err := Require(false, "view request")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "view request")
}

func TestPrincipalFromContext(t *testing.T) {
	id := uuid.New()
	ctx := requestcontext.SetUserID(context.Background(), id.String())
	ctx = requestcontext.SetRole(ctx, string(models.RoleSupervisor))
	ctx = requestcontext.SetPermissions(ctx, []string{PermissionRoutesWrite})

	p, err := PrincipalFromContext(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, p.ID)
	assert.Equal(t, models.RoleSupervisor, p.Role)
	assert.True(t, p.HasPermission(PermissionRoutesWrite))
	assert.True(t, p.IsStaff())
}

func TestPrincipalFromContextUnauthenticated(t *testing.T) {
	_, err := PrincipalFromContext(context.Background())
	require.Error(t, err)

	_, err = PrincipalFromContext(requestcontext.SetUserID(context.Background(), "not-a-uuid"))
	require.Error(t, err)
}
