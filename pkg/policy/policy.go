// Package policy holds the capability predicates evaluated at the HTTP
// boundary. Predicates are pure functions of (principal, resource) and carry
// no state; a false result maps to a 403 via Require.
package policy

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/google/uuid"

	requestcontext "github.com/Ramsey-B/clover/pkg/context"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Principal is the acting user as established by the authentication layer
type Principal struct {
	ID          uuid.UUID
	Role        models.Role
	Permissions []string
}

// IsStaff reports whether the role is an internal operations role
func (p Principal) IsStaff() bool {
	switch p.Role {
	case models.RoleAdmin, models.RoleAuditor, models.RoleSupervisor, models.RoleFieldAgent:
		return true
	}
	return false
}

// HasPermission reports whether the principal carries a fine-grained
// permission string
func (p Principal) HasPermission(permission string) bool {
	for _, perm := range p.Permissions {
		if perm == permission {
			return true
		}
	}
	return false
}

// PrincipalFromContext builds the acting principal from the request context.
// Returns a 401 when no authenticated user is present.
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	userID := requestcontext.GetUserID(ctx)
	if userID == "" {
		return Principal{}, httperror.NewHTTPError(http.StatusUnauthorized, "unauthenticated")
	}

	id, err := uuid.Parse(userID)
	if err != nil {
		return Principal{}, httperror.NewHTTPError(http.StatusUnauthorized, "invalid user id")
	}

	return Principal{
		ID:          id,
		Role:        models.Role(requestcontext.GetRole(ctx)),
		Permissions: requestcontext.GetPermissions(ctx),
	}, nil
}

// Require converts a predicate result into an authorization error. The action
// name appears in the error message so callers can tell which check failed.
func Require(allowed bool, action string) error {
	if !allowed {
		return httperror.NewHTTPErrorf(http.StatusForbidden, "not allowed to %s", action)
	}
	return nil
}
