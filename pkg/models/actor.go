package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// Role is an actor's primary role on the platform
type Role string

const (
	RoleAdmin      Role = "admin"
	RoleAuditor    Role = "auditor"
	RoleSupplier   Role = "supplier"
	RoleRecipient  Role = "recipient"
	RoleDriver     Role = "driver"
	RoleSupervisor Role = "supervisor"
	RoleFieldAgent Role = "field_agent"
	RoleNGO        Role = "ngo"
)

// Valid reports whether the role is one of the closed role set
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleAuditor, RoleSupplier, RoleRecipient, RoleDriver, RoleSupervisor, RoleFieldAgent, RoleNGO:
		return true
	}
	return false
}

// Actor is a platform user. Permissions carries fine-grained permission
// strings for staff sub-roles; most roles leave it empty.
type Actor struct {
	ID          uuid.UUID                `db:"id" json:"id"`
	Name        string                   `db:"name" json:"name"`
	Email       string                   `db:"email" json:"email"`
	Role        Role                     `db:"role" json:"role"`
	Permissions database.JSONB[[]string] `db:"permissions" json:"permissions"`
	IsActive    bool                     `db:"is_active" json:"is_active"`
	CreatedAt   time.Time                `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time                `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Actor) TableName() string {
	return "actors"
}

// HasPermission reports whether the actor carries the given permission string
func (a *Actor) HasPermission(permission string) bool {
	for _, p := range a.Permissions.Data {
		if p == permission {
			return true
		}
	}
	return false
}
