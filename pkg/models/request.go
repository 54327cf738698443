package models

import (
	"time"

	"github.com/google/uuid"
)

// RequestStatus is the lifecycle state of a resource request
type RequestStatus string

const (
	RequestStatusPending       RequestStatus = "pending"
	RequestStatusApproved      RequestStatus = "approved"
	RequestStatusCompleted     RequestStatus = "completed"
	RequestStatusClosedNoMatch RequestStatus = "closed_no_match"
)

// IsTerminal reports whether the status permits no further lifecycle mutation
func (s RequestStatus) IsTerminal() bool {
	return s == RequestStatusCompleted || s == RequestStatusClosedNoMatch
}

// Request is a resource need raised by a recipient. It is never deleted, only
// terminally closed.
type Request struct {
	ID                 uuid.UUID     `db:"id" json:"id"`
	UserID             uuid.UUID     `db:"user_id" json:"user_id"`
	Title              string        `db:"title" json:"title"`
	Description        *string       `db:"description" json:"description,omitempty"`
	Status             RequestStatus `db:"status" json:"status"`
	IsFlaggedForReview bool          `db:"is_flagged_for_review" json:"is_flagged_for_review"`
	FlaggedAt          *time.Time    `db:"flagged_at" json:"flagged_at,omitempty"`
	AssignedSupplierID *uuid.UUID    `db:"assigned_supplier_id" json:"assigned_supplier_id,omitempty"`
	ExpiresAt          *time.Time    `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt          time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time     `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Request) TableName() string {
	return "requests"
}
