package models

import (
	"time"

	"github.com/google/uuid"
)

// ContributionStatus is the state of a funding pledge. A pending recede is
// not a status of its own: the row stays committed (and keeps counting toward
// the 100% target) with RecedeRequestedAt set until an admin approves it.
type ContributionStatus string

const (
	ContributionStatusPending   ContributionStatus = "pending"
	ContributionStatusCommitted ContributionStatus = "committed"
	ContributionStatusReceded   ContributionStatus = "receded"
)

// Contribution is a supplier's percentage pledge against one request.
// Rows are never hard-deleted; receded pledges stay for the audit trail.
type Contribution struct {
	ID                uuid.UUID          `db:"id" json:"id"`
	RequestID         uuid.UUID          `db:"request_id" json:"request_id"`
	SupplierID        uuid.UUID          `db:"supplier_id" json:"supplier_id"`
	Percentage        float64            `db:"percentage" json:"percentage"`
	Status            ContributionStatus `db:"status" json:"status"`
	RecedeRequestedAt *time.Time         `db:"recede_requested_at" json:"recede_requested_at,omitempty"`
	RecededAt         *time.Time         `db:"receded_at" json:"receded_at,omitempty"`
	CreatedAt         time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time          `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Contribution) TableName() string {
	return "contributions"
}

// IsRecedePending reports whether the supplier has asked to withdraw but an
// admin has not yet approved
func (c *Contribution) IsRecedePending() bool {
	return c.Status == ContributionStatusCommitted && c.RecedeRequestedAt != nil
}

// ContributionStats is the funding aggregate for a single request. Sums cover
// committed contributions only.
type ContributionStats struct {
	RequestID           uuid.UUID      `json:"request_id"`
	TotalPercentage     float64        `json:"total_percentage"`
	RemainingPercentage float64        `json:"remaining_percentage"`
	ContributionCount   int            `json:"contribution_count"`
	Contributions       []Contribution `json:"contributions"`
}
