package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// LocationUpdate is one GPS ping recorded against a shipment
type LocationUpdate struct {
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Note       string    `json:"note,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Logistic is the tracking record shadowing a delivery route. Exactly one per
// route, created when the route is created and kept in step by the bridge.
type Logistic struct {
	ID              uuid.UUID                        `db:"id" json:"id"`
	DeliveryRouteID uuid.UUID                        `db:"delivery_route_id" json:"delivery_route_id"`
	AllocationID    uuid.UUID                        `db:"allocation_id" json:"allocation_id"`
	TrackingNumber  string                           `db:"tracking_number" json:"tracking_number"`
	Status          string                           `db:"status" json:"status"`
	LocationUpdates database.JSONB[[]LocationUpdate] `db:"location_updates" json:"location_updates"`
	DeliveredAt     *time.Time                       `db:"delivered_at" json:"delivered_at,omitempty"`
	CreatedAt       time.Time                        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time                        `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Logistic) TableName() string {
	return "logistics"
}
