package models

import (
	"time"

	"github.com/google/uuid"
)

// Route status is free-form operational text set by logistics staff. These
// are the conventional values; the bridge mirrors whatever text is set.
const (
	RouteStatusScheduled = "Scheduled"
	RouteStatusInTransit = "In Transit"
	RouteStatusDelivered = "Delivered"
	RouteStatusCancelled = "Cancelled"
)

// DeliveryRoute is a planned shipment leg for a matched request. AllocationID
// links the route to the request it fulfills and may be unset while a route
// is still being drafted.
type DeliveryRoute struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	AllocationID *uuid.UUID `db:"allocation_id" json:"allocation_id,omitempty"`
	DriverID     *uuid.UUID `db:"driver_id" json:"driver_id,omitempty"`
	Origin       string     `db:"origin" json:"origin"`
	Destination  string     `db:"destination" json:"destination"`
	Status       string     `db:"status" json:"status"`
	ScheduledAt  *time.Time `db:"scheduled_at" json:"scheduled_at,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (DeliveryRoute) TableName() string {
	return "delivery_routes"
}
