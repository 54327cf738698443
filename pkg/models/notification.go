package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
)

// NotificationType identifies what kind of event a notification describes
type NotificationType string

const (
	NotificationTypeRequestCreated   NotificationType = "request_created"
	NotificationTypeRecedeRequested  NotificationType = "recede_requested"
	NotificationTypeRequestFlagged   NotificationType = "request_flagged"
	NotificationTypeRequestClosed    NotificationType = "request_closed"
	NotificationTypeDeliveryComplete NotificationType = "delivery_complete"
)

// Notification is a persisted admin notification. One row per recipient so a
// failure delivering to one admin never blocks the others.
type Notification struct {
	ID        uuid.UUID                         `db:"id" json:"id"`
	ActorID   uuid.UUID                         `db:"actor_id" json:"actor_id"`
	Type      NotificationType                  `db:"type" json:"type"`
	Message   string                            `db:"message" json:"message"`
	Metadata  database.JSONB[map[string]string] `db:"metadata" json:"metadata"`
	IsRead    bool                              `db:"is_read" json:"is_read"`
	CreatedAt time.Time                         `db:"created_at" json:"created_at"`
	UpdatedAt time.Time                         `db:"updated_at" json:"updated_at"`
}

// TableName returns the database table name
func (Notification) TableName() string {
	return "notifications"
}
