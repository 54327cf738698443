package policy

import "github.com/Ramsey-B/clover/pkg/models"

// NotificationPolicy is the capability set for in-app notifications
type NotificationPolicy struct{}

// CanView allows only the recipient of the notification
func (NotificationPolicy) CanView(p Principal, notification *models.Notification) bool {
	return notification.ActorID == p.ID
}

// CanMarkRead allows only the recipient
func (NotificationPolicy) CanMarkRead(p Principal, notification *models.Notification) bool {
	return notification.ActorID == p.ID
}
