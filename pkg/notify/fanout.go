// Package notify delivers admin notifications over two channels: a persisted
// in-app row and a Kafka event for the email pipeline. Delivery is
// per-recipient isolated; one admin's failure never blocks the rest.
package notify

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// AdminLister enumerates the fanout audience
type AdminLister interface {
	ListActiveAdmins(ctx context.Context) ([]models.Actor, error)
}

// NotificationStore persists the in-app channel
type NotificationStore interface {
	Create(ctx context.Context, notification *models.Notification) error
}

// EventPublisher is the email-like channel. Kafka in production; tests swap
// in a fake.
type EventPublisher interface {
	PublishNotification(ctx context.Context, msg *kafka.NotificationEventMessage) error
	PublishDeliveryFailure(ctx context.Context, msg *kafka.DeliveryFailureMessage) error
}

// Fanout dispatches one notification per active admin
type Fanout struct {
	admins        AdminLister
	notifications NotificationStore
	publisher     EventPublisher
	logger        ectologger.Logger
}

// NewFanout creates a new notification fanout
func NewFanout(admins AdminLister, notifications NotificationStore, publisher EventPublisher, logger ectologger.Logger) *Fanout {
	return &Fanout{
		admins:        admins,
		notifications: notifications,
		publisher:     publisher,
		logger:        logger,
	}
}

// NotifyFlaggedBatch tells every active admin how many requests the flag job
// just marked for review. Called after the batch update has committed, so a
// delivery failure can never roll back the flags. Returns the number of
// admins successfully notified.
func (f *Fanout) NotifyFlaggedBatch(ctx context.Context, flaggedCount int64) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Fanout.NotifyFlaggedBatch")
	defer span.End()

	message := fmt.Sprintf("%d unmatched requests were flagged for review", flaggedCount)
	metadata := map[string]string{
		"flagged_count": fmt.Sprintf("%d", flaggedCount),
	}

	return f.notifyAdmins(ctx, models.NotificationTypeRequestFlagged, message, metadata, int(flaggedCount))
}

// NotifyRecedeRequested tells admins a supplier wants to withdraw a committed
// contribution and is waiting on approval
func (f *Fanout) NotifyRecedeRequested(ctx context.Context, contribution *models.Contribution) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "Fanout.NotifyRecedeRequested")
	defer span.End()

	message := fmt.Sprintf("Supplier %s requested to recede %.2f%% from request %s",
		contribution.SupplierID, contribution.Percentage, contribution.RequestID)
	metadata := map[string]string{
		"contribution_id": contribution.ID.String(),
		"request_id":      contribution.RequestID.String(),
	}

	return f.notifyAdmins(ctx, models.NotificationTypeRecedeRequested, message, metadata, 0)
}

func (f *Fanout) notifyAdmins(ctx context.Context, typ models.NotificationType, message string, metadata map[string]string, flaggedCount int) (int, error) {
	admins, err := f.admins.ListActiveAdmins(ctx)
	if err != nil {
		return 0, err
	}

	delivered := 0
	for _, admin := range admins {
		if err := f.notifyOne(ctx, admin, typ, message, metadata, flaggedCount); err != nil {
			// isolated per recipient
			f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"actor_id": admin.ID,
				"type":     typ,
			}).Error("failed to notify admin")
			continue
		}
		delivered++
	}

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"type":      typ,
		"delivered": delivered,
		"audience":  len(admins),
	}).Info("Notification fanout complete")

	return delivered, nil
}

func (f *Fanout) notifyOne(ctx context.Context, admin models.Actor, typ models.NotificationType, message string, metadata map[string]string, flaggedCount int) error {
	notification := &models.Notification{
		ID:       uuid.New(),
		ActorID:  admin.ID,
		Type:     typ,
		Message:  message,
		Metadata: database.JSONB[map[string]string]{Data: metadata},
	}

	if err := f.notifications.Create(ctx, notification); err != nil {
		metrics.RecordNotification("in_app", "error")
		return err
	}
	metrics.RecordNotification("in_app", "ok")

	event := &kafka.NotificationEventMessage{
		Type:           string(typ),
		NotificationID: notification.ID.String(),
		ActorID:        admin.ID.String(),
		ActorEmail:     admin.Email,
		Message:        message,
		FlaggedCount:   flaggedCount,
		RequestID:      metadata["request_id"],
	}

	if err := f.publisher.PublishNotification(ctx, event); err != nil {
		metrics.RecordNotification("email", "error")
		// the in-app row is already durable; report the email failure and
		// count this recipient as delivered
		f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_id":        admin.ID,
			"notification_id": notification.ID,
		}).Warn("failed to publish notification event")

		failure := &kafka.DeliveryFailureMessage{
			NotificationID: notification.ID.String(),
			ActorID:        admin.ID.String(),
			Reason:         err.Error(),
		}
		if pubErr := f.publisher.PublishDeliveryFailure(ctx, failure); pubErr != nil {
			f.logger.WithContext(ctx).WithError(pubErr).Warn("failed to report delivery failure")
		}
		return nil
	}
	metrics.RecordNotification("email", "ok")

	return nil
}
