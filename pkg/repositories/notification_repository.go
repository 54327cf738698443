package repositories

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const notificationsTable = "notifications"

var notificationStruct = database.NewStruct(new(models.Notification))

// NotificationRepository handles database operations for notifications
type NotificationRepository struct {
	*Repository
}

// NewNotificationRepository creates a new notification repository
func NewNotificationRepository(db database.DB, logger ectologger.Logger) *NotificationRepository {
	return &NotificationRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create persists one notification for one recipient
func (r *NotificationRepository) Create(ctx context.Context, notification *models.Notification) error {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.Create")
	defer span.End()

	if notification.ID == uuid.Nil {
		notification.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(notificationsTable).
		Cols("id", "actor_id", "type", "message", "metadata", "is_read", "created_at", "updated_at").
		Values(notification.ID, notification.ActorID, notification.Type, notification.Message,
			notification.Metadata, false, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&notification.CreatedAt, &notification.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"notification_id": notification.ID,
			"actor_id":        notification.ActorID,
		}).Error("failed to create notification")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create notification")
	}

	return nil
}

// ListByActor retrieves an actor's notifications, newest first
func (r *NotificationRepository) ListByActor(ctx context.Context, actorID uuid.UUID, unreadOnly bool) ([]models.Notification, error) {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.ListByActor")
	defer span.End()

	sb := notificationStruct.SelectFrom(notificationsTable)
	sb.Where(sb.Equal("actor_id", actorID))
	if unreadOnly {
		sb.Where(sb.Equal("is_read", false))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	var notifications []models.Notification
	err := r.DB().SelectContext(ctx, &notifications, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"actor_id": actorID,
		}).Error("failed to list notifications")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list notifications")
	}

	return notifications, nil
}

// MarkRead marks one of the actor's notifications as read
func (r *NotificationRepository) MarkRead(ctx context.Context, id uuid.UUID, actorID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "NotificationRepository.MarkRead")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(notificationsTable).
		Set(
			ub.Assign("is_read", true),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", id), ub.Equal("actor_id", actorID))

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"notification_id": id,
		}).Error("failed to mark notification read")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark notification read")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "notification %s does not exist", id)
	}

	return nil
}
