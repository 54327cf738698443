package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/repositories"
)

// NotificationHandler serves the caller's in-app notification feed
type NotificationHandler struct {
	notifications *repositories.NotificationRepository
	logger        ectologger.Logger
}

// NewNotificationHandler creates a new NotificationHandler
func NewNotificationHandler(notifications *repositories.NotificationRepository, logger ectologger.Logger) *NotificationHandler {
	return &NotificationHandler{
		notifications: notifications,
		logger:        logger,
	}
}

// RegisterRoutes registers notification routes
func (h *NotificationHandler) RegisterRoutes(g *echo.Group) {
	notifications := g.Group("/notifications")
	notifications.GET("", h.List)
	notifications.POST("/:id/read", h.MarkRead)
}

// List retrieves the caller's notifications, newest first
func (h *NotificationHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	unreadOnly := c.QueryParam("unread") == "true"

	notifications, err := h.notifications.ListByActor(ctx, principal.ID, unreadOnly)
	if err != nil {
		return err
	}

	return SuccessResponse(c, notifications)
}

// MarkRead marks one of the caller's notifications as read. Scoping the
// update to the caller makes another actor's notification look missing.
func (h *NotificationHandler) MarkRead(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	if err := h.notifications.MarkRead(ctx, id, principal.ID); err != nil {
		return err
	}

	return NoContentResponse(c)
}
