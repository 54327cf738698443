package handlers

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/logistics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/policy"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// RouteHandler serves delivery route endpoints. Route writes run in a
// transaction so the logistics record stays in lockstep with its route.
type RouteHandler struct {
	db     database.DB
	routes *repositories.RouteRepository
	bridge *logistics.Bridge
	policy policy.RoutePolicy
	logger ectologger.Logger
}

// NewRouteHandler creates a new RouteHandler
func NewRouteHandler(db database.DB, routes *repositories.RouteRepository, bridge *logistics.Bridge, logger ectologger.Logger) *RouteHandler {
	return &RouteHandler{
		db:     db,
		routes: routes,
		bridge: bridge,
		logger: logger,
	}
}

// RegisterRoutes registers delivery route routes
func (h *RouteHandler) RegisterRoutes(g *echo.Group) {
	routes := g.Group("/routes")
	routes.POST("", h.Create)
	routes.GET("", h.List)
	routes.GET("/:id", h.Get)
	routes.PUT("/:id", h.Update)
	routes.PATCH("/:id/status", h.UpdateStatus)
	routes.POST("/:id/complete", h.CompleteDelivery)
	routes.DELETE("/:id", h.Delete)
}

// RouteResponse pairs a route with its logistics record when one exists
type RouteResponse struct {
	Route    *models.DeliveryRoute `json:"route"`
	Logistic *models.Logistic      `json:"logistic,omitempty"`
}

// CreateRouteBody is the request body for creating a delivery route
type CreateRouteBody struct {
	AllocationID *string    `json:"allocation_id,omitempty" validate:"omitempty,uuid"`
	DriverID     *string    `json:"driver_id,omitempty" validate:"omitempty,uuid"`
	Origin       string     `json:"origin" validate:"required,min=1,max=500"`
	Destination  string     `json:"destination" validate:"required,min=1,max=500"`
	ScheduledAt  *time.Time `json:"scheduled_at,omitempty"`
}

// Create creates a delivery route. Routes tied to an allocation get a
// logistics record with a tracking number in the same transaction.
func (h *RouteHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanCreate(principal), "create delivery routes"); err != nil {
		return err
	}

	body, err := utils.BindRequest[CreateRouteBody](c)
	if err != nil {
		return err
	}

	route := &models.DeliveryRoute{
		Origin:      body.Origin,
		Destination: body.Destination,
		Status:      models.RouteStatusScheduled,
		ScheduledAt: body.ScheduledAt,
	}
	if body.AllocationID != nil {
		allocationID, err := uuid.Parse(*body.AllocationID)
		if err != nil {
			return BadRequest("invalid allocation_id")
		}
		route.AllocationID = &allocationID
	}
	if body.DriverID != nil {
		driverID, err := uuid.Parse(*body.DriverID)
		if err != nil {
			return BadRequest("invalid driver_id")
		}
		route.DriverID = &driverID
	}

	txCtx, tx, err := h.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := h.routes.Insert(txCtx, tx, route); err != nil {
		return err
	}

	logistic, err := h.bridge.OnRouteCreated(txCtx, tx, route)
	if err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		h.logger.WithContext(ctx).WithError(err).Error("failed to commit route creation")
		return err
	}

	return CreatedResponse(c, RouteResponse{Route: route, Logistic: logistic})
}

// List retrieves delivery routes. Drivers only see routes assigned to them.
func (h *RouteHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	var driverID *uuid.UUID
	if principal.Role == models.RoleDriver {
		driverID = &principal.ID
	}

	routes, err := h.routes.List(ctx, driverID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, routes)
}

// Get retrieves a delivery route by ID
func (h *RouteHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	route, err := h.routes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanView(principal, route), "view this route"); err != nil {
		return err
	}

	return SuccessResponse(c, route)
}

// UpdateRouteBody is the request body for updating a delivery route
type UpdateRouteBody struct {
	DriverID    *string    `json:"driver_id,omitempty" validate:"omitempty,uuid"`
	Origin      string     `json:"origin" validate:"required,min=1,max=500"`
	Destination string     `json:"destination" validate:"required,min=1,max=500"`
	Status      string     `json:"status" validate:"required,min=1,max=100"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// Update edits a delivery route. A status change is mirrored to the
// route's logistics record inside the same transaction.
func (h *RouteHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	route, err := h.routes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanUpdate(principal, route), "update this route"); err != nil {
		return err
	}

	body, err := utils.BindRequest[UpdateRouteBody](c)
	if err != nil {
		return err
	}

	route.Origin = body.Origin
	route.Destination = body.Destination
	route.Status = body.Status
	route.ScheduledAt = body.ScheduledAt
	route.DriverID = nil
	if body.DriverID != nil {
		driverID, err := uuid.Parse(*body.DriverID)
		if err != nil {
			return BadRequest("invalid driver_id")
		}
		route.DriverID = &driverID
	}

	return h.applyUpdate(c, route)
}

// UpdateRouteStatusBody is the request body for a status-only route update
type UpdateRouteStatusBody struct {
	Status string `json:"status" validate:"required,min=1,max=100"`
}

// UpdateStatus sets a route's status. Assigned drivers may report status
// on their own routes.
func (h *RouteHandler) UpdateStatus(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	route, err := h.routes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanUpdateStatus(principal, route), "update this route's status"); err != nil {
		return err
	}

	body, err := utils.BindRequest[UpdateRouteStatusBody](c)
	if err != nil {
		return err
	}

	route.Status = body.Status

	return h.applyUpdate(c, route)
}

// CompleteDelivery marks a route as delivered
func (h *RouteHandler) CompleteDelivery(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	route, err := h.routes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanCompleteDelivery(principal, route), "complete this delivery"); err != nil {
		return err
	}

	route.Status = models.RouteStatusDelivered

	return h.applyUpdate(c, route)
}

// applyUpdate persists a route edit and mirrors the status change, both in
// one transaction. The prior status comes from the locked row, not from the
// handler's earlier read, so a write racing another writer still mirrors.
func (h *RouteHandler) applyUpdate(c echo.Context, route *models.DeliveryRoute) error {
	ctx := c.Request().Context()

	txCtx, tx, err := h.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	previousStatus, err := h.routes.Update(txCtx, tx, route)
	if err != nil {
		return err
	}

	if err := h.bridge.OnRouteUpdated(txCtx, tx, route, previousStatus); err != nil {
		return err
	}

	if err := tx.Commit(txCtx); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"route_id": route.ID,
		}).Error("failed to commit route update")
		return err
	}

	return SuccessResponse(c, route)
}

// Delete removes a delivery route and its logistics record
func (h *RouteHandler) Delete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	route, err := h.routes.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanDelete(principal, route), "delete this route"); err != nil {
		return err
	}

	if err := h.routes.Delete(ctx, id); err != nil {
		return err
	}

	return NoContentResponse(c)
}
