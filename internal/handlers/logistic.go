package handlers

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/policy"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// LogisticHandler serves shipment tracking endpoints
type LogisticHandler struct {
	logistics *repositories.LogisticRepository
	routes    *repositories.RouteRepository
	policy    policy.LogisticPolicy
	logger    ectologger.Logger
}

// NewLogisticHandler creates a new LogisticHandler
func NewLogisticHandler(logistics *repositories.LogisticRepository, routes *repositories.RouteRepository, logger ectologger.Logger) *LogisticHandler {
	return &LogisticHandler{
		logistics: logistics,
		routes:    routes,
		logger:    logger,
	}
}

// RegisterRoutes registers logistic routes
func (h *LogisticHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/routes/:id/logistic", h.GetByRoute)

	logistic := g.Group("/logistics")
	logistic.GET("/:id", h.Get)
	logistic.GET("/tracking/:number", h.GetByTrackingNumber)
	logistic.POST("/:id/locations", h.AppendLocation)
}

// Get retrieves a logistics record by ID
func (h *LogisticHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	logistic, err := h.logistics.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return h.respond(c, principal, logistic)
}

// GetByRoute retrieves the logistics record for a delivery route
func (h *LogisticHandler) GetByRoute(c echo.Context) error {
	ctx := c.Request().Context()

	routeID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	logistic, err := h.logistics.GetByRouteID(ctx, routeID)
	if err != nil {
		return err
	}

	return h.respond(c, principal, logistic)
}

// GetByTrackingNumber retrieves a logistics record by tracking number
func (h *LogisticHandler) GetByTrackingNumber(c echo.Context) error {
	ctx := c.Request().Context()

	number := c.Param("number")
	if number == "" {
		return BadRequest("missing tracking number")
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	logistic, err := h.logistics.GetByTrackingNumber(ctx, number)
	if err != nil {
		return err
	}

	return h.respond(c, principal, logistic)
}

func (h *LogisticHandler) respond(c echo.Context, principal policy.Principal, logistic *models.Logistic) error {
	ctx := c.Request().Context()

	route, err := h.routes.GetByID(ctx, logistic.DeliveryRouteID)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanView(principal, logistic, route), "view this shipment"); err != nil {
		return err
	}

	return SuccessResponse(c, logistic)
}

// AppendLocationBody is the request body for recording a location update
type AppendLocationBody struct {
	Latitude  float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Note      string  `json:"note,omitempty" validate:"omitempty,max=500"`
}

// AppendLocation records a location update on a shipment
func (h *LogisticHandler) AppendLocation(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	logistic, err := h.logistics.GetByID(ctx, id)
	if err != nil {
		return err
	}
	route, err := h.routes.GetByID(ctx, logistic.DeliveryRouteID)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanAppendLocation(principal, logistic, route), "record locations for this shipment"); err != nil {
		return err
	}

	body, err := utils.BindRequest[AppendLocationBody](c)
	if err != nil {
		return err
	}

	update := models.LocationUpdate{
		Latitude:   body.Latitude,
		Longitude:  body.Longitude,
		Note:       body.Note,
		RecordedAt: time.Now().UTC(),
	}

	if err := h.logistics.AppendLocation(ctx, id, update); err != nil {
		return err
	}

	updated, err := h.logistics.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, updated)
}
