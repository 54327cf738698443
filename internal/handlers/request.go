package handlers

import (
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/policy"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// RequestHandler serves resource request CRUD and lifecycle endpoints
type RequestHandler struct {
	requests *repositories.RequestRepository
	policy   policy.RequestPolicy
	logger   ectologger.Logger
}

// NewRequestHandler creates a new RequestHandler
func NewRequestHandler(requests *repositories.RequestRepository, logger ectologger.Logger) *RequestHandler {
	return &RequestHandler{
		requests: requests,
		logger:   logger,
	}
}

// RegisterRoutes registers request routes
func (h *RequestHandler) RegisterRoutes(g *echo.Group) {
	requests := g.Group("/requests")
	requests.POST("", h.Create)
	requests.GET("", h.List)
	requests.GET("/:id", h.Get)
	requests.PUT("/:id", h.Update)
	requests.POST("/:id/approve", h.Approve)
	requests.POST("/:id/assign", h.AssignSupplier)
	requests.POST("/:id/complete", h.Complete)
}

// CreateRequestBody is the request body for creating a request
type CreateRequestBody struct {
	Title       string     `json:"title" validate:"required,min=1,max=255"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Create creates a new resource request owned by the caller
func (h *RequestHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanCreate(principal), "create requests"); err != nil {
		return err
	}

	body, err := utils.BindRequest[CreateRequestBody](c)
	if err != nil {
		return err
	}

	request := &models.Request{
		UserID:      principal.ID,
		Title:       body.Title,
		Description: body.Description,
		Status:      models.RequestStatusPending,
		ExpiresAt:   body.ExpiresAt,
	}

	if err := h.requests.Create(ctx, request); err != nil {
		return err
	}

	return CreatedResponse(c, request)
}

// List retrieves requests visible to the caller. Recipients only see their
// own requests; staff and suppliers see everything.
func (h *RequestHandler) List(c echo.Context) error {
	ctx := c.Request().Context()

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	filter := repositories.ListFilter{
		FlaggedOnly: c.QueryParam("flagged") == "true",
	}
	if statusStr := c.QueryParam("status"); statusStr != "" {
		status := models.RequestStatus(statusStr)
		filter.Status = &status
	}
	if principal.Role == models.RoleRecipient || principal.Role == models.RoleDriver {
		filter.UserID = &principal.ID
	}

	requests, err := h.requests.List(ctx, filter)
	if err != nil {
		return err
	}

	return SuccessResponse(c, requests)
}

// Get retrieves a request by ID. Requests the caller may not see are
// reported as missing rather than forbidden.
func (h *RequestHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	request, err := h.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !h.policy.CanView(principal, request) {
		return NotFound("request not found")
	}

	return SuccessResponse(c, request)
}

// UpdateRequestBody is the request body for updating a request
type UpdateRequestBody struct {
	Title       string     `json:"title" validate:"required,min=1,max=255"`
	Description *string    `json:"description,omitempty" validate:"omitempty,max=2000"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// Update edits a request's caller-editable fields
func (h *RequestHandler) Update(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	request, err := h.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if !h.policy.CanView(principal, request) {
		return NotFound("request not found")
	}
	if err := policy.Require(h.policy.CanUpdate(principal, request), "update this request"); err != nil {
		return err
	}

	body, err := utils.BindRequest[UpdateRequestBody](c)
	if err != nil {
		return err
	}

	request.Title = body.Title
	request.Description = body.Description
	request.ExpiresAt = body.ExpiresAt

	if err := h.requests.Update(ctx, request); err != nil {
		return err
	}

	return SuccessResponse(c, request)
}

// Approve moves a pending request into the matchable pool
func (h *RequestHandler) Approve(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	request, err := h.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanApprove(principal, request), "approve requests"); err != nil {
		return err
	}

	if err := h.requests.UpdateStatus(ctx, id, models.RequestStatusApproved); err != nil {
		return err
	}

	updated, err := h.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, updated)
}

// AssignSupplierBody is the request body for assigning a supplier
type AssignSupplierBody struct {
	SupplierID string `json:"supplier_id" validate:"required,uuid"`
}

// AssignSupplier assigns a supplier to a request, matching it
func (h *RequestHandler) AssignSupplier(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	request, err := h.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanAssignSupplier(principal, request), "assign suppliers"); err != nil {
		return err
	}

	body, err := utils.BindRequest[AssignSupplierBody](c)
	if err != nil {
		return err
	}
	supplierID, err := uuid.Parse(body.SupplierID)
	if err != nil {
		return BadRequest("invalid supplier_id")
	}

	if err := h.requests.AssignSupplier(ctx, id, supplierID); err != nil {
		return err
	}

	updated, err := h.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, updated)
}

// Complete marks a request as fulfilled
func (h *RequestHandler) Complete(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	request, err := h.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanUpdate(principal, request), "complete this request"); err != nil {
		return err
	}

	if err := h.requests.UpdateStatus(ctx, id, models.RequestStatusCompleted); err != nil {
		return err
	}

	updated, err := h.requests.GetByID(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, updated)
}
