package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/notify"
	"github.com/Ramsey-B/clover/pkg/policy"
	"github.com/Ramsey-B/clover/pkg/repositories"
	"github.com/Ramsey-B/clover/pkg/utils"
)

// ContributionHandler serves pledge endpoints backed by the contribution ledger
type ContributionHandler struct {
	ledger        *ledger.Ledger
	contributions *repositories.ContributionRepository
	requests      *repositories.RequestRepository
	fanout        *notify.Fanout
	policy        policy.ContributionPolicy
	requestPolicy policy.RequestPolicy
	logger        ectologger.Logger
}

// NewContributionHandler creates a new ContributionHandler
func NewContributionHandler(
	contributionLedger *ledger.Ledger,
	contributions *repositories.ContributionRepository,
	requests *repositories.RequestRepository,
	fanout *notify.Fanout,
	logger ectologger.Logger,
) *ContributionHandler {
	return &ContributionHandler{
		ledger:        contributionLedger,
		contributions: contributions,
		requests:      requests,
		fanout:        fanout,
		logger:        logger,
	}
}

// RegisterRoutes registers contribution routes
func (h *ContributionHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/requests/:id/contributions", h.Create)
	g.GET("/requests/:id/contributions/stats", h.Stats)

	contributions := g.Group("/contributions")
	contributions.GET("/:id", h.Get)
	contributions.POST("/:id/recede", h.Recede)
	contributions.POST("/:id/recede/approve", h.ApproveRecede)
}

// CreateContributionBody is the request body for pledging a contribution
type CreateContributionBody struct {
	Percentage float64 `json:"percentage" validate:"required,gt=0,lte=100"`
}

// Create pledges a percentage of a request on behalf of the caller. The
// updated contribution totals for the request are returned.
func (h *ContributionHandler) Create(c echo.Context) error {
	ctx := c.Request().Context()

	requestID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanCreate(principal), "pledge contributions"); err != nil {
		return err
	}

	body, err := utils.BindRequest[CreateContributionBody](c)
	if err != nil {
		return err
	}

	stats, err := h.ledger.Create(ctx, requestID, principal.ID, body.Percentage)
	if err != nil {
		return err
	}

	return CreatedResponse(c, stats)
}

// Stats returns the contribution totals and rows for a request
func (h *ContributionHandler) Stats(c echo.Context) error {
	ctx := c.Request().Context()

	requestID, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	request, err := h.requests.GetByID(ctx, requestID)
	if err != nil {
		return err
	}
	if !h.requestPolicy.CanView(principal, request) {
		return NotFound("request not found")
	}

	stats, err := h.ledger.Stats(ctx, requestID)
	if err != nil {
		return err
	}

	return SuccessResponse(c, stats)
}

// Get retrieves a contribution by ID
func (h *ContributionHandler) Get(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	contribution, err := h.contributions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	request, err := h.requests.GetByID(ctx, contribution.RequestID)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanView(principal, contribution, request), "view this contribution"); err != nil {
		return err
	}

	return SuccessResponse(c, contribution)
}

// Recede requests withdrawal of a committed contribution. The pledge keeps
// counting against the request until an admin approves the withdrawal.
func (h *ContributionHandler) Recede(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}

	contribution, err := h.contributions.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanRecede(principal, contribution), "recede this contribution"); err != nil {
		return err
	}

	updated, err := h.ledger.Recede(ctx, id)
	if err != nil {
		return err
	}

	if _, err := h.fanout.NotifyRecedeRequested(ctx, updated); err != nil {
		h.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"contribution_id": id,
		}).Error("failed to notify admins of recede request")
	}

	return SuccessResponse(c, updated)
}

// ApproveRecede approves a pending withdrawal, releasing the pledged capacity
func (h *ContributionHandler) ApproveRecede(c echo.Context) error {
	ctx := c.Request().Context()

	id, err := ParseUUID(c, "id")
	if err != nil {
		return err
	}

	principal, err := GetPrincipal(c)
	if err != nil {
		return err
	}
	if err := policy.Require(h.policy.CanApproveRecede(principal), "approve recede requests"); err != nil {
		return err
	}

	updated, err := h.ledger.ApproveRecede(ctx, id)
	if err != nil {
		return err
	}

	return SuccessResponse(c, updated)
}
