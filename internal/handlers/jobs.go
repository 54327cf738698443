package handlers

import (
	"github.com/Gobusters/ectologger"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/lifecycle"
	"github.com/Ramsey-B/clover/pkg/policy"
)

// JobsHandler exposes manual triggers for the lifecycle batch jobs
type JobsHandler struct {
	service *lifecycle.Service
	policy  policy.RequestPolicy
	logger  ectologger.Logger
}

// NewJobsHandler creates a new JobsHandler
func NewJobsHandler(service *lifecycle.Service, logger ectologger.Logger) *JobsHandler {
	return &JobsHandler{
		service: service,
		logger:  logger,
	}
}

// RegisterRoutes registers job trigger routes
func (h *JobsHandler) RegisterRoutes(g *echo.Group) {
	jobs := g.Group("/jobs")
	jobs.POST("/flag-unmatched", h.FlagUnmatched)
	jobs.POST("/close-unmatched", h.CloseUnmatched)
}

// FlagUnmatched flags stale unmatched requests for review. An optional
// body {"days": n} overrides the default window.
func (h *JobsHandler) FlagUnmatched(c echo.Context) error {
	ctx := c.Request().Context()

	days, err := h.authorize(c)
	if err != nil {
		return err
	}

	result, err := h.service.FlagUnmatched(ctx, days)
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}

// CloseUnmatched closes stale or expired unmatched requests
func (h *JobsHandler) CloseUnmatched(c echo.Context) error {
	ctx := c.Request().Context()

	days, err := h.authorize(c)
	if err != nil {
		return err
	}

	result, err := h.service.CloseUnmatched(ctx, days)
	if err != nil {
		return err
	}

	return SuccessResponse(c, result)
}

// RunJobBody is the optional request body for a job trigger
type RunJobBody struct {
	Days int `json:"days"`
}

func (h *JobsHandler) authorize(c echo.Context) (int, error) {
	principal, err := GetPrincipal(c)
	if err != nil {
		return 0, err
	}
	if err := policy.Require(h.policy.CanRunJobs(principal), "run lifecycle jobs"); err != nil {
		return 0, err
	}

	var body RunJobBody
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return 0, BadRequest("invalid job body")
		}
		if body.Days < 0 {
			return 0, BadRequest("days must be a positive integer")
		}
	}

	return body.Days, nil
}
