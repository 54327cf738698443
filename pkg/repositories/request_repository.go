package repositories

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const requestsTable = "requests"

var requestStruct = database.NewStruct(new(models.Request))

// unmatchedCondition selects requests that are still open, have no assigned
// supplier, and carry no committed contribution. Shared by both batch jobs.
const unmatchedCondition = `
	r.status IN ('pending', 'approved')
	AND r.assigned_supplier_id IS NULL
	AND NOT EXISTS (
		SELECT 1 FROM contributions c
		WHERE c.request_id = r.id AND c.status = 'committed'
	)`

// RequestRepository handles database operations for requests
type RequestRepository struct {
	*Repository
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db database.DB, logger ectologger.Logger) *RequestRepository {
	return &RequestRepository{
		Repository: NewRepository(db, logger),
	}
}

// Create creates a new request owned by the acting user
func (r *RequestRepository) Create(ctx context.Context, request *models.Request) error {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.Create")
	defer span.End()

	if request.ID == uuid.Nil {
		request.ID = uuid.New()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(requestsTable).
		Cols("id", "user_id", "title", "description", "status", "expires_at", "created_at", "updated_at").
		Values(request.ID, request.UserID, request.Title, request.Description, request.Status, request.ExpiresAt,
			sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&request.CreatedAt, &request.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": request.ID,
		}).Error("failed to create request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create request")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id": request.ID,
	}).Debugf("Created %s", requestsTable)
	return nil
}

// GetByID retrieves a request by ID
func (r *RequestRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Request, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.GetByID")
	defer span.End()

	sb := requestStruct.SelectFrom(requestsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var request models.Request
	err := r.DB().GetContext(ctx, &request, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "request %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": id,
		}).Error("failed to get request by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get request by ID")
	}

	return &request, nil
}

// GetByIDForUpdate retrieves a request with a row lock. Callers must already
// hold an open transaction in the context; the lock serializes concurrent
// contribution creation per request.
func (r *RequestRepository) GetByIDForUpdate(ctx context.Context, tx database.Tx, id uuid.UUID) (*models.Request, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.GetByIDForUpdate")
	defer span.End()

	sb := requestStruct.SelectFrom(requestsTable)
	sb.Where(sb.Equal("id", id))
	sb.ForUpdate()

	query, args := sb.Build()
	var request models.Request
	err := tx.GetContext(ctx, &request, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "request %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": id,
		}).Error("failed to lock request")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock request")
	}

	return &request, nil
}

// ListFilter narrows the List result set
type ListFilter struct {
	Status      *models.RequestStatus
	UserID      *uuid.UUID
	FlaggedOnly bool
}

// List retrieves requests matching the filter, newest first
func (r *RequestRepository) List(ctx context.Context, filter ListFilter) ([]models.Request, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.List")
	defer span.End()

	sb := requestStruct.SelectFrom(requestsTable)
	if filter.Status != nil {
		sb.Where(sb.Equal("status", *filter.Status))
	}
	if filter.UserID != nil {
		sb.Where(sb.Equal("user_id", *filter.UserID))
	}
	if filter.FlaggedOnly {
		sb.Where(sb.Equal("is_flagged_for_review", true))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	var requests []models.Request
	err := r.DB().SelectContext(ctx, &requests, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list requests")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list requests")
	}

	return requests, nil
}

// Update updates a request's caller-editable fields
func (r *RequestRepository) Update(ctx context.Context, request *models.Request) error {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.Update")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(requestsTable).
		Set(
			ub.Assign("title", request.Title),
			ub.Assign("description", request.Description),
			ub.Assign("expires_at", request.ExpiresAt),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("id", request.ID))
	ub.SQL("RETURNING updated_at")

	query, args := ub.Build()
	err := r.DB().QueryRowContext(ctx, query, args...).Scan(&request.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "request %s does not exist", request.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": request.ID,
		}).Error("failed to update request")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update request")
	}

	return nil
}

// UpdateStatus moves a request through its lifecycle. Terminal states are
// guarded in SQL so a concurrently closed request cannot be reopened.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status models.RequestStatus) error {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.UpdateStatus")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(requestsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.NotIn("status", models.RequestStatusCompleted, models.RequestStatusClosedNoMatch),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id": id,
			"status":     status,
		}).Error("failed to update request status")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update request status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update request status")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "request %s does not exist or is already closed", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"request_id": id,
		"status":     status,
	}).Debugf("Updated %s status", requestsTable)
	return nil
}

// AssignSupplier records the allocation step's supplier assignment
func (r *RequestRepository) AssignSupplier(ctx context.Context, id uuid.UUID, supplierID uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.AssignSupplier")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(requestsTable).
		Set(
			ub.Assign("assigned_supplier_id", supplierID),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(
			ub.Equal("id", id),
			ub.NotIn("status", models.RequestStatusCompleted, models.RequestStatusClosedNoMatch),
		)

	query, args := ub.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"request_id":  id,
			"supplier_id": supplierID,
		}).Error("failed to assign supplier")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to assign supplier")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to assign supplier")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusConflict, "request %s does not exist or is already closed", id)
	}

	return nil
}

// FlagUnmatched flags every unmatched, not-yet-flagged request created before
// the cutoff. One statement so the whole batch shares a flagged_at timestamp
// and commits atomically. Returns the number of requests flagged.
func (r *RequestRepository) FlagUnmatched(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.FlagUnmatched")
	defer span.End()

	query := `
		UPDATE requests r
		SET is_flagged_for_review = TRUE,
			flagged_at = NOW(),
			updated_at = NOW()
		WHERE ` + unmatchedCondition + `
			AND r.is_flagged_for_review = FALSE
			AND r.created_at < $1`

	result, err := r.DB().ExecContext(ctx, query, cutoff)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"cutoff": cutoff,
		}).Error("failed to flag unmatched requests")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to flag unmatched requests")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to flag unmatched requests")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"count":  count,
		"cutoff": cutoff,
	}).Infof("Flagged unmatched %s", requestsTable)
	return count, nil
}

// CloseUnmatched closes every unmatched request either created before the
// cutoff or past its own expiry, regardless of flag state. Idempotent: the
// status filter excludes requests already closed.
func (r *RequestRepository) CloseUnmatched(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "RequestRepository.CloseUnmatched")
	defer span.End()

	query := `
		UPDATE requests r
		SET status = 'closed_no_match',
			updated_at = NOW()
		WHERE ` + unmatchedCondition + `
			AND (r.created_at < $1 OR r.expires_at < NOW())`

	result, err := r.DB().ExecContext(ctx, query, cutoff)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"cutoff": cutoff,
		}).Error("failed to close unmatched requests")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to close unmatched requests")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to close unmatched requests")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"count":  count,
		"cutoff": cutoff,
	}).Infof("Closed unmatched %s", requestsTable)
	return count, nil
}
