package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const logisticsTable = "logistics"

var logisticStruct = database.NewStruct(new(models.Logistic))

// LogisticRepository handles database operations for logistics
type LogisticRepository struct {
	*Repository
}

// NewLogisticRepository creates a new logistic repository
func NewLogisticRepository(db database.DB, logger ectologger.Logger) *LogisticRepository {
	return &LogisticRepository{
		Repository: NewRepository(db, logger),
	}
}

// Insert writes a logistic inside the caller's transaction. The unique
// delivery_route_id constraint plus DO NOTHING makes a replayed creation
// event a no-op instead of a duplicate row. Returns false when the row
// already existed.
func (r *LogisticRepository) Insert(ctx context.Context, tx database.Tx, logistic *models.Logistic) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "LogisticRepository.Insert")
	defer span.End()

	if logistic.ID == uuid.Nil {
		logistic.ID = uuid.New()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(logisticsTable).
		Cols("id", "delivery_route_id", "allocation_id", "tracking_number", "status", "location_updates", "created_at", "updated_at").
		Values(logistic.ID, logistic.DeliveryRouteID, logistic.AllocationID, logistic.TrackingNumber,
			logistic.Status, logistic.LocationUpdates, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		OnConflictDoNothing("delivery_route_id")

	query, args := ib.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"logistic_id": logistic.ID,
			"route_id":    logistic.DeliveryRouteID,
		}).Error("failed to create logistic")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create logistic")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create logistic")
	}
	if rows == 0 {
		return false, nil
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"logistic_id":     logistic.ID,
		"route_id":        logistic.DeliveryRouteID,
		"tracking_number": logistic.TrackingNumber,
	}).Debugf("Created %s", logisticsTable)
	return true, nil
}

// GetByID retrieves a logistic by ID
func (r *LogisticRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Logistic, error) {
	ctx, span := tracing.StartSpan(ctx, "LogisticRepository.GetByID")
	defer span.End()

	sb := logisticStruct.SelectFrom(logisticsTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var logistic models.Logistic
	err := r.DB().GetContext(ctx, &logistic, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "logistic %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"logistic_id": id,
		}).Error("failed to get logistic by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get logistic by ID")
	}

	return &logistic, nil
}

// GetByRouteID retrieves the logistic owned by a route
func (r *LogisticRepository) GetByRouteID(ctx context.Context, routeID uuid.UUID) (*models.Logistic, error) {
	ctx, span := tracing.StartSpan(ctx, "LogisticRepository.GetByRouteID")
	defer span.End()

	sb := logisticStruct.SelectFrom(logisticsTable)
	sb.Where(sb.Equal("delivery_route_id", routeID))

	query, args := sb.Build()
	var logistic models.Logistic
	err := r.DB().GetContext(ctx, &logistic, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "no logistic exists for route %s", routeID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"route_id": routeID,
		}).Error("failed to get logistic by route ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get logistic by route ID")
	}

	return &logistic, nil
}

// GetByTrackingNumber retrieves a logistic by its public tracking number
func (r *LogisticRepository) GetByTrackingNumber(ctx context.Context, trackingNumber string) (*models.Logistic, error) {
	ctx, span := tracing.StartSpan(ctx, "LogisticRepository.GetByTrackingNumber")
	defer span.End()

	sb := logisticStruct.SelectFrom(logisticsTable)
	sb.Where(sb.Equal("tracking_number", trackingNumber))

	query, args := sb.Build()
	var logistic models.Logistic
	err := r.DB().GetContext(ctx, &logistic, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "tracking number %s does not exist", trackingNumber)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"tracking_number": trackingNumber,
		}).Error("failed to get logistic by tracking number")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get logistic by tracking number")
	}

	return &logistic, nil
}

// UpdateStatusByRouteID mirrors a route status change onto the owned
// logistic, in the same transaction as the route update. Returns false when
// the route has no logistic, which callers treat as a benign no-op.
func (r *LogisticRepository) UpdateStatusByRouteID(ctx context.Context, tx database.Tx, routeID uuid.UUID, status string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "LogisticRepository.UpdateStatusByRouteID")
	defer span.End()

	ub := database.NewUpdateBuilder()
	ub.Update(logisticsTable).
		Set(
			ub.Assign("status", status),
			ub.Assign("updated_at", sqlbuilder.Raw("NOW()")),
		).
		Where(ub.Equal("delivery_route_id", routeID))
	if status == models.RouteStatusDelivered {
		ub.SetMore(ub.Assign("delivered_at", sqlbuilder.Raw("NOW()")))
	}

	query, args := ub.Build()
	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"route_id": routeID,
			"status":   status,
		}).Error("failed to mirror route status onto logistic")
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update logistic status")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update logistic status")
	}

	return rows > 0, nil
}

// AppendLocation appends one GPS ping to the logistic's location history
func (r *LogisticRepository) AppendLocation(ctx context.Context, id uuid.UUID, update models.LocationUpdate) error {
	ctx, span := tracing.StartSpan(ctx, "LogisticRepository.AppendLocation")
	defer span.End()

	data, err := json.Marshal([]models.LocationUpdate{update})
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to encode location update")
	}

	query := `
		UPDATE logistics
		SET location_updates = location_updates || $2::jsonb,
			updated_at = NOW()
		WHERE id = $1`

	result, err := r.DB().ExecContext(ctx, query, id, data)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"logistic_id": id,
		}).Error("failed to append location update")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append location update")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to append location update")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "logistic %s does not exist", id)
	}

	return nil
}
