package repositories

import (
	"context"
	"database/sql"
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

const deliveryRoutesTable = "delivery_routes"

var deliveryRouteStruct = database.NewStruct(new(models.DeliveryRoute))

// RouteRepository handles database operations for delivery routes
type RouteRepository struct {
	*Repository
}

// NewRouteRepository creates a new route repository
func NewRouteRepository(db database.DB, logger ectologger.Logger) *RouteRepository {
	return &RouteRepository{
		Repository: NewRepository(db, logger),
	}
}

// Insert writes a route inside the caller's transaction so the bridge's
// logistic creation commits atomically with it
func (r *RouteRepository) Insert(ctx context.Context, tx database.Tx, route *models.DeliveryRoute) error {
	ctx, span := tracing.StartSpan(ctx, "RouteRepository.Insert")
	defer span.End()

	if route.ID == uuid.Nil {
		route.ID = uuid.New()
	}
	if route.Status == "" {
		route.Status = models.RouteStatusScheduled
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto(deliveryRoutesTable).
		Cols("id", "allocation_id", "driver_id", "origin", "destination", "status", "scheduled_at", "created_at", "updated_at").
		Values(route.ID, route.AllocationID, route.DriverID, route.Origin, route.Destination, route.Status,
			route.ScheduledAt, sqlbuilder.Raw("NOW()"), sqlbuilder.Raw("NOW()")).
		Returning("created_at", "updated_at")

	query, args := ib.Build()
	err := tx.QueryRowContext(ctx, query, args...).Scan(&route.CreatedAt, &route.UpdatedAt)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"route_id": route.ID,
		}).Error("failed to create delivery route")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create delivery route")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"route_id": route.ID,
	}).Debugf("Created %s", deliveryRoutesTable)
	return nil
}

// GetByID retrieves a route by ID
func (r *RouteRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.DeliveryRoute, error) {
	ctx, span := tracing.StartSpan(ctx, "RouteRepository.GetByID")
	defer span.End()

	sb := deliveryRouteStruct.SelectFrom(deliveryRoutesTable)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var route models.DeliveryRoute
	err := r.DB().GetContext(ctx, &route, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "delivery route %s does not exist", id)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"route_id": id,
		}).Error("failed to get delivery route by ID")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get delivery route by ID")
	}

	return &route, nil
}

// List retrieves routes, optionally narrowed to one driver, newest first
func (r *RouteRepository) List(ctx context.Context, driverID *uuid.UUID) ([]models.DeliveryRoute, error) {
	ctx, span := tracing.StartSpan(ctx, "RouteRepository.List")
	defer span.End()

	sb := deliveryRouteStruct.SelectFrom(deliveryRoutesTable)
	if driverID != nil {
		sb.Where(sb.Equal("driver_id", *driverID))
	}
	sb.OrderBy("created_at").Desc()

	query, args := sb.Build()
	var routes []models.DeliveryRoute
	err := r.DB().SelectContext(ctx, &routes, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list delivery routes")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list delivery routes")
	}

	return routes, nil
}

// Update rewrites a route's mutable fields inside the caller's transaction
// and returns the status the row held before the write. The row is locked
// and the prior status is read in the same statement, so the caller can
// detect a genuine status transition even when its earlier snapshot is stale.
func (r *RouteRepository) Update(ctx context.Context, tx database.Tx, route *models.DeliveryRoute) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "RouteRepository.Update")
	defer span.End()

	query := `
		UPDATE delivery_routes
		SET allocation_id = $2,
			driver_id = $3,
			origin = $4,
			destination = $5,
			status = $6,
			scheduled_at = $7,
			updated_at = NOW()
		FROM (SELECT id, status FROM delivery_routes WHERE id = $1 FOR UPDATE) old
		WHERE delivery_routes.id = old.id
		RETURNING old.status, delivery_routes.updated_at`

	var previousStatus string
	err := tx.QueryRowContext(ctx, query, route.ID, route.AllocationID, route.DriverID,
		route.Origin, route.Destination, route.Status, route.ScheduledAt).Scan(&previousStatus, &route.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", httperror.NewHTTPErrorf(http.StatusNotFound, "delivery route %s does not exist", route.ID)
	}
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"route_id": route.ID,
		}).Error("failed to update delivery route")
		return "", httperror.NewHTTPError(http.StatusInternalServerError, "failed to update delivery route")
	}

	return previousStatus, nil
}

// Delete removes a route. The owned logistic goes with it via the cascading
// foreign key.
func (r *RouteRepository) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := tracing.StartSpan(ctx, "RouteRepository.Delete")
	defer span.End()

	db := database.NewDeleteBuilder()
	db.DeleteFrom(deliveryRoutesTable).
		Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := r.DB().ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"route_id": id,
		}).Error("failed to delete delivery route")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete delivery route")
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete delivery route")
	}
	if rows == 0 {
		return httperror.NewHTTPErrorf(http.StatusNotFound, "delivery route %s does not exist", id)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"route_id": id,
	}).Debugf("Deleted %s", deliveryRoutesTable)
	return nil
}
