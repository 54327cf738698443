// Package logistics keeps a 1:1 tracking record in step with every delivery
// route. The bridge runs synchronously inside the route mutation's
// transaction so a route change and its mirrored logistic change commit
// together.
package logistics

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// LogisticStore is the logistic access the bridge needs
type LogisticStore interface {
	Insert(ctx context.Context, tx database.Tx, logistic *models.Logistic) (bool, error)
	UpdateStatusByRouteID(ctx context.Context, tx database.Tx, routeID uuid.UUID, status string) (bool, error)
}

// Bridge reacts to delivery route lifecycle events
type Bridge struct {
	logistics LogisticStore
	logger    ectologger.Logger
}

// NewBridge creates a new route-logistics bridge
func NewBridge(logistics LogisticStore, logger ectologger.Logger) *Bridge {
	return &Bridge{
		logistics: logistics,
		logger:    logger,
	}
}

// OnRouteCreated creates the tracking record for a newly created route. A
// route without an allocation is not yet actionable and gets no logistic.
// Replays are harmless: the unique route constraint turns a second insert
// into a no-op.
func (b *Bridge) OnRouteCreated(ctx context.Context, tx database.Tx, route *models.DeliveryRoute) (*models.Logistic, error) {
	ctx, span := tracing.StartSpan(ctx, "Bridge.OnRouteCreated")
	defer span.End()

	if route.AllocationID == nil {
		b.logger.WithContext(ctx).WithFields(map[string]any{
			"route_id": route.ID,
		}).Debug("Route has no allocation, skipping logistic creation")
		return nil, nil
	}

	logistic := &models.Logistic{
		DeliveryRouteID: route.ID,
		AllocationID:    *route.AllocationID,
		TrackingNumber:  NewTrackingNumber(route.ID),
		Status:          models.RouteStatusScheduled,
		LocationUpdates: database.JSONB[[]models.LocationUpdate]{Data: []models.LocationUpdate{}},
	}

	created, err := b.logistics.Insert(ctx, tx, logistic)
	if err != nil {
		return nil, err
	}
	if !created {
		b.logger.WithContext(ctx).WithFields(map[string]any{
			"route_id": route.ID,
		}).Debug("Logistic already exists for route")
		return nil, nil
	}

	metrics.RecordBridgeEvent("route_created")
	b.logger.WithContext(ctx).WithFields(map[string]any{
		"route_id":        route.ID,
		"logistic_id":     logistic.ID,
		"tracking_number": logistic.TrackingNumber,
	}).Info("Created logistic for route")

	return logistic, nil
}

// OnRouteUpdated mirrors a route status change onto the owned logistic. Only
// a changed status cascades; other field edits must not touch the logistic.
// A route without a logistic (created before allocation) is a benign no-op.
func (b *Bridge) OnRouteUpdated(ctx context.Context, tx database.Tx, route *models.DeliveryRoute, previousStatus string) error {
	ctx, span := tracing.StartSpan(ctx, "Bridge.OnRouteUpdated")
	defer span.End()

	if route.Status == previousStatus {
		return nil
	}

	mirrored, err := b.logistics.UpdateStatusByRouteID(ctx, tx, route.ID, route.Status)
	if err != nil {
		return err
	}
	if !mirrored {
		b.logger.WithContext(ctx).WithFields(map[string]any{
			"route_id": route.ID,
		}).Debug("No logistic to mirror for route")
		return nil
	}

	metrics.RecordBridgeEvent("status_mirrored")
	b.logger.WithContext(ctx).WithFields(map[string]any{
		"route_id": route.ID,
		"from":     previousStatus,
		"to":       route.Status,
	}).Info("Mirrored route status onto logistic")

	return nil
}
