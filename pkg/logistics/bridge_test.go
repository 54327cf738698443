package logistics

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

type fakeLogisticStore struct {
	byRoute   map[uuid.UUID]*models.Logistic
	insertErr error
	updateErr error
}

func newFakeLogisticStore() *fakeLogisticStore {
	return &fakeLogisticStore{byRoute: map[uuid.UUID]*models.Logistic{}}
}

func (s *fakeLogisticStore) Insert(_ context.Context, _ database.Tx, logistic *models.Logistic) (bool, error) {
	if s.insertErr != nil {
		return false, s.insertErr
	}
	if _, exists := s.byRoute[logistic.DeliveryRouteID]; exists {
		return false, nil
	}
	if logistic.ID == uuid.Nil {
		logistic.ID = uuid.New()
	}
	copied := *logistic
	s.byRoute[logistic.DeliveryRouteID] = &copied
	return true, nil
}

func (s *fakeLogisticStore) UpdateStatusByRouteID(_ context.Context, _ database.Tx, routeID uuid.UUID, status string) (bool, error) {
	if s.updateErr != nil {
		return false, s.updateErr
	}
	logistic, ok := s.byRoute[routeID]
	if !ok {
		return false, nil
	}
	logistic.Status = status
	return true, nil
}

func allocatedRoute() *models.DeliveryRoute {
	allocationID := uuid.New()
	return &models.DeliveryRoute{
		ID:           uuid.New(),
		AllocationID: &allocationID,
		Origin:       "Warehouse 3",
		Destination:  "Community Center",
		Status:       models.RouteStatusScheduled,
	}
}

func TestOnRouteCreatedCreatesLogistic(t *testing.T) {
	store := newFakeLogisticStore()
	bridge := NewBridge(store, testLogger())
	route := allocatedRoute()

	logistic, err := bridge.OnRouteCreated(context.Background(), nil, route)
	require.NoError(t, err)
	require.NotNil(t, logistic)
	assert.Equal(t, route.ID, logistic.DeliveryRouteID)
	assert.Equal(t, *route.AllocationID, logistic.AllocationID)
	assert.Equal(t, models.RouteStatusScheduled, logistic.Status)
	assert.NotEmpty(t, logistic.TrackingNumber)
	assert.Empty(t, logistic.LocationUpdates.Data)
}

func TestOnRouteCreatedWithoutAllocationIsNoOp(t *testing.T) {
	store := newFakeLogisticStore()
	bridge := NewBridge(store, testLogger())
	route := &models.DeliveryRoute{ID: uuid.New(), Status: models.RouteStatusScheduled}

	logistic, err := bridge.OnRouteCreated(context.Background(), nil, route)
	require.NoError(t, err)
	assert.Nil(t, logistic)
	assert.Empty(t, store.byRoute)
}

func TestOnRouteCreatedReplaySafe(t *testing.T) {
	store := newFakeLogisticStore()
	bridge := NewBridge(store, testLogger())
	route := allocatedRoute()

	first, err := bridge.OnRouteCreated(context.Background(), nil, route)
	require.NoError(t, err)
	require.NotNil(t, first)

	// firing the creation event again must not create a second logistic
	second, err := bridge.OnRouteCreated(context.Background(), nil, route)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Len(t, store.byRoute, 1)
	assert.Equal(t, first.TrackingNumber, store.byRoute[route.ID].TrackingNumber)
}

func TestOnRouteUpdatedMirrorsStatusChange(t *testing.T) {
	store := newFakeLogisticStore()
	bridge := NewBridge(store, testLogger())
	route := allocatedRoute()

	_, err := bridge.OnRouteCreated(context.Background(), nil, route)
	require.NoError(t, err)

	previous := route.Status
	route.Status = models.RouteStatusInTransit
	err = bridge.OnRouteUpdated(context.Background(), nil, route, previous)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStatusInTransit, store.byRoute[route.ID].Status)
}

func TestOnRouteUpdatedUnchangedStatusDoesNotCascade(t *testing.T) {
	store := newFakeLogisticStore()
	bridge := NewBridge(store, testLogger())
	route := allocatedRoute()

	_, err := bridge.OnRouteCreated(context.Background(), nil, route)
	require.NoError(t, err)

	// a non-status edit must leave the logistic alone even if the update
	// path would fail
	store.updateErr = errors.New("should not be called")
	route.Destination = "New Destination"
	err = bridge.OnRouteUpdated(context.Background(), nil, route, route.Status)
	require.NoError(t, err)
}

func TestOnRouteUpdatedWithoutLogisticIsNoOp(t *testing.T) {
	store := newFakeLogisticStore()
	bridge := NewBridge(store, testLogger())
	route := &models.DeliveryRoute{ID: uuid.New(), Status: models.RouteStatusInTransit}

	err := bridge.OnRouteUpdated(context.Background(), nil, route, models.RouteStatusScheduled)
	require.NoError(t, err)
}

func TestNewTrackingNumberFormat(t *testing.T) {
	routeID := uuid.New()
	number := NewTrackingNumber(routeID)

	assert.Regexp(t, regexp.MustCompile(`^TRK-[0-9A-F]{8}-[0-9A-F]{8}$`), number)

	// the route fragment ties the number to its route
	fragment := strings.ToLower(number[len(number)-8:])
	assert.Contains(t, strings.ReplaceAll(routeID.String(), "-", ""), fragment)
}

func TestNewTrackingNumberUniquePerRoute(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		number := NewTrackingNumber(uuid.New())
		assert.False(t, seen[number], "duplicate tracking number %s", number)
		seen[number] = true
	}
}
