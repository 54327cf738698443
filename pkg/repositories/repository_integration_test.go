package repositories_test

import (
	"context"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/ledger"
	"github.com/Ramsey-B/clover/pkg/logistics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/repositories"
)

func getTestLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func getTestDB(t *testing.T) database.DB {
	// Use environment variables or defaults for test DB
	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "clover"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	db, err := sqlx.Connect("postgres", dsn)
	require.NoError(t, err, "Failed to connect to test database")

	return database.NewDatabaseInstance(db, getTestLogger())
}

// assertNotFound asserts that err is an HTTP 404 error
func assertNotFound(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err), "expected 404, got: %d", httperror.GetStatusCode(err))
}

// assertConflict asserts that err is an HTTP 409 error
func assertConflict(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err), "expected 409, got: %d", httperror.GetStatusCode(err))
}

// assertUnprocessable asserts that err is an HTTP 422 error
func assertUnprocessable(t *testing.T, err error) {
	t.Helper()
	require.Error(t, err)
	assert.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err), "expected 422, got: %d", httperror.GetStatusCode(err))
}

func createTestActor(t *testing.T, db database.DB, role models.Role) *models.Actor {
	t.Helper()
	repo := repositories.NewActorRepository(db, getTestLogger())

	actor := &models.Actor{
		Name:     "Test " + string(role),
		Email:    uuid.New().String() + "@example.com",
		Role:     role,
		IsActive: true,
	}
	require.NoError(t, repo.Create(context.Background(), actor))
	return actor
}

func createTestRequest(t *testing.T, db database.DB, userID uuid.UUID) *models.Request {
	t.Helper()
	repo := repositories.NewRequestRepository(db, getTestLogger())

	request := &models.Request{
		UserID: userID,
		Title:  "Water filters",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	return request
}

// ageRequest rewrites created_at so the SLA predicates see the request as old
func ageRequest(t *testing.T, db database.DB, id uuid.UUID, days int) {
	t.Helper()
	_, err := db.ExecContext(context.Background(),
		"UPDATE requests SET created_at = NOW() - ($1 || ' days')::interval WHERE id = $2", days, id)
	require.NoError(t, err)
}

func TestRequestRepository_CRUD(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	repo := repositories.NewRequestRepository(db, logger)
	ctx := context.Background()

	recipient := createTestActor(t, db, models.RoleRecipient)
	request := createTestRequest(t, db, recipient.ID)
	assert.NotEqual(t, uuid.Nil, request.ID)
	assert.Equal(t, models.RequestStatusPending, request.Status)
	assert.False(t, request.CreatedAt.IsZero())

	fetched, err := repo.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, request.Title, fetched.Title)

	fetched.Title = "Water filters (200 units)"
	require.NoError(t, repo.Update(ctx, fetched))

	updated, err := repo.GetByID(ctx, request.ID)
	require.NoError(t, err)
	assert.Equal(t, "Water filters (200 units)", updated.Title)

	_, err = repo.GetByID(ctx, uuid.New())
	assertNotFound(t, err)

	// Terminal statuses reject further transitions
	require.NoError(t, repo.UpdateStatus(ctx, request.ID, models.RequestStatusCompleted))
	err = repo.UpdateStatus(ctx, request.ID, models.RequestStatusApproved)
	assertConflict(t, err)
}

func TestRequestRepository_AssignSupplier(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewRequestRepository(db, getTestLogger())
	ctx := context.Background()

	recipient := createTestActor(t, db, models.RoleRecipient)
	supplier := createTestActor(t, db, models.RoleSupplier)
	request := createTestRequest(t, db, recipient.ID)

	require.NoError(t, repo.AssignSupplier(ctx, request.ID, supplier.ID))

	fetched, err := repo.GetByID(ctx, request.ID)
	require.NoError(t, err)
	require.NotNil(t, fetched.AssignedSupplierID)
	assert.Equal(t, supplier.ID, *fetched.AssignedSupplierID)
}

func TestRequestRepository_FlagUnmatched(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewRequestRepository(db, getTestLogger())
	ctx := context.Background()

	recipient := createTestActor(t, db, models.RoleRecipient)
	stale := createTestRequest(t, db, recipient.ID)
	fresh := createTestRequest(t, db, recipient.ID)
	ageRequest(t, db, stale.ID, 45)

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	count, err := repo.FlagUnmatched(ctx, cutoff)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, int64(1))

	flagged, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.True(t, flagged.IsFlaggedForReview)
	require.NotNil(t, flagged.FlaggedAt)

	unflagged, err := repo.GetByID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.False(t, unflagged.IsFlaggedForReview)

	// A second run leaves already flagged rows alone
	firstFlaggedAt := *flagged.FlaggedAt
	_, err = repo.FlagUnmatched(ctx, cutoff)
	require.NoError(t, err)

	again, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	require.NotNil(t, again.FlaggedAt)
	assert.WithinDuration(t, firstFlaggedAt, *again.FlaggedAt, time.Second)
}

func TestRequestRepository_CloseUnmatched(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewRequestRepository(db, getTestLogger())
	contributionRepo := repositories.NewContributionRepository(db, getTestLogger())
	ctx := context.Background()

	recipient := createTestActor(t, db, models.RoleRecipient)
	supplier := createTestActor(t, db, models.RoleSupplier)

	stale := createTestRequest(t, db, recipient.ID)
	backed := createTestRequest(t, db, recipient.ID)
	ageRequest(t, db, stale.ID, 45)
	ageRequest(t, db, backed.ID, 45)

	// A committed contribution keeps the request open
	txCtx, tx, err := db.GetTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, contributionRepo.Insert(txCtx, tx, &models.Contribution{
		RequestID:  backed.ID,
		SupplierID: supplier.ID,
		Percentage: 50,
		Status:     models.ContributionStatusCommitted,
	}))
	require.NoError(t, tx.Commit(txCtx))

	cutoff := time.Now().UTC().AddDate(0, 0, -30)
	count, err := repo.CloseUnmatched(ctx, cutoff)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, count, int64(1))

	closed, err := repo.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusClosedNoMatch, closed.Status)

	open, err := repo.GetByID(ctx, backed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestStatusPending, open.Status)
}

func TestContributionRepository_RecedeFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewContributionRepository(db, getTestLogger())
	ctx := context.Background()

	recipient := createTestActor(t, db, models.RoleRecipient)
	supplier := createTestActor(t, db, models.RoleSupplier)
	request := createTestRequest(t, db, recipient.ID)

	txCtx, tx, err := db.GetTx(ctx, nil)
	require.NoError(t, err)
	contribution := &models.Contribution{
		RequestID:  request.ID,
		SupplierID: supplier.ID,
		Percentage: 40,
		Status:     models.ContributionStatusCommitted,
	}
	require.NoError(t, repo.Insert(txCtx, tx, contribution))
	sum, err := repo.SumCommitted(txCtx, tx, request.ID)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(txCtx))
	assert.InDelta(t, 40, sum, 0.0001)

	// Approving before a recede request is a conflict
	err = repo.ApproveRecede(ctx, contribution.ID)
	assertConflict(t, err)

	require.NoError(t, repo.RequestRecede(ctx, contribution.ID))

	pending, err := repo.GetByID(ctx, contribution.ID)
	require.NoError(t, err)
	assert.True(t, pending.IsRecedePending())
	assert.Equal(t, models.ContributionStatusCommitted, pending.Status)

	// A second recede request is a conflict
	err = repo.RequestRecede(ctx, contribution.ID)
	assertConflict(t, err)

	require.NoError(t, repo.ApproveRecede(ctx, contribution.ID))

	receded, err := repo.GetByID(ctx, contribution.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ContributionStatusReceded, receded.Status)
	require.NotNil(t, receded.RecededAt)
}

func TestLedger_CommitCap(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	requestRepo := repositories.NewRequestRepository(db, logger)
	contributionRepo := repositories.NewContributionRepository(db, logger)
	contributionLedger := ledger.NewLedger(db, requestRepo, contributionRepo, logger)
	ctx := context.Background()

	recipient := createTestActor(t, db, models.RoleRecipient)
	supplier := createTestActor(t, db, models.RoleSupplier)
	request := createTestRequest(t, db, recipient.ID)

	stats, err := contributionLedger.Create(ctx, request.ID, supplier.ID, 60)
	require.NoError(t, err)
	assert.InDelta(t, 60, stats.TotalPercentage, 0.0001)
	assert.InDelta(t, 40, stats.RemainingPercentage, 0.0001)

	// Over the remaining capacity
	_, err = contributionLedger.Create(ctx, request.ID, supplier.ID, 50)
	assertUnprocessable(t, err)

	stats, err = contributionLedger.Create(ctx, request.ID, supplier.ID, 40)
	require.NoError(t, err)
	assert.InDelta(t, 100, stats.TotalPercentage, 0.0001)
	assert.InDelta(t, 0, stats.RemainingPercentage, 0.0001)
	assert.Len(t, stats.Contributions, 2)
}

func TestLedger_FractionalPercentages(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	requestRepo := repositories.NewRequestRepository(db, logger)
	contributionRepo := repositories.NewContributionRepository(db, logger)
	contributionLedger := ledger.NewLedger(db, requestRepo, contributionRepo, logger)
	ctx := context.Background()

	recipient := createTestActor(t, db, models.RoleRecipient)
	supplier := createTestActor(t, db, models.RoleSupplier)
	request := createTestRequest(t, db, recipient.ID)

	// Two-decimal pledges sum without drift in the ledger
	for i := 0; i < 3; i++ {
		_, err := contributionLedger.Create(ctx, request.ID, supplier.ID, 33.33)
		require.NoError(t, err)
	}

	stats, err := contributionLedger.Stats(ctx, request.ID)
	require.NoError(t, err)
	assert.InDelta(t, 99.99, stats.TotalPercentage, 0.0001)
	assert.InDelta(t, 0.01, stats.RemainingPercentage, 0.0001)

	_, err = contributionLedger.Create(ctx, request.ID, supplier.ID, 0.02)
	assertUnprocessable(t, err)

	stats, err = contributionLedger.Create(ctx, request.ID, supplier.ID, 0.01)
	require.NoError(t, err)
	assert.InDelta(t, 100, stats.TotalPercentage, 0.0001)
	assert.InDelta(t, 0, stats.RemainingPercentage, 0.0001)
}

func TestLogisticRepository_Bridge(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	routeRepo := repositories.NewRouteRepository(db, logger)
	logisticRepo := repositories.NewLogisticRepository(db, logger)
	bridge := logistics.NewBridge(logisticRepo, logger)
	ctx := context.Background()

	recipient := createTestActor(t, db, models.RoleRecipient)
	request := createTestRequest(t, db, recipient.ID)

	txCtx, tx, err := db.GetTx(ctx, nil)
	require.NoError(t, err)
	route := &models.DeliveryRoute{
		AllocationID: &request.ID,
		Origin:       "Warehouse A",
		Destination:  "Community Center",
	}
	require.NoError(t, routeRepo.Insert(txCtx, tx, route))
	logistic, err := bridge.OnRouteCreated(txCtx, tx, route)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(txCtx))

	require.NotNil(t, logistic)
	assert.Equal(t, route.ID, logistic.DeliveryRouteID)
	assert.Equal(t, models.RouteStatusScheduled, logistic.Status)
	assert.NotEmpty(t, logistic.TrackingNumber)

	byRoute, err := logisticRepo.GetByRouteID(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, logistic.ID, byRoute.ID)

	byTracking, err := logisticRepo.GetByTrackingNumber(ctx, logistic.TrackingNumber)
	require.NoError(t, err)
	assert.Equal(t, logistic.ID, byTracking.ID)

	// Replaying route creation must not produce a second record
	txCtx, tx, err = db.GetTx(ctx, nil)
	require.NoError(t, err)
	replayed, err := bridge.OnRouteCreated(txCtx, tx, route)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(txCtx))
	assert.Nil(t, replayed)

	still, err := logisticRepo.GetByRouteID(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, logistic.TrackingNumber, still.TrackingNumber)

	// A status change mirrors through to the logistics record
	route.Status = models.RouteStatusDelivered
	txCtx, tx, err = db.GetTx(ctx, nil)
	require.NoError(t, err)
	previousStatus, err := routeRepo.Update(txCtx, tx, route)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStatusScheduled, previousStatus)
	require.NoError(t, bridge.OnRouteUpdated(txCtx, tx, route, previousStatus))
	require.NoError(t, tx.Commit(txCtx))

	delivered, err := logisticRepo.GetByRouteID(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	// Location updates append to the JSONB log
	require.NoError(t, logisticRepo.AppendLocation(ctx, logistic.ID, models.LocationUpdate{
		Latitude:   12.5,
		Longitude:  -8.1,
		Note:       "left depot",
		RecordedAt: time.Now().UTC(),
	}))

	located, err := logisticRepo.GetByID(ctx, logistic.ID)
	require.NoError(t, err)
	updates := located.LocationUpdates.GetValue()
	require.Len(t, updates, 1)
	assert.Equal(t, "left depot", updates[0].Note)

	// Deleting the route cascades to the logistics record
	require.NoError(t, routeRepo.Delete(ctx, route.ID))
	_, err = logisticRepo.GetByRouteID(ctx, route.ID)
	assertNotFound(t, err)
}

func TestRouteRepository_UpdateWithStaleSnapshot(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	logger := getTestLogger()
	routeRepo := repositories.NewRouteRepository(db, logger)
	logisticRepo := repositories.NewLogisticRepository(db, logger)
	bridge := logistics.NewBridge(logisticRepo, logger)
	ctx := context.Background()

	allocationID := uuid.New()
	txCtx, tx, err := db.GetTx(ctx, nil)
	require.NoError(t, err)
	route := &models.DeliveryRoute{
		AllocationID: &allocationID,
		Origin:       "Warehouse B",
		Destination:  "Field Clinic",
	}
	require.NoError(t, routeRepo.Insert(txCtx, tx, route))
	_, err = bridge.OnRouteCreated(txCtx, tx, route)
	require.NoError(t, err)
	require.NoError(t, tx.Commit(txCtx))

	// Snapshot taken before any concurrent change
	snapshot, err := routeRepo.GetByID(ctx, route.ID)
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusScheduled, snapshot.Status)

	// Another writer moves the route and its logistic to In Transit
	inTransit := *snapshot
	inTransit.Status = models.RouteStatusInTransit
	txCtx, tx, err = db.GetTx(ctx, nil)
	require.NoError(t, err)
	previousStatus, err := routeRepo.Update(txCtx, tx, &inTransit)
	require.NoError(t, err)
	require.NoError(t, bridge.OnRouteUpdated(txCtx, tx, &inTransit, previousStatus))
	require.NoError(t, tx.Commit(txCtx))

	mirrored, err := logisticRepo.GetByRouteID(ctx, route.ID)
	require.NoError(t, err)
	require.Equal(t, models.RouteStatusInTransit, mirrored.Status)

	// The stale snapshot writes back the status it read. The prior status
	// comes from the locked row, so the write still registers as a change
	// and the logistic follows the route.
	snapshot.Destination = "Field Clinic Annex"
	txCtx, tx, err = db.GetTx(ctx, nil)
	require.NoError(t, err)
	previousStatus, err = routeRepo.Update(txCtx, tx, snapshot)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStatusInTransit, previousStatus)
	require.NoError(t, bridge.OnRouteUpdated(txCtx, tx, snapshot, previousStatus))
	require.NoError(t, tx.Commit(txCtx))

	reverted, err := logisticRepo.GetByRouteID(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RouteStatusScheduled, reverted.Status)

	updated, err := routeRepo.GetByID(ctx, route.ID)
	require.NoError(t, err)
	assert.Equal(t, updated.Status, reverted.Status)
}

func TestNotificationRepository_MarkRead(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewNotificationRepository(db, getTestLogger())
	ctx := context.Background()

	admin := createTestActor(t, db, models.RoleAdmin)
	other := createTestActor(t, db, models.RoleAdmin)

	notification := &models.Notification{
		ActorID: admin.ID,
		Type:    models.NotificationTypeRequestFlagged,
		Message: "12 requests were flagged for review",
	}
	require.NoError(t, repo.Create(ctx, notification))

	listed, err := repo.ListByActor(ctx, admin.ID, true)
	require.NoError(t, err)
	require.NotEmpty(t, listed)

	// Another actor cannot read someone else's notification
	err = repo.MarkRead(ctx, notification.ID, other.ID)
	assertNotFound(t, err)

	require.NoError(t, repo.MarkRead(ctx, notification.ID, admin.ID))

	unread, err := repo.ListByActor(ctx, admin.ID, true)
	require.NoError(t, err)
	for _, n := range unread {
		assert.NotEqual(t, notification.ID, n.ID)
	}
}

func TestActorRepository_ListActiveAdmins(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := getTestDB(t)
	repo := repositories.NewActorRepository(db, getTestLogger())
	ctx := context.Background()

	admin := createTestActor(t, db, models.RoleAdmin)
	supplier := createTestActor(t, db, models.RoleSupplier)

	admins, err := repo.ListActiveAdmins(ctx)
	require.NoError(t, err)

	var sawAdmin, sawSupplier bool
	for _, a := range admins {
		if a.ID == admin.ID {
			sawAdmin = true
		}
		if a.ID == supplier.ID {
			sawSupplier = true
		}
	}
	assert.True(t, sawAdmin)
	assert.False(t, sawSupplier)
}
