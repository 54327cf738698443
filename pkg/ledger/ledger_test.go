package ledger

import (
	"context"
	"database/sql"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
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

// fakeTx serializes transactions on a shared mutex, standing in for the row
// lock the real repository takes with SELECT ... FOR UPDATE.
type fakeTx struct {
	mu     *sync.Mutex
	closed bool
}

func (t *fakeTx) IsOpen() bool { return !t.closed }

func (t *fakeTx) Commit(context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	if t.closed {
		return nil
	}
	t.closed = true
	t.mu.Unlock()
	return nil
}

func (t *fakeTx) ExecContext(context.Context, string, ...any) (sql.Result, error) { return nil, nil }
func (t *fakeTx) GetContext(context.Context, any, string, ...any) error           { return nil }
func (t *fakeTx) QueryContext(context.Context, string, ...any) (*sql.Rows, error) { return nil, nil }
func (t *fakeTx) QueryRowContext(context.Context, string, ...any) *sql.Row        { return nil }
func (t *fakeTx) QueryRowxContext(context.Context, string, ...any) *sqlx.Row      { return nil }
func (t *fakeTx) SelectContext(context.Context, any, string, ...any) error        { return nil }

type fakeDB struct {
	database.DB
	mu sync.Mutex
}

func (db *fakeDB) GetTx(ctx context.Context, _ *sql.TxOptions) (context.Context, database.Tx, error) {
	db.mu.Lock()
	return ctx, &fakeTx{mu: &db.mu}, nil
}

type fakeRequestStore struct {
	mu       sync.Mutex
	requests map[uuid.UUID]*models.Request
}

func newFakeRequestStore(requests ...*models.Request) *fakeRequestStore {
	store := &fakeRequestStore{requests: map[uuid.UUID]*models.Request{}}
	for _, r := range requests {
		store.requests[r.ID] = r
	}
	return store
}

func (s *fakeRequestStore) GetByID(_ context.Context, id uuid.UUID) (*models.Request, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.requests[id]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "request %s does not exist", id)
	}
	copied := *request
	return &copied, nil
}

func (s *fakeRequestStore) GetByIDForUpdate(ctx context.Context, _ database.Tx, id uuid.UUID) (*models.Request, error) {
	return s.GetByID(ctx, id)
}

type fakeContributionStore struct {
	mu            sync.Mutex
	contributions []models.Contribution
	insertErr     error
}

func (s *fakeContributionStore) Insert(_ context.Context, _ database.Tx, contribution *models.Contribution) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if contribution.ID == uuid.Nil {
		contribution.ID = uuid.New()
	}
	contribution.CreatedAt = time.Now()
	s.contributions = append(s.contributions, *contribution)
	return nil
}

func (s *fakeContributionStore) GetByID(_ context.Context, id uuid.UUID) (*models.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.contributions {
		if s.contributions[i].ID == id {
			copied := s.contributions[i]
			return &copied, nil
		}
	}
	return nil, httperror.NewHTTPErrorf(http.StatusNotFound, "contribution %s does not exist", id)
}

func (s *fakeContributionStore) ListByRequest(_ context.Context, requestID uuid.UUID) ([]models.Contribution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []models.Contribution
	for _, c := range s.contributions {
		if c.RequestID == requestID {
			result = append(result, c)
		}
	}
	return result, nil
}

func (s *fakeContributionStore) SumCommitted(_ context.Context, _ database.Tx, requestID uuid.UUID) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var total float64
	for _, c := range s.contributions {
		if c.RequestID == requestID && c.Status == models.ContributionStatusCommitted {
			total += c.Percentage
		}
	}
	return total, nil
}

func (s *fakeContributionStore) RequestRecede(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.contributions {
		if s.contributions[i].ID == id {
			if s.contributions[i].Status != models.ContributionStatusCommitted || s.contributions[i].RecedeRequestedAt != nil {
				return httperror.NewHTTPErrorf(http.StatusConflict, "contribution %s is not committed or recede is already pending", id)
			}
			now := time.Now()
			s.contributions[i].RecedeRequestedAt = &now
			return nil
		}
	}
	return httperror.NewHTTPErrorf(http.StatusNotFound, "contribution %s does not exist", id)
}

func (s *fakeContributionStore) ApproveRecede(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.contributions {
		if s.contributions[i].ID == id {
			if s.contributions[i].RecedeRequestedAt == nil {
				return httperror.NewHTTPErrorf(http.StatusConflict, "contribution %s has no pending recede", id)
			}
			now := time.Now()
			s.contributions[i].Status = models.ContributionStatusReceded
			s.contributions[i].RecededAt = &now
			return nil
		}
	}
	return httperror.NewHTTPErrorf(http.StatusNotFound, "contribution %s does not exist", id)
}

func newTestLedger(requests *fakeRequestStore, contributions *fakeContributionStore) *Ledger {
	return NewLedger(&fakeDB{}, requests, contributions, testLogger())
}

func openRequest() *models.Request {
	return &models.Request{
		ID:     uuid.New(),
		UserID: uuid.New(),
		Status: models.RequestStatusPending,
	}
}

func TestCreateCommitsContribution(t *testing.T) {
	request := openRequest()
	contributions := &fakeContributionStore{}
	l := newTestLedger(newFakeRequestStore(request), contributions)

	stats, err := l.Create(context.Background(), request.ID, uuid.New(), 60)
	require.NoError(t, err)
	assert.Equal(t, 60.0, stats.TotalPercentage)
	assert.Equal(t, 40.0, stats.RemainingPercentage)
	assert.Equal(t, 1, stats.ContributionCount)
	require.Len(t, stats.Contributions, 1)
	assert.Equal(t, models.ContributionStatusCommitted, stats.Contributions[0].Status)
}

func TestCreateRejectsOutOfRangePercentage(t *testing.T) {
	request := openRequest()
	l := newTestLedger(newFakeRequestStore(request), &fakeContributionStore{})

	for _, percentage := range []float64{0, -5, 100.01, 150} {
		_, err := l.Create(context.Background(), request.ID, uuid.New(), percentage)
		require.Error(t, err, "percentage %v", percentage)
		assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
	}
}

func TestCreateRejectsExceedingRemaining(t *testing.T) {
	request := openRequest()
	contributions := &fakeContributionStore{}
	l := newTestLedger(newFakeRequestStore(request), contributions)

	_, err := l.Create(context.Background(), request.ID, uuid.New(), 60)
	require.NoError(t, err)

	// 60 committed, 50 does not fit
	_, err = l.Create(context.Background(), request.ID, uuid.New(), 50)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))

	// 40 fills it exactly
	stats, err := l.Create(context.Background(), request.ID, uuid.New(), 40)
	require.NoError(t, err)
	assert.Equal(t, 100.0, stats.TotalPercentage)
	assert.Equal(t, 0.0, stats.RemainingPercentage)

	// nothing more fits
	_, err = l.Create(context.Background(), request.ID, uuid.New(), 0.01)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnprocessableEntity, httperror.GetStatusCode(err))
}

func TestCreateRejectsTerminalRequest(t *testing.T) {
	request := openRequest()
	request.Status = models.RequestStatusClosedNoMatch
	l := newTestLedger(newFakeRequestStore(request), &fakeContributionStore{})

	_, err := l.Create(context.Background(), request.ID, uuid.New(), 10)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))
}

func TestCreateUnknownRequest(t *testing.T) {
	l := newTestLedger(newFakeRequestStore(), &fakeContributionStore{})

	_, err := l.Create(context.Background(), uuid.New(), uuid.New(), 10)
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, httperror.GetStatusCode(err))
}

func TestCreateConcurrentNeverExceedsHundred(t *testing.T) {
	request := openRequest()
	contributions := &fakeContributionStore{}
	l := newTestLedger(newFakeRequestStore(request), contributions)

	// 15 concurrent creates of 20% each: exactly 5 can fit
	const workers = 15
	var wg sync.WaitGroup
	succeeded := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := l.Create(context.Background(), request.ID, uuid.New(), 20); err == nil {
				succeeded <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(succeeded)

	count := 0
	for range succeeded {
		count++
	}
	assert.Equal(t, 5, count)

	total, err := contributions.SumCommitted(context.Background(), nil, request.ID)
	require.NoError(t, err)
	assert.Equal(t, 100.0, total)
}

func TestStatsCountsOnlyCommitted(t *testing.T) {
	request := openRequest()
	contributions := &fakeContributionStore{}
	l := newTestLedger(newFakeRequestStore(request), contributions)

	stats, err := l.Create(context.Background(), request.ID, uuid.New(), 30)
	require.NoError(t, err)
	contributionID := stats.Contributions[0].ID

	_, err = l.Create(context.Background(), request.ID, uuid.New(), 20)
	require.NoError(t, err)

	_, err = l.Recede(context.Background(), contributionID)
	require.NoError(t, err)

	// pending recede still counts
	stats, err = l.Stats(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, 50.0, stats.TotalPercentage)
	assert.Equal(t, 2, stats.ContributionCount)

	_, err = l.ApproveRecede(context.Background(), contributionID)
	require.NoError(t, err)

	// approved recede is excluded from sums but kept in the list
	stats, err = l.Stats(context.Background(), request.ID)
	require.NoError(t, err)
	assert.Equal(t, 20.0, stats.TotalPercentage)
	assert.Equal(t, 80.0, stats.RemainingPercentage)
	assert.Equal(t, 1, stats.ContributionCount)
	assert.Len(t, stats.Contributions, 2)
}

func TestRecedeTwoStep(t *testing.T) {
	request := openRequest()
	contributions := &fakeContributionStore{}
	l := newTestLedger(newFakeRequestStore(request), contributions)

	stats, err := l.Create(context.Background(), request.ID, uuid.New(), 75)
	require.NoError(t, err)
	contributionID := stats.Contributions[0].ID

	// approval without a pending request is a conflict
	_, err = l.ApproveRecede(context.Background(), contributionID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	receding, err := l.Recede(context.Background(), contributionID)
	require.NoError(t, err)
	assert.Equal(t, models.ContributionStatusCommitted, receding.Status)
	assert.NotNil(t, receding.RecedeRequestedAt)
	assert.True(t, receding.IsRecedePending())

	// a second recede request is a conflict
	_, err = l.Recede(context.Background(), contributionID)
	require.Error(t, err)
	assert.Equal(t, http.StatusConflict, httperror.GetStatusCode(err))

	// capacity is still held while the recede is pending
	_, err = l.Create(context.Background(), request.ID, uuid.New(), 30)
	require.Error(t, err)

	receded, err := l.ApproveRecede(context.Background(), contributionID)
	require.NoError(t, err)
	assert.Equal(t, models.ContributionStatusReceded, receded.Status)
	assert.NotNil(t, receded.RecededAt)

	// capacity is freed once approved
	stats, err = l.Create(context.Background(), request.ID, uuid.New(), 30)
	require.NoError(t, err)
	assert.Equal(t, 30.0, stats.TotalPercentage)
}
