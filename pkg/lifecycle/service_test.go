package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

// fakeBatchStore simulates the batch updates against a set of request ages.
// Flagging and closing apply the same cutoff semantics as the SQL.
type fakeBatchStore struct {
	createdAts []time.Time
	flagged    []bool
	closed     []bool
	flagErr    error
	closeErr   error
	flagCalls  []time.Time
	closeCalls []time.Time
}

func newFakeBatchStore(ages ...time.Duration) *fakeBatchStore {
	store := &fakeBatchStore{}
	now := time.Now().UTC()
	for _, age := range ages {
		store.createdAts = append(store.createdAts, now.Add(-age))
		store.flagged = append(store.flagged, false)
		store.closed = append(store.closed, false)
	}
	return store
}

func (s *fakeBatchStore) FlagUnmatched(_ context.Context, cutoff time.Time) (int64, error) {
	if s.flagErr != nil {
		return 0, s.flagErr
	}
	s.flagCalls = append(s.flagCalls, cutoff)
	var count int64
	for i := range s.createdAts {
		if !s.closed[i] && !s.flagged[i] && s.createdAts[i].Before(cutoff) {
			s.flagged[i] = true
			count++
		}
	}
	return count, nil
}

func (s *fakeBatchStore) CloseUnmatched(_ context.Context, cutoff time.Time) (int64, error) {
	if s.closeErr != nil {
		return 0, s.closeErr
	}
	s.closeCalls = append(s.closeCalls, cutoff)
	var count int64
	for i := range s.createdAts {
		if !s.closed[i] && s.createdAts[i].Before(cutoff) {
			s.closed[i] = true
			count++
		}
	}
	return count, nil
}

type fakeNotifier struct {
	calls []int64
	err   error
}

func (n *fakeNotifier) NotifyFlaggedBatch(_ context.Context, flaggedCount int64) (int, error) {
	if n.err != nil {
		return 0, n.err
	}
	n.calls = append(n.calls, flaggedCount)
	return 1, nil
}

const day = 24 * time.Hour

func TestFlagUnmatchedFlagsOldRequests(t *testing.T) {
	// 45 and 31 days old are past the 30-day window, 10 days is not
	store := newFakeBatchStore(45*day, 31*day, 10*day)
	notifier := &fakeNotifier{}
	s := NewService(store, notifier, testLogger())

	result, err := s.FlagUnmatched(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Count)
	assert.False(t, result.NoOp)

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, int64(2), notifier.calls[0])
}

func TestFlagUnmatchedIdempotent(t *testing.T) {
	store := newFakeBatchStore(45*day, 31*day)
	notifier := &fakeNotifier{}
	s := NewService(store, notifier, testLogger())

	first, err := s.FlagUnmatched(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Count)

	// already-flagged requests are excluded, so the second run is a no-op
	// and fires no notifications
	second, err := s.FlagUnmatched(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Count)
	assert.True(t, second.NoOp)
	assert.Len(t, notifier.calls, 1)
}

func TestFlagUnmatchedZeroMatchesIsSuccess(t *testing.T) {
	store := newFakeBatchStore(5*day, 2*day)
	notifier := &fakeNotifier{}
	s := NewService(store, notifier, testLogger())

	result, err := s.FlagUnmatched(context.Background(), 30)
	require.NoError(t, err)
	assert.True(t, result.NoOp)
	assert.Empty(t, notifier.calls)
}

func TestFlagUnmatchedNotifierFailureDoesNotFailJob(t *testing.T) {
	store := newFakeBatchStore(45 * day)
	notifier := &fakeNotifier{err: errors.New("kafka down")}
	s := NewService(store, notifier, testLogger())

	result, err := s.FlagUnmatched(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Count)
}

func TestCloseUnmatchedIdempotent(t *testing.T) {
	store := newFakeBatchStore(45*day, 31*day, 10*day)
	s := NewService(store, &fakeNotifier{}, testLogger())

	first, err := s.CloseUnmatched(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(2), first.Count)
	assert.False(t, first.NoOp)

	second, err := s.CloseUnmatched(context.Background(), 30)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.Count)
	assert.True(t, second.NoOp)
}

func TestDefaultWindowApplied(t *testing.T) {
	store := newFakeBatchStore(45 * day)
	s := NewService(store, &fakeNotifier{}, testLogger())

	// zero and negative day parameters fall back to the 30-day default
	_, err := s.FlagUnmatched(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, store.flagCalls, 1)
	expected := time.Now().UTC().AddDate(0, 0, -DefaultSLAWindowDays)
	assert.WithinDuration(t, expected, store.flagCalls[0], time.Minute)

	_, err = s.CloseUnmatched(context.Background(), -1)
	require.NoError(t, err)
	require.Len(t, store.closeCalls, 1)
	assert.WithinDuration(t, expected, store.closeCalls[0], time.Minute)
}

func TestFlagUnmatchedStoreError(t *testing.T) {
	store := newFakeBatchStore(45 * day)
	store.flagErr = errors.New("db down")
	s := NewService(store, &fakeNotifier{}, testLogger())

	_, err := s.FlagUnmatched(context.Background(), 30)
	require.Error(t, err)
}
