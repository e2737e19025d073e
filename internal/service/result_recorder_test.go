package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lshigami/Pangolin/config"
	"github.com/lshigami/Pangolin/internal/model"
	"github.com/lshigami/Pangolin/internal/repository"
	"github.com/stretchr/testify/require"
)

func recorderConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Session.SubmitRetries = 3
	cfg.Session.SubmitBackoff = time.Millisecond
	return cfg
}

func newTestRecorder(t *testing.T, store repository.HistoryStore) ResultRecorder {
	t.Helper()
	validator, err := NewResultValidator()
	require.NoError(t, err)
	return NewResultRecorder(store, validator, recorderConfig())
}

func historyLen(t *testing.T, store repository.HistoryStore, studentKey string) int {
	t.Helper()
	history, err := store.FindByStudent(context.Background(), studentKey)
	if err != nil {
		return 0
	}
	entries, err := history.DecodeEntries()
	require.NoError(t, err)
	return len(entries)
}

func TestSubmit_AcceptedThenDuplicate(t *testing.T) {
	store := repository.NewMemoryHistoryRepository()
	recorder := newTestRecorder(t, store)

	result := validResult("a1", "s1")

	outcome := recorder.Submit(context.Background(), result)
	require.Equal(t, SubmitAccepted, outcome.Status)

	outcome = recorder.Submit(context.Background(), result)
	require.Equal(t, SubmitDuplicate, outcome.Status)

	require.Equal(t, 1, historyLen(t, store, "s1"))
}

func TestSubmit_ValidationFailureNeverReachesStorage(t *testing.T) {
	store := &countingStore{inner: repository.NewMemoryHistoryRepository()}
	recorder := newTestRecorder(t, store)

	result := validResult("a1", "s1")
	result.Sections["fluency"] = model.SectionScore{Band: 9.5, Feedback: "impossible"}

	outcome := recorder.Submit(context.Background(), result)
	require.Equal(t, SubmitRejected, outcome.Status)
	require.Equal(t, RejectValidationError, outcome.Reason)
	require.Error(t, outcome.Err)
	require.Zero(t, atomic.LoadInt32(&store.appendCalls), "validator rejection must not touch storage")
	require.Equal(t, 0, historyLen(t, store.inner, "s1"))
}

func TestSubmit_ConcurrentDistinctAttemptsAllLand(t *testing.T) {
	store := repository.NewMemoryHistoryRepository()
	recorder := newTestRecorder(t, store)

	const n = 20
	var wg sync.WaitGroup
	outcomes := make([]SubmitOutcome, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i] = recorder.Submit(context.Background(), validResult(fmt.Sprintf("a%d", i), "s1"))
		}(i)
	}
	wg.Wait()

	for i, outcome := range outcomes {
		require.Equal(t, SubmitAccepted, outcome.Status, "submission %d", i)
	}
	require.Equal(t, n, historyLen(t, store, "s1"))
}

func TestSubmit_TransientStorageFailureIsRetried(t *testing.T) {
	store := &flakyStore{inner: repository.NewMemoryHistoryRepository(), failuresLeft: 2}
	recorder := newTestRecorder(t, store)

	outcome := recorder.Submit(context.Background(), validResult("a1", "s1"))
	require.Equal(t, SubmitAccepted, outcome.Status)
	require.Equal(t, 1, historyLen(t, store.inner, "s1"))
}

func TestSubmit_RetryExhaustionLeavesHistoryIntact(t *testing.T) {
	store := &flakyStore{inner: repository.NewMemoryHistoryRepository(), failuresLeft: 100}
	recorder := newTestRecorder(t, store)

	// Seed one committed entry directly.
	_, err := store.inner.AppendIfAbsent(context.Background(), "s1", "a0", *validResult("a0", "s1"))
	require.NoError(t, err)

	outcome := recorder.Submit(context.Background(), validResult("a1", "s1"))
	require.Equal(t, SubmitRejected, outcome.Status)
	require.Equal(t, RejectStorageError, outcome.Reason)
	require.Error(t, outcome.Err)
	require.Equal(t, 1, historyLen(t, store.inner, "s1"), "failed append must not disturb prior entries")
}

// The end-to-end scenario: accept, idempotent resubmit, reject out-of-range,
// then two concurrent valid submissions.
func TestSubmit_FullScenario(t *testing.T) {
	store := repository.NewMemoryHistoryRepository()
	recorder := newTestRecorder(t, store)
	ctx := context.Background()

	a1 := validResult("a1", "s1")
	a1.Sections = map[string]model.SectionScore{
		"fluency":       {Band: 6.5, Feedback: "solid"},
		"pronunciation": {Band: 7.0, Feedback: "clear"},
		"vocabulary":    {Band: 6.5, Feedback: "varied"},
		"grammar":       {Band: 7.0, Feedback: "accurate"},
	}
	require.Equal(t, SubmitAccepted, recorder.Submit(ctx, a1).Status)
	require.Equal(t, 1, historyLen(t, store, "s1"))

	require.Equal(t, SubmitDuplicate, recorder.Submit(ctx, a1).Status)
	require.Equal(t, 1, historyLen(t, store, "s1"))

	a2 := validResult("a2", "s1")
	a2.Sections["fluency"] = model.SectionScore{Band: 10.0, Feedback: "off scale"}
	outcome := recorder.Submit(ctx, a2)
	require.Equal(t, SubmitRejected, outcome.Status)
	require.Equal(t, RejectValidationError, outcome.Reason)
	require.Equal(t, 1, historyLen(t, store, "s1"))

	var wg sync.WaitGroup
	for _, id := range []string{"a3", "a4"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			require.Equal(t, SubmitAccepted, recorder.Submit(ctx, validResult(id, "s1")).Status)
		}(id)
	}
	wg.Wait()

	history, err := store.FindByStudent(ctx, "s1")
	require.NoError(t, err)
	entries, err := history.DecodeEntries()
	require.NoError(t, err)
	require.Len(t, entries, 3)

	seen := map[string]bool{}
	for _, entry := range entries {
		seen[entry.AttemptID] = true
	}
	require.True(t, seen["a1"] && seen["a3"] && seen["a4"])
}

// flakyStore fails the first failuresLeft append calls with a transient error.
type flakyStore struct {
	inner        repository.HistoryStore
	failuresLeft int32
}

func (s *flakyStore) AppendIfAbsent(ctx context.Context, studentKey, attemptID string, result model.ExamResult) (repository.AppendOutcome, error) {
	if atomic.AddInt32(&s.failuresLeft, -1) >= 0 {
		return repository.Appended, errors.New("connection reset by peer")
	}
	return s.inner.AppendIfAbsent(ctx, studentKey, attemptID, result)
}

func (s *flakyStore) FindByStudent(ctx context.Context, studentKey string) (*model.StudentHistory, error) {
	return s.inner.FindByStudent(ctx, studentKey)
}

func (s *flakyStore) FindAll(ctx context.Context) ([]model.StudentHistory, error) {
	return s.inner.FindAll(ctx)
}

// countingStore counts append calls through to the inner store.
type countingStore struct {
	inner       repository.HistoryStore
	appendCalls int32
}

func (s *countingStore) AppendIfAbsent(ctx context.Context, studentKey, attemptID string, result model.ExamResult) (repository.AppendOutcome, error) {
	atomic.AddInt32(&s.appendCalls, 1)
	return s.inner.AppendIfAbsent(ctx, studentKey, attemptID, result)
}

func (s *countingStore) FindByStudent(ctx context.Context, studentKey string) (*model.StudentHistory, error) {
	return s.inner.FindByStudent(ctx, studentKey)
}

func (s *countingStore) FindAll(ctx context.Context) ([]model.StudentHistory, error) {
	return s.inner.FindAll(ctx)
}
