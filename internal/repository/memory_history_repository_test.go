package repository

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/lshigami/Pangolin/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func sampleResult(attemptID, studentKey string) model.ExamResult {
	return model.ExamResult{
		AttemptID:  attemptID,
		StudentKey: studentKey,
		Sections: map[string]model.SectionScore{
			"fluency": {Band: 6.0, Feedback: "ok"},
		},
		ComputedAt: time.Now(),
	}
}

func TestAppendIfAbsent_FirstAppendCreatesRow(t *testing.T) {
	store := NewMemoryHistoryRepository()
	ctx := context.Background()

	_, err := store.FindByStudent(ctx, "s1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	outcome, err := store.AppendIfAbsent(ctx, "s1", "a1", sampleResult("a1", "s1"))
	require.NoError(t, err)
	require.Equal(t, Appended, outcome)

	history, err := store.FindByStudent(ctx, "s1")
	require.NoError(t, err)
	entries, err := history.DecodeEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "a1", entries[0].AttemptID)
}

func TestAppendIfAbsent_SameAttemptIsAlreadyPresent(t *testing.T) {
	store := NewMemoryHistoryRepository()
	ctx := context.Background()

	outcome, err := store.AppendIfAbsent(ctx, "s1", "a1", sampleResult("a1", "s1"))
	require.NoError(t, err)
	require.Equal(t, Appended, outcome)

	outcome, err = store.AppendIfAbsent(ctx, "s1", "a1", sampleResult("a1", "s1"))
	require.NoError(t, err)
	require.Equal(t, AlreadyPresent, outcome)

	history, err := store.FindByStudent(ctx, "s1")
	require.NoError(t, err)
	entries, err := history.DecodeEntries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestAppendIfAbsent_ConcurrentFirstAppendsBothLand(t *testing.T) {
	store := NewMemoryHistoryRepository()
	ctx := context.Background()

	const n = 16
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			attemptID := fmt.Sprintf("a%d", i)
			outcome, err := store.AppendIfAbsent(ctx, "fresh-student", attemptID, sampleResult(attemptID, "fresh-student"))
			require.NoError(t, err)
			require.Equal(t, Appended, outcome)
		}(i)
	}
	wg.Wait()

	history, err := store.FindByStudent(ctx, "fresh-student")
	require.NoError(t, err)
	entries, err := history.DecodeEntries()
	require.NoError(t, err)
	require.Len(t, entries, n)
}

func TestFindAll_SortedByStudentKey(t *testing.T) {
	store := NewMemoryHistoryRepository()
	ctx := context.Background()

	for _, key := range []string{"s3", "s1", "s2"} {
		_, err := store.AppendIfAbsent(ctx, key, "a-"+key, sampleResult("a-"+key, key))
		require.NoError(t, err)
	}

	histories, err := store.FindAll(ctx)
	require.NoError(t, err)
	require.Len(t, histories, 3)
	require.Equal(t, "s1", histories[0].StudentKey)
	require.Equal(t, "s2", histories[1].StudentKey)
	require.Equal(t, "s3", histories[2].StudentKey)
}
