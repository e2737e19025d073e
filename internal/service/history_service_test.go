package service

import (
	"context"
	"testing"

	"github.com/lshigami/Pangolin/internal/repository"
	"github.com/stretchr/testify/require"
)

func TestGetStudentHistory_UnknownStudentIsEmptyNotError(t *testing.T) {
	svc := NewHistoryService(repository.NewMemoryHistoryRepository())

	history, err := svc.GetStudentHistory(context.Background(), "never-seen")
	require.NoError(t, err)
	require.Equal(t, "never-seen", history.StudentKey)
	require.Empty(t, history.Entries)
}

func TestGetStudentHistory_ReturnsEntriesInAcceptanceOrder(t *testing.T) {
	store := repository.NewMemoryHistoryRepository()
	svc := NewHistoryService(store)
	ctx := context.Background()

	for _, id := range []string{"a1", "a2", "a3"} {
		_, err := store.AppendIfAbsent(ctx, "s1", id, *validResult(id, "s1"))
		require.NoError(t, err)
	}

	history, err := svc.GetStudentHistory(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history.Entries, 3)
	require.Equal(t, "a1", history.Entries[0].AttemptID)
	require.Equal(t, "a2", history.Entries[1].AttemptID)
	require.Equal(t, "a3", history.Entries[2].AttemptID)
	require.InDelta(t, 6.5, history.Entries[0].Sections["fluency"].Band, 0.001)
	require.NotEmpty(t, history.Entries[0].Sections["fluency"].Feedback)
}

func TestListHistories_SummarizesAttemptCounts(t *testing.T) {
	store := repository.NewMemoryHistoryRepository()
	svc := NewHistoryService(store)
	ctx := context.Background()

	_, err := store.AppendIfAbsent(ctx, "s1", "a1", *validResult("a1", "s1"))
	require.NoError(t, err)
	_, err = store.AppendIfAbsent(ctx, "s1", "a2", *validResult("a2", "s1"))
	require.NoError(t, err)
	_, err = store.AppendIfAbsent(ctx, "s2", "b1", *validResult("b1", "s2"))
	require.NoError(t, err)

	summaries, err := svc.ListHistories(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 2)
	require.Equal(t, "s1", summaries[0].StudentKey)
	require.Equal(t, 2, summaries[0].AttemptCount)
	require.Equal(t, "s2", summaries[1].StudentKey)
	require.Equal(t, 1, summaries[1].AttemptCount)
}
