package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/lshigami/Pangolin/internal/model"
	"gorm.io/gorm"
)

// memoryHistoryRepository is the in-process HistoryStore used with
// DATABASE_DRIVER=memory and by unit tests. The single mutex gives the same
// atomicity AppendIfAbsent demands from postgres: read-check-append never
// interleaves with another writer.
type memoryHistoryRepository struct {
	mu        sync.Mutex
	histories map[string]*model.StudentHistory
	nextID    uint
}

func NewMemoryHistoryRepository() HistoryStore {
	return &memoryHistoryRepository{
		histories: make(map[string]*model.StudentHistory),
		nextID:    1,
	}
}

func (r *memoryHistoryRepository) AppendIfAbsent(ctx context.Context, studentKey, attemptID string, result model.ExamResult) (AppendOutcome, error) {
	if err := ctx.Err(); err != nil {
		return Appended, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.histories[studentKey]
	if !ok {
		row = &model.StudentHistory{
			ID:         r.nextID,
			StudentKey: studentKey,
			CreatedAt:  time.Now(),
		}
		r.nextID++
		r.histories[studentKey] = row
	}

	entries, err := row.DecodeEntries()
	if err != nil {
		return Appended, err
	}
	for _, entry := range entries {
		if entry.AttemptID == attemptID {
			return AlreadyPresent, nil
		}
	}

	entries = append(entries, result)
	if err := row.EncodeEntries(entries); err != nil {
		return Appended, err
	}
	row.UpdatedAt = time.Now()
	return Appended, nil
}

func (r *memoryHistoryRepository) FindByStudent(ctx context.Context, studentKey string) (*model.StudentHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	row, ok := r.histories[studentKey]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *row
	return &cp, nil
}

func (r *memoryHistoryRepository) FindAll(ctx context.Context) ([]model.StudentHistory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	histories := make([]model.StudentHistory, 0, len(r.histories))
	for _, row := range r.histories {
		histories = append(histories, *row)
	}
	sort.Slice(histories, func(i, j int) bool {
		return histories[i].StudentKey < histories[j].StudentKey
	})
	return histories, nil
}
