package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/jinzhu/copier"
	"github.com/lshigami/Pangolin/internal/dto"
	"github.com/lshigami/Pangolin/internal/model"
	"github.com/lshigami/Pangolin/internal/repository"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// HistoryService reads recorded student histories for the API. It never
// writes; ResultRecorder is the store's only writer.
type HistoryService interface {
	GetStudentHistory(ctx context.Context, studentKey string) (*dto.StudentHistoryResponse, error)
	ListHistories(ctx context.Context) ([]dto.StudentHistorySummaryResponse, error)
}

type historyService struct {
	store repository.HistoryStore
}

func NewHistoryService(store repository.HistoryStore) HistoryService {
	return &historyService{store: store}
}

func (s *historyService) GetStudentHistory(ctx context.Context, studentKey string) (*dto.StudentHistoryResponse, error) {
	history, err := s.store.FindByStudent(ctx, studentKey)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Never having sat an exam is not an error.
		return &dto.StudentHistoryResponse{StudentKey: studentKey, Entries: []dto.ExamResultResponse{}}, nil
	}
	if err != nil {
		log.Error().Err(err).Str("studentKey", studentKey).Msg("GetStudentHistory: store error")
		return nil, fmt.Errorf("failed to load history for student %s: %w", studentKey, err)
	}

	entries, err := history.DecodeEntries()
	if err != nil {
		return nil, err
	}

	resp := dto.StudentHistoryResponse{
		StudentKey: history.StudentKey,
		UpdatedAt:  history.UpdatedAt,
		Entries:    make([]dto.ExamResultResponse, 0, len(entries)),
	}
	for _, entry := range entries {
		entryDTO, err := toExamResultResponse(entry)
		if err != nil {
			return nil, err
		}
		resp.Entries = append(resp.Entries, entryDTO)
	}
	return &resp, nil
}

func (s *historyService) ListHistories(ctx context.Context) ([]dto.StudentHistorySummaryResponse, error) {
	histories, err := s.store.FindAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("ListHistories: store error")
		return nil, fmt.Errorf("failed to list histories: %w", err)
	}

	summaries := make([]dto.StudentHistorySummaryResponse, 0, len(histories))
	for _, history := range histories {
		entries, err := history.DecodeEntries()
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, dto.StudentHistorySummaryResponse{
			StudentKey:   history.StudentKey,
			AttemptCount: len(entries),
			UpdatedAt:    history.UpdatedAt,
		})
	}
	return summaries, nil
}

func toExamResultResponse(entry model.ExamResult) (dto.ExamResultResponse, error) {
	var resp dto.ExamResultResponse
	if err := copier.Copy(&resp, &entry); err != nil {
		return dto.ExamResultResponse{}, fmt.Errorf("failed to map result %s: %w", entry.AttemptID, err)
	}
	return resp, nil
}
