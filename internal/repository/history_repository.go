package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/lshigami/Pangolin/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AppendOutcome is the result of an AppendIfAbsent call.
type AppendOutcome int

const (
	Appended AppendOutcome = iota
	AlreadyPresent
)

func (o AppendOutcome) String() string {
	if o == AlreadyPresent {
		return "already_present"
	}
	return "appended"
}

// HistoryStore is the durable, keyed-by-identity append-only log of exam
// results. AppendIfAbsent is a single atomic unit: a concurrent caller either
// observes the append fully applied or not at all, and the same attemptID is
// never stored twice for a student.
type HistoryStore interface {
	AppendIfAbsent(ctx context.Context, studentKey, attemptID string, result model.ExamResult) (AppendOutcome, error)
	FindByStudent(ctx context.Context, studentKey string) (*model.StudentHistory, error)
	FindAll(ctx context.Context) ([]model.StudentHistory, error)
}

type historyRepository struct {
	db *gorm.DB
}

func NewHistoryRepository(db *gorm.DB) HistoryStore {
	return &historyRepository{db: db}
}

// AppendIfAbsent runs create-if-missing, lock, duplicate-check, append inside
// one transaction. Row creation uses ON CONFLICT DO NOTHING so two first-ever
// submissions for the same student cannot conflict destructively; the loser of
// the create race proceeds as a normal append against the now-existing row.
func (r *historyRepository) AppendIfAbsent(ctx context.Context, studentKey, attemptID string, result model.ExamResult) (AppendOutcome, error) {
	outcome := Appended

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		blank := model.StudentHistory{
			StudentKey: studentKey,
			Entries:    json.RawMessage("[]"),
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "student_key"}},
			DoNothing: true,
		}).Create(&blank).Error; err != nil {
			return fmt.Errorf("failed to ensure history row for student %s: %w", studentKey, err)
		}

		var row model.StudentHistory
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("student_key = ?", studentKey).
			First(&row).Error; err != nil {
			return fmt.Errorf("failed to lock history row for student %s: %w", studentKey, err)
		}

		entries, err := row.DecodeEntries()
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.AttemptID == attemptID {
				outcome = AlreadyPresent
				return nil
			}
		}

		entries = append(entries, result)
		if err := row.EncodeEntries(entries); err != nil {
			return err
		}
		if err := tx.Model(&model.StudentHistory{}).
			Where("id = ?", row.ID).
			Update("entries", row.Entries).Error; err != nil {
			return fmt.Errorf("failed to append result for student %s: %w", studentKey, err)
		}
		return nil
	})
	if err != nil {
		return Appended, err
	}
	return outcome, nil
}

func (r *historyRepository) FindByStudent(ctx context.Context, studentKey string) (*model.StudentHistory, error) {
	var history model.StudentHistory
	err := r.db.WithContext(ctx).Where("student_key = ?", studentKey).First(&history).Error
	if err != nil {
		return nil, err
	}
	return &history, nil
}

func (r *historyRepository) FindAll(ctx context.Context) ([]model.StudentHistory, error) {
	var histories []model.StudentHistory
	err := r.db.WithContext(ctx).Order("student_key asc").Find(&histories).Error
	return histories, err
}
