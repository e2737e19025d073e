package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// StudentHistory is the durable per-student record: exactly one row per
// student once any result has been recorded. Entries holds the ordered
// ExamResult sequence as a jsonb document; insertion order is
// submission-accepted order.
type StudentHistory struct {
	ID         uint            `gorm:"primarykey" json:"id"`
	StudentKey string          `json:"student_key" gorm:"not null;uniqueIndex"`
	Entries    json.RawMessage `json:"entries" gorm:"type:jsonb;not null;default:'[]'"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	DeletedAt  gorm.DeletedAt  `gorm:"index" json:"-"`
}

// DecodeEntries unmarshals the jsonb column into the result sequence.
func (h *StudentHistory) DecodeEntries() ([]ExamResult, error) {
	if len(h.Entries) == 0 {
		return nil, nil
	}
	var entries []ExamResult
	if err := json.Unmarshal(h.Entries, &entries); err != nil {
		return nil, fmt.Errorf("corrupt history entries for student %s: %w", h.StudentKey, err)
	}
	return entries, nil
}

// EncodeEntries replaces the jsonb column with the given result sequence.
func (h *StudentHistory) EncodeEntries(entries []ExamResult) error {
	raw, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("failed to encode history entries for student %s: %w", h.StudentKey, err)
	}
	h.Entries = raw
	return nil
}
