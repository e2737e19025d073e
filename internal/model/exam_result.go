package model

import (
	"encoding/json"
	"time"
)

// SectionScore is the grading of one exam part. Band follows the 0-9 scale in
// half-band increments. Details carries whatever extra structure the grader
// produced; it is stored verbatim.
type SectionScore struct {
	Band     float64         `json:"band"`
	Feedback string          `json:"feedback"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// ExamResult is the structured grading payload an attempt produces. AttemptID
// doubles as the idempotency key for submission.
type ExamResult struct {
	AttemptID  string                  `json:"attempt_id"`
	StudentKey string                  `json:"student_key"`
	Sections   map[string]SectionScore `json:"sections"`
	ComputedAt time.Time               `json:"computed_at"`
}
