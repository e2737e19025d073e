package dto

import (
	"encoding/json"
	"time"
)

type ErrorResponse struct {
	Message string   `json:"message"`
	Details []string `json:"details,omitempty"`
}

// TranscriptTurnResponse is one exchange turn of a live attempt.
type TranscriptTurnResponse struct {
	Speaker string    `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// AttemptResponse is a snapshot of one exam attempt's lifecycle.
type AttemptResponse struct {
	AttemptID           string                   `json:"attempt_id"`
	StudentKey          string                   `json:"student_key"`
	State               string                   `json:"state"`
	StartedAt           time.Time                `json:"started_at"`
	EndedAt             *time.Time               `json:"ended_at,omitempty"`
	EndReason           string                   `json:"end_reason,omitempty"`
	AbortReason         string                   `json:"abort_reason,omitempty"`
	TranscriptFragments []TranscriptTurnResponse `json:"transcript_fragments,omitempty"`
}

// StartAttemptResponse is returned when an attempt successfully enters
// Connecting: the snapshot plus the credential the client needs to join the
// media session.
type StartAttemptResponse struct {
	Attempt          AttemptResponse `json:"attempt"`
	MediaToken       string          `json:"media_token"`
	MediaEndpoint    string          `json:"media_endpoint"`
	TokenExpiresAt   time.Time       `json:"token_expires_at"`
	MissingChecklist []string        `json:"missing_checklist,omitempty"`
}

// SubmitResultResponse reports the recorder's verdict on a result submission.
type SubmitResultResponse struct {
	AttemptID string `json:"attempt_id"`
	Status    string `json:"status"` // accepted, duplicate, rejected
	Reason    string `json:"reason,omitempty"`
}

// SectionScoreResponse is one graded part inside a recorded result.
type SectionScoreResponse struct {
	Band     float64         `json:"band"`
	Feedback string          `json:"feedback"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// ExamResultResponse is one recorded result inside a student's history.
type ExamResultResponse struct {
	AttemptID  string                          `json:"attempt_id"`
	StudentKey string                          `json:"student_key"`
	Sections   map[string]SectionScoreResponse `json:"sections"`
	ComputedAt time.Time                       `json:"computed_at"`
}

// StudentHistoryResponse is a student's full recorded history, in
// submission-accepted order.
type StudentHistoryResponse struct {
	StudentKey string               `json:"student_key"`
	Entries    []ExamResultResponse `json:"entries"`
	UpdatedAt  time.Time            `json:"updated_at"`
}

// StudentHistorySummaryResponse is the admin listing row.
type StudentHistorySummaryResponse struct {
	StudentKey   string    `json:"student_key"`
	AttemptCount int       `json:"attempt_count"`
	UpdatedAt    time.Time `json:"updated_at"`
}
