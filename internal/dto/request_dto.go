package dto

import "encoding/json"

// StartAttemptRequest opens a new exam attempt. Checklist carries the
// device-readiness items the client verified; every configured required item
// must be satisfied or the start is refused.
type StartAttemptRequest struct {
	StudentKey string          `json:"student_key" binding:"required"`
	Checklist  map[string]bool `json:"checklist"`
}

// SectionScoreRequest is one graded exam part inside a result submission.
type SectionScoreRequest struct {
	Band     float64         `json:"band"`
	Feedback string          `json:"feedback"`
	Details  json.RawMessage `json:"details,omitempty"`
}

// SubmitResultRequest is the agent-facing result intake payload for an
// attempt. Band scores must be on the 0-9 scale in 0.5 increments.
type SubmitResultRequest struct {
	Sections map[string]SectionScoreRequest `json:"sections" binding:"required"`
}
