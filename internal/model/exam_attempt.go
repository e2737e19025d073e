package model

import "time"

// AttemptState is one node of the attempt lifecycle graph. States only move
// forward: Idle -> Preparing -> Connecting -> Active -> Finalizing -> {Completed, Aborted}.
type AttemptState int

const (
	StateIdle AttemptState = iota
	StatePreparing
	StateConnecting
	StateActive
	StateFinalizing
	StateCompleted
	StateAborted
)

func (s AttemptState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePreparing:
		return "preparing"
	case StateConnecting:
		return "connecting"
	case StateActive:
		return "active"
	case StateFinalizing:
		return "finalizing"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition is possible.
func (s AttemptState) Terminal() bool {
	return s == StateCompleted || s == StateAborted
}

// EndReason records which input forced the Active -> Finalizing transition.
type EndReason string

const (
	EndCompletedNormally EndReason = "completed_normally"
	EndUserEnded         EndReason = "user_ended"
	EndDisconnected      EndReason = "disconnected"
)

// AbortReason records why an attempt reached Aborted.
type AbortReason string

const (
	AbortConnectionFailed   AbortReason = "connection_failed"
	AbortNoResult           AbortReason = "no_result"
	AbortValidationRejected AbortReason = "validation_rejected"
	AbortStorageError       AbortReason = "storage_error"
)

// TranscriptTurn is one exchange turn of the live session, appended in receipt
// order. Ordering within a connection is guaranteed by the transport.
type TranscriptTurn struct {
	Speaker string    `json:"speaker"` // "student" or "examiner"
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// ExamAttempt is one student's single sitting. It lives only for the duration
// of the sitting; the durable record is the ExamResult derived from it.
type ExamAttempt struct {
	AttemptID           string           `json:"attempt_id"`
	StudentKey          string           `json:"student_key"`
	State               AttemptState     `json:"-"`
	StartedAt           time.Time        `json:"started_at"`
	EndedAt             *time.Time       `json:"ended_at,omitempty"`
	TranscriptFragments []TranscriptTurn `json:"transcript_fragments"`
	EndReason           EndReason        `json:"end_reason,omitempty"`
	AbortReason         AbortReason      `json:"abort_reason,omitempty"`
}
