package service

import (
	"context"
	"fmt"
	"time"

	"github.com/lshigami/Pangolin/config"
	"github.com/lshigami/Pangolin/internal/model"
	"github.com/lshigami/Pangolin/internal/repository"
	"github.com/rs/zerolog/log"
)

type SubmitStatus int

// The zero value is not a valid status: an outcome that was never produced
// must not read as accepted.
const (
	SubmitAccepted SubmitStatus = iota + 1
	SubmitDuplicate
	SubmitRejected
)

func (s SubmitStatus) String() string {
	switch s {
	case SubmitAccepted:
		return "accepted"
	case SubmitDuplicate:
		return "duplicate"
	case SubmitRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

type RejectReason string

const (
	RejectValidationError RejectReason = "validation_error"
	RejectStorageError    RejectReason = "storage_error"
)

// SubmitOutcome is what a caller gets back from Submit. Err carries detail for
// rejected submissions; Reason is set only when Status is SubmitRejected.
type SubmitOutcome struct {
	Status SubmitStatus
	Reason RejectReason
	Err    error
}

// ResultRecorder orchestrates validation, idempotency checking and the atomic
// append into the history store. It is the only writer of StudentHistory.
type ResultRecorder interface {
	Submit(ctx context.Context, result *model.ExamResult) SubmitOutcome
}

type resultRecorder struct {
	store     repository.HistoryStore
	validator ResultValidator
	retries   int
	backoff   time.Duration
}

func NewResultRecorder(store repository.HistoryStore, validator ResultValidator, cfg *config.Config) ResultRecorder {
	retries := cfg.Session.SubmitRetries
	if retries < 1 {
		retries = 1
	}
	backoff := cfg.Session.SubmitBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}
	return &resultRecorder{
		store:     store,
		validator: validator,
		retries:   retries,
		backoff:   backoff,
	}
}

// Submit validates the result and commits it exactly once. Resubmitting the
// same attemptID after a timeout-but-actually-succeeded write observes
// SubmitDuplicate without double-recording. Transient store failures are
// retried with doubling backoff; exhaustion surfaces as
// rejected(storage_error) and never touches previously committed entries.
func (r *resultRecorder) Submit(ctx context.Context, result *model.ExamResult) SubmitOutcome {
	if err := r.validator.Validate(result); err != nil {
		log.Warn().Err(err).
			Str("attemptID", attemptIDOf(result)).
			Msg("Submit: result rejected by validator, storage untouched")
		return SubmitOutcome{Status: SubmitRejected, Reason: RejectValidationError, Err: err}
	}

	var lastErr error
	backoff := r.backoff
retry:
	for attempt := 1; attempt <= r.retries; attempt++ {
		outcome, err := r.store.AppendIfAbsent(ctx, result.StudentKey, result.AttemptID, *result)
		if err == nil {
			if outcome == repository.AlreadyPresent {
				log.Info().
					Str("attemptID", result.AttemptID).
					Str("studentKey", result.StudentKey).
					Msg("Submit: duplicate submission, idempotent no-op")
				return SubmitOutcome{Status: SubmitDuplicate}
			}
			log.Info().
				Str("attemptID", result.AttemptID).
				Str("studentKey", result.StudentKey).
				Int("sections", len(result.Sections)).
				Msg("Submit: result accepted and appended to history")
			return SubmitOutcome{Status: SubmitAccepted}
		}

		lastErr = err
		log.Warn().Err(err).
			Str("attemptID", result.AttemptID).
			Int("attempt", attempt).
			Int("maxAttempts", r.retries).
			Msg("Submit: transient storage failure")

		if attempt == r.retries {
			break
		}
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			lastErr = fmt.Errorf("submit cancelled while backing off: %w", ctx.Err())
			break retry
		}
	}

	log.Error().Err(lastErr).
		Str("attemptID", result.AttemptID).
		Str("studentKey", result.StudentKey).
		Msg("Submit: storage retries exhausted, submission rejected")
	return SubmitOutcome{
		Status: SubmitRejected,
		Reason: RejectStorageError,
		Err:    fmt.Errorf("storage retries exhausted for attempt %s: %w", result.AttemptID, lastErr),
	}
}

func attemptIDOf(result *model.ExamResult) string {
	if result == nil {
		return ""
	}
	return result.AttemptID
}
