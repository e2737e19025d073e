package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lshigami/Pangolin/config"
	"github.com/lshigami/Pangolin/internal/auth"
	"github.com/lshigami/Pangolin/internal/dto"
	"github.com/lshigami/Pangolin/internal/model"
	"github.com/lshigami/Pangolin/internal/service"
	"github.com/lshigami/Pangolin/internal/session"
	"github.com/rs/zerolog/log"
)

type AttemptController struct {
	manager        *session.Manager
	historyService service.HistoryService
	cfg            *config.Config
}

func NewAttemptController(manager *session.Manager, historyService service.HistoryService, cfg *config.Config) *AttemptController {
	return &AttemptController{manager: manager, historyService: historyService, cfg: cfg}
}

// StartAttempt godoc
// @Summary Start a new exam attempt
// @Description Opens an attempt for a student: checks the preparation checklist, issues a media credential and connects to the media gateway. Refused with 422 when required checklist items are missing.
// @Tags Attempts
// @Accept json
// @Produce json
// @Param request body dto.StartAttemptRequest true "Student key and device checklist"
// @Success 201 {object} dto.StartAttemptResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid request body"
// @Failure 422 {object} dto.StartAttemptResponse "Preparation incomplete, missing items listed"
// @Failure 502 {object} dto.ErrorResponse "Credential issuance or media connection failed"
// @Router /attempts [post]
func (c *AttemptController) StartAttempt(ctx *gin.Context) {
	var req dto.StartAttemptRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("StartAttempt: Failed to bind JSON")
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	attempt, credential, err := c.manager.StartAttempt(ctx.Request.Context(), req.StudentKey, req.Checklist)
	if err != nil {
		var prepErr *session.PreparationError
		if errors.As(err, &prepErr) {
			ctx.JSON(http.StatusUnprocessableEntity, dto.StartAttemptResponse{
				MissingChecklist: prepErr.Missing,
			})
			return
		}
		log.Error().Err(err).Str("studentKey", req.StudentKey).Msg("StartAttempt: Connection failed")
		ctx.JSON(http.StatusBadGateway, dto.ErrorResponse{Message: "Failed to start attempt", Details: []string{err.Error()}})
		return
	}

	resp := dto.StartAttemptResponse{
		Attempt:        attemptToResponse(attempt),
		MediaToken:     credential.Token,
		MediaEndpoint:  credential.Endpoint,
		TokenExpiresAt: credential.ExpiresAt,
	}
	ctx.JSON(http.StatusCreated, resp)
}

// GetAttempt godoc
// @Summary Get a live attempt snapshot
// @Description Retrieve the current lifecycle state and transcript of an attempt.
// @Tags Attempts
// @Produce json
// @Param attempt_id path string true "Attempt ID"
// @Success 200 {object} dto.AttemptResponse
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Router /attempts/{attempt_id} [get]
func (c *AttemptController) GetAttempt(ctx *gin.Context) {
	attemptID := ctx.Param("attempt_id")
	controller, ok := c.manager.Get(attemptID)
	if !ok {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Attempt not found"})
		return
	}
	ctx.JSON(http.StatusOK, attemptToResponse(controller.Snapshot()))
}

// EndAttempt godoc
// @Summary End an attempt
// @Description User-initiated end of the live session. Forces the Finalizing transition immediately; any in-flight result submission is allowed to finish.
// @Tags Attempts
// @Produce json
// @Param attempt_id path string true "Attempt ID"
// @Success 202 {object} dto.AttemptResponse
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 409 {object} dto.ErrorResponse "Attempt already terminal or not yet live"
// @Router /attempts/{attempt_id}/end [post]
func (c *AttemptController) EndAttempt(ctx *gin.Context) {
	attemptID := ctx.Param("attempt_id")
	controller, ok := c.manager.Get(attemptID)
	if !ok {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Attempt not found"})
		return
	}
	if err := controller.End(); err != nil {
		ctx.JSON(http.StatusConflict, dto.ErrorResponse{Message: err.Error()})
		return
	}
	ctx.JSON(http.StatusAccepted, attemptToResponse(controller.Snapshot()))
}

// SubmitResult godoc
// @Summary Submit a graded result for an attempt
// @Description Agent-facing intake: hands a grading payload to the attempt's controller, which validates and commits it exactly once. Resubmitting the same attempt's result reports duplicate without double-recording.
// @Tags Attempts
// @Accept json
// @Produce json
// @Param Authorization header string true "Bearer media credential issued at attempt start"
// @Param attempt_id path string true "Attempt ID"
// @Param request body dto.SubmitResultRequest true "Graded sections"
// @Success 200 {object} dto.SubmitResultResponse "accepted or duplicate"
// @Failure 400 {object} dto.ErrorResponse "Invalid request body"
// @Failure 401 {object} dto.ErrorResponse "Missing or invalid media credential"
// @Failure 403 {object} dto.ErrorResponse "Credential issued for a different attempt"
// @Failure 404 {object} dto.ErrorResponse "Attempt not found"
// @Failure 409 {object} dto.ErrorResponse "Attempt already finalized"
// @Failure 422 {object} dto.SubmitResultResponse "Result rejected by validation"
// @Failure 500 {object} dto.SubmitResultResponse "Storage retries exhausted"
// @Router /attempts/{attempt_id}/result [post]
func (c *AttemptController) SubmitResult(ctx *gin.Context) {
	attemptID := ctx.Param("attempt_id")

	authHeader := ctx.GetHeader("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "Missing media credential"})
		return
	}
	tokenStudentKey, tokenAttemptID, err := auth.VerifyCredential(c.cfg, strings.TrimPrefix(authHeader, "Bearer "))
	if err != nil {
		log.Warn().Err(err).Str("attemptID", attemptID).Msg("SubmitResult: Credential verification failed")
		ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Message: "Invalid media credential", Details: []string{err.Error()}})
		return
	}
	if tokenAttemptID != attemptID {
		ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Message: "Credential was issued for a different attempt"})
		return
	}

	var req dto.SubmitResultRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Str("attemptID", attemptID).Msg("SubmitResult: Failed to bind JSON")
		ctx.JSON(http.StatusBadRequest, dto.ErrorResponse{Message: "Invalid request body", Details: []string{err.Error()}})
		return
	}

	controller, ok := c.manager.Get(attemptID)
	if !ok {
		ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Message: "Attempt not found"})
		return
	}

	snapshot := controller.Snapshot()
	if tokenStudentKey != snapshot.StudentKey {
		ctx.JSON(http.StatusForbidden, dto.ErrorResponse{Message: "Credential was issued for a different student"})
		return
	}
	result := &model.ExamResult{
		AttemptID:  snapshot.AttemptID,
		StudentKey: snapshot.StudentKey,
		Sections:   make(map[string]model.SectionScore, len(req.Sections)),
		ComputedAt: time.Now(),
	}
	for part, score := range req.Sections {
		result.Sections[part] = model.SectionScore{
			Band:     score.Band,
			Feedback: score.Feedback,
			Details:  json.RawMessage(score.Details),
		}
	}

	outcome, err := controller.DeliverResult(ctx.Request.Context(), result)
	if err != nil {
		ctx.JSON(http.StatusConflict, dto.ErrorResponse{Message: err.Error()})
		return
	}

	resp := dto.SubmitResultResponse{
		AttemptID: attemptID,
		Status:    outcome.Status.String(),
		Reason:    string(outcome.Reason),
	}
	switch outcome.Status {
	case service.SubmitRejected:
		if outcome.Reason == service.RejectValidationError {
			ctx.JSON(http.StatusUnprocessableEntity, resp)
		} else {
			ctx.JSON(http.StatusInternalServerError, resp)
		}
	default:
		ctx.JSON(http.StatusOK, resp)
	}
}

// GetStudentHistory godoc
// @Summary Get a student's exam history
// @Description All recorded results for a student, in submission-accepted order. A student with no recorded results gets an empty history, not a 404.
// @Tags History
// @Produce json
// @Param student_key path string true "Student key"
// @Success 200 {object} dto.StudentHistoryResponse
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /students/{student_key}/history [get]
func (c *AttemptController) GetStudentHistory(ctx *gin.Context) {
	studentKey := ctx.Param("student_key")
	history, err := c.historyService.GetStudentHistory(ctx.Request.Context(), studentKey)
	if err != nil {
		log.Error().Err(err).Str("studentKey", studentKey).Msg("GetStudentHistory: Service error")
		ctx.JSON(http.StatusInternalServerError, dto.ErrorResponse{Message: "Failed to retrieve history", Details: []string{err.Error()}})
		return
	}
	ctx.JSON(http.StatusOK, history)
}

func attemptToResponse(attempt model.ExamAttempt) dto.AttemptResponse {
	resp := dto.AttemptResponse{
		AttemptID:   attempt.AttemptID,
		StudentKey:  attempt.StudentKey,
		State:       attempt.State.String(),
		StartedAt:   attempt.StartedAt,
		EndedAt:     attempt.EndedAt,
		EndReason:   string(attempt.EndReason),
		AbortReason: string(attempt.AbortReason),
	}
	for _, turn := range attempt.TranscriptFragments {
		resp.TranscriptFragments = append(resp.TranscriptFragments, dto.TranscriptTurnResponse{
			Speaker: turn.Speaker,
			Text:    turn.Text,
			At:      turn.At,
		})
	}
	return resp
}
