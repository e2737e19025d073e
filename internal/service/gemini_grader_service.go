package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/lshigami/Pangolin/config"
	"github.com/lshigami/Pangolin/internal/model"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"
)

// GraderService is the grading collaborator: it turns an attempt's transcript
// into a candidate ExamResult. How the grade is computed is opaque to the
// session layer; the payload is schema-checked before it reaches storage.
type GraderService interface {
	Grade(ctx context.Context, attempt *model.ExamAttempt) (*model.ExamResult, error)
}

type geminiGraderService struct {
	client *genai.GenerativeModel
	cfg    *config.Config
}

func NewGeminiGraderService(cfg *config.Config) (GraderService, error) {
	if cfg.GeminiApiKey == "" {
		log.Warn().Msg("GEMINI_API_KEY is not set. GeminiGraderService will be non-functional.")
		return &geminiGraderService{cfg: cfg, client: nil}, nil
	}
	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(cfg.GeminiApiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}
	m := client.GenerativeModel("gemini-1.5-flash")
	m.ResponseMIMEType = "application/json"
	return &geminiGraderService{client: m, cfg: cfg}, nil
}

// gradedSections mirrors the JSON object the model is instructed to return.
type gradedSections map[string]struct {
	Band     float64 `json:"band"`
	Feedback string  `json:"feedback"`
}

func (s *geminiGraderService) Grade(ctx context.Context, attempt *model.ExamAttempt) (*model.ExamResult, error) {
	if s.client == nil {
		return nil, fmt.Errorf("gemini client not initialized")
	}
	if len(attempt.TranscriptFragments) == 0 {
		return nil, fmt.Errorf("attempt %s has an empty transcript, nothing to grade", attempt.AttemptID)
	}

	prompt := buildGradingPrompt(attempt)

	resp, err := s.client.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		log.Error().Err(err).Str("attemptID", attempt.AttemptID).Msg("Gemini API error during grading")
		return nil, fmt.Errorf("gemini API error: %w", err)
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		log.Warn().Str("attemptID", attempt.AttemptID).Msg("Gemini returned no candidates or parts in response.")
		return nil, fmt.Errorf("gemini returned no content")
	}

	fullResponseText := ""
	for _, part := range resp.Candidates[0].Content.Parts {
		if txt, ok := part.(genai.Text); ok {
			fullResponseText += string(txt)
		}
	}

	return parseGradedResult(attempt, fullResponseText)
}

func buildGradingPrompt(attempt *model.ExamAttempt) string {
	var b strings.Builder
	b.WriteString("You are a certified examiner for spoken English proficiency tests, scoring on the 0-9 band scale in half-band increments.\n")
	b.WriteString("Below is the full transcript of a speaking exam session between an examiner and a student.\n\n")
	b.WriteString("Transcript:\n---\n")
	for _, turn := range attempt.TranscriptFragments {
		b.WriteString(turn.Speaker)
		b.WriteString(": ")
		b.WriteString(turn.Text)
		b.WriteString("\n")
	}
	b.WriteString("---\n\n")
	b.WriteString("Grade the student's performance in each of these parts: ")
	b.WriteString(strings.Join(DefaultRequiredParts, ", "))
	b.WriteString(".\n")
	b.WriteString("For every part give a band from 0.0 to 9.0 in steps of 0.5, plus specific, constructive feedback citing moments from the transcript.\n\n")
	b.WriteString("Respond with ONLY a JSON object of this exact shape:\n")
	b.WriteString(`{"fluency": {"band": 6.5, "feedback": "..."}, "pronunciation": {"band": 7.0, "feedback": "..."}, ...}`)
	b.WriteString("\n")
	return b.String()
}

func parseGradedResult(attempt *model.ExamAttempt, raw string) (*model.ExamResult, error) {
	// Some models wrap JSON output in a fenced block even when asked not to.
	raw = strings.TrimSpace(raw)
	raw = strings.TrimPrefix(raw, "```json")
	raw = strings.TrimPrefix(raw, "```")
	raw = strings.TrimSuffix(raw, "```")
	raw = strings.TrimSpace(raw)

	var graded gradedSections
	if err := json.Unmarshal([]byte(raw), &graded); err != nil {
		return nil, fmt.Errorf("failed to parse grading response as JSON: %w", err)
	}

	sections := make(map[string]model.SectionScore, len(graded))
	for part, score := range graded {
		sections[part] = model.SectionScore{Band: score.Band, Feedback: score.Feedback}
	}

	return &model.ExamResult{
		AttemptID:  attempt.AttemptID,
		StudentKey: attempt.StudentKey,
		Sections:   sections,
		ComputedAt: time.Now(),
	}, nil
}
