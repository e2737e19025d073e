package service

import (
	"testing"
	"time"

	"github.com/lshigami/Pangolin/internal/model"
	"github.com/stretchr/testify/require"
)

func validResult(attemptID, studentKey string) *model.ExamResult {
	return &model.ExamResult{
		AttemptID:  attemptID,
		StudentKey: studentKey,
		Sections: map[string]model.SectionScore{
			"fluency":       {Band: 6.5, Feedback: "Generally smooth delivery with occasional hesitation."},
			"pronunciation": {Band: 7.0, Feedback: "Clear articulation, minor vowel issues."},
			"vocabulary":    {Band: 6.0, Feedback: "Adequate range, some repetition."},
			"grammar":       {Band: 6.5, Feedback: "Good control of complex structures."},
		},
		ComputedAt: time.Now(),
	}
}

func TestValidate_AcceptsWellFormedResult(t *testing.T) {
	v, err := NewResultValidator()
	require.NoError(t, err)

	require.NoError(t, v.Validate(validResult("a1", "s1")))
}

func TestValidate_AcceptsExtraSectionsWithValidShape(t *testing.T) {
	v, err := NewResultValidator()
	require.NoError(t, err)

	result := validResult("a1", "s1")
	result.Sections["coherence"] = model.SectionScore{Band: 8.0, Feedback: "Well organized responses."}
	require.NoError(t, v.Validate(result))
}

func TestValidate_RejectsMalformedResults(t *testing.T) {
	v, err := NewResultValidator()
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(*model.ExamResult)
	}{
		{"missing required part", func(r *model.ExamResult) { delete(r.Sections, "grammar") }},
		{"band above scale", func(r *model.ExamResult) {
			r.Sections["fluency"] = model.SectionScore{Band: 9.5, Feedback: "too good"}
		}},
		{"band of ten", func(r *model.ExamResult) {
			r.Sections["fluency"] = model.SectionScore{Band: 10.0, Feedback: "off the scale"}
		}},
		{"band below scale", func(r *model.ExamResult) {
			r.Sections["fluency"] = model.SectionScore{Band: -0.5, Feedback: "negative"}
		}},
		{"band off the half-band grid", func(r *model.ExamResult) {
			r.Sections["fluency"] = model.SectionScore{Band: 6.25, Feedback: "quarter bands are not a thing"}
		}},
		{"empty feedback", func(r *model.ExamResult) {
			r.Sections["fluency"] = model.SectionScore{Band: 6.5, Feedback: ""}
		}},
		{"extra section with bad band", func(r *model.ExamResult) {
			r.Sections["coherence"] = model.SectionScore{Band: 11, Feedback: "nope"}
		}},
		{"no sections at all", func(r *model.ExamResult) { r.Sections = nil }},
		{"missing attempt id", func(r *model.ExamResult) { r.AttemptID = "" }},
		{"missing student key", func(r *model.ExamResult) { r.StudentKey = "" }},
		{"missing computed_at", func(r *model.ExamResult) { r.ComputedAt = time.Time{} }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := validResult("a1", "s1")
			tt.mutate(result)
			require.Error(t, v.Validate(result))
		})
	}
}

func TestValidate_NilResult(t *testing.T) {
	v, err := NewResultValidator()
	require.NoError(t, err)
	require.Error(t, v.Validate(nil))
}
