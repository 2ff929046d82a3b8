// Package requirements turns a free-text job description into the
// structured requirements the scoring stages consume.
package requirements

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/recruitai/screening-agent/internal/models"
	"github.com/recruitai/screening-agent/internal/textutil"
)

// Generator produces model output for a prompt.
type Generator interface {
	GenerateContent(ctx context.Context, prompt string, jsonMode bool) (string, error)
}

// ErrEmptyJobDescription marks a job description with no usable text. This
// is the one failure here that should abort a whole job.
var ErrEmptyJobDescription = errors.New("requirements: job description is empty")

// Extractor extracts structured requirements from a job description.
type Extractor struct {
	gen          Generator
	defaultYears float64
	logger       *zap.Logger
}

// NewExtractor builds an extractor. defaultYears is used when the
// description does not state an experience requirement.
func NewExtractor(gen Generator, defaultYears float64, logger *zap.Logger) *Extractor {
	return &Extractor{gen: gen, defaultYears: defaultYears, logger: logger}
}

const extractPrompt = `Extract the hiring requirements from the job description below.
Respond with a single JSON object with exactly these fields:
  "job_title": string, the role being hired for
  "required_skills": array of strings, concrete skills and technologies
  "required_years": number, minimum years of experience (0 if unstated)
  "education_level": string, minimum education ("" if unstated)
  "summary": string, two or three sentences describing the role

Job description:
%s`

type wireRequirements struct {
	JobTitle       string   `json:"job_title"`
	RequiredSkills []string `json:"required_skills"`
	RequiredYears  float64  `json:"required_years"`
	EducationLevel string   `json:"education_level"`
	Summary        string   `json:"summary"`
}

// Extract derives requirements from jdText. Model failures fall back to a
// heuristic extraction rather than failing the job; only an empty
// description is an error.
func (e *Extractor) Extract(ctx context.Context, jdText string) (models.JobRequirements, error) {
	jdText = strings.TrimSpace(textutil.SanitizeUTF8(jdText))
	if jdText == "" {
		return models.JobRequirements{}, ErrEmptyJobDescription
	}

	raw, err := e.gen.GenerateContent(ctx, fmt.Sprintf(extractPrompt, textutil.Truncate(jdText, 6000)), true)
	if err != nil {
		e.logger.Warn("requirements extraction call failed, using heuristics", zap.Error(err))
		return e.heuristic(jdText), nil
	}

	obj, ok := textutil.ExtractJSONObject(raw)
	if !ok {
		e.logger.Warn("no JSON object in requirements response, using heuristics")
		return e.heuristic(jdText), nil
	}
	var wire wireRequirements
	if err := json.Unmarshal([]byte(obj), &wire); err != nil {
		e.logger.Warn("requirements response failed to parse, using heuristics", zap.Error(err))
		return e.heuristic(jdText), nil
	}

	req := models.JobRequirements{
		Title:          strings.TrimSpace(wire.JobTitle),
		Skills:         normalizeSkills(wire.RequiredSkills),
		RequiredYears:  wire.RequiredYears,
		EducationLevel: strings.TrimSpace(wire.EducationLevel),
		Summary:        strings.TrimSpace(wire.Summary),
	}
	if req.Title == "" {
		req.Title = firstLine(jdText)
	}
	if req.RequiredYears <= 0 {
		req.RequiredYears = e.defaultYears
	}
	if req.Summary == "" {
		req.Summary = textutil.Truncate(jdText, 500)
	}
	return req, nil
}

// heuristic is the no-model path: title from the first line, years from the
// experience patterns, the truncated text as summary.
func (e *Extractor) heuristic(jdText string) models.JobRequirements {
	years := textutil.ExtractYears(jdText)
	if years <= 0 {
		years = e.defaultYears
	}
	return models.JobRequirements{
		Title:          firstLine(jdText),
		Skills:         []string{},
		RequiredYears:  years,
		EducationLevel: textutil.ExtractEducationLevel(jdText),
		Summary:        textutil.Truncate(jdText, 500),
	}
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			return textutil.Truncate(line, 80)
		}
	}
	return "Unknown Role"
}

// normalizeSkills trims, drops empties and removes case-insensitive
// duplicates while keeping first-seen casing and order.
func normalizeSkills(skills []string) []string {
	seen := make(map[string]struct{}, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, s)
	}
	return out
}
