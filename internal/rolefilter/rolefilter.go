// Package rolefilter decides whether a sourced document plausibly targets
// the advertised role before the expensive pipeline stages run. The filter
// is deliberately permissive: it only drops documents that carry enough
// signal to be confidently judged off-role.
package rolefilter

import (
	"context"
	"regexp"
	"strings"

	"go.uber.org/zap"
)

// RelevanceClassifier scores how related two short texts are, in [0, 1].
type RelevanceClassifier interface {
	Relevance(ctx context.Context, a, b string) (float64, error)
}

// Decision explains a filter outcome.
type Decision struct {
	IsMatch    bool
	Confidence float64
	// DetectedRole is the signal string that scored best against the role
	// title, empty when the classifier never produced a score.
	DetectedRole string
	// Source names what drove the decision: "classifier", "no-signal" or
	// "classifier-error".
	Source string
}

// Filter gates candidates on role relevance.
type Filter struct {
	classifier RelevanceClassifier
	threshold  float64
	logger     *zap.Logger
}

// NewFilter constructs a filter. Documents scoring below threshold are
// dropped; anything ambiguous passes through.
func NewFilter(classifier RelevanceClassifier, threshold float64, logger *zap.Logger) *Filter {
	return &Filter{classifier: classifier, threshold: threshold, logger: logger}
}

var subjectNoise = regexp.MustCompile(`(?i)\b(application|applying|resume|cv|for|regarding|ref|re)\b:?`)

// Match reports whether the document appears to target the given role title.
// Each signal string, the email subject line plus the opening lines of the
// resume, is scored against the role independently and the best score wins,
// so one on-topic header line is enough even inside an off-topic document.
// Missing signal or a classifier failure defaults to a match so transient
// errors never reject a candidate.
func (f *Filter) Match(ctx context.Context, roleTitle, subject, resumeText string) Decision {
	signals := buildSignals(subject, resumeText)
	if len(signals) == 0 || strings.TrimSpace(roleTitle) == "" {
		return Decision{IsMatch: true, Source: "no-signal"}
	}

	var (
		best     float64
		bestSig  string
		scored   bool
		firstErr error
	)
	for _, sig := range signals {
		score, err := f.classifier.Relevance(ctx, roleTitle, sig)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		if !scored || score > best {
			best, bestSig = score, sig
		}
		scored = true
	}
	if !scored {
		f.logger.Warn("role relevance check failed, keeping candidate", zap.Error(firstErr))
		return Decision{IsMatch: true, Source: "classifier-error"}
	}

	d := Decision{
		IsMatch:      best >= f.threshold,
		Confidence:   best,
		DetectedRole: bestSig,
		Source:       "classifier",
	}
	if !d.IsMatch {
		f.logger.Info("candidate dropped as off-role",
			zap.String("subject", subject),
			zap.String("best_signal", bestSig),
			zap.Float64("score", best),
			zap.Float64("threshold", f.threshold))
	}
	return d
}

// buildSignals assembles the candidate signal strings: the cleaned subject
// line plus the first 15 substantive lines of the resume, each capped at
// 120 chars.
func buildSignals(subject, resumeText string) []string {
	var signals []string

	cleaned := strings.TrimSpace(subjectNoise.ReplaceAllString(subject, " "))
	cleaned = strings.Join(strings.Fields(cleaned), " ")
	if cleaned != "" {
		signals = append(signals, cleaned)
	}

	var kept int
	for _, line := range strings.Split(resumeText, "\n") {
		line = strings.TrimSpace(line)
		if len(line) < 3 {
			continue
		}
		if len(line) > 120 {
			line = line[:120]
		}
		signals = append(signals, line)
		kept++
		if kept == 15 {
			break
		}
	}
	return signals
}
