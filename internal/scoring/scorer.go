// Package scoring implements the pure score calculator: hard page-count
// rejection rules followed by the hybrid semantic + keyword + experience
// formula. No I/O, no state; identical inputs always produce an identical
// breakdown.
package scoring

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/recruitai/screening-agent/internal/models"
	"github.com/recruitai/screening-agent/internal/textutil"
)

// ExperienceEstimator guesses years of experience from document text. The
// default is a regex heuristic; it is an interface so the estimator can be
// tuned or replaced without touching the scoring formula.
type ExperienceEstimator interface {
	EstimateYears(text string) float64
}

// RegexEstimator is the default pattern-based estimator.
type RegexEstimator struct{}

func (RegexEstimator) EstimateYears(text string) float64 {
	return textutil.ExtractYears(text)
}

// Weights configure the score components. The three weights should sum to at
// most 100; the total is clamped either way.
type Weights struct {
	Semantic      float64
	Keyword       float64
	Experience    float64
	DefaultReqYrs float64
}

// DefaultWeights mirrors the reference 40/30/30 split.
func DefaultWeights() Weights {
	return Weights{Semantic: 40, Keyword: 30, Experience: 30, DefaultReqYrs: 2}
}

// Scorer computes score breakdowns.
type Scorer struct {
	weights   Weights
	estimator ExperienceEstimator
}

// NewScorer creates a scorer. A nil estimator falls back to the regex
// heuristic.
func NewScorer(weights Weights, estimator ExperienceEstimator) *Scorer {
	if estimator == nil {
		estimator = RegexEstimator{}
	}
	return &Scorer{weights: weights, estimator: estimator}
}

// Score evaluates one candidate document against the job requirements.
// A rejected breakdown carries no meaningful score components; rejected
// candidates never compete in ranking.
func (s *Scorer) Score(text string, req models.JobRequirements, semanticScore float64, pageCount int) models.ScoreBreakdown {
	years := s.estimator.EstimateYears(text)

	breakdown := models.ScoreBreakdown{
		SemanticScore: semanticScore,
		Years:         years,
	}

	// Seniority-by-length policy: juniors get one page, seniors two.
	if years < 3 {
		if pageCount > 1 {
			breakdown.IsRejected = true
			breakdown.RejectionReason = fmt.Sprintf("Junior (<3y) must be 1 Page. Has %d.", pageCount)
			return breakdown
		}
	} else if pageCount > 2 {
		breakdown.IsRejected = true
		breakdown.RejectionReason = fmt.Sprintf("Senior (>=3y) must be Max 2 Pages. Has %d.", pageCount)
		return breakdown
	}

	breakdown.SemanticPoints = semanticScore * s.weights.Semantic
	breakdown.MatchedSkills, breakdown.MissingSkills = MatchSkills(text, req.Skills)

	if len(req.Skills) > 0 {
		ratio := float64(len(breakdown.MatchedSkills)) / float64(len(req.Skills))
		breakdown.KeywordScore = round1(ratio * s.weights.Keyword)
	}

	reqYears := req.RequiredYears
	if reqYears <= 0 {
		reqYears = s.weights.DefaultReqYrs
	}
	expRatio := years / reqYears
	if expRatio > 1 {
		expRatio = 1
	}
	breakdown.ExperienceScore = round1(expRatio * s.weights.Experience)
	breakdown.SemanticPoints = round1(breakdown.SemanticPoints)

	breakdown.Total = Clamp(breakdown.SemanticPoints+breakdown.KeywordScore+breakdown.ExperienceScore, 0, 100)
	return breakdown
}

// ApplyBackstop promotes skills the semantic matcher found into the matched
// set when the literal keyword pass missed them, then recomputes the keyword
// component and total. Rejected breakdowns are left alone.
func (s *Scorer) ApplyBackstop(b *models.ScoreBreakdown, req models.JobRequirements, semanticHits []string) {
	if b.IsRejected || len(semanticHits) == 0 || len(req.Skills) == 0 {
		return
	}
	hit := make(map[string]bool, len(semanticHits))
	for _, h := range semanticHits {
		hit[strings.ToLower(h)] = true
	}

	var missing []string
	var promoted bool
	for _, m := range b.MissingSkills {
		if hit[strings.ToLower(m)] {
			b.MatchedSkills = append(b.MatchedSkills, m)
			promoted = true
		} else {
			missing = append(missing, m)
		}
	}
	if !promoted {
		return
	}
	b.MissingSkills = missing

	ratio := float64(len(b.MatchedSkills)) / float64(len(req.Skills))
	b.KeywordScore = round1(ratio * s.weights.Keyword)
	b.Total = Clamp(b.SemanticPoints+b.KeywordScore+b.ExperienceScore+b.AchievementBonus, 0, 100)
}

// MatchSkills partitions the required skills into matched and missing sets.
// Multi-word skills match as substrings; single-word skills require word
// boundaries so "Java" does not match "JavaScript".
func MatchSkills(text string, skills []string) (matched, missing []string) {
	matched = []string{}
	missing = []string{}
	lower := strings.ToLower(text)

	for _, skill := range skills {
		kw := strings.ToLower(strings.TrimSpace(skill))
		if kw == "" {
			continue
		}
		var found bool
		if strings.Contains(kw, " ") {
			found = strings.Contains(lower, kw)
		} else {
			found = wordBoundaryMatch(lower, kw)
		}
		if found {
			matched = append(matched, skill)
		} else {
			missing = append(missing, skill)
		}
	}
	return matched, missing
}

func wordBoundaryMatch(text, word string) bool {
	re, err := regexp.Compile(`\b` + regexp.QuoteMeta(word) + `\b`)
	if err != nil {
		return strings.Contains(text, word)
	}
	return re.MatchString(text)
}

// Clamp bounds v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
