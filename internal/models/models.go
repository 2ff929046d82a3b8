package models

import (
	"errors"
	"time"
)

// ErrNotFound is returned by job stores when a job id is unknown.
var ErrNotFound = errors.New("job not found")

// JobStatus is the externally observable lifecycle state of a job.
type JobStatus string

const (
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

// Terminal reports whether a job in this status may never change again.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// Job is one end-to-end run of the ranking pipeline.
// Owned by the orchestrator; pollers only ever see copies.
type Job struct {
	ID          string     `json:"job_id"`
	Status      JobStatus  `json:"status"`
	Progress    int        `json:"progress"`
	CurrentStep string     `json:"current_step"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	Result      *JobResult `json:"result,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// CandidateStatus is the per-candidate outcome within a job.
type CandidateStatus string

const (
	CandidatePending     CandidateStatus = "pending"
	CandidateRejected    CandidateStatus = "rejected"
	CandidateSelected    CandidateStatus = "selected"
	CandidateNotSelected CandidateStatus = "not_selected"
)

// Identity holds contact details extracted locally from the document.
// Email is authoritative once set and must never be overwritten by a
// less reliable source such as model output.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Candidate is one input document under evaluation within a job.
type Candidate struct {
	Filename    string `json:"filename"`
	ContentHash string `json:"-"`
	RawText     string `json:"-"`
	PageCount   int    `json:"page_count"`
	// Subject is the source message subject when the document arrived by
	// email; empty for direct uploads.
	Subject string `json:"-"`

	Identity   Identity        `json:"identity"`
	Similarity float64         `json:"semantic_score"`
	Breakdown  ScoreBreakdown  `json:"breakdown"`
	Review     *ReviewResult   `json:"review,omitempty"`
	Reviewed   bool            `json:"reviewed"`
	Status     CandidateStatus `json:"status"`
}

// Clone returns a deep copy so pipeline stages can stay immutable-in,
// immutable-out.
func (c Candidate) Clone() Candidate {
	out := c
	out.Breakdown = c.Breakdown.Clone()
	if c.Review != nil {
		rev := c.Review.Clone()
		out.Review = &rev
	}
	return out
}

// ScoreBreakdown is the explainable decomposition of a candidate's score.
// It is a value object: fully recomputable, never partially stale.
type ScoreBreakdown struct {
	SemanticScore    float64 `json:"semantic_score"`
	SemanticPoints   float64 `json:"semantic_points"`
	KeywordScore     float64 `json:"keyword_score"`
	ExperienceScore  float64 `json:"experience_score"`
	AchievementBonus float64 `json:"achievement_bonus"`
	Total            float64 `json:"total"`
	Years            float64 `json:"years"`

	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills"`

	IsRejected      bool   `json:"is_rejected"`
	RejectionReason string `json:"rejection_reason,omitempty"`
}

// Clone returns a copy with its own skill slices.
func (b ScoreBreakdown) Clone() ScoreBreakdown {
	out := b
	out.MatchedSkills = append([]string(nil), b.MatchedSkills...)
	out.MissingSkills = append([]string(nil), b.MissingSkills...)
	return out
}

// JobRequirements is derived once per job from the job description and
// shared read-only by all scoring passes.
type JobRequirements struct {
	Title          string   `json:"title"`
	Skills         []string `json:"skills"`
	RequiredYears  float64  `json:"required_years"`
	EducationLevel string   `json:"education_level"`
	Summary        string   `json:"summary"`
}

// ReviewResult is the schema-validated output of the deep review pass.
// Email and phone are advisory only; merge precedence keeps the locally
// extracted identity.
type ReviewResult struct {
	Status           string   `json:"status"`
	Reasoning        string   `json:"reasoning"`
	Strengths        []string `json:"strengths"`
	Weaknesses       []string `json:"weaknesses"`
	ExtractedSkills  []string `json:"extracted_skills"`
	Achievements     []string `json:"hobbies_and_achievements"`
	AchievementBonus float64  `json:"achievement_bonus"`
	Email            string   `json:"email,omitempty"`
	Phone            string   `json:"phone,omitempty"`
}

// Clone returns a copy with its own slices.
func (r ReviewResult) Clone() ReviewResult {
	out := r
	out.Strengths = append([]string(nil), r.Strengths...)
	out.Weaknesses = append([]string(nil), r.Weaknesses...)
	out.ExtractedSkills = append([]string(nil), r.ExtractedSkills...)
	out.Achievements = append([]string(nil), r.Achievements...)
	return out
}

// RejectedCandidate is the summary row for a hard-rejected document. It is
// reported separately and never intermixed with the ranked list.
type RejectedCandidate struct {
	Filename string `json:"filename"`
	Name     string `json:"name"`
	Reason   string `json:"reason"`
}

// JobResult is the payload attached to a completed job.
type JobResult struct {
	JobTitle      string              `json:"job_title"`
	Selected      []Candidate         `json:"selected"`
	NotSelected   []Candidate         `json:"not_selected"`
	Rejected      []RejectedCandidate `json:"rejected"`
	RejectedCount int                 `json:"rejected_count"`
	ReportPath    string              `json:"report_path,omitempty"`
	GeneratedAt   time.Time           `json:"generated_at"`
}

// SourcedFile is one raw input document before extraction, tagged with the
// message subject when it came from a mailbox.
type SourcedFile struct {
	Filename string
	Data     []byte
	Subject  string
}
