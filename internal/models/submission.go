package models

import (
	"math"
	"time"
)

// SubmissionStatus is the lifecycle state of a submission.
type SubmissionStatus string

const (
	SubmissionDraft     SubmissionStatus = "draft"
	SubmissionSubmitted SubmissionStatus = "submitted"
	SubmissionGraded    SubmissionStatus = "graded"
	SubmissionReturned  SubmissionStatus = "returned"
)

// Valid reports whether the status is one of the known values.
func (s SubmissionStatus) Valid() bool {
	switch s {
	case SubmissionDraft, SubmissionSubmitted, SubmissionGraded, SubmissionReturned:
		return true
	}
	return false
}

// submissionTransitions is the forward-only state machine:
// draft -> submitted -> graded -> returned. Re-grading (graded -> graded) is
// permitted since grading is an overwrite, not a versioned event.
var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	SubmissionDraft:     {SubmissionSubmitted},
	SubmissionSubmitted: {SubmissionGraded},
	SubmissionGraded:    {SubmissionGraded, SubmissionReturned},
	SubmissionReturned:  {},
}

// CanTransition reports whether moving from s to next is allowed.
func (s SubmissionStatus) CanTransition(next SubmissionStatus) bool {
	for _, allowed := range submissionTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Submission is one student's answer to an assignment. Unique per
// (assignment, student); a resubmission overwrites, it is not versioned.
type Submission struct {
	ID               string           `db:"id" json:"id"`
	AssignmentID     string           `db:"assignment_id" json:"assignment_id"`
	StudentID        string           `db:"student_id" json:"student_id"`
	Content          *string          `db:"content" json:"content,omitempty"`
	FilePath         *string          `db:"file_path" json:"file_path,omitempty"`
	FileName         *string          `db:"file_name" json:"file_name,omitempty"`
	Score            *float64         `db:"score" json:"score,omitempty"`
	Grade            *string          `db:"grade" json:"grade,omitempty"`
	Feedback         *string          `db:"feedback" json:"feedback,omitempty"`
	SubmittedAt      *time.Time       `db:"submitted_at" json:"submitted_at,omitempty"`
	Status           SubmissionStatus `db:"status" json:"status"`
	IsLate           bool             `db:"is_late" json:"is_late"`
	DaysLate         int              `db:"days_late" json:"days_late"`
	LatePenaltyNotes *string          `db:"late_penalty_notes" json:"late_penalty_notes,omitempty"`
	GradedBy         *string          `db:"graded_by" json:"graded_by,omitempty"`
	GradedAt         *time.Time       `db:"graded_at" json:"graded_at,omitempty"`
	AuditFields
}

// LatePenalty computes the deduction applied for a late submission:
// (max_score x late_penalty_percent / 100) x days_late, and zero unless the
// submission is late and the assignment allows late work.
func (s Submission) LatePenalty(a Assignment) float64 {
	if !s.IsLate || !a.AllowLateSubmission {
		return 0
	}
	return round2(a.MaxScore * a.LatePenaltyPercent / 100 * float64(s.DaysLate))
}

// FinalScore returns the penalty-adjusted score clamped at zero, or nil when
// the submission has not been scored yet.
func (s Submission) FinalScore(a Assignment) *float64 {
	if s.Score == nil {
		return nil
	}
	final := round2(math.Max(0, *s.Score-s.LatePenalty(a)))
	return &final
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// SubmissionDetail enriches Submission with assignment and student info.
type SubmissionDetail struct {
	Submission
	AssignmentTitle string  `db:"assignment_title" json:"assignment_title"`
	MaxScore        float64 `db:"max_score" json:"max_score"`
	StudentName     string  `db:"student_name" json:"student_name"`
}

// SubmissionFilter defines filters supported by list endpoints.
type SubmissionFilter struct {
	AssignmentID string
	StudentID    string
	Status       SubmissionStatus
	IsLate       *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
