package models

import "time"

// AssignmentType categorises an assignment.
type AssignmentType string

const (
	AssignmentHomework     AssignmentType = "homework"
	AssignmentProjectWork  AssignmentType = "project"
	AssignmentQuizWork     AssignmentType = "quiz"
	AssignmentExam         AssignmentType = "exam"
	AssignmentPresentation AssignmentType = "presentation"
	AssignmentEssay        AssignmentType = "essay"
	AssignmentGeneric      AssignmentType = "assignment"
)

// Valid reports whether the assignment type is known.
func (t AssignmentType) Valid() bool {
	switch t {
	case AssignmentHomework, AssignmentProjectWork, AssignmentQuizWork, AssignmentExam,
		AssignmentPresentation, AssignmentEssay, AssignmentGeneric:
		return true
	}
	return false
}

// Assignment is graded work published to a class with a due date and an
// optional submission window.
type Assignment struct {
	ID                  string         `db:"id" json:"id"`
	SubjectID           string         `db:"subject_id" json:"subject_id"`
	TeacherID           string         `db:"teacher_id" json:"teacher_id"`
	ClassID             string         `db:"class_id" json:"class_id"`
	Title               string         `db:"title" json:"title"`
	Description         *string        `db:"description" json:"description,omitempty"`
	AssignmentType      AssignmentType `db:"assignment_type" json:"assignment_type"`
	DueDate             time.Time      `db:"due_date" json:"due_date"`
	SubmissionStart     *time.Time     `db:"submission_start" json:"submission_start,omitempty"`
	SubmissionEnd       *time.Time     `db:"submission_end" json:"submission_end,omitempty"`
	MaxScore            float64        `db:"max_score" json:"max_score"`
	Instructions        *string        `db:"instructions" json:"instructions,omitempty"`
	IsPublished         bool           `db:"is_published" json:"is_published"`
	AllowLateSubmission bool           `db:"allow_late_submission" json:"allow_late_submission"`
	LatePenaltyPercent  float64        `db:"late_penalty_percent" json:"late_penalty_percent"`
	AcademicYearID      string         `db:"academic_year_id" json:"academic_year_id"`
	AuditFields
}

// AcceptsSubmissionAt reports whether a submission is accepted at the given
// time: the assignment must be published and now must fall within the
// optional [SubmissionStart, SubmissionEnd] window (open-ended bounds allowed).
func (a Assignment) AcceptsSubmissionAt(t time.Time) bool {
	if !a.IsPublished {
		return false
	}
	if a.SubmissionStart != nil && t.Before(*a.SubmissionStart) {
		return false
	}
	if a.SubmissionEnd != nil && t.After(*a.SubmissionEnd) {
		return false
	}
	return true
}

// AssignmentFilter defines filters supported by list endpoints.
type AssignmentFilter struct {
	ClassID        string
	SubjectID      string
	TeacherID      string
	AcademicYearID string
	Type           AssignmentType
	IsPublished    *bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// AssignmentProgress summarises submission state for one assignment.
type AssignmentProgress struct {
	AssignmentID    string   `db:"assignment_id" json:"assignment_id"`
	SubmissionCount int      `db:"submission_count" json:"submission_count"`
	GradedCount     int      `db:"graded_count" json:"graded_count"`
	LateCount       int      `db:"late_count" json:"late_count"`
	AverageScore    *float64 `db:"average_score" json:"average_score,omitempty"`
}
