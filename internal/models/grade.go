package models

import "time"

// AssessmentType categorises a grade entry.
type AssessmentType string

const (
	AssessmentDaily      AssessmentType = "daily"
	AssessmentQuiz       AssessmentType = "quiz"
	AssessmentMidterm    AssessmentType = "midterm"
	AssessmentFinal      AssessmentType = "final"
	AssessmentProject    AssessmentType = "project"
	AssessmentAssignment AssessmentType = "assignment"
)

// Valid reports whether the assessment type is known.
func (t AssessmentType) Valid() bool {
	switch t {
	case AssessmentDaily, AssessmentQuiz, AssessmentMidterm, AssessmentFinal, AssessmentProject, AssessmentAssignment:
		return true
	}
	return false
}

// Grade is a scored assessment for one enrollment and subject. The storage
// layer enforces uniqueness on (enrollment, subject, assessment_type,
// semester, academic_year).
type Grade struct {
	ID             string         `db:"id" json:"id"`
	EnrollmentID   string         `db:"enrollment_id" json:"enrollment_id"`
	SubjectID      string         `db:"subject_id" json:"subject_id"`
	TeacherID      string         `db:"teacher_id" json:"teacher_id"`
	AssessmentType AssessmentType `db:"assessment_type" json:"assessment_type"`
	Score          *float64       `db:"score" json:"score,omitempty"`
	Weight         float64        `db:"weight" json:"weight"`
	Semester       int            `db:"semester" json:"semester"`
	AssessmentDate time.Time      `db:"assessment_date" json:"assessment_date"`
	Notes          *string        `db:"notes" json:"notes,omitempty"`
	AcademicYearID string         `db:"academic_year_id" json:"academic_year_id"`
	AuditFields
}

// WeightedScore returns score x weight, or nil when the score is unset.
func (g Grade) WeightedScore() *float64 {
	if g.Score == nil {
		return nil
	}
	w := *g.Score * g.Weight
	return &w
}

// GradeDetail enriches Grade with subject and student info.
type GradeDetail struct {
	Grade
	SubjectName string `db:"subject_name" json:"subject_name"`
	SubjectCode string `db:"subject_code" json:"subject_code"`
	StudentID   string `db:"student_id" json:"student_id"`
	StudentName string `db:"student_name" json:"student_name"`
}

// GradeFilter allows querying of grade entries.
type GradeFilter struct {
	EnrollmentID   string
	ClassID        string
	SubjectID      string
	TeacherID      string
	AcademicYearID string
	AssessmentType AssessmentType
	Semester       int
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// ScoreSummary holds count/avg/max/min over a group of non-null scores.
type ScoreSummary struct {
	Count   int      `json:"count"`
	Average *float64 `json:"average,omitempty"`
	Max     *float64 `json:"max,omitempty"`
	Min     *float64 `json:"min,omitempty"`
}

// SubjectStatistics is a per-subject score summary carrying the subject info
// resolved through the read port.
type SubjectStatistics struct {
	SubjectID   string `json:"subject_id"`
	SubjectName string `json:"subject_name"`
	SubjectCode string `json:"subject_code"`
	ScoreSummary
}

// ClassGradeStatistics is the two-level aggregation over a class's grades:
// overall, per assessment type and per subject.
type ClassGradeStatistics struct {
	ClassID          string                         `json:"class_id"`
	AcademicYearID   string                         `json:"academic_year_id,omitempty"`
	Overall          ScoreSummary                   `json:"overall"`
	ByAssessmentType map[AssessmentType]ScoreSummary `json:"by_assessment_type"`
	BySubject        []SubjectStatistics            `json:"by_subject"`
}

// StudentGradeStatistics summarises one student's grades.
type StudentGradeStatistics struct {
	StudentID        string                         `json:"student_id"`
	AcademicYearID   string                         `json:"academic_year_id,omitempty"`
	Overall          ScoreSummary                   `json:"overall"`
	ByAssessmentType map[AssessmentType]ScoreSummary `json:"by_assessment_type"`
	BySubject        []SubjectStatistics            `json:"by_subject"`
}

// GradeBucket is one row of a fixed-range grade distribution.
type GradeBucket struct {
	Label string `json:"label"`
	Count int    `json:"count"`
}

// GradeDistributionLabels fixes the display order of the buckets.
var GradeDistributionLabels = []string{"A (90-100)", "B (80-89)", "C (70-79)", "D (60-69)", "E (<60)"}
