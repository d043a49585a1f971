package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// Possible enrollment statuses. Transitions out of active are terminal.
const (
	EnrollmentStatusActive      EnrollmentStatus = "active"
	EnrollmentStatusGraduated   EnrollmentStatus = "graduated"
	EnrollmentStatusTransferred EnrollmentStatus = "transferred"
	EnrollmentStatusSuspended   EnrollmentStatus = "suspended"
)

// Valid reports whether the status is one of the known values.
func (s EnrollmentStatus) Valid() bool {
	switch s {
	case EnrollmentStatusActive, EnrollmentStatusGraduated, EnrollmentStatusTransferred, EnrollmentStatusSuspended:
		return true
	}
	return false
}

// Enrollment binds one student to one class within one academic year.
// The (student, class, academic year) tuple is unique regardless of status.
type Enrollment struct {
	ID              string           `db:"id" json:"id"`
	StudentID       string           `db:"student_id" json:"student_id"`
	ClassID         string           `db:"class_id" json:"class_id"`
	AcademicYearID  string           `db:"academic_year_id" json:"academic_year_id"`
	Status          EnrollmentStatus `db:"status" json:"status"`
	EnrollmentDate  time.Time        `db:"enrollment_date" json:"enrollment_date"`
	GraduationDate  *time.Time       `db:"graduation_date" json:"graduation_date,omitempty"`
	AdmissionNumber *string          `db:"admission_number" json:"admission_number,omitempty"`
	ClassRank       *int             `db:"class_rank" json:"class_rank,omitempty"`
	Notes           *string          `db:"notes" json:"notes,omitempty"`
	AuditFields
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName string `db:"student_name" json:"student_name"`
	ClassName   string `db:"class_name" json:"class_name"`
	YearName    string `db:"year_name" json:"year_name"`
}

// EnrollmentSummary aggregates attendance and grade figures for one
// enrollment. AttendanceRate is present/total as a percentage, 0 when no
// attendance exists; AverageGrade is nil when no scored grades exist.
type EnrollmentSummary struct {
	EnrollmentID    string   `json:"enrollment_id"`
	AttendanceRate  float64  `json:"attendance_rate"`
	PresentCount    int      `db:"present_count" json:"present_count"`
	AttendanceCount int      `db:"attendance_count" json:"attendance_count"`
	AverageGrade    *float64 `db:"average_grade" json:"average_grade,omitempty"`
	GradeCount      int      `db:"grade_count" json:"grade_count"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID      string
	ClassID        string
	AcademicYearID string
	Status         EnrollmentStatus
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
