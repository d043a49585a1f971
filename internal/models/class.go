package models

// ClassGroup is a homeroom class within a school and academic year.
// ClassCode is unique within (school, academic year).
type ClassGroup struct {
	ID                string  `db:"id" json:"id"`
	Name              string  `db:"name" json:"name"`
	ClassCode         string  `db:"class_code" json:"class_code"`
	SchoolID          string  `db:"school_id" json:"school_id"`
	Level             string  `db:"level" json:"level"`
	AcademicYearID    string  `db:"academic_year_id" json:"academic_year_id"`
	HomeroomTeacherID *string `db:"homeroom_teacher_id" json:"homeroom_teacher_id,omitempty"`
	MaxStudents       *int    `db:"max_students" json:"max_students,omitempty"`
	DisplayOrder      int     `db:"display_order" json:"order"`
	AuditFields
}

// ClassGroupDetail enriches ClassGroup with the derived occupancy counters.
type ClassGroupDetail struct {
	ClassGroup
	CurrentStudentCount int `db:"current_student_count" json:"current_student_count"`
}

// HasAvailableSlots reports whether another student can still enroll.
// A nil MaxStudents means unlimited capacity.
func (c ClassGroupDetail) HasAvailableSlots() bool {
	if c.MaxStudents == nil {
		return true
	}
	return c.CurrentStudentCount < *c.MaxStudents
}

// ClassGroupFilter defines filters supported by list endpoints.
type ClassGroupFilter struct {
	SchoolID       string
	AcademicYearID string
	Level          string
	Keyword        string
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}
