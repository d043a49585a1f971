package models

import "time"

// AcademicYear is a school's bounded teaching period (e.g. "2024/2025").
// At most one row per school carries IsCurrent=true; date ranges of years
// belonging to the same school never overlap.
type AcademicYear struct {
	ID          string    `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	YearCode    string    `db:"year_code" json:"year_code"`
	StartDate   time.Time `db:"start_date" json:"start_date"`
	EndDate     time.Time `db:"end_date" json:"end_date"`
	SchoolID    string    `db:"school_id" json:"school_id"`
	IsActive    bool      `db:"is_active" json:"is_active"`
	IsCurrent   bool      `db:"is_current" json:"is_current"`
	Description *string   `db:"description" json:"description,omitempty"`
	AuditFields
}

// Contains reports whether the given date falls within the year's range.
func (y AcademicYear) Contains(date time.Time) bool {
	return !date.Before(y.StartDate) && !date.After(y.EndDate)
}

// AcademicYearFilter defines filters supported by list endpoints.
type AcademicYearFilter struct {
	SchoolID  string
	IsActive  *bool
	IsCurrent *bool
	Keyword   string
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
