package models

import "time"

// DaysOfWeek lists weekday names in timetable display order.
var DaysOfWeek = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// ValidDayOfWeek reports whether the given day is a known weekday name.
func ValidDayOfWeek(day string) bool {
	for _, d := range DaysOfWeek {
		if d == day {
			return true
		}
	}
	return false
}

// Schedule is a recurring weekly time slot assigning a subject and teacher to
// a class. Times are "HH:MM" 24-hour strings; the zero-padded form makes
// lexicographic comparison equal to chronological comparison.
type Schedule struct {
	ID             string `db:"id" json:"id"`
	ClassID        string `db:"class_id" json:"class_id"`
	SubjectID      string `db:"subject_id" json:"subject_id"`
	TeacherID      string `db:"teacher_id" json:"teacher_id"`
	DayOfWeek      string `db:"day_of_week" json:"day_of_week"`
	StartTime      string `db:"start_time" json:"start_time"`
	EndTime        string `db:"end_time" json:"end_time"`
	Room           string `db:"room" json:"room"`
	IsActive       bool   `db:"is_active" json:"is_active"`
	AcademicYearID string `db:"academic_year_id" json:"academic_year_id"`
	AuditFields
}

// Overlaps applies the half-open interval test against another slot on the
// same day: back-to-back slots (end == start) do not overlap.
func (s Schedule) Overlaps(startTime, endTime string) bool {
	return s.StartTime < endTime && s.EndTime > startTime
}

// NextOccurrence returns the next datetime at or after ref matching the
// schedule's weekday and start time, rolling forward a week when today's slot
// has already passed.
func (s Schedule) NextOccurrence(ref time.Time) (time.Time, error) {
	start, err := time.Parse("15:04", s.StartTime)
	if err != nil {
		return time.Time{}, err
	}

	occurrence := time.Date(ref.Year(), ref.Month(), ref.Day(), start.Hour(), start.Minute(), 0, 0, ref.Location())
	for occurrence.Weekday().String() != s.DayOfWeek || occurrence.Before(ref) {
		occurrence = occurrence.AddDate(0, 0, 1)
		if occurrence.Sub(ref) > 8*24*time.Hour {
			break
		}
	}
	return occurrence, nil
}

// HappeningAt reports whether the slot is in session at the given time.
func (s Schedule) HappeningAt(t time.Time) bool {
	if !s.IsActive || t.Weekday().String() != s.DayOfWeek {
		return false
	}
	now := t.Format("15:04")
	return s.StartTime <= now && now < s.EndTime
}

// ScheduleDetail enriches Schedule with subject/teacher/class names resolved
// through the repository's read joins.
type ScheduleDetail struct {
	Schedule
	ClassName   string `db:"class_name" json:"class_name"`
	SubjectName string `db:"subject_name" json:"subject_name"`
	TeacherName string `db:"teacher_name" json:"teacher_name"`
}

// WeeklySchedule maps weekday names to their ordered slots.
type WeeklySchedule map[string][]ScheduleDetail

// ScheduleFilter describes query params for listing schedules.
type ScheduleFilter struct {
	AcademicYearID string
	ClassID        string
	TeacherID      string
	SubjectID      string
	DayOfWeek      string
	IsActive       *bool
	Page           int
	PageSize       int
	SortBy         string
	SortOrder      string
}

// ScheduleConflict describes an existing slot that collides with a proposal.
type ScheduleConflict struct {
	ScheduleID string `db:"schedule_id" json:"schedule_id"`
	ClassID    string `db:"class_id" json:"class_id"`
	TeacherID  string `db:"teacher_id" json:"teacher_id"`
	DayOfWeek  string `db:"day_of_week" json:"day_of_week"`
	StartTime  string `db:"start_time" json:"start_time"`
	EndTime    string `db:"end_time" json:"end_time"`
	Dimension  string `db:"dimension" json:"dimension"` // "class" or "teacher"
}

// ScheduleConflictError is returned when a schedule collides with an existing one.
type ScheduleConflictError struct {
	Message   string             `json:"message"`
	Conflicts []ScheduleConflict `json:"conflicts"`
}

// Error implements the error interface for conflict errors.
func (e *ScheduleConflictError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return e.Message
}
