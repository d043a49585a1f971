package models

import "time"

// AttendanceStatus is the recorded presence state for one day.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
	AttendanceLate    AttendanceStatus = "late"
	AttendanceExcuse  AttendanceStatus = "excuse"
	AttendanceSick    AttendanceStatus = "sick"
)

// Valid reports whether the status is one of the known values.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcuse, AttendanceSick:
		return true
	}
	return false
}

// AttendanceType is the granularity of an attendance record.
type AttendanceType string

const (
	AttendanceTypeDaily   AttendanceType = "daily"
	AttendanceTypeWeekly  AttendanceType = "weekly"
	AttendanceTypeMonthly AttendanceType = "monthly"
)

// Attendance records one enrollment's presence on one date.
// Unique per (enrollment, attendance_date).
type Attendance struct {
	ID             string           `db:"id" json:"id"`
	EnrollmentID   string           `db:"enrollment_id" json:"enrollment_id"`
	TeacherID      string           `db:"teacher_id" json:"teacher_id"`
	AttendanceDate time.Time        `db:"attendance_date" json:"attendance_date"`
	Status         AttendanceStatus `db:"status" json:"status"`
	CheckInTime    *string          `db:"check_in_time" json:"check_in_time,omitempty"`
	CheckOutTime   *string          `db:"check_out_time" json:"check_out_time,omitempty"`
	Type           AttendanceType   `db:"attendance_type" json:"attendance_type"`
	Notes          *string          `db:"notes" json:"notes,omitempty"`
	AuditFields
}

// AttendanceSummary aggregates status counts for an enrollment or class.
type AttendanceSummary struct {
	Total   int `db:"total" json:"total"`
	Present int `db:"present" json:"present"`
	Absent  int `db:"absent" json:"absent"`
	Late    int `db:"late" json:"late"`
	Excused int `db:"excused" json:"excused"`
	Sick    int `db:"sick" json:"sick"`
}

// Rate returns present/total as a percentage, 0 when no records exist.
func (s AttendanceSummary) Rate() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Present) / float64(s.Total) * 100
}

// AttendanceFilter defines filters supported by list endpoints.
type AttendanceFilter struct {
	EnrollmentID string
	ClassID      string
	TeacherID    string
	Status       AttendanceStatus
	DateFrom     *time.Time
	DateTo       *time.Time
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}
