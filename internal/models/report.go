package models

import "time"

// ReportFormat is the rendered output format.
type ReportFormat string

const (
	ReportFormatCSV ReportFormat = "csv"
	ReportFormatPDF ReportFormat = "pdf"
)

// Valid reports whether the format is supported.
func (f ReportFormat) Valid() bool {
	return f == ReportFormatCSV || f == ReportFormatPDF
}

// ReportType selects the dataset a report job renders.
type ReportType string

const (
	ReportTypeClassGrades ReportType = "class_grades"
	ReportTypeReportCard  ReportType = "report_card"
	ReportTypeAttendance  ReportType = "attendance"
)

// Valid reports whether the report type is known.
func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeClassGrades, ReportTypeReportCard, ReportTypeAttendance:
		return true
	}
	return false
}

// ReportJobStatus tracks an async export through its lifecycle.
type ReportJobStatus string

const (
	ReportJobPending    ReportJobStatus = "pending"
	ReportJobProcessing ReportJobStatus = "processing"
	ReportJobCompleted  ReportJobStatus = "completed"
	ReportJobFailed     ReportJobStatus = "failed"
)

// ReportJobParams scopes the dataset a job exports.
type ReportJobParams struct {
	ClassID        *string      `json:"class_id,omitempty"`
	StudentID      *string      `json:"student_id,omitempty"`
	AcademicYearID string       `json:"academic_year_id"`
	Semester       int          `json:"semester"`
	Format         ReportFormat `json:"format"`
}

// ReportJob is one queued export request and its outcome.
type ReportJob struct {
	ID            string          `db:"id" json:"id"`
	Type          ReportType      `db:"report_type" json:"report_type"`
	Status        ReportJobStatus `db:"status" json:"status"`
	ParamsJSON    []byte          `db:"params" json:"-"`
	Params        ReportJobParams `db:"-" json:"params"`
	FilePath      *string         `db:"file_path" json:"-"`
	DownloadToken *string         `db:"download_token" json:"download_token,omitempty"`
	DownloadURL   *string         `db:"-" json:"download_url,omitempty"`
	ErrorMessage  *string         `db:"error_message" json:"error_message,omitempty"`
	RequestedBy   *string         `db:"requested_by" json:"requested_by,omitempty"`
	ExpiresAt     *time.Time      `db:"expires_at" json:"expires_at,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time       `db:"updated_at" json:"updated_at"`
	CompletedAt   *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}
