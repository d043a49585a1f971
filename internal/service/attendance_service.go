package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

type attendanceRepo interface {
	List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error)
	FindByID(ctx context.Context, id string) (*models.Attendance, error)
	Create(ctx context.Context, record *models.Attendance) error
	BulkCreate(ctx context.Context, records []*models.Attendance) error
	Update(ctx context.Context, record *models.Attendance) error
	Summary(ctx context.Context, enrollmentID string, from, to *time.Time) (*models.AttendanceSummary, error)
	ClassSummary(ctx context.Context, classID, academicYearID string, from, to *time.Time) (*models.AttendanceSummary, error)
}

type classRosterReader interface {
	ListActiveByClassYear(ctx context.Context, classID, academicYearID string) ([]models.Enrollment, error)
}

// RecordAttendanceRequest marks one enrollment's presence for a date.
type RecordAttendanceRequest struct {
	EnrollmentID   string                  `json:"enrollment_id" validate:"required"`
	TeacherID      string                  `json:"teacher_id" validate:"required"`
	AttendanceDate string                  `json:"attendance_date" validate:"required,datetime=2006-01-02"`
	Status         models.AttendanceStatus `json:"status" validate:"required"`
	CheckInTime    *string                 `json:"check_in_time"`
	CheckOutTime   *string                 `json:"check_out_time"`
	Notes          *string                 `json:"notes"`
}

// BulkAttendanceRequest marks a whole class for one date. Statuses maps
// enrollment id to status; enrollments missing from the map default to present.
type BulkAttendanceRequest struct {
	ClassID        string                             `json:"class_id" validate:"required"`
	AcademicYearID string                             `json:"academic_year_id" validate:"required"`
	TeacherID      string                             `json:"teacher_id" validate:"required"`
	AttendanceDate string                             `json:"attendance_date" validate:"required,datetime=2006-01-02"`
	Statuses       map[string]models.AttendanceStatus `json:"statuses"`
}

// AttendanceService records daily presence and derives attendance rates.
type AttendanceService struct {
	attendance attendanceRepo
	roster     classRosterReader
	validator  *validator.Validate
	logger     *zap.Logger
}

// NewAttendanceService constructs AttendanceService.
func NewAttendanceService(attendance attendanceRepo, roster classRosterReader, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{attendance: attendance, roster: roster, validator: validate, logger: logger}
}

// List returns attendance records with pagination metadata.
func (s *AttendanceService) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	records, total, err := s.attendance.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, total, nil
}

// Record marks one enrollment's presence. A second record for the same date
// surfaces as a duplicate.
func (s *AttendanceService) Record(ctx context.Context, req RecordAttendanceRequest, actorID *string) (*models.Attendance, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}
	date, err := time.Parse("2006-01-02", req.AttendanceDate)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid attendance date")
	}

	record := &models.Attendance{
		EnrollmentID:   req.EnrollmentID,
		TeacherID:      req.TeacherID,
		AttendanceDate: date,
		Status:         req.Status,
		CheckInTime:    req.CheckInTime,
		CheckOutTime:   req.CheckOutTime,
		Type:           models.AttendanceTypeDaily,
		Notes:          req.Notes,
	}
	record.CreatedBy = actorID
	record.UpdatedBy = actorID
	if err := s.attendance.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// BulkRecord marks the whole active roster of a class for one date in a
// single transaction.
func (s *AttendanceService) BulkRecord(ctx context.Context, req BulkAttendanceRequest, actorID *string) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid bulk attendance payload")
	}
	date, err := time.Parse("2006-01-02", req.AttendanceDate)
	if err != nil {
		return 0, appErrors.Clone(appErrors.ErrValidation, "invalid attendance date")
	}
	for _, status := range req.Statuses {
		if !status.Valid() {
			return 0, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
		}
	}

	enrollments, err := s.roster.ListActiveByClassYear(ctx, req.ClassID, req.AcademicYearID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}
	if len(enrollments) == 0 {
		return 0, appErrors.Clone(appErrors.ErrValidation, "class has no active enrollments")
	}

	records := make([]*models.Attendance, 0, len(enrollments))
	for _, enrollment := range enrollments {
		status, ok := req.Statuses[enrollment.ID]
		if !ok {
			status = models.AttendancePresent
		}
		record := &models.Attendance{
			EnrollmentID:   enrollment.ID,
			TeacherID:      req.TeacherID,
			AttendanceDate: date,
			Status:         status,
			Type:           models.AttendanceTypeDaily,
		}
		record.CreatedBy = actorID
		record.UpdatedBy = actorID
		records = append(records, record)
	}

	if err := s.attendance.BulkCreate(ctx, records); err != nil {
		return 0, err
	}
	s.logger.Info("class attendance recorded",
		zap.String("class_id", req.ClassID),
		zap.String("date", req.AttendanceDate),
		zap.Int("students", len(records)))
	return len(records), nil
}

// Update corrects an existing record.
func (s *AttendanceService) Update(ctx context.Context, id string, req RecordAttendanceRequest, actorID *string) (*models.Attendance, error) {
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown attendance status")
	}
	record, err := s.attendance.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load attendance record")
	}

	record.Status = req.Status
	record.CheckInTime = req.CheckInTime
	record.CheckOutTime = req.CheckOutTime
	record.Notes = req.Notes
	record.UpdatedBy = actorID
	if err := s.attendance.Update(ctx, record); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "attendance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update attendance record")
	}
	return record, nil
}

// Summary aggregates an enrollment's attendance within an optional range.
func (s *AttendanceService) Summary(ctx context.Context, enrollmentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	if enrollmentID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "enrollment is required")
	}
	summary, err := s.attendance.Summary(ctx, enrollmentID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize attendance")
	}
	return summary, nil
}

// ClassSummary aggregates a whole class's attendance within an optional range.
func (s *AttendanceService) ClassSummary(ctx context.Context, classID, academicYearID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	if classID == "" || academicYearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class and academic year are required")
	}
	summary, err := s.attendance.ClassSummary(ctx, classID, academicYearID, from, to)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarize class attendance")
	}
	return summary, nil
}
