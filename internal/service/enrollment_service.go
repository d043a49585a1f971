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

type enrollmentRepo interface {
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Enrollment, error)
	Aggregate(ctx context.Context, enrollmentID string) (*models.EnrollmentSummary, error)
	Exists(ctx context.Context, studentID, classID, academicYearID, excludeID string) (bool, error)
	Create(ctx context.Context, enrollment *models.Enrollment) error
	UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, graduationDate *time.Time, updatedBy *string) error
	ListActiveByClassYear(ctx context.Context, classID, academicYearID string) ([]models.Enrollment, error)
	UpdateClassRanks(ctx context.Context, classID, academicYearID string) (int, error)
	Promote(ctx context.Context, fromYearID, toYearID, fromClassID, toClassID string, actorID *string) (int, error)
}

type classReader interface {
	FindByID(ctx context.Context, id string) (*models.ClassGroup, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassGroupDetail, error)
}

type yearReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
}

// EnrollYearRequest is the enroll payload.
type EnrollYearRequest struct {
	StudentID       string  `json:"student_id" validate:"required"`
	ClassID         string  `json:"class_id" validate:"required"`
	AcademicYearID  string  `json:"academic_year_id" validate:"required"`
	AdmissionNumber *string `json:"admission_number"`
	Notes           *string `json:"notes"`
}

// ChangeEnrollmentStatusRequest moves an enrollment to a new status.
type ChangeEnrollmentStatusRequest struct {
	Status         models.EnrollmentStatus `json:"status" validate:"required"`
	GraduationDate *string                 `json:"graduation_date" validate:"omitempty,datetime=2006-01-02"`
}

// PromoteClassRequest copies a class's active roster into the next year.
type PromoteClassRequest struct {
	FromAcademicYearID string `json:"from_academic_year_id" validate:"required"`
	ToAcademicYearID   string `json:"to_academic_year_id" validate:"required"`
	FromClassID        string `json:"from_class_id" validate:"required"`
	ToClassID          string `json:"to_class_id" validate:"required"`
}

// EnrollmentService manages student membership in classes: enrollment with
// capacity and duplicate checks, status changes, batch promotion, and class
// rank recomputation.
type EnrollmentService struct {
	enrollments enrollmentRepo
	classes     classReader
	years       yearReader
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEnrollmentService constructs EnrollmentService.
func NewEnrollmentService(enrollments enrollmentRepo, classes classReader, years yearReader, validate *validator.Validate, logger *zap.Logger) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EnrollmentService{enrollments: enrollments, classes: classes, years: years, validator: validate, logger: logger}
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	enrollments, total, err := s.enrollments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	return enrollments, total, nil
}

// Get returns one enrollment.
func (s *EnrollmentService) Get(ctx context.Context, id string) (*models.Enrollment, error) {
	enrollment, err := s.enrollments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment")
	}
	return enrollment, nil
}

// Summary returns attendance and grade aggregates for one enrollment. The
// rate is present/total as a percentage, 0 when no attendance exists.
func (s *EnrollmentService) Summary(ctx context.Context, id string) (*models.EnrollmentSummary, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	summary, err := s.enrollments.Aggregate(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate enrollment")
	}
	if summary.AttendanceCount > 0 {
		summary.AttendanceRate = float64(summary.PresentCount) / float64(summary.AttendanceCount) * 100
	}
	return summary, nil
}

// Enroll places a student into a class for a year. Rejected when the tuple
// already exists in any status, or when the class is at capacity.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollYearRequest, actorID *string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	if _, err := s.years.FindByID(ctx, req.AcademicYearID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}

	class, err := s.classes.FindDetailByID(ctx, req.ClassID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if !class.HasAvailableSlots() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class is at full capacity")
	}

	exists, err := s.enrollments.Exists(ctx, req.StudentID, req.ClassID, req.AcademicYearID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check enrollment")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "student already enrolled in this class and year")
	}

	enrollment := &models.Enrollment{
		StudentID:       req.StudentID,
		ClassID:         req.ClassID,
		AcademicYearID:  req.AcademicYearID,
		Status:          models.EnrollmentStatusActive,
		AdmissionNumber: req.AdmissionNumber,
		Notes:           req.Notes,
	}
	enrollment.CreatedBy = actorID
	enrollment.UpdatedBy = actorID
	if err := s.enrollments.Create(ctx, enrollment); err != nil {
		return nil, err
	}
	s.logger.Info("student enrolled",
		zap.String("enrollment_id", enrollment.ID),
		zap.String("student_id", req.StudentID),
		zap.String("class_id", req.ClassID))
	return enrollment, nil
}

// ChangeStatus moves an enrollment to a new lifecycle status.
func (s *EnrollmentService) ChangeStatus(ctx context.Context, id string, req ChangeEnrollmentStatusRequest, actorID *string) (*models.Enrollment, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid status payload")
	}
	if !req.Status.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown enrollment status")
	}

	enrollment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	var graduationDate *time.Time
	if req.GraduationDate != nil {
		parsed, err := time.Parse("2006-01-02", *req.GraduationDate)
		if err != nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "invalid graduation date")
		}
		graduationDate = &parsed
	}
	if req.Status == models.EnrollmentStatusGraduated && graduationDate == nil {
		now := time.Now().UTC()
		graduationDate = &now
	}

	if err := s.enrollments.UpdateStatus(ctx, id, req.Status, graduationDate, actorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "enrollment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update enrollment status")
	}
	enrollment.Status = req.Status
	enrollment.GraduationDate = graduationDate
	return enrollment, nil
}

// Promote copies the source class's active roster into the destination class
// and year. Source enrollments stay active; closing the old year is a separate
// decision made through ChangeStatus.
func (s *EnrollmentService) Promote(ctx context.Context, req PromoteClassRequest, actorID *string) (int, error) {
	if err := s.validator.Struct(req); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid promotion payload")
	}
	if req.FromAcademicYearID == req.ToAcademicYearID && req.FromClassID == req.ToClassID {
		return 0, appErrors.Clone(appErrors.ErrValidation, "source and destination are identical")
	}

	for _, classID := range []string{req.FromClassID, req.ToClassID} {
		if _, err := s.classes.FindByID(ctx, classID); err != nil {
			if err == sql.ErrNoRows {
				return 0, appErrors.Clone(appErrors.ErrNotFound, "class not found")
			}
			return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
		}
	}
	if _, err := s.years.FindByID(ctx, req.ToAcademicYearID); err != nil {
		if err == sql.ErrNoRows {
			return 0, appErrors.Clone(appErrors.ErrNotFound, "destination academic year not found")
		}
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}

	promoted, err := s.enrollments.Promote(ctx, req.FromAcademicYearID, req.ToAcademicYearID, req.FromClassID, req.ToClassID, actorID)
	if err != nil {
		return 0, err
	}
	s.logger.Info("class promoted",
		zap.String("from_class", req.FromClassID),
		zap.String("to_class", req.ToClassID),
		zap.Int("students", promoted))
	return promoted, nil
}

// RecomputeRanks reassigns class ranks 1..N by enrollment date for the class
// and year.
func (s *EnrollmentService) RecomputeRanks(ctx context.Context, classID, academicYearID string) (int, error) {
	if classID == "" || academicYearID == "" {
		return 0, appErrors.Clone(appErrors.ErrValidation, "class and academic year are required")
	}
	updated, err := s.enrollments.UpdateClassRanks(ctx, classID, academicYearID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to recompute class ranks")
	}
	s.logger.Info("class ranks recomputed", zap.String("class_id", classID), zap.Int("students", updated))
	return updated, nil
}
