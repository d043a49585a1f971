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

type academicYearRepo interface {
	List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error)
	FindByID(ctx context.Context, id string) (*models.AcademicYear, error)
	FindCurrent(ctx context.Context, schoolID string) (*models.AcademicYear, error)
	CodeExists(ctx context.Context, yearCode, excludeID string) (bool, error)
	OverlapExists(ctx context.Context, schoolID string, startDate, endDate time.Time, excludeID string) (bool, error)
	Create(ctx context.Context, year *models.AcademicYear) error
	Update(ctx context.Context, year *models.AcademicYear) error
	SoftDelete(ctx context.Context, id string, deletedBy *string) error
	SetCurrent(ctx context.Context, id string) (*models.AcademicYear, error)
	ListUpcoming(ctx context.Context, schoolID string, limit int) ([]models.AcademicYear, error)
	ListPrevious(ctx context.Context, schoolID string, limit int) ([]models.AcademicYear, error)
}

// CreateAcademicYearRequest is the create payload.
type CreateAcademicYearRequest struct {
	Name        string  `json:"name" validate:"required"`
	YearCode    string  `json:"year_code" validate:"required"`
	StartDate   string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	SchoolID    string  `json:"school_id" validate:"required"`
	Description *string `json:"description"`
}

// UpdateAcademicYearRequest is the update payload.
type UpdateAcademicYearRequest struct {
	Name        string  `json:"name" validate:"required"`
	YearCode    string  `json:"year_code" validate:"required"`
	StartDate   string  `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate     string  `json:"end_date" validate:"required,datetime=2006-01-02"`
	IsActive    bool    `json:"is_active"`
	Description *string `json:"description"`
}

// AcademicYearService manages the lifecycle of academic years: creation with
// overlap and code checks, the exclusive is_current flip, and soft deletion.
type AcademicYearService struct {
	years     academicYearRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewAcademicYearService constructs AcademicYearService.
func NewAcademicYearService(years academicYearRepo, validate *validator.Validate, logger *zap.Logger) *AcademicYearService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AcademicYearService{years: years, validator: validate, logger: logger}
}

// List returns academic years with pagination metadata.
func (s *AcademicYearService) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	years, total, err := s.years.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list academic years")
	}
	return years, total, nil
}

// Get returns one academic year.
func (s *AcademicYearService) Get(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.years.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load academic year")
	}
	return year, nil
}

// GetCurrent returns the school's current academic year.
func (s *AcademicYearService) GetCurrent(ctx context.Context, schoolID string) (*models.AcademicYear, error) {
	year, err := s.years.FindCurrent(ctx, schoolID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current academic year set")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current academic year")
	}
	return year, nil
}

// Create validates dates, year code uniqueness and same-school overlap, then
// persists the new year. The code pre-check keeps the common failure friendly;
// the storage constraint stays authoritative under races.
func (s *AcademicYearService) Create(ctx context.Context, req CreateAcademicYearRequest, actorID *string) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	taken, err := s.years.CodeExists(ctx, req.YearCode, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "year code already exists")
	}

	overlaps, err := s.years.OverlapExists(ctx, req.SchoolID, start, end, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check date overlap")
	}
	if overlaps {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range overlaps an existing academic year")
	}

	year := &models.AcademicYear{
		Name:        req.Name,
		YearCode:    req.YearCode,
		StartDate:   start,
		EndDate:     end,
		SchoolID:    req.SchoolID,
		Description: req.Description,
	}
	year.CreatedBy = actorID
	year.UpdatedBy = actorID
	if err := s.years.Create(ctx, year); err != nil {
		return nil, err
	}
	s.logger.Info("academic year created", zap.String("id", year.ID), zap.String("year_code", year.YearCode))
	return year, nil
}

// Update applies changes, re-running the code and overlap checks against the
// remaining years.
func (s *AcademicYearService) Update(ctx context.Context, id string, req UpdateAcademicYearRequest, actorID *string) (*models.AcademicYear, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid academic year payload")
	}
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, err
	}

	year, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	taken, err := s.years.CodeExists(ctx, req.YearCode, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check year code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "year code already exists")
	}

	overlaps, err := s.years.OverlapExists(ctx, year.SchoolID, start, end, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check date overlap")
	}
	if overlaps {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date range overlaps an existing academic year")
	}

	year.Name = req.Name
	year.YearCode = req.YearCode
	year.StartDate = start
	year.EndDate = end
	year.IsActive = req.IsActive
	year.Description = req.Description
	year.UpdatedBy = actorID
	if err := s.years.Update(ctx, year); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, err
	}
	return year, nil
}

// Delete soft-deletes the year. The current year cannot be removed.
func (s *AcademicYearService) Delete(ctx context.Context, id string, actorID *string) error {
	year, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if year.IsCurrent {
		return appErrors.Clone(appErrors.ErrValidation, "cannot delete the current academic year")
	}
	if err := s.years.SoftDelete(ctx, id, actorID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete academic year")
	}
	s.logger.Info("academic year deleted", zap.String("id", id))
	return nil
}

// SetCurrent makes the target the school's only current year. The repository
// runs the clear-then-set inside one transaction and verifies exactly one row
// ends up current.
func (s *AcademicYearService) SetCurrent(ctx context.Context, id string) (*models.AcademicYear, error) {
	year, err := s.years.SetCurrent(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "academic year not found")
		}
		return nil, err
	}
	s.logger.Info("current academic year changed", zap.String("id", year.ID), zap.String("school_id", year.SchoolID))
	return year, nil
}

// ListUpcoming returns years starting after today.
func (s *AcademicYearService) ListUpcoming(ctx context.Context, schoolID string, limit int) ([]models.AcademicYear, error) {
	years, err := s.years.ListUpcoming(ctx, schoolID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming years")
	}
	return years, nil
}

// ListPrevious returns years already ended.
func (s *AcademicYearService) ListPrevious(ctx context.Context, schoolID string, limit int) ([]models.AcademicYear, error) {
	years, err := s.years.ListPrevious(ctx, schoolID, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list previous years")
	}
	return years, nil
}

func parseDateRange(startDate, endDate string) (time.Time, time.Time, error) {
	start, err := time.Parse("2006-01-02", startDate)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid start date")
	}
	end, err := time.Parse("2006-01-02", endDate)
	if err != nil {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "invalid end date")
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, appErrors.Clone(appErrors.ErrValidation, "end date must be after start date")
	}
	return start, end, nil
}
