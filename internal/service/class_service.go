package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

type classRepo interface {
	List(ctx context.Context, filter models.ClassGroupFilter) ([]models.ClassGroupDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.ClassGroup, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassGroupDetail, error)
	CodeExists(ctx context.Context, classCode, schoolID, academicYearID, excludeID string) (bool, error)
	Create(ctx context.Context, class *models.ClassGroup) error
	Update(ctx context.Context, class *models.ClassGroup) error
}

// UpsertClassRequest is the class create/update payload.
type UpsertClassRequest struct {
	Name              string  `json:"name" validate:"required"`
	ClassCode         string  `json:"class_code" validate:"required"`
	SchoolID          string  `json:"school_id" validate:"required"`
	Level             string  `json:"level" validate:"required"`
	AcademicYearID    string  `json:"academic_year_id" validate:"required"`
	HomeroomTeacherID *string `json:"homeroom_teacher_id"`
	MaxStudents       *int    `json:"max_students" validate:"omitempty,gt=0"`
	DisplayOrder      int     `json:"display_order"`
}

// ClassService manages class groups and their capacity bookkeeping.
type ClassService struct {
	classes   classRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewClassService constructs ClassService.
func NewClassService(classes classRepo, validate *validator.Validate, logger *zap.Logger) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{classes: classes, validator: validate, logger: logger}
}

// List returns classes with occupancy counts and pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassGroupFilter) ([]models.ClassGroupDetail, int, error) {
	classes, total, err := s.classes.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	return classes, total, nil
}

// Get returns one class with its occupancy count.
func (s *ClassService) Get(ctx context.Context, id string) (*models.ClassGroupDetail, error) {
	class, err := s.classes.FindDetailByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}

// Create validates the class code within (school, year) and persists.
func (s *ClassService) Create(ctx context.Context, req UpsertClassRequest, actorID *string) (*models.ClassGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	taken, err := s.classes.CodeExists(ctx, req.ClassCode, req.SchoolID, req.AcademicYearID, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "class code already exists for this school and year")
	}

	class := &models.ClassGroup{
		Name:              req.Name,
		ClassCode:         req.ClassCode,
		SchoolID:          req.SchoolID,
		Level:             req.Level,
		AcademicYearID:    req.AcademicYearID,
		HomeroomTeacherID: req.HomeroomTeacherID,
		MaxStudents:       req.MaxStudents,
		DisplayOrder:      req.DisplayOrder,
	}
	class.CreatedBy = actorID
	class.UpdatedBy = actorID
	if err := s.classes.Create(ctx, class); err != nil {
		return nil, err
	}
	s.logger.Info("class created", zap.String("id", class.ID), zap.String("class_code", class.ClassCode))
	return class, nil
}

// Update applies changes to an existing class.
func (s *ClassService) Update(ctx context.Context, id string, req UpsertClassRequest, actorID *string) (*models.ClassGroup, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}

	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	taken, err := s.classes.CodeExists(ctx, req.ClassCode, class.SchoolID, class.AcademicYearID, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check class code")
	}
	if taken {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "class code already exists for this school and year")
	}

	class.Name = req.Name
	class.ClassCode = req.ClassCode
	class.Level = req.Level
	class.HomeroomTeacherID = req.HomeroomTeacherID
	class.MaxStudents = req.MaxStudents
	class.DisplayOrder = req.DisplayOrder
	class.UpdatedBy = actorID
	if err := s.classes.Update(ctx, class); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, err
	}
	return class, nil
}
