package service

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

type scheduleRepo interface {
	List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Schedule, error)
	FindConflicts(ctx context.Context, academicYearID, dayOfWeek, startTime, endTime, classID, teacherID, excludeID string) ([]models.ScheduleConflict, error)
	Create(ctx context.Context, schedule *models.Schedule) error
	Update(ctx context.Context, schedule *models.Schedule) error
	SoftDelete(ctx context.Context, id string, deletedBy *string) error
	SetActive(ctx context.Context, id string, active bool, updatedBy *string) error
	ListWeekly(ctx context.Context, academicYearID, classID, teacherID string) ([]models.ScheduleDetail, error)
}

// timePattern enforces zero-padded "HH:MM" so the lexicographic overlap
// comparison stays correct.
var timePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// UpsertScheduleRequest is the create/update payload for a schedule slot.
type UpsertScheduleRequest struct {
	ClassID        string `json:"class_id" validate:"required"`
	SubjectID      string `json:"subject_id" validate:"required"`
	TeacherID      string `json:"teacher_id" validate:"required"`
	DayOfWeek      string `json:"day_of_week" validate:"required"`
	StartTime      string `json:"start_time" validate:"required"`
	EndTime        string `json:"end_time" validate:"required"`
	Room           string `json:"room"`
	AcademicYearID string `json:"academic_year_id" validate:"required"`
}

// ScheduleStatus reports where a slot stands relative to a reference time.
type ScheduleStatus struct {
	Schedule       *models.Schedule `json:"schedule"`
	ReferenceTime  time.Time        `json:"reference_time"`
	IsHappeningNow bool             `json:"is_happening_now"`
	NextOccurrence *time.Time       `json:"next_occurrence,omitempty"`
}

// ScheduleService manages the weekly timetable: slot CRUD guarded by conflict
// detection on both the class and teacher dimensions.
type ScheduleService struct {
	schedules scheduleRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewScheduleService constructs ScheduleService.
func NewScheduleService(schedules scheduleRepo, validate *validator.Validate, logger *zap.Logger) *ScheduleService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{schedules: schedules, validator: validate, logger: logger}
}

// List returns schedule slots with pagination metadata.
func (s *ScheduleService) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	schedules, total, err := s.schedules.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list schedules")
	}
	return schedules, total, nil
}

// Get returns one schedule slot.
func (s *ScheduleService) Get(ctx context.Context, id string) (*models.Schedule, error) {
	schedule, err := s.schedules.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load schedule")
	}
	return schedule, nil
}

// Status resolves a slot's live state at the reference time: whether it is in
// session right now and when it next starts. Inactive slots carry no next
// occurrence.
func (s *ScheduleService) Status(ctx context.Context, id string, ref time.Time) (*ScheduleStatus, error) {
	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	status := &ScheduleStatus{
		Schedule:       schedule,
		ReferenceTime:  ref,
		IsHappeningNow: schedule.HappeningAt(ref),
	}
	if schedule.IsActive {
		next, err := schedule.NextOccurrence(ref)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute next occurrence")
		}
		status.NextOccurrence = &next
	}
	return status, nil
}

// Create validates the slot and persists it unless it collides with an
// existing slot for the same class or teacher.
func (s *ScheduleService) Create(ctx context.Context, req UpsertScheduleRequest, actorID *string) (*models.Schedule, error) {
	if err := s.validateSlot(req); err != nil {
		return nil, err
	}
	if err := s.ensureNoConflicts(ctx, req, ""); err != nil {
		return nil, err
	}

	schedule := &models.Schedule{
		ClassID:        req.ClassID,
		SubjectID:      req.SubjectID,
		TeacherID:      req.TeacherID,
		DayOfWeek:      req.DayOfWeek,
		StartTime:      req.StartTime,
		EndTime:        req.EndTime,
		Room:           req.Room,
		IsActive:       true,
		AcademicYearID: req.AcademicYearID,
	}
	schedule.CreatedBy = actorID
	schedule.UpdatedBy = actorID
	if err := s.schedules.Create(ctx, schedule); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create schedule")
	}
	s.logger.Info("schedule created",
		zap.String("id", schedule.ID),
		zap.String("class_id", schedule.ClassID),
		zap.String("slot", fmt.Sprintf("%s %s-%s", schedule.DayOfWeek, schedule.StartTime, schedule.EndTime)))
	return schedule, nil
}

// Update applies changes to a slot, excluding itself from conflict detection.
func (s *ScheduleService) Update(ctx context.Context, id string, req UpsertScheduleRequest, actorID *string) (*models.Schedule, error) {
	if err := s.validateSlot(req); err != nil {
		return nil, err
	}
	schedule, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.ensureNoConflicts(ctx, req, id); err != nil {
		return nil, err
	}

	schedule.ClassID = req.ClassID
	schedule.SubjectID = req.SubjectID
	schedule.TeacherID = req.TeacherID
	schedule.DayOfWeek = req.DayOfWeek
	schedule.StartTime = req.StartTime
	schedule.EndTime = req.EndTime
	schedule.Room = req.Room
	schedule.UpdatedBy = actorID
	if err := s.schedules.Update(ctx, schedule); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update schedule")
	}
	return schedule, nil
}

// Delete soft-deletes a slot.
func (s *ScheduleService) Delete(ctx context.Context, id string, actorID *string) error {
	if err := s.schedules.SoftDelete(ctx, id, actorID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete schedule")
	}
	return nil
}

// SetActive toggles the slot. Inactive slots drop out of timetables and
// conflict detection.
func (s *ScheduleService) SetActive(ctx context.Context, id string, active bool, actorID *string) error {
	if err := s.schedules.SetActive(ctx, id, active, actorID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "schedule not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to toggle schedule")
	}
	return nil
}

// CheckConflicts returns collisions for a proposed slot without writing.
func (s *ScheduleService) CheckConflicts(ctx context.Context, req UpsertScheduleRequest, excludeID string) ([]models.ScheduleConflict, error) {
	if err := s.validateSlot(req); err != nil {
		return nil, err
	}
	conflicts, err := s.schedules.FindConflicts(ctx, req.AcademicYearID, req.DayOfWeek, req.StartTime, req.EndTime, req.ClassID, req.TeacherID, excludeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
	}
	return conflicts, nil
}

// WeeklyTimetable groups a class's or teacher's active slots by weekday.
func (s *ScheduleService) WeeklyTimetable(ctx context.Context, academicYearID, classID, teacherID string) (models.WeeklySchedule, error) {
	if academicYearID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "academic year is required")
	}
	if classID == "" && teacherID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "class or teacher is required")
	}
	slots, err := s.schedules.ListWeekly(ctx, academicYearID, classID, teacherID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load weekly schedule")
	}

	timetable := make(models.WeeklySchedule, len(models.DaysOfWeek))
	for _, day := range models.DaysOfWeek {
		timetable[day] = []models.ScheduleDetail{}
	}
	for _, slot := range slots {
		timetable[slot.DayOfWeek] = append(timetable[slot.DayOfWeek], slot)
	}
	return timetable, nil
}

func (s *ScheduleService) validateSlot(req UpsertScheduleRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid schedule payload")
	}
	if !models.ValidDayOfWeek(req.DayOfWeek) {
		return appErrors.Clone(appErrors.ErrValidation, "unknown day of week")
	}
	if !timePattern.MatchString(req.StartTime) || !timePattern.MatchString(req.EndTime) {
		return appErrors.Clone(appErrors.ErrValidation, "times must be HH:MM")
	}
	if req.StartTime >= req.EndTime {
		return appErrors.Clone(appErrors.ErrValidation, "start time must be before end time")
	}
	return nil
}

func (s *ScheduleService) ensureNoConflicts(ctx context.Context, req UpsertScheduleRequest, excludeID string) error {
	conflicts, err := s.schedules.FindConflicts(ctx, req.AcademicYearID, req.DayOfWeek, req.StartTime, req.EndTime, req.ClassID, req.TeacherID, excludeID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check conflicts")
	}
	if len(conflicts) > 0 {
		return &models.ScheduleConflictError{
			Message:   "schedule conflicts with existing slots",
			Conflicts: conflicts,
		}
	}
	return nil
}
