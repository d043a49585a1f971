package service

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

type assignmentRepo interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error)
	FindByID(ctx context.Context, id string) (*models.Assignment, error)
	Create(ctx context.Context, assignment *models.Assignment) error
	Update(ctx context.Context, assignment *models.Assignment) error
	SetPublished(ctx context.Context, id string, published bool, updatedBy *string) error
	SoftDelete(ctx context.Context, id string, deletedBy *string) error
	Progress(ctx context.Context, assignmentID string) (*models.AssignmentProgress, error)
}

type submissionRepo interface {
	List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.Submission, error)
	FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error)
	Create(ctx context.Context, submission *models.Submission) error
	Update(ctx context.Context, submission *models.Submission) error
	SetGraded(ctx context.Context, submission *models.Submission) error
	SetStatus(ctx context.Context, id string, status models.SubmissionStatus, updatedBy *string) error
}

type attachmentStore interface {
	Save(filename string, data []byte) (string, error)
	Delete(filename string) error
}

// CreateAssignmentRequest is the assignment create/update payload.
type CreateAssignmentRequest struct {
	SubjectID           string                `json:"subject_id" validate:"required"`
	TeacherID           string                `json:"teacher_id" validate:"required"`
	ClassID             string                `json:"class_id" validate:"required"`
	Title               string                `json:"title" validate:"required"`
	Description         *string               `json:"description"`
	AssignmentType      models.AssignmentType `json:"assignment_type" validate:"required"`
	DueDate             time.Time             `json:"due_date" validate:"required"`
	SubmissionStart     *time.Time            `json:"submission_start"`
	SubmissionEnd       *time.Time            `json:"submission_end"`
	MaxScore            float64               `json:"max_score" validate:"required,gt=0"`
	Instructions        *string               `json:"instructions"`
	AllowLateSubmission bool                  `json:"allow_late_submission"`
	LatePenaltyPercent  float64               `json:"late_penalty_percent" validate:"min=0,max=100"`
	AcademicYearID      string                `json:"academic_year_id" validate:"required"`
}

// SubmitRequest is a student's submission payload.
type SubmitRequest struct {
	AssignmentID string  `json:"assignment_id" validate:"required"`
	StudentID    string  `json:"student_id" validate:"required"`
	Content      *string `json:"content"`
	FileName     *string `json:"file_name"`
	FileData     []byte  `json:"-"`
}

// GradeSubmissionRequest records the grading outcome for one submission.
type GradeSubmissionRequest struct {
	Score    float64 `json:"score" validate:"min=0"`
	Feedback *string `json:"feedback"`
}

// SubmissionService manages the assignment and submission lifecycle: window
// enforcement on submit, lateness bookkeeping, penalty-adjusted grading, and
// the forward-only status machine.
type SubmissionService struct {
	assignments assignmentRepo
	submissions submissionRepo
	storage     attachmentStore
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	now         func() time.Time
}

// NewSubmissionService constructs SubmissionService. Storage may be nil when
// attachments are disabled.
func NewSubmissionService(assignments assignmentRepo, submissions submissionRepo, storage attachmentStore, validate *validator.Validate, logger *zap.Logger) *SubmissionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubmissionService{
		assignments: assignments,
		submissions: submissions,
		storage:     storage,
		validator:   validate,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// SetMetrics attaches the submission counters. A nil receiver on the metrics
// side keeps every call safe.
func (s *SubmissionService) SetMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// ListAssignments returns assignments with pagination metadata.
func (s *SubmissionService) ListAssignments(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	assignments, total, err := s.assignments.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	return assignments, total, nil
}

// GetAssignment returns one assignment.
func (s *SubmissionService) GetAssignment(ctx context.Context, id string) (*models.Assignment, error) {
	assignment, err := s.assignments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment")
	}
	return assignment, nil
}

// CreateAssignment validates and persists a new assignment, unpublished.
func (s *SubmissionService) CreateAssignment(ctx context.Context, req CreateAssignmentRequest, actorID *string) (*models.Assignment, error) {
	if err := s.validateAssignment(req); err != nil {
		return nil, err
	}

	assignment := &models.Assignment{
		SubjectID:           req.SubjectID,
		TeacherID:           req.TeacherID,
		ClassID:             req.ClassID,
		Title:               req.Title,
		Description:         req.Description,
		AssignmentType:      req.AssignmentType,
		DueDate:             req.DueDate,
		SubmissionStart:     req.SubmissionStart,
		SubmissionEnd:       req.SubmissionEnd,
		MaxScore:            req.MaxScore,
		Instructions:        req.Instructions,
		AllowLateSubmission: req.AllowLateSubmission,
		LatePenaltyPercent:  req.LatePenaltyPercent,
		AcademicYearID:      req.AcademicYearID,
	}
	assignment.CreatedBy = actorID
	assignment.UpdatedBy = actorID
	if err := s.assignments.Create(ctx, assignment); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create assignment")
	}
	s.logger.Info("assignment created", zap.String("id", assignment.ID), zap.String("title", assignment.Title))
	return assignment, nil
}

// UpdateAssignment applies changes to an existing assignment.
func (s *SubmissionService) UpdateAssignment(ctx context.Context, id string, req CreateAssignmentRequest, actorID *string) (*models.Assignment, error) {
	if err := s.validateAssignment(req); err != nil {
		return nil, err
	}
	assignment, err := s.GetAssignment(ctx, id)
	if err != nil {
		return nil, err
	}

	assignment.Title = req.Title
	assignment.Description = req.Description
	assignment.AssignmentType = req.AssignmentType
	assignment.DueDate = req.DueDate
	assignment.SubmissionStart = req.SubmissionStart
	assignment.SubmissionEnd = req.SubmissionEnd
	assignment.MaxScore = req.MaxScore
	assignment.Instructions = req.Instructions
	assignment.AllowLateSubmission = req.AllowLateSubmission
	assignment.LatePenaltyPercent = req.LatePenaltyPercent
	assignment.UpdatedBy = actorID
	if err := s.assignments.Update(ctx, assignment); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update assignment")
	}
	return assignment, nil
}

// PublishAssignment opens the assignment for submissions.
func (s *SubmissionService) PublishAssignment(ctx context.Context, id string, published bool, actorID *string) error {
	if err := s.assignments.SetPublished(ctx, id, published, actorID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to publish assignment")
	}
	return nil
}

// AssignmentProgress summarises submission state for one assignment.
func (s *SubmissionService) AssignmentProgress(ctx context.Context, id string) (*models.AssignmentProgress, error) {
	if _, err := s.GetAssignment(ctx, id); err != nil {
		return nil, err
	}
	progress, err := s.assignments.Progress(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load assignment progress")
	}
	return progress, nil
}

// ListSubmissions returns submissions with pagination metadata.
func (s *SubmissionService) ListSubmissions(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	submissions, total, err := s.submissions.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list submissions")
	}
	return submissions, total, nil
}

// GetSubmission returns one submission.
func (s *SubmissionService) GetSubmission(ctx context.Context, id string) (*models.Submission, error) {
	submission, err := s.submissions.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load submission")
	}
	return submission, nil
}

// Submit records a student's first submission for an assignment. Late work
// past the due date is stamped with its days late. One submission per
// (assignment, student); a second Submit is a duplicate, resubmission goes
// through Resubmit.
func (s *SubmissionService) Submit(ctx context.Context, req SubmitRequest) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid submission payload")
	}
	if req.Content == nil && len(req.FileData) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission needs content or a file")
	}

	assignment, err := s.GetAssignment(ctx, req.AssignmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !assignment.AcceptsSubmissionAt(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment is not accepting submissions")
	}

	isLate, daysLate := lateness(assignment.DueDate, now)
	if isLate && !assignment.AllowLateSubmission {
		return nil, appErrors.Clone(appErrors.ErrValidation, "late submissions are not allowed")
	}

	// The duplicate check precedes the attachment write; a rejected submit
	// must not leave a stored file behind.
	if _, err := s.submissions.FindByAssignmentAndStudent(ctx, req.AssignmentID, req.StudentID); err == nil {
		return nil, appErrors.Clone(appErrors.ErrDuplicate, "submission already exists for this assignment")
	} else if err != sql.ErrNoRows {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check existing submission")
	}

	filePath, err := s.storeAttachment(req.AssignmentID, req.FileName, req.FileData)
	if err != nil {
		return nil, err
	}

	submission := &models.Submission{
		AssignmentID: req.AssignmentID,
		StudentID:    req.StudentID,
		Content:      req.Content,
		FilePath:     filePath,
		FileName:     req.FileName,
		SubmittedAt:  &now,
		Status:       models.SubmissionSubmitted,
		IsLate:       isLate,
		DaysLate:     daysLate,
	}
	if err := s.submissions.Create(ctx, submission); err != nil {
		// A racing duplicate can pass the pre-check; a failed create must
		// not leave its attachment behind.
		if filePath != nil && s.storage != nil {
			if delErr := s.storage.Delete(*filePath); delErr != nil {
				s.logger.Warn("failed to remove orphaned attachment", zap.Error(delErr))
			}
		}
		return nil, err
	}
	s.metrics.RecordSubmission(isLate)
	s.logger.Info("submission received",
		zap.String("assignment_id", req.AssignmentID),
		zap.String("student_id", req.StudentID),
		zap.Bool("late", isLate))
	return submission, nil
}

// ResubmitRequest replaces a submission's content or attachment.
type ResubmitRequest struct {
	Content  *string `json:"content"`
	FileName *string `json:"file_name"`
	FileData []byte  `json:"-"`
}

// Resubmit replaces an ungraded submission's content, restamping the
// submission time and lateness. Graded and returned submissions cannot be
// changed.
func (s *SubmissionService) Resubmit(ctx context.Context, id string, req ResubmitRequest) (*models.Submission, error) {
	if req.Content == nil && len(req.FileData) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission needs content or a file")
	}

	submission, err := s.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !submission.Status.CanTransition(models.SubmissionSubmitted) && submission.Status != models.SubmissionSubmitted {
		return nil, appErrors.Clone(appErrors.ErrValidation, "submission can no longer be changed")
	}

	assignment, err := s.GetAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if !assignment.AcceptsSubmissionAt(now) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignment is not accepting submissions")
	}

	isLate, daysLate := lateness(assignment.DueDate, now)
	if isLate && !assignment.AllowLateSubmission {
		return nil, appErrors.Clone(appErrors.ErrValidation, "late submissions are not allowed")
	}

	filePath, err := s.storeAttachment(submission.AssignmentID, req.FileName, req.FileData)
	if err != nil {
		return nil, err
	}
	if filePath != nil {
		if submission.FilePath != nil && s.storage != nil {
			if err := s.storage.Delete(*submission.FilePath); err != nil {
				s.logger.Warn("failed to remove replaced attachment", zap.Error(err))
			}
		}
		submission.FilePath = filePath
		submission.FileName = req.FileName
	}
	submission.Content = req.Content
	submission.SubmittedAt = &now
	submission.Status = models.SubmissionSubmitted
	submission.IsLate = isLate
	submission.DaysLate = daysLate
	if err := s.submissions.Update(ctx, submission); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update submission")
	}
	s.metrics.RecordSubmission(isLate)
	s.logger.Info("submission replaced",
		zap.String("submission_id", submission.ID),
		zap.Bool("late", isLate))
	return submission, nil
}

// storeAttachment writes the upload under the assignment's directory and
// returns the stored path, or nil when there is nothing to store.
func (s *SubmissionService) storeAttachment(assignmentID string, fileName *string, data []byte) (*string, error) {
	if len(data) == 0 || fileName == nil || s.storage == nil {
		return nil, nil
	}
	stored := fmt.Sprintf("submissions/%s/%s%s", assignmentID, uuid.NewString(), filepath.Ext(*fileName))
	if _, err := s.storage.Save(stored, data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store attachment")
	}
	return &stored, nil
}

// Grade scores a submission, applying the late penalty and letter banding.
// Re-grading an already graded submission is allowed; grading a draft is not.
func (s *SubmissionService) Grade(ctx context.Context, id string, req GradeSubmissionRequest, graderID string) (*models.Submission, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid grading payload")
	}

	submission, err := s.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	assignment, err := s.GetAssignment(ctx, submission.AssignmentID)
	if err != nil {
		return nil, err
	}

	if req.Score > assignment.MaxScore {
		return nil, appErrors.Clone(appErrors.ErrValidation, "score exceeds maximum")
	}
	if !submission.Status.CanTransition(models.SubmissionGraded) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cannot grade a %s submission", submission.Status))
	}

	score := req.Score
	submission.Score = &score
	penalty := submission.LatePenalty(*assignment)
	if penalty > 0 {
		note := fmt.Sprintf("late penalty: -%.2f (%d days late)", penalty, submission.DaysLate)
		submission.LatePenaltyNotes = &note
	}
	final := submission.FinalScore(*assignment)
	letter := LetterGrade(*final / assignment.MaxScore * 100)
	submission.Grade = &letter
	submission.Feedback = req.Feedback
	submission.Status = models.SubmissionGraded
	submission.GradedBy = &graderID
	gradedAt := s.now()
	submission.GradedAt = &gradedAt
	submission.UpdatedBy = &graderID

	if err := s.submissions.SetGraded(ctx, submission); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade submission")
	}
	s.logger.Info("submission graded",
		zap.String("submission_id", id),
		zap.Float64("score", score),
		zap.Float64("final_score", *final))
	return submission, nil
}

// Return hands a graded submission back to the student.
func (s *SubmissionService) Return(ctx context.Context, id string, actorID *string) (*models.Submission, error) {
	submission, err := s.GetSubmission(ctx, id)
	if err != nil {
		return nil, err
	}
	if !submission.Status.CanTransition(models.SubmissionReturned) {
		return nil, appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("cannot return a %s submission", submission.Status))
	}
	if err := s.submissions.SetStatus(ctx, id, models.SubmissionReturned, actorID); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "submission not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to return submission")
	}
	submission.Status = models.SubmissionReturned
	return submission, nil
}

func (s *SubmissionService) validateAssignment(req CreateAssignmentRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid assignment payload")
	}
	if !req.AssignmentType.Valid() {
		return appErrors.Clone(appErrors.ErrValidation, "unknown assignment type")
	}
	if req.SubmissionStart != nil && req.SubmissionEnd != nil && !req.SubmissionEnd.After(*req.SubmissionStart) {
		return appErrors.Clone(appErrors.ErrValidation, "submission window end must be after its start")
	}
	return nil
}

// lateness returns whether now is past the due date and by how many whole or
// partial days. A submission one hour late counts as one day late.
func lateness(dueDate, now time.Time) (bool, int) {
	if !now.After(dueDate) {
		return false, 0
	}
	days := int(math.Ceil(now.Sub(dueDate).Hours() / 24))
	if days < 1 {
		days = 1
	}
	return true, days
}
