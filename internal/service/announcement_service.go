package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

type announcementRepo interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	FindByID(ctx context.Context, id string) (*models.Announcement, error)
	Create(ctx context.Context, announcement *models.Announcement) error
	Update(ctx context.Context, announcement *models.Announcement) error
	SoftDelete(ctx context.Context, id string, deletedBy *string) error
	ListVisibleForUser(ctx context.Context, schoolID, schoolLevelID, classID, userID string) ([]models.Announcement, error)
}

// UpsertAnnouncementRequest is the announcement create/update payload.
type UpsertAnnouncementRequest struct {
	SchoolID       string              `json:"school_id" validate:"required"`
	AcademicYearID *string             `json:"academic_year_id"`
	Title          string              `json:"title" validate:"required"`
	Body           string              `json:"body" validate:"required"`
	AudienceKind   models.AudienceKind `json:"audience_kind" validate:"required"`
	SchoolLevelID  *string             `json:"school_level_id"`
	ClassID        *string             `json:"class_id"`
	UserIDs        []string            `json:"user_ids"`
	PublishAt      *time.Time          `json:"publish_at"`
	ExpiresAt      *time.Time          `json:"expires_at"`
	IsPublished    bool                `json:"is_published"`
}

// AnnouncementService manages targeted notices with publish windows.
type AnnouncementService struct {
	announcements announcementRepo
	validator     *validator.Validate
	logger        *zap.Logger
}

// NewAnnouncementService constructs AnnouncementService.
func NewAnnouncementService(announcements announcementRepo, validate *validator.Validate, logger *zap.Logger) *AnnouncementService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnnouncementService{announcements: announcements, validator: validate, logger: logger}
}

// List returns announcements with pagination metadata.
func (s *AnnouncementService) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	announcements, total, err := s.announcements.List(ctx, filter)
	if err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list announcements")
	}
	return announcements, total, nil
}

// Get returns one announcement.
func (s *AnnouncementService) Get(ctx context.Context, id string) (*models.Announcement, error) {
	announcement, err := s.announcements.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement")
	}
	return announcement, nil
}

// Create validates the audience variant and persists the announcement.
func (s *AnnouncementService) Create(ctx context.Context, req UpsertAnnouncementRequest, actorID *string) (*models.Announcement, error) {
	audience, err := s.buildAudience(req)
	if err != nil {
		return nil, err
	}

	publishAt := time.Now().UTC()
	if req.PublishAt != nil {
		publishAt = *req.PublishAt
	}
	if req.ExpiresAt != nil && !req.ExpiresAt.After(publishAt) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "expiry must be after publish time")
	}

	announcement := &models.Announcement{
		SchoolID:       req.SchoolID,
		AcademicYearID: req.AcademicYearID,
		Title:          req.Title,
		Body:           req.Body,
		Audience:       audience,
		PublishAt:      publishAt,
		ExpiresAt:      req.ExpiresAt,
		IsPublished:    req.IsPublished,
	}
	announcement.CreatedBy = actorID
	announcement.UpdatedBy = actorID
	if err := s.announcements.Create(ctx, announcement); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create announcement")
	}
	s.logger.Info("announcement created",
		zap.String("id", announcement.ID),
		zap.String("audience", string(audience.Kind)))
	return announcement, nil
}

// Update applies changes to an existing announcement.
func (s *AnnouncementService) Update(ctx context.Context, id string, req UpsertAnnouncementRequest, actorID *string) (*models.Announcement, error) {
	audience, err := s.buildAudience(req)
	if err != nil {
		return nil, err
	}
	announcement, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	announcement.Title = req.Title
	announcement.Body = req.Body
	announcement.Audience = audience
	if req.PublishAt != nil {
		announcement.PublishAt = *req.PublishAt
	}
	announcement.ExpiresAt = req.ExpiresAt
	announcement.IsPublished = req.IsPublished
	announcement.UpdatedBy = actorID
	if err := s.announcements.Update(ctx, announcement); err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update announcement")
	}
	return announcement, nil
}

// Delete soft-deletes an announcement.
func (s *AnnouncementService) Delete(ctx context.Context, id string, actorID *string) error {
	if err := s.announcements.SoftDelete(ctx, id, actorID); err != nil {
		if err == sql.ErrNoRows {
			return appErrors.Clone(appErrors.ErrNotFound, "announcement not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete announcement")
	}
	return nil
}

// Feed returns what a user should see now, across all audience kinds.
func (s *AnnouncementService) Feed(ctx context.Context, schoolID, schoolLevelID, classID, userID string) ([]models.Announcement, error) {
	if schoolID == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "school is required")
	}
	announcements, err := s.announcements.ListVisibleForUser(ctx, schoolID, schoolLevelID, classID, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load announcement feed")
	}
	return announcements, nil
}

func (s *AnnouncementService) buildAudience(req UpsertAnnouncementRequest) (models.Audience, error) {
	if err := s.validator.Struct(req); err != nil {
		return models.Audience{}, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid announcement payload")
	}
	audience := models.Audience{
		Kind:          req.AudienceKind,
		SchoolLevelID: req.SchoolLevelID,
		ClassID:       req.ClassID,
		UserIDs:       pq.StringArray(req.UserIDs),
	}
	if !audience.Valid() {
		return models.Audience{}, appErrors.Clone(appErrors.ErrValidation, "audience payload does not match its kind")
	}
	return audience, nil
}
