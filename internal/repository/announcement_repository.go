package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/sekolahku/sis-core-api/internal/models"
)

// AnnouncementRepository handles persistence of announcements.
type AnnouncementRepository struct {
	db *sqlx.DB
}

// NewAnnouncementRepository constructs the repository.
func NewAnnouncementRepository(db *sqlx.DB) *AnnouncementRepository {
	return &AnnouncementRepository{db: db}
}

// announcementRow flattens the audience union into its storage columns.
type announcementRow struct {
	ID             string         `db:"id"`
	SchoolID       string         `db:"school_id"`
	AcademicYearID *string        `db:"academic_year_id"`
	Title          string         `db:"title"`
	Body           string         `db:"body"`
	AudienceKind   string         `db:"audience_kind"`
	SchoolLevelID  *string        `db:"audience_school_level_id"`
	ClassID        *string        `db:"audience_class_id"`
	UserIDs        pq.StringArray `db:"audience_user_ids"`
	PublishAt      time.Time      `db:"publish_at"`
	ExpiresAt      *time.Time     `db:"expires_at"`
	IsPublished    bool           `db:"is_published"`
	CreatedBy      *string        `db:"created_by"`
	UpdatedBy      *string        `db:"updated_by"`
	CreatedAt      time.Time      `db:"created_at"`
	UpdatedAt      time.Time      `db:"updated_at"`
	DeletedAt      *time.Time     `db:"deleted_at"`
}

func (row announcementRow) toModel() models.Announcement {
	a := models.Announcement{
		ID:             row.ID,
		SchoolID:       row.SchoolID,
		AcademicYearID: row.AcademicYearID,
		Title:          row.Title,
		Body:           row.Body,
		Audience: models.Audience{
			Kind:          models.AudienceKind(row.AudienceKind),
			SchoolLevelID: row.SchoolLevelID,
			ClassID:       row.ClassID,
			UserIDs:       row.UserIDs,
		},
		PublishAt:   row.PublishAt,
		ExpiresAt:   row.ExpiresAt,
		IsPublished: row.IsPublished,
	}
	a.CreatedBy = row.CreatedBy
	a.UpdatedBy = row.UpdatedBy
	a.CreatedAt = row.CreatedAt
	a.UpdatedAt = row.UpdatedAt
	a.DeletedAt = row.DeletedAt
	return a
}

func fromModel(a *models.Announcement) announcementRow {
	return announcementRow{
		ID:             a.ID,
		SchoolID:       a.SchoolID,
		AcademicYearID: a.AcademicYearID,
		Title:          a.Title,
		Body:           a.Body,
		AudienceKind:   string(a.Audience.Kind),
		SchoolLevelID:  a.Audience.SchoolLevelID,
		ClassID:        a.Audience.ClassID,
		UserIDs:        a.Audience.UserIDs,
		PublishAt:      a.PublishAt,
		ExpiresAt:      a.ExpiresAt,
		IsPublished:    a.IsPublished,
		CreatedBy:      a.CreatedBy,
		UpdatedBy:      a.UpdatedBy,
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

const announcementColumns = `id, school_id, academic_year_id, title, body, audience_kind, audience_school_level_id,
        audience_class_id, audience_user_ids, publish_at, expires_at, is_published,
        created_by, updated_by, created_at, updated_at, deleted_at`

// List returns announcements filtered by the provided criteria.
func (r *AnnouncementRepository) List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error) {
	where := []string{"deleted_at IS NULL"}
	var args []interface{}

	if filter.SchoolID != "" {
		where = append(where, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.Kind != "" {
		where = append(where, fmt.Sprintf("audience_kind = $%d", len(args)+1))
		args = append(args, filter.Kind)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("audience_class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.OnlyVisible {
		where = append(where, fmt.Sprintf("is_published = TRUE AND publish_at <= $%d AND (expires_at IS NULL OR expires_at > $%d)", len(args)+1, len(args)+1))
		args = append(args, time.Now().UTC())
	}
	whereClause := strings.Join(where, " AND ")

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE %s ORDER BY publish_at %s LIMIT %d OFFSET %d`,
		announcementColumns, whereClause, order, size, offset)

	var rows []announcementRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list announcements: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM announcements WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count announcements: %w", err)
	}

	announcements := make([]models.Announcement, 0, len(rows))
	for _, row := range rows {
		announcements = append(announcements, row.toModel())
	}
	return announcements, total, nil
}

// FindByID returns an announcement by its ID.
func (r *AnnouncementRepository) FindByID(ctx context.Context, id string) (*models.Announcement, error) {
	query := fmt.Sprintf(`SELECT %s FROM announcements WHERE id = $1 AND deleted_at IS NULL`, announcementColumns)
	var row announcementRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		return nil, err
	}
	announcement := row.toModel()
	return &announcement, nil
}

// Create persists a new announcement.
func (r *AnnouncementRepository) Create(ctx context.Context, announcement *models.Announcement) error {
	if announcement.ID == "" {
		announcement.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	announcement.CreatedAt = now
	announcement.UpdatedAt = now
	row := fromModel(announcement)
	const query = `INSERT INTO announcements (id, school_id, academic_year_id, title, body, audience_kind, audience_school_level_id, audience_class_id, audience_user_ids, publish_at, expires_at, is_published, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :school_id, :academic_year_id, :title, :body, :audience_kind, :audience_school_level_id, :audience_class_id, :audience_user_ids, :publish_at, :expires_at, :is_published, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, row); err != nil {
		return fmt.Errorf("create announcement: %w", err)
	}
	return nil
}

// Update persists changes to an existing announcement.
func (r *AnnouncementRepository) Update(ctx context.Context, announcement *models.Announcement) error {
	announcement.UpdatedAt = time.Now().UTC()
	row := fromModel(announcement)
	const query = `UPDATE announcements SET title = :title, body = :body, audience_kind = :audience_kind,
        audience_school_level_id = :audience_school_level_id, audience_class_id = :audience_class_id,
        audience_user_ids = :audience_user_ids, publish_at = :publish_at, expires_at = :expires_at,
        is_published = :is_published, updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, row)
	if err != nil {
		return fmt.Errorf("update announcement: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides the announcement from normal queries.
func (r *AnnouncementRepository) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	const query = `UPDATE announcements SET deleted_at = $2, updated_by = $3 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), deletedBy)
	if err != nil {
		return fmt.Errorf("delete announcement: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListVisibleForUser returns announcements a user should see now: school-wide
// ones plus those targeting their level, class or user id directly.
func (r *AnnouncementRepository) ListVisibleForUser(ctx context.Context, schoolID, schoolLevelID, classID, userID string) ([]models.Announcement, error) {
	const query = `SELECT ` + announcementColumns + ` FROM announcements
        WHERE school_id = $1 AND deleted_at IS NULL
        AND is_published = TRUE AND publish_at <= $5 AND (expires_at IS NULL OR expires_at > $5)
        AND (audience_kind = 'all'
          OR (audience_kind = 'school_level' AND audience_school_level_id = $2)
          OR (audience_kind = 'class' AND audience_class_id = $3)
          OR (audience_kind = 'users' AND $4 = ANY(audience_user_ids)))
        ORDER BY publish_at DESC`
	var rows []announcementRow
	if err := r.db.SelectContext(ctx, &rows, query, schoolID, schoolLevelID, classID, userID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("list visible announcements: %w", err)
	}
	announcements := make([]models.Announcement, 0, len(rows))
	for _, row := range rows {
		announcements = append(announcements, row.toModel())
	}
	return announcements, nil
}
