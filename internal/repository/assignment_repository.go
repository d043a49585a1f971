package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sekolahku/sis-core-api/internal/models"
)

// AssignmentRepository handles persistence of assignments.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs the repository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

const assignmentColumns = `a.id, a.subject_id, a.teacher_id, a.class_id, a.title, a.description, a.assignment_type,
        a.due_date, a.submission_start, a.submission_end, a.max_score, a.instructions, a.is_published,
        a.allow_late_submission, a.late_penalty_percent, a.academic_year_id,
        a.created_by, a.updated_by, a.created_at, a.updated_at, a.deleted_at`

// List returns assignments filtered by the provided criteria.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	where := []string{"a.deleted_at IS NULL"}
	var args []interface{}

	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("a.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		where = append(where, fmt.Sprintf("a.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("a.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("a.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.Type != "" {
		where = append(where, fmt.Sprintf("a.assignment_type = $%d", len(args)+1))
		args = append(args, filter.Type)
	}
	if filter.IsPublished != nil {
		where = append(where, fmt.Sprintf("a.is_published = $%d", len(args)+1))
		args = append(args, *filter.IsPublished)
	}
	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"due_date":   "a.due_date",
		"title":      "a.title",
		"created_at": "a.created_at",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "a.due_date"
	}
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

	query := fmt.Sprintf(`SELECT %s FROM assignments a WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		assignmentColumns, whereClause, orderBy, order, size, offset)

	var assignments []models.Assignment
	if err := r.db.SelectContext(ctx, &assignments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM assignments a WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}
	return assignments, total, nil
}

// FindByID returns an assignment by its ID.
func (r *AssignmentRepository) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	query := fmt.Sprintf(`SELECT %s FROM assignments a WHERE a.id = $1 AND a.deleted_at IS NULL`, assignmentColumns)
	var assignment models.Assignment
	if err := r.db.GetContext(ctx, &assignment, query, id); err != nil {
		return nil, err
	}
	return &assignment, nil
}

// Create persists a new assignment.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.Assignment) error {
	if assignment.ID == "" {
		assignment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	assignment.CreatedAt = now
	assignment.UpdatedAt = now
	const query = `INSERT INTO assignments (id, subject_id, teacher_id, class_id, title, description, assignment_type, due_date, submission_start, submission_end, max_score, instructions, is_published, allow_late_submission, late_penalty_percent, academic_year_id, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :subject_id, :teacher_id, :class_id, :title, :description, :assignment_type, :due_date, :submission_start, :submission_end, :max_score, :instructions, :is_published, :allow_late_submission, :late_penalty_percent, :academic_year_id, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, assignment); err != nil {
		return fmt.Errorf("create assignment: %w", err)
	}
	return nil
}

// Update persists changes to an existing assignment.
func (r *AssignmentRepository) Update(ctx context.Context, assignment *models.Assignment) error {
	assignment.UpdatedAt = time.Now().UTC()
	const query = `UPDATE assignments SET title = :title, description = :description, assignment_type = :assignment_type,
        due_date = :due_date, submission_start = :submission_start, submission_end = :submission_end,
        max_score = :max_score, instructions = :instructions, allow_late_submission = :allow_late_submission,
        late_penalty_percent = :late_penalty_percent, updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, assignment)
	if err != nil {
		return fmt.Errorf("update assignment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetPublished flips the visibility flag. Unpublished assignments accept no
// submissions.
func (r *AssignmentRepository) SetPublished(ctx context.Context, id string, published bool, updatedBy *string) error {
	const query = `UPDATE assignments SET is_published = $2, updated_by = $3, updated_at = $4 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, published, updatedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("publish assignment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides the assignment from normal queries.
func (r *AssignmentRepository) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	const query = `UPDATE assignments SET deleted_at = $2, updated_by = $3 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), deletedBy)
	if err != nil {
		return fmt.Errorf("delete assignment: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Progress aggregates submission state for one assignment.
func (r *AssignmentRepository) Progress(ctx context.Context, assignmentID string) (*models.AssignmentProgress, error) {
	const query = `SELECT
        $1 AS assignment_id,
        COUNT(*) FILTER (WHERE s.status <> 'draft') AS submission_count,
        COUNT(*) FILTER (WHERE s.status IN ('graded', 'returned')) AS graded_count,
        COUNT(*) FILTER (WHERE s.is_late AND s.status <> 'draft') AS late_count,
        AVG(s.score) FILTER (WHERE s.score IS NOT NULL) AS average_score
        FROM submissions s
        WHERE s.assignment_id = $1 AND s.deleted_at IS NULL`
	var progress models.AssignmentProgress
	if err := r.db.GetContext(ctx, &progress, query, assignmentID); err != nil {
		return nil, fmt.Errorf("assignment progress: %w", err)
	}
	return &progress, nil
}
