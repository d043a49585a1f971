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
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

// SubmissionRepository handles persistence of assignment submissions.
type SubmissionRepository struct {
	db *sqlx.DB
}

// NewSubmissionRepository constructs the repository.
func NewSubmissionRepository(db *sqlx.DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

const submissionColumns = `s.id, s.assignment_id, s.student_id, s.content, s.file_path, s.file_name, s.score,
        s.grade, s.feedback, s.submitted_at, s.status, s.is_late, s.days_late, s.late_penalty_notes,
        s.graded_by, s.graded_at, s.created_by, s.updated_by, s.created_at, s.updated_at, s.deleted_at`

// List returns submissions with assignment and student context.
func (r *SubmissionRepository) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	base := `FROM submissions s
JOIN assignments a ON a.id = s.assignment_id
LEFT JOIN users st ON st.id = s.student_id`
	where := []string{"s.deleted_at IS NULL"}
	var args []interface{}

	if filter.AssignmentID != "" {
		where = append(where, fmt.Sprintf("s.assignment_id = $%d", len(args)+1))
		args = append(args, filter.AssignmentID)
	}
	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("s.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("s.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.IsLate != nil {
		where = append(where, fmt.Sprintf("s.is_late = $%d", len(args)+1))
		args = append(args, *filter.IsLate)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"submitted_at": "s.submitted_at",
		"score":        "s.score",
		"student_name": "st.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.submitted_at"
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

	query := fmt.Sprintf(`SELECT %s, a.title AS assignment_title, a.max_score, st.full_name AS student_name
        %s ORDER BY %s %s NULLS LAST LIMIT %d OFFSET %d`, submissionColumns, base+whereClause, orderBy, order, size, offset)

	var submissions []models.SubmissionDetail
	if err := r.db.SelectContext(ctx, &submissions, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list submissions: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count submissions: %w", err)
	}
	return submissions, total, nil
}

// FindByID returns a submission by its ID.
func (r *SubmissionRepository) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions s WHERE s.id = $1 AND s.deleted_at IS NULL`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, id); err != nil {
		return nil, err
	}
	return &submission, nil
}

// FindByAssignmentAndStudent returns the single submission a student has for
// an assignment, or sql.ErrNoRows when none exists.
func (r *SubmissionRepository) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	query := fmt.Sprintf(`SELECT %s FROM submissions s WHERE s.assignment_id = $1 AND s.student_id = $2 AND s.deleted_at IS NULL`, submissionColumns)
	var submission models.Submission
	if err := r.db.GetContext(ctx, &submission, query, assignmentID, studentID); err != nil {
		return nil, err
	}
	return &submission, nil
}

// Create persists a new submission. The unique index on (assignment_id,
// student_id) surfaces as ErrDuplicate; callers resubmitting should Update.
func (r *SubmissionRepository) Create(ctx context.Context, submission *models.Submission) error {
	if submission.ID == "" {
		submission.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	submission.CreatedAt = now
	submission.UpdatedAt = now
	const query = `INSERT INTO submissions (id, assignment_id, student_id, content, file_path, file_name, score, grade, feedback, submitted_at, status, is_late, days_late, late_penalty_notes, graded_by, graded_at, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :assignment_id, :student_id, :content, :file_path, :file_name, :score, :grade, :feedback, :submitted_at, :status, :is_late, :days_late, :late_penalty_notes, :graded_by, :graded_at, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, submission); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "submission already exists for this assignment")
		}
		return fmt.Errorf("create submission: %w", err)
	}
	return nil
}

// Update overwrites the mutable fields of a submission. Resubmission reuses
// this path; the row is never versioned.
func (r *SubmissionRepository) Update(ctx context.Context, submission *models.Submission) error {
	submission.UpdatedAt = time.Now().UTC()
	const query = `UPDATE submissions SET content = :content, file_path = :file_path, file_name = :file_name,
        submitted_at = :submitted_at, status = :status, is_late = :is_late, days_late = :days_late,
        late_penalty_notes = :late_penalty_notes, updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, submission)
	if err != nil {
		return fmt.Errorf("update submission: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetGraded records the grading outcome and moves the row to graded.
func (r *SubmissionRepository) SetGraded(ctx context.Context, submission *models.Submission) error {
	submission.UpdatedAt = time.Now().UTC()
	const query = `UPDATE submissions SET score = :score, grade = :grade, feedback = :feedback,
        status = :status, late_penalty_notes = :late_penalty_notes, graded_by = :graded_by, graded_at = :graded_at,
        updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, submission)
	if err != nil {
		return fmt.Errorf("grade submission: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetStatus moves the submission to the given lifecycle state. The service
// validates the transition before calling.
func (r *SubmissionRepository) SetStatus(ctx context.Context, id string, status models.SubmissionStatus, updatedBy *string) error {
	const query = `UPDATE submissions SET status = $2, updated_by = $3, updated_at = $4 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, status, updatedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update submission status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
