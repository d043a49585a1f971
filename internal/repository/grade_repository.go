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

// GradeRepository handles persistence of grade entries.
type GradeRepository struct {
	db *sqlx.DB
}

// NewGradeRepository constructs the repository.
func NewGradeRepository(db *sqlx.DB) *GradeRepository {
	return &GradeRepository{db: db}
}

const gradeColumns = `g.id, g.enrollment_id, g.subject_id, g.teacher_id, g.assessment_type, g.score, g.weight,
        g.semester, g.assessment_date, g.notes, g.academic_year_id,
        g.created_by, g.updated_by, g.created_at, g.updated_at, g.deleted_at`

const gradeJoins = `FROM grades g
JOIN enrollments e ON e.id = g.enrollment_id
LEFT JOIN users st ON st.id = e.student_id
LEFT JOIN subjects sub ON sub.id = g.subject_id`

// List returns grade entries with student and subject context.
func (r *GradeRepository) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	where := []string{"g.deleted_at IS NULL"}
	var args []interface{}

	if filter.EnrollmentID != "" {
		where = append(where, fmt.Sprintf("g.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.SubjectID != "" {
		where = append(where, fmt.Sprintf("g.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("g.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("g.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.AssessmentType != "" {
		where = append(where, fmt.Sprintf("g.assessment_type = $%d", len(args)+1))
		args = append(args, filter.AssessmentType)
	}
	if filter.Semester != 0 {
		where = append(where, fmt.Sprintf("g.semester = $%d", len(args)+1))
		args = append(args, filter.Semester)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"assessment_date": "g.assessment_date",
		"score":           "g.score",
		"student_name":    "st.full_name",
		"subject_name":    "sub.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "g.assessment_date"
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

	query := fmt.Sprintf(`SELECT %s, sub.name AS subject_name, sub.code AS subject_code,
        e.student_id, st.full_name AS student_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, gradeColumns, gradeJoins+whereClause, orderBy, order, size, offset)

	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list grades: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", gradeJoins+whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count grades: %w", err)
	}
	return grades, total, nil
}

// FindByID returns a grade entry by its ID.
func (r *GradeRepository) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	query := fmt.Sprintf(`SELECT %s FROM grades g WHERE g.id = $1 AND g.deleted_at IS NULL`, gradeColumns)
	var grade models.Grade
	if err := r.db.GetContext(ctx, &grade, query, id); err != nil {
		return nil, err
	}
	return &grade, nil
}

// Create persists a single grade entry. The unique index on (enrollment_id,
// subject_id, assessment_type, semester, academic_year_id) surfaces as
// ErrDuplicate.
func (r *GradeRepository) Create(ctx context.Context, grade *models.Grade) error {
	if grade.ID == "" {
		grade.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	grade.CreatedAt = now
	grade.UpdatedAt = now
	const query = `INSERT INTO grades (id, enrollment_id, subject_id, teacher_id, assessment_type, score, weight, semester, assessment_date, notes, academic_year_id, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :subject_id, :teacher_id, :assessment_type, :score, :weight, :semester, :assessment_date, :notes, :academic_year_id, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, grade); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "grade already recorded for this assessment")
		}
		return fmt.Errorf("create grade: %w", err)
	}
	return nil
}

// BulkCreate inserts a batch of grade entries in one transaction. Any
// duplicate aborts the whole batch.
func (r *GradeRepository) BulkCreate(ctx context.Context, grades []*models.Grade) error {
	if len(grades) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk grade insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO grades (id, enrollment_id, subject_id, teacher_id, assessment_type, score, weight, semester, assessment_date, notes, academic_year_id, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :subject_id, :teacher_id, :assessment_type, :score, :weight, :semester, :assessment_date, :notes, :academic_year_id, :created_by, :updated_by, :created_at, :updated_at)`
	now := time.Now().UTC()
	for _, grade := range grades {
		if grade.ID == "" {
			grade.ID = uuid.NewString()
		}
		grade.CreatedAt = now
		grade.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, grade); err != nil {
			if appErrors.IsUniqueViolation(err) {
				return appErrors.Duplicate(err, "grade already recorded for this assessment")
			}
			return fmt.Errorf("bulk create grade: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk grade insert: %w", err)
	}
	return nil
}

// Update persists changes to an existing grade entry.
func (r *GradeRepository) Update(ctx context.Context, grade *models.Grade) error {
	grade.UpdatedAt = time.Now().UTC()
	const query = `UPDATE grades SET score = :score, weight = :weight, assessment_date = :assessment_date,
        notes = :notes, updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, grade)
	if err != nil {
		return fmt.Errorf("update grade: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides the grade entry from normal queries.
func (r *GradeRepository) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	const query = `UPDATE grades SET deleted_at = $2, updated_by = $3 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), deletedBy)
	if err != nil {
		return fmt.Errorf("delete grade: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListScoresByClass returns the scored grade rows used by the statistics
// aggregator for a class and optional filters. Unscored entries are skipped.
func (r *GradeRepository) ListScoresByClass(ctx context.Context, classID, academicYearID string, semester int) ([]models.GradeDetail, error) {
	where := []string{"e.class_id = $1", "g.score IS NOT NULL", "g.deleted_at IS NULL"}
	args := []interface{}{classID}
	if academicYearID != "" {
		where = append(where, fmt.Sprintf("g.academic_year_id = $%d", len(args)+1))
		args = append(args, academicYearID)
	}
	if semester != 0 {
		where = append(where, fmt.Sprintf("g.semester = $%d", len(args)+1))
		args = append(args, semester)
	}

	query := fmt.Sprintf(`SELECT %s, sub.name AS subject_name, sub.code AS subject_code,
        e.student_id, st.full_name AS student_name
        %s WHERE %s ORDER BY g.assessment_date ASC`, gradeColumns, gradeJoins, strings.Join(where, " AND "))

	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("list class scores: %w", err)
	}
	return grades, nil
}

// ListScoresByStudent returns the scored grade rows for one student across
// their enrollments.
func (r *GradeRepository) ListScoresByStudent(ctx context.Context, studentID, academicYearID string, semester int) ([]models.GradeDetail, error) {
	where := []string{"e.student_id = $1", "g.score IS NOT NULL", "g.deleted_at IS NULL"}
	args := []interface{}{studentID}
	if academicYearID != "" {
		where = append(where, fmt.Sprintf("g.academic_year_id = $%d", len(args)+1))
		args = append(args, academicYearID)
	}
	if semester != 0 {
		where = append(where, fmt.Sprintf("g.semester = $%d", len(args)+1))
		args = append(args, semester)
	}

	query := fmt.Sprintf(`SELECT %s, sub.name AS subject_name, sub.code AS subject_code,
        e.student_id, st.full_name AS student_name
        %s WHERE %s ORDER BY g.assessment_date ASC`, gradeColumns, gradeJoins, strings.Join(where, " AND "))

	var grades []models.GradeDetail
	if err := r.db.SelectContext(ctx, &grades, query, args...); err != nil {
		return nil, fmt.Errorf("list student scores: %w", err)
	}
	return grades, nil
}

// StudentAverage returns the plain average over a student's scored entries,
// or nil when none exist.
func (r *GradeRepository) StudentAverage(ctx context.Context, studentID, academicYearID string) (*float64, error) {
	query := `SELECT AVG(g.score) FROM grades g
        JOIN enrollments e ON e.id = g.enrollment_id
        WHERE e.student_id = $1 AND g.score IS NOT NULL AND g.deleted_at IS NULL`
	args := []interface{}{studentID}
	if academicYearID != "" {
		query += fmt.Sprintf(" AND g.academic_year_id = $%d", len(args)+1)
		args = append(args, academicYearID)
	}
	var avg *float64
	if err := r.db.GetContext(ctx, &avg, query, args...); err != nil {
		return nil, fmt.Errorf("student grade average: %w", err)
	}
	return avg, nil
}
