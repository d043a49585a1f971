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

// promotionNote marks enrollments created by the batch promotion flow.
const promotionNote = "Auto-promoted from previous class"

// EnrollmentRepository handles persistence of enrollments.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

const enrollmentColumns = `e.id, e.student_id, e.class_id, e.academic_year_id, e.status, e.enrollment_date,
        e.graduation_date, e.admission_number, e.class_rank, e.notes,
        e.created_by, e.updated_by, e.created_at, e.updated_at, e.deleted_at`

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
LEFT JOIN users s ON s.id = e.student_id
LEFT JOIN classes c ON c.id = e.class_id
LEFT JOIN academic_years y ON y.id = e.academic_year_id`
	where := []string{"e.deleted_at IS NULL"}
	var args []interface{}

	if filter.StudentID != "" {
		where = append(where, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("e.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"enrollment_date": "e.enrollment_date",
		"class_rank":      "e.class_rank",
		"student_name":    "s.full_name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrollment_date"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf(`SELECT %s, s.full_name AS student_name, c.name AS class_name, y.name AS year_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, enrollmentColumns, base+whereClause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}

// FindByID returns an enrollment by its ID.
func (r *EnrollmentRepository) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.id = $1 AND e.deleted_at IS NULL`, enrollmentColumns)
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, id); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Exists checks whether the (student, class, academic year) tuple is already
// taken, regardless of status.
func (r *EnrollmentRepository) Exists(ctx context.Context, studentID, classID, academicYearID, excludeID string) (bool, error) {
	query := `SELECT 1 FROM enrollments WHERE student_id = $1 AND class_id = $2 AND academic_year_id = $3 AND deleted_at IS NULL`
	args := []interface{}{studentID, classID, academicYearID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " LIMIT 1"
	var exists int
	if err := r.db.GetContext(ctx, &exists, query, args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check enrollment: %w", err)
	}
	return true, nil
}

// Create persists a new enrollment. The unique index on (student_id, class_id,
// academic_year_id) is the last line of defense against racing callers and
// surfaces as ErrDuplicate.
func (r *EnrollmentRepository) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if enrollment.ID == "" {
		enrollment.ID = uuid.NewString()
	}
	if enrollment.EnrollmentDate.IsZero() {
		enrollment.EnrollmentDate = time.Now().UTC()
	}
	if enrollment.Status == "" {
		enrollment.Status = models.EnrollmentStatusActive
	}
	now := time.Now().UTC()
	enrollment.CreatedAt = now
	enrollment.UpdatedAt = now
	const query = `INSERT INTO enrollments (id, student_id, class_id, academic_year_id, status, enrollment_date, graduation_date, admission_number, class_rank, notes, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :student_id, :class_id, :academic_year_id, :status, :enrollment_date, :graduation_date, :admission_number, :class_rank, :notes, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, enrollment); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "student already enrolled in this class and year")
		}
		return fmt.Errorf("create enrollment: %w", err)
	}
	return nil
}

// Aggregate computes attendance counts and the scored-grade average for one
// enrollment. Null-score grades are excluded from both the count and the
// average.
func (r *EnrollmentRepository) Aggregate(ctx context.Context, enrollmentID string) (*models.EnrollmentSummary, error) {
	const query = `SELECT
        (SELECT COUNT(*) FROM attendances a WHERE a.enrollment_id = $1 AND a.deleted_at IS NULL) AS attendance_count,
        (SELECT COUNT(*) FROM attendances a WHERE a.enrollment_id = $1 AND a.status = 'present' AND a.deleted_at IS NULL) AS present_count,
        (SELECT AVG(g.score) FROM grades g WHERE g.enrollment_id = $1 AND g.score IS NOT NULL AND g.deleted_at IS NULL) AS average_grade,
        (SELECT COUNT(*) FROM grades g WHERE g.enrollment_id = $1 AND g.score IS NOT NULL AND g.deleted_at IS NULL) AS grade_count`
	var summary models.EnrollmentSummary
	if err := r.db.GetContext(ctx, &summary, query, enrollmentID); err != nil {
		return nil, fmt.Errorf("aggregate enrollment: %w", err)
	}
	summary.EnrollmentID = enrollmentID
	return &summary, nil
}

// UpdateStatus updates status and graduation_date for an enrollment.
func (r *EnrollmentRepository) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, graduationDate *time.Time, updatedBy *string) error {
	const query = `UPDATE enrollments SET status = $2, graduation_date = $3, updated_by = $4, updated_at = $5 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, status, graduationDate, updatedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update enrollment status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListActiveByClassYear returns active enrollments for a class and year.
func (r *EnrollmentRepository) ListActiveByClassYear(ctx context.Context, classID, academicYearID string) ([]models.Enrollment, error) {
	query := fmt.Sprintf(`SELECT %s FROM enrollments e WHERE e.class_id = $1 AND e.academic_year_id = $2 AND e.status = $3 AND e.deleted_at IS NULL ORDER BY e.enrollment_date ASC`, enrollmentColumns)
	var enrollments []models.Enrollment
	if err := r.db.SelectContext(ctx, &enrollments, query, classID, academicYearID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("list class enrollments: %w", err)
	}
	return enrollments, nil
}

// UpdateClassRanks recomputes class_rank for all active enrollments of the
// class and year: ordered by enrollment_date ascending, ranks assigned 1..N.
// The whole overwrite runs in one transaction so a failure leaves the old
// ranks intact rather than half-updated.
func (r *EnrollmentRepository) UpdateClassRanks(ctx context.Context, classID, academicYearID string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin rank update: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var ids []string
	if err := tx.SelectContext(ctx, &ids, `SELECT id FROM enrollments WHERE class_id = $1 AND academic_year_id = $2 AND status = $3 AND deleted_at IS NULL ORDER BY enrollment_date ASC, id ASC`,
		classID, academicYearID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("load enrollments for ranking: %w", err)
	}

	now := time.Now().UTC()
	for rank, id := range ids {
		if _, err := tx.ExecContext(ctx, `UPDATE enrollments SET class_rank = $2, updated_at = $3 WHERE id = $1`, id, rank+1, now); err != nil {
			return 0, fmt.Errorf("assign class rank: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit rank update: %w", err)
	}
	return len(ids), nil
}

// Promote copies every active enrollment of the source class/year into the
// destination class/year as a fresh active enrollment. Source rows are left
// untouched; students keep their historical standing in the old year.
func (r *EnrollmentRepository) Promote(ctx context.Context, fromYearID, toYearID, fromClassID, toClassID string, actorID *string) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin promotion: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var studentIDs []string
	if err := tx.SelectContext(ctx, &studentIDs, `SELECT student_id FROM enrollments WHERE class_id = $1 AND academic_year_id = $2 AND status = $3 AND deleted_at IS NULL ORDER BY enrollment_date ASC`,
		fromClassID, fromYearID, models.EnrollmentStatusActive); err != nil {
		return 0, fmt.Errorf("load enrollments for promotion: %w", err)
	}

	now := time.Now().UTC()
	note := promotionNote
	const insert = `INSERT INTO enrollments (id, student_id, class_id, academic_year_id, status, enrollment_date, notes, created_by, updated_by, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8, $9, $9)`
	for _, studentID := range studentIDs {
		if _, err := tx.ExecContext(ctx, insert, uuid.NewString(), studentID, toClassID, toYearID, models.EnrollmentStatusActive, now, note, actorID, now); err != nil {
			if appErrors.IsUniqueViolation(err) {
				return 0, appErrors.Duplicate(err, fmt.Sprintf("student %s already enrolled in destination class", studentID))
			}
			return 0, fmt.Errorf("promote student %s: %w", studentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit promotion: %w", err)
	}
	return len(studentIDs), nil
}
