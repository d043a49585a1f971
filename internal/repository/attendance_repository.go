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

// AttendanceRepository handles persistence of attendance records.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const attendanceColumns = `a.id, a.enrollment_id, a.teacher_id, a.attendance_date, a.status, a.check_in_time,
        a.check_out_time, a.attendance_type, a.notes,
        a.created_by, a.updated_by, a.created_at, a.updated_at, a.deleted_at`

// List returns attendance records filtered by the provided criteria.
func (r *AttendanceRepository) List(ctx context.Context, filter models.AttendanceFilter) ([]models.Attendance, int, error) {
	base := `FROM attendances a JOIN enrollments e ON e.id = a.enrollment_id`
	where := []string{"a.deleted_at IS NULL"}
	var args []interface{}

	if filter.EnrollmentID != "" {
		where = append(where, fmt.Sprintf("a.enrollment_id = $%d", len(args)+1))
		args = append(args, filter.EnrollmentID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("a.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("a.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}
	if filter.DateFrom != nil {
		where = append(where, fmt.Sprintf("a.attendance_date >= $%d", len(args)+1))
		args = append(args, *filter.DateFrom)
	}
	if filter.DateTo != nil {
		where = append(where, fmt.Sprintf("a.attendance_date <= $%d", len(args)+1))
		args = append(args, *filter.DateTo)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY a.attendance_date %s LIMIT %d OFFSET %d`,
		attendanceColumns, base+whereClause, order, size, offset)

	var records []models.Attendance
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list attendance: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count attendance: %w", err)
	}
	return records, total, nil
}

// FindByID returns an attendance record by its ID.
func (r *AttendanceRepository) FindByID(ctx context.Context, id string) (*models.Attendance, error) {
	query := fmt.Sprintf(`SELECT %s FROM attendances a WHERE a.id = $1 AND a.deleted_at IS NULL`, attendanceColumns)
	var record models.Attendance
	if err := r.db.GetContext(ctx, &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// Create persists one attendance record. The unique index on (enrollment_id,
// attendance_date) surfaces as ErrDuplicate.
func (r *AttendanceRepository) Create(ctx context.Context, record *models.Attendance) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Type == "" {
		record.Type = models.AttendanceTypeDaily
	}
	now := time.Now().UTC()
	record.CreatedAt = now
	record.UpdatedAt = now
	const query = `INSERT INTO attendances (id, enrollment_id, teacher_id, attendance_date, status, check_in_time, check_out_time, attendance_type, notes, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :teacher_id, :attendance_date, :status, :check_in_time, :check_out_time, :attendance_type, :notes, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, record); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "attendance already recorded for this date")
		}
		return fmt.Errorf("create attendance: %w", err)
	}
	return nil
}

// BulkCreate inserts a batch of attendance records, typically a whole class
// for one date, in one transaction.
func (r *AttendanceRepository) BulkCreate(ctx context.Context, records []*models.Attendance) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin bulk attendance insert: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const query = `INSERT INTO attendances (id, enrollment_id, teacher_id, attendance_date, status, check_in_time, check_out_time, attendance_type, notes, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :enrollment_id, :teacher_id, :attendance_date, :status, :check_in_time, :check_out_time, :attendance_type, :notes, :created_by, :updated_by, :created_at, :updated_at)`
	now := time.Now().UTC()
	for _, record := range records {
		if record.ID == "" {
			record.ID = uuid.NewString()
		}
		if record.Type == "" {
			record.Type = models.AttendanceTypeDaily
		}
		record.CreatedAt = now
		record.UpdatedAt = now
		if _, err := tx.NamedExecContext(ctx, query, record); err != nil {
			if appErrors.IsUniqueViolation(err) {
				return appErrors.Duplicate(err, "attendance already recorded for this date")
			}
			return fmt.Errorf("bulk create attendance: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit bulk attendance insert: %w", err)
	}
	return nil
}

// Update persists changes to an existing attendance record.
func (r *AttendanceRepository) Update(ctx context.Context, record *models.Attendance) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE attendances SET status = :status, check_in_time = :check_in_time,
        check_out_time = :check_out_time, notes = :notes, updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, record)
	if err != nil {
		return fmt.Errorf("update attendance: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// Summary aggregates status counts for an enrollment within an optional date
// range.
func (r *AttendanceRepository) Summary(ctx context.Context, enrollmentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	query := `SELECT
        COUNT(*) AS total,
        COUNT(*) FILTER (WHERE status = 'present') AS present,
        COUNT(*) FILTER (WHERE status = 'absent') AS absent,
        COUNT(*) FILTER (WHERE status = 'late') AS late,
        COUNT(*) FILTER (WHERE status = 'excuse') AS excused,
        COUNT(*) FILTER (WHERE status = 'sick') AS sick
        FROM attendances WHERE enrollment_id = $1 AND deleted_at IS NULL`
	args := []interface{}{enrollmentID}
	if from != nil {
		query += fmt.Sprintf(" AND attendance_date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND attendance_date <= $%d", len(args)+1)
		args = append(args, *to)
	}

	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, fmt.Errorf("attendance summary: %w", err)
	}
	return &summary, nil
}

// ClassSummary aggregates status counts across every enrollment of a class
// and year, within an optional date range.
func (r *AttendanceRepository) ClassSummary(ctx context.Context, classID, academicYearID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	query := `SELECT
        COUNT(*) AS total,
        COUNT(*) FILTER (WHERE a.status = 'present') AS present,
        COUNT(*) FILTER (WHERE a.status = 'absent') AS absent,
        COUNT(*) FILTER (WHERE a.status = 'late') AS late,
        COUNT(*) FILTER (WHERE a.status = 'excuse') AS excused,
        COUNT(*) FILTER (WHERE a.status = 'sick') AS sick
        FROM attendances a
        JOIN enrollments e ON e.id = a.enrollment_id
        WHERE e.class_id = $1 AND e.academic_year_id = $2 AND a.deleted_at IS NULL AND e.deleted_at IS NULL`
	args := []interface{}{classID, academicYearID}
	if from != nil {
		query += fmt.Sprintf(" AND a.attendance_date >= $%d", len(args)+1)
		args = append(args, *from)
	}
	if to != nil {
		query += fmt.Sprintf(" AND a.attendance_date <= $%d", len(args)+1)
		args = append(args, *to)
	}

	var summary models.AttendanceSummary
	if err := r.db.GetContext(ctx, &summary, query, args...); err != nil {
		return nil, fmt.Errorf("class attendance summary: %w", err)
	}
	return &summary, nil
}
