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

// ScheduleRepository handles persistence of weekly schedule slots.
type ScheduleRepository struct {
	db *sqlx.DB
}

// NewScheduleRepository constructs the repository.
func NewScheduleRepository(db *sqlx.DB) *ScheduleRepository {
	return &ScheduleRepository{db: db}
}

const scheduleColumns = `s.id, s.class_id, s.subject_id, s.teacher_id, s.day_of_week, s.start_time, s.end_time,
        s.room, s.is_active, s.academic_year_id, s.created_by, s.updated_by, s.created_at, s.updated_at, s.deleted_at`

const scheduleDetailColumns = scheduleColumns + `,
        c.name AS class_name, sub.name AS subject_name, t.full_name AS teacher_name`

const scheduleJoins = `FROM schedules s
LEFT JOIN classes c ON c.id = s.class_id
LEFT JOIN subjects sub ON sub.id = s.subject_id
LEFT JOIN users t ON t.id = s.teacher_id`

// List returns schedule slots filtered by the provided criteria.
func (r *ScheduleRepository) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	where := []string{"s.deleted_at IS NULL"}
	var args []interface{}

	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("s.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.ClassID != "" {
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.TeacherID != "" {
		where = append(where, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, filter.TeacherID)
	}
	if filter.SubjectID != "" {
		where = append(where, fmt.Sprintf("s.subject_id = $%d", len(args)+1))
		args = append(args, filter.SubjectID)
	}
	if filter.DayOfWeek != "" {
		where = append(where, fmt.Sprintf("s.day_of_week = $%d", len(args)+1))
		args = append(args, filter.DayOfWeek)
	}
	if filter.IsActive != nil {
		where = append(where, fmt.Sprintf("s.is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	whereClause := " WHERE " + strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"day_of_week": "s.day_of_week",
		"start_time":  "s.start_time",
		"class_name":  "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "s.start_time"
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

	query := fmt.Sprintf(`SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		scheduleDetailColumns, scheduleJoins+whereClause, orderBy, order, size, offset)

	var schedules []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list schedules: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", scheduleJoins+whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count schedules: %w", err)
	}
	return schedules, total, nil
}

// FindByID returns a schedule slot by its ID.
func (r *ScheduleRepository) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	query := fmt.Sprintf(`SELECT %s FROM schedules s WHERE s.id = $1 AND s.deleted_at IS NULL`, scheduleColumns)
	var schedule models.Schedule
	if err := r.db.GetContext(ctx, &schedule, query, id); err != nil {
		return nil, err
	}
	return &schedule, nil
}

// FindConflicts returns every active slot that collides with the proposed
// (day, start, end) on either the class or the teacher dimension. The overlap
// test is half-open: back-to-back slots do not conflict. Times compare
// lexicographically because they are stored zero-padded.
func (r *ScheduleRepository) FindConflicts(ctx context.Context, academicYearID, dayOfWeek, startTime, endTime, classID, teacherID, excludeID string) ([]models.ScheduleConflict, error) {
	query := `SELECT s.id AS schedule_id, s.class_id, s.teacher_id, s.day_of_week, s.start_time, s.end_time,
        CASE WHEN s.class_id = $5 THEN 'class' ELSE 'teacher' END AS dimension
        FROM schedules s
        WHERE s.academic_year_id = $1 AND s.day_of_week = $2
        AND s.is_active = TRUE AND s.deleted_at IS NULL
        AND s.start_time < $4 AND s.end_time > $3
        AND (s.class_id = $5 OR s.teacher_id = $6)`
	args := []interface{}{academicYearID, dayOfWeek, startTime, endTime, classID, teacherID}
	if excludeID != "" {
		query += fmt.Sprintf(" AND s.id <> $%d", len(args)+1)
		args = append(args, excludeID)
	}
	query += " ORDER BY s.start_time ASC"

	var conflicts []models.ScheduleConflict
	if err := r.db.SelectContext(ctx, &conflicts, query, args...); err != nil {
		return nil, fmt.Errorf("find schedule conflicts: %w", err)
	}
	return conflicts, nil
}

// Create persists a new schedule slot.
func (r *ScheduleRepository) Create(ctx context.Context, schedule *models.Schedule) error {
	if schedule.ID == "" {
		schedule.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	schedule.CreatedAt = now
	schedule.UpdatedAt = now
	const query = `INSERT INTO schedules (id, class_id, subject_id, teacher_id, day_of_week, start_time, end_time, room, is_active, academic_year_id, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :class_id, :subject_id, :teacher_id, :day_of_week, :start_time, :end_time, :room, :is_active, :academic_year_id, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, schedule); err != nil {
		return fmt.Errorf("create schedule: %w", err)
	}
	return nil
}

// Update persists changes to an existing schedule slot.
func (r *ScheduleRepository) Update(ctx context.Context, schedule *models.Schedule) error {
	schedule.UpdatedAt = time.Now().UTC()
	const query = `UPDATE schedules SET class_id = :class_id, subject_id = :subject_id, teacher_id = :teacher_id,
        day_of_week = :day_of_week, start_time = :start_time, end_time = :end_time, room = :room,
        is_active = :is_active, updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, schedule)
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides the schedule slot from normal queries.
func (r *ScheduleRepository) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	const query = `UPDATE schedules SET deleted_at = $2, updated_by = $3 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), deletedBy)
	if err != nil {
		return fmt.Errorf("delete schedule: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetActive toggles whether the slot participates in the timetable and in
// conflict detection.
func (r *ScheduleRepository) SetActive(ctx context.Context, id string, active bool, updatedBy *string) error {
	const query = `UPDATE schedules SET is_active = $2, updated_by = $3, updated_at = $4 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, active, updatedBy, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("toggle schedule: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListWeekly returns every active slot for a class or teacher in the year,
// ordered for timetable grouping.
func (r *ScheduleRepository) ListWeekly(ctx context.Context, academicYearID, classID, teacherID string) ([]models.ScheduleDetail, error) {
	where := []string{"s.academic_year_id = $1", "s.is_active = TRUE", "s.deleted_at IS NULL"}
	args := []interface{}{academicYearID}
	if classID != "" {
		where = append(where, fmt.Sprintf("s.class_id = $%d", len(args)+1))
		args = append(args, classID)
	}
	if teacherID != "" {
		where = append(where, fmt.Sprintf("s.teacher_id = $%d", len(args)+1))
		args = append(args, teacherID)
	}

	query := fmt.Sprintf(`SELECT %s %s WHERE %s ORDER BY s.day_of_week ASC, s.start_time ASC`,
		scheduleDetailColumns, scheduleJoins, strings.Join(where, " AND "))

	var schedules []models.ScheduleDetail
	if err := r.db.SelectContext(ctx, &schedules, query, args...); err != nil {
		return nil, fmt.Errorf("list weekly schedule: %w", err)
	}
	return schedules, nil
}
