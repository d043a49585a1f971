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

// ClassRepository handles persistence of class groups.
type ClassRepository struct {
	db *sqlx.DB
}

// NewClassRepository constructs the repository.
func NewClassRepository(db *sqlx.DB) *ClassRepository {
	return &ClassRepository{db: db}
}

const classColumns = `c.id, c.name, c.class_code, c.school_id, c.level, c.academic_year_id, c.homeroom_teacher_id,
        c.max_students, c.display_order, c.created_by, c.updated_by, c.created_at, c.updated_at, c.deleted_at`

// List returns class groups with their active-enrollment counts.
func (r *ClassRepository) List(ctx context.Context, filter models.ClassGroupFilter) ([]models.ClassGroupDetail, int, error) {
	where := []string{"c.deleted_at IS NULL"}
	var args []interface{}

	if filter.SchoolID != "" {
		where = append(where, fmt.Sprintf("c.school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.AcademicYearID != "" {
		where = append(where, fmt.Sprintf("c.academic_year_id = $%d", len(args)+1))
		args = append(args, filter.AcademicYearID)
	}
	if filter.Level != "" {
		where = append(where, fmt.Sprintf("c.level = $%d", len(args)+1))
		args = append(args, filter.Level)
	}
	if filter.Keyword != "" {
		where = append(where, fmt.Sprintf("(c.name ILIKE $%d OR c.class_code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Keyword+"%")
	}
	whereClause := strings.Join(where, " AND ")

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

	query := fmt.Sprintf(`SELECT %s,
        (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'active' AND e.deleted_at IS NULL) AS current_student_count
        FROM classes c WHERE %s ORDER BY c.display_order %s, c.name %s LIMIT %d OFFSET %d`,
		classColumns, whereClause, order, order, size, offset)

	var classes []models.ClassGroupDetail
	if err := r.db.SelectContext(ctx, &classes, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list classes: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM classes c WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count classes: %w", err)
	}
	return classes, total, nil
}

// FindByID returns a class group by its ID.
func (r *ClassRepository) FindByID(ctx context.Context, id string) (*models.ClassGroup, error) {
	query := fmt.Sprintf(`SELECT %s FROM classes c WHERE c.id = $1 AND c.deleted_at IS NULL`, classColumns)
	var class models.ClassGroup
	if err := r.db.GetContext(ctx, &class, query, id); err != nil {
		return nil, err
	}
	return &class, nil
}

// FindDetailByID returns a class with its derived occupancy counter.
func (r *ClassRepository) FindDetailByID(ctx context.Context, id string) (*models.ClassGroupDetail, error) {
	query := fmt.Sprintf(`SELECT %s,
        (SELECT COUNT(*) FROM enrollments e WHERE e.class_id = c.id AND e.status = 'active' AND e.deleted_at IS NULL) AS current_student_count
        FROM classes c WHERE c.id = $1 AND c.deleted_at IS NULL`, classColumns)
	var detail models.ClassGroupDetail
	if err := r.db.GetContext(ctx, &detail, query, id); err != nil {
		return nil, err
	}
	return &detail, nil
}

// CodeExists checks class_code uniqueness within (school, academic year).
func (r *ClassRepository) CodeExists(ctx context.Context, classCode, schoolID, academicYearID, excludeID string) (bool, error) {
	query := `SELECT 1 FROM classes WHERE class_code = $1 AND school_id = $2 AND academic_year_id = $3 AND deleted_at IS NULL`
	args := []interface{}{classCode, schoolID, academicYearID}
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
		return false, fmt.Errorf("check class code: %w", err)
	}
	return true, nil
}

// Create persists a new class group.
func (r *ClassRepository) Create(ctx context.Context, class *models.ClassGroup) error {
	if class.ID == "" {
		class.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	class.CreatedAt = now
	class.UpdatedAt = now
	const query = `INSERT INTO classes (id, name, class_code, school_id, level, academic_year_id, homeroom_teacher_id, max_students, display_order, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :name, :class_code, :school_id, :level, :academic_year_id, :homeroom_teacher_id, :max_students, :display_order, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, class); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "class code already exists for this school and year")
		}
		return fmt.Errorf("create class: %w", err)
	}
	return nil
}

// Update persists changes to an existing class group.
func (r *ClassRepository) Update(ctx context.Context, class *models.ClassGroup) error {
	class.UpdatedAt = time.Now().UTC()
	const query = `UPDATE classes SET name = :name, class_code = :class_code, level = :level,
        homeroom_teacher_id = :homeroom_teacher_id, max_students = :max_students, display_order = :display_order,
        updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, class)
	if err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "class code already exists for this school and year")
		}
		return fmt.Errorf("update class: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
