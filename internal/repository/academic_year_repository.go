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

// AcademicYearRepository handles persistence of academic years.
type AcademicYearRepository struct {
	db *sqlx.DB
}

// NewAcademicYearRepository constructs the repository.
func NewAcademicYearRepository(db *sqlx.DB) *AcademicYearRepository {
	return &AcademicYearRepository{db: db}
}

const academicYearColumns = `id, name, year_code, start_date, end_date, school_id, is_active, is_current, description,
        created_by, updated_by, created_at, updated_at, deleted_at`

// List returns academic years filtered by the provided criteria.
func (r *AcademicYearRepository) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	where := []string{"deleted_at IS NULL"}
	var args []interface{}

	if filter.SchoolID != "" {
		where = append(where, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, filter.SchoolID)
	}
	if filter.IsActive != nil {
		where = append(where, fmt.Sprintf("is_active = $%d", len(args)+1))
		args = append(args, *filter.IsActive)
	}
	if filter.IsCurrent != nil {
		where = append(where, fmt.Sprintf("is_current = $%d", len(args)+1))
		args = append(args, *filter.IsCurrent)
	}
	if filter.Keyword != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR year_code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+filter.Keyword+"%")
	}
	whereClause := strings.Join(where, " AND ")

	allowedSorts := map[string]string{
		"name":       "name",
		"year_code":  "year_code",
		"start_date": "start_date",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "start_date"
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

	query := fmt.Sprintf(`SELECT %s FROM academic_years WHERE %s ORDER BY %s %s LIMIT %d OFFSET %d`,
		academicYearColumns, whereClause, orderBy, order, size, offset)

	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list academic years: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM academic_years WHERE %s", whereClause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count academic years: %w", err)
	}
	return years, total, nil
}

// FindByID returns an academic year by its ID.
func (r *AcademicYearRepository) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	query := fmt.Sprintf(`SELECT %s FROM academic_years WHERE id = $1 AND deleted_at IS NULL`, academicYearColumns)
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}
	return &year, nil
}

// FindCurrent returns the current academic year for a school.
func (r *AcademicYearRepository) FindCurrent(ctx context.Context, schoolID string) (*models.AcademicYear, error) {
	query := fmt.Sprintf(`SELECT %s FROM academic_years WHERE school_id = $1 AND is_current = TRUE AND deleted_at IS NULL`, academicYearColumns)
	var year models.AcademicYear
	if err := r.db.GetContext(ctx, &year, query, schoolID); err != nil {
		return nil, err
	}
	return &year, nil
}

// CodeExists checks year_code uniqueness. The constraint is global across all
// schools, matching the unique index on year_code alone.
func (r *AcademicYearRepository) CodeExists(ctx context.Context, yearCode, excludeID string) (bool, error) {
	query := "SELECT 1 FROM academic_years WHERE year_code = $1 AND deleted_at IS NULL"
	args := []interface{}{yearCode}
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
		return false, fmt.Errorf("check year code: %w", err)
	}
	return true, nil
}

// OverlapExists reports whether [startDate, endDate] overlaps any other
// academic year of the same school: the new start or end falls inside an
// existing range, or the new range encloses an existing one.
func (r *AcademicYearRepository) OverlapExists(ctx context.Context, schoolID string, startDate, endDate time.Time, excludeID string) (bool, error) {
	query := `SELECT 1 FROM academic_years
        WHERE school_id = $1 AND deleted_at IS NULL
        AND (($2 BETWEEN start_date AND end_date)
          OR ($3 BETWEEN start_date AND end_date)
          OR (start_date >= $2 AND end_date <= $3))`
	args := []interface{}{schoolID, startDate, endDate}
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
		return false, fmt.Errorf("check date overlap: %w", err)
	}
	return true, nil
}

// Create persists a new academic year. A storage-level unique violation on
// year_code surfaces as ErrDuplicate.
func (r *AcademicYearRepository) Create(ctx context.Context, year *models.AcademicYear) error {
	if year.ID == "" {
		year.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	year.CreatedAt = now
	year.UpdatedAt = now
	const query = `INSERT INTO academic_years (id, name, year_code, start_date, end_date, school_id, is_active, is_current, description, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :name, :year_code, :start_date, :end_date, :school_id, :is_active, :is_current, :description, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, year); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "year code already exists")
		}
		return fmt.Errorf("create academic year: %w", err)
	}
	return nil
}

// Update persists changes to an existing academic year.
func (r *AcademicYearRepository) Update(ctx context.Context, year *models.AcademicYear) error {
	year.UpdatedAt = time.Now().UTC()
	const query = `UPDATE academic_years SET name = :name, year_code = :year_code, start_date = :start_date,
        end_date = :end_date, is_active = :is_active, description = :description,
        updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, year)
	if err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "year code already exists")
		}
		return fmt.Errorf("update academic year: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SoftDelete hides the academic year from normal queries.
func (r *AcademicYearRepository) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	const query = `UPDATE academic_years SET deleted_at = $2, updated_by = $3 WHERE id = $1 AND deleted_at IS NULL`
	result, err := r.db.ExecContext(ctx, query, id, time.Now().UTC(), deletedBy)
	if err != nil {
		return fmt.Errorf("delete academic year: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetCurrent flips the is_current flag to the target year inside one
// transaction: all years of the owning school are cleared first, then the
// target is set, so no observer ever sees two current years for a school.
func (r *AcademicYearRepository) SetCurrent(ctx context.Context, id string) (*models.AcademicYear, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin set current year: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	var year models.AcademicYear
	query := fmt.Sprintf(`SELECT %s FROM academic_years WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`, academicYearColumns)
	if err := tx.GetContext(ctx, &year, query, id); err != nil {
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE academic_years SET is_current = FALSE, updated_at = $2 WHERE school_id = $1 AND is_current = TRUE AND deleted_at IS NULL`, year.SchoolID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("clear current year: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE academic_years SET is_current = TRUE, is_active = TRUE, updated_at = $2 WHERE id = $1`, id, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("set current year: %w", err)
	}

	// The unique-current invariant must hold before the transaction commits.
	var currentCount int
	if err := tx.GetContext(ctx, &currentCount, `SELECT COUNT(*) FROM academic_years WHERE school_id = $1 AND is_current = TRUE AND deleted_at IS NULL`, year.SchoolID); err != nil {
		return nil, fmt.Errorf("verify current year: %w", err)
	}
	if currentCount != 1 {
		return nil, appErrors.Clone(appErrors.ErrConsistency, "multiple current academic years detected")
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit set current year: %w", err)
	}

	year.IsCurrent = true
	year.IsActive = true
	return &year, nil
}

// ListUpcoming returns years starting after now, soonest first.
func (r *AcademicYearRepository) ListUpcoming(ctx context.Context, schoolID string, limit int) ([]models.AcademicYear, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT %s FROM academic_years WHERE school_id = $1 AND start_date > $2 AND deleted_at IS NULL ORDER BY start_date ASC LIMIT %d`, academicYearColumns, limit)
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, schoolID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("list upcoming years: %w", err)
	}
	return years, nil
}

// ListPrevious returns years ending before now, most recent first.
func (r *AcademicYearRepository) ListPrevious(ctx context.Context, schoolID string, limit int) ([]models.AcademicYear, error) {
	if limit <= 0 {
		limit = 5
	}
	query := fmt.Sprintf(`SELECT %s FROM academic_years WHERE school_id = $1 AND end_date < $2 AND deleted_at IS NULL ORDER BY end_date DESC LIMIT %d`, academicYearColumns, limit)
	var years []models.AcademicYear
	if err := r.db.SelectContext(ctx, &years, query, schoolID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("list previous years: %w", err)
	}
	return years, nil
}
