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

// SubjectRepository handles persistence of subjects.
type SubjectRepository struct {
	db *sqlx.DB
}

// NewSubjectRepository constructs the repository.
func NewSubjectRepository(db *sqlx.DB) *SubjectRepository {
	return &SubjectRepository{db: db}
}

const subjectColumns = `id, name, code, school_id, is_active, created_by, updated_by, created_at, updated_at, deleted_at`

// List returns subjects, optionally scoped to a school and filtered by keyword.
func (r *SubjectRepository) List(ctx context.Context, schoolID, keyword string) ([]models.Subject, error) {
	where := []string{"deleted_at IS NULL"}
	var args []interface{}

	if schoolID != "" {
		where = append(where, fmt.Sprintf("school_id = $%d", len(args)+1))
		args = append(args, schoolID)
	}
	if keyword != "" {
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR code ILIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, "%"+keyword+"%")
	}

	query := fmt.Sprintf(`SELECT %s FROM subjects WHERE %s ORDER BY name ASC`, subjectColumns, strings.Join(where, " AND "))
	var subjects []models.Subject
	if err := r.db.SelectContext(ctx, &subjects, query, args...); err != nil {
		return nil, fmt.Errorf("list subjects: %w", err)
	}
	return subjects, nil
}

// FindByID returns a subject by its ID.
func (r *SubjectRepository) FindByID(ctx context.Context, id string) (*models.Subject, error) {
	query := fmt.Sprintf(`SELECT %s FROM subjects WHERE id = $1 AND deleted_at IS NULL`, subjectColumns)
	var subject models.Subject
	if err := r.db.GetContext(ctx, &subject, query, id); err != nil {
		return nil, err
	}
	return &subject, nil
}

// Create persists a new subject.
func (r *SubjectRepository) Create(ctx context.Context, subject *models.Subject) error {
	if subject.ID == "" {
		subject.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	subject.CreatedAt = now
	subject.UpdatedAt = now
	const query = `INSERT INTO subjects (id, name, code, school_id, is_active, created_by, updated_by, created_at, updated_at)
        VALUES (:id, :name, :code, :school_id, :is_active, :created_by, :updated_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, subject); err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "subject code already exists")
		}
		return fmt.Errorf("create subject: %w", err)
	}
	return nil
}

// Update persists changes to an existing subject.
func (r *SubjectRepository) Update(ctx context.Context, subject *models.Subject) error {
	subject.UpdatedAt = time.Now().UTC()
	const query = `UPDATE subjects SET name = :name, code = :code, is_active = :is_active,
        updated_by = :updated_by, updated_at = :updated_at
        WHERE id = :id AND deleted_at IS NULL`
	result, err := r.db.NamedExecContext(ctx, query, subject)
	if err != nil {
		if appErrors.IsUniqueViolation(err) {
			return appErrors.Duplicate(err, "subject code already exists")
		}
		return fmt.Errorf("update subject: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
