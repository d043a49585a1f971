package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/sekolahku/sis-core-api/internal/models"
)

// ReportRepository persists report export jobs.
type ReportRepository struct {
	db *sqlx.DB
}

// NewReportRepository constructs the repository.
func NewReportRepository(db *sqlx.DB) *ReportRepository {
	return &ReportRepository{db: db}
}

const reportColumns = `id, report_type, status, params, file_path, download_token, error_message,
        requested_by, expires_at, created_at, updated_at, completed_at`

// Create persists a new pending job with its serialised params.
func (r *ReportRepository) Create(ctx context.Context, job *models.ReportJob) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = models.ReportJobPending
	}
	params, err := json.Marshal(job.Params)
	if err != nil {
		return fmt.Errorf("marshal report params: %w", err)
	}
	job.ParamsJSON = params
	now := time.Now().UTC()
	job.CreatedAt = now
	job.UpdatedAt = now
	const query = `INSERT INTO report_jobs (id, report_type, status, params, requested_by, created_at, updated_at)
        VALUES (:id, :report_type, :status, :params, :requested_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, job); err != nil {
		return fmt.Errorf("create report job: %w", err)
	}
	return nil
}

// FindByID returns a job with its params deserialised.
func (r *ReportRepository) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE id = $1`, reportColumns)
	var job models.ReportJob
	if err := r.db.GetContext(ctx, &job, query, id); err != nil {
		return nil, err
	}
	if len(job.ParamsJSON) > 0 {
		if err := json.Unmarshal(job.ParamsJSON, &job.Params); err != nil {
			return nil, fmt.Errorf("unmarshal report params: %w", err)
		}
	}
	return &job, nil
}

// SetStatus moves a job to the given lifecycle state.
func (r *ReportRepository) SetStatus(ctx context.Context, id string, status models.ReportJobStatus) error {
	const query = `UPDATE report_jobs SET status = $2, updated_at = $3 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update report job status: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkCompleted stores the rendered file location and download token.
func (r *ReportRepository) MarkCompleted(ctx context.Context, id, filePath, token string, expiresAt time.Time) error {
	now := time.Now().UTC()
	const query = `UPDATE report_jobs SET status = $2, file_path = $3, download_token = $4, expires_at = $5,
        completed_at = $6, updated_at = $6 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, models.ReportJobCompleted, filePath, token, expiresAt, now)
	if err != nil {
		return fmt.Errorf("complete report job: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MarkFailed records the failure reason.
func (r *ReportRepository) MarkFailed(ctx context.Context, id, reason string) error {
	const query = `UPDATE report_jobs SET status = $2, error_message = $3, updated_at = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, models.ReportJobFailed, reason, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("fail report job: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ListByRequester returns a user's recent jobs, newest first.
func (r *ReportRepository) ListByRequester(ctx context.Context, requestedBy string, limit int) ([]models.ReportJob, error) {
	if limit <= 0 {
		limit = 20
	}
	query := fmt.Sprintf(`SELECT %s FROM report_jobs WHERE requested_by = $1 ORDER BY created_at DESC LIMIT %d`, reportColumns, limit)
	var jobs []models.ReportJob
	if err := r.db.SelectContext(ctx, &jobs, query, requestedBy); err != nil {
		return nil, fmt.Errorf("list report jobs: %w", err)
	}
	for i := range jobs {
		if len(jobs[i].ParamsJSON) > 0 {
			if err := json.Unmarshal(jobs[i].ParamsJSON, &jobs[i].Params); err != nil {
				return nil, fmt.Errorf("unmarshal report params: %w", err)
			}
		}
	}
	return jobs, nil
}
