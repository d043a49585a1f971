package service

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
	"github.com/sekolahku/sis-core-api/pkg/export"
	"github.com/sekolahku/sis-core-api/pkg/jobs"
	"github.com/sekolahku/sis-core-api/pkg/storage"
)

type reportJobRepo interface {
	Create(ctx context.Context, job *models.ReportJob) error
	FindByID(ctx context.Context, id string) (*models.ReportJob, error)
	SetStatus(ctx context.Context, id string, status models.ReportJobStatus) error
	MarkCompleted(ctx context.Context, id, filePath, token string, expiresAt time.Time) error
	MarkFailed(ctx context.Context, id, reason string) error
	ListByRequester(ctx context.Context, requestedBy string, limit int) ([]models.ReportJob, error)
}

type reportGradeReader interface {
	ListScoresByClass(ctx context.Context, classID, academicYearID string, semester int) ([]models.GradeDetail, error)
	ListScoresByStudent(ctx context.Context, studentID, academicYearID string, semester int) ([]models.GradeDetail, error)
}

type reportAttendanceReader interface {
	Summary(ctx context.Context, enrollmentID string, from, to *time.Time) (*models.AttendanceSummary, error)
}

type reportRosterReader interface {
	ListActiveByClassYear(ctx context.Context, classID, academicYearID string) ([]models.Enrollment, error)
}

type reportStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title, subtitle string) ([]byte, error)
}

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

// RequestReportRequest asks for an async export.
type RequestReportRequest struct {
	Type           models.ReportType   `json:"type" validate:"required"`
	Format         models.ReportFormat `json:"format" validate:"required"`
	ClassID        *string             `json:"class_id"`
	StudentID      *string             `json:"student_id"`
	AcademicYearID string              `json:"academic_year_id" validate:"required"`
	Semester       int                 `json:"semester" validate:"omitempty,oneof=1 2"`
}

// ReportConfig tunes export behaviour.
type ReportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ReportService renders grade and attendance exports. Requests are queued and
// processed by background workers; finished files are fetched through signed
// download tokens.
type ReportService struct {
	reports    reportJobRepo
	grades     reportGradeReader
	attendance reportAttendanceReader
	roster     reportRosterReader
	storage    reportStorage
	signer     *storage.SignedURLSigner
	queue      jobEnqueuer
	metrics    *MetricsService
	csv        csvRenderer
	pdf        pdfRenderer
	validator  *validator.Validate
	logger     *zap.Logger
	cfg        ReportConfig
}

// NewReportService constructs ReportService. The queue is attached later via
// SetQueue since the queue's handler needs the service.
func NewReportService(reports reportJobRepo, grades reportGradeReader, attendance reportAttendanceReader, roster reportRosterReader, store reportStorage, signer *storage.SignedURLSigner, cfg ReportConfig, validate *validator.Validate, logger *zap.Logger) *ReportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ReportService{
		reports:    reports,
		grades:     grades,
		attendance: attendance,
		roster:     roster,
		storage:    store,
		signer:     signer,
		csv:        export.NewCSVExporter(),
		pdf:        export.NewPDFExporter(),
		validator:  validate,
		logger:     logger,
		cfg:        cfg,
	}
}

// SetQueue attaches the worker queue used for async processing.
func (s *ReportService) SetQueue(queue jobEnqueuer) {
	s.queue = queue
}

// SetMetrics attaches the render outcome counters.
func (s *ReportService) SetMetrics(metrics *MetricsService) {
	s.metrics = metrics
}

// Request validates and enqueues an export job.
func (s *ReportService) Request(ctx context.Context, req RequestReportRequest, requestedBy *string) (*models.ReportJob, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid report request")
	}
	if !req.Type.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report type")
	}
	if !req.Format.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown report format")
	}
	switch req.Type {
	case models.ReportTypeClassGrades, models.ReportTypeAttendance:
		if req.ClassID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "class is required for this report type")
		}
	case models.ReportTypeReportCard:
		if req.StudentID == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, "student is required for a report card")
		}
	}

	job := &models.ReportJob{
		Type:   req.Type,
		Status: models.ReportJobPending,
		Params: models.ReportJobParams{
			ClassID:        req.ClassID,
			StudentID:      req.StudentID,
			AcademicYearID: req.AcademicYearID,
			Semester:       req.Semester,
			Format:         req.Format,
		},
		RequestedBy: requestedBy,
	}
	if err := s.reports.Create(ctx, job); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create report job")
	}

	if s.queue != nil {
		if err := s.queue.Enqueue(jobs.Job{ID: job.ID, Type: string(job.Type)}); err != nil {
			s.logger.Error("failed to enqueue report job", zap.String("job_id", job.ID), zap.Error(err))
			if markErr := s.reports.MarkFailed(ctx, job.ID, "queue unavailable"); markErr != nil {
				s.logger.Warn("failed to mark report job failed", zap.Error(markErr))
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to queue report job")
		}
	}
	return job, nil
}

// Process renders one queued job. Wired as the queue handler.
func (s *ReportService) Process(ctx context.Context, queued jobs.Job) error {
	job, err := s.reports.FindByID(ctx, queued.ID)
	if err != nil {
		return fmt.Errorf("load report job %s: %w", queued.ID, err)
	}
	if job.Status == models.ReportJobCompleted {
		return nil
	}
	if err := s.reports.SetStatus(ctx, job.ID, models.ReportJobProcessing); err != nil {
		return fmt.Errorf("mark report job processing: %w", err)
	}

	dataset, title, subtitle, err := s.buildDataset(ctx, job)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}

	var payload []byte
	switch job.Params.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title, subtitle)
	default:
		err = fmt.Errorf("unsupported format %s", job.Params.Format)
	}
	if err != nil {
		s.metrics.RecordReportRendered(string(job.Type), string(job.Params.Format), false)
		s.fail(ctx, job.ID, err)
		return err
	}
	s.metrics.RecordReportRendered(string(job.Type), string(job.Params.Format), true)

	filename := fmt.Sprintf("reports/%s_%s.%s", job.Type, time.Now().UTC().Format("20060102_150405"), job.Params.Format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		s.fail(ctx, job.ID, err)
		return err
	}
	if err := s.reports.MarkCompleted(ctx, job.ID, relPath, token, expiresAt); err != nil {
		return fmt.Errorf("complete report job: %w", err)
	}
	s.logger.Info("report rendered",
		zap.String("job_id", job.ID),
		zap.String("type", string(job.Type)),
		zap.String("file", relPath))
	return nil
}

// Status returns a job with its download URL when completed.
func (s *ReportService) Status(ctx context.Context, id string) (*models.ReportJob, error) {
	job, err := s.reports.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "report job not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load report job")
	}
	s.decorate(job)
	return job, nil
}

// ListMine returns the requester's recent jobs.
func (s *ReportService) ListMine(ctx context.Context, requestedBy string, limit int) ([]models.ReportJob, error) {
	jobsList, err := s.reports.ListByRequester(ctx, requestedBy, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list report jobs")
	}
	for i := range jobsList {
		s.decorate(&jobsList[i])
	}
	return jobsList, nil
}

// Download validates a token and opens the rendered file.
func (s *ReportService) Download(token string) (*os.File, string, error) {
	_, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrForbidden.Code, appErrors.ErrForbidden.Status, "invalid download token")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "report file not found")
	}
	return file, relPath, nil
}

// Cleanup removes expired rendered files.
func (s *ReportService) Cleanup() ([]string, error) {
	return s.storage.CleanupOlderThan(s.cfg.ResultTTL)
}

func (s *ReportService) decorate(job *models.ReportJob) {
	if job.Status != models.ReportJobCompleted || job.DownloadToken == nil {
		return
	}
	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	url := fmt.Sprintf("%s/reports/download/%s", prefix, *job.DownloadToken)
	job.DownloadURL = &url
}

func (s *ReportService) fail(ctx context.Context, jobID string, cause error) {
	if err := s.reports.MarkFailed(ctx, jobID, cause.Error()); err != nil {
		s.logger.Warn("failed to mark report job failed", zap.String("job_id", jobID), zap.Error(err))
	}
}

func (s *ReportService) buildDataset(ctx context.Context, job *models.ReportJob) (export.Dataset, string, string, error) {
	switch job.Type {
	case models.ReportTypeClassGrades:
		return s.buildClassGradesDataset(ctx, job.Params)
	case models.ReportTypeReportCard:
		return s.buildReportCardDataset(ctx, job.Params)
	case models.ReportTypeAttendance:
		return s.buildAttendanceDataset(ctx, job.Params)
	default:
		return export.Dataset{}, "", "", fmt.Errorf("unsupported report type %s", job.Type)
	}
}

func (s *ReportService) buildClassGradesDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, string, error) {
	grades, err := s.grades.ListScoresByClass(ctx, derefString(params.ClassID), params.AcademicYearID, params.Semester)
	if err != nil {
		return export.Dataset{}, "", "", err
	}

	rows := make([]map[string]string, 0, len(grades))
	for _, grade := range grades {
		score := ""
		letter := ""
		if grade.Score != nil {
			score = fmt.Sprintf("%.2f", *grade.Score)
			letter = LetterGrade(*grade.Score)
		}
		rows = append(rows, map[string]string{
			"Student":    grade.StudentName,
			"Subject":    grade.SubjectName,
			"Assessment": string(grade.AssessmentType),
			"Score":      score,
			"Grade":      letter,
			"Date":       grade.AssessmentDate.Format("2006-01-02"),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student", "Subject", "Assessment", "Score", "Grade", "Date"},
		Rows:    rows,
	}
	subtitle := fmt.Sprintf("Semester %d", params.Semester)
	return dataset, "Class Grade Report", subtitle, nil
}

func (s *ReportService) buildReportCardDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, string, error) {
	grades, err := s.grades.ListScoresByStudent(ctx, derefString(params.StudentID), params.AcademicYearID, params.Semester)
	if err != nil {
		return export.Dataset{}, "", "", err
	}

	stats := summarizeBySubject(grades)
	rows := make([]map[string]string, 0, len(stats))
	for _, subject := range stats {
		average := ""
		letter := ""
		if subject.Average != nil {
			average = fmt.Sprintf("%.2f", *subject.Average)
			letter = LetterGrade(*subject.Average)
		}
		rows = append(rows, map[string]string{
			"Subject":     subject.SubjectName,
			"Code":        subject.SubjectCode,
			"Assessments": fmt.Sprintf("%d", subject.Count),
			"Average":     average,
			"Grade":       letter,
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Subject", "Code", "Assessments", "Average", "Grade"},
		Rows:    rows,
	}
	subtitle := fmt.Sprintf("Semester %d", params.Semester)
	return dataset, "Student Report Card", subtitle, nil
}

func (s *ReportService) buildAttendanceDataset(ctx context.Context, params models.ReportJobParams) (export.Dataset, string, string, error) {
	enrollments, err := s.roster.ListActiveByClassYear(ctx, derefString(params.ClassID), params.AcademicYearID)
	if err != nil {
		return export.Dataset{}, "", "", err
	}

	rows := make([]map[string]string, 0, len(enrollments))
	for _, enrollment := range enrollments {
		summary, err := s.attendance.Summary(ctx, enrollment.ID, nil, nil)
		if err != nil {
			return export.Dataset{}, "", "", err
		}
		rows = append(rows, map[string]string{
			"Student ID":     enrollment.StudentID,
			"Present":        fmt.Sprintf("%d", summary.Present),
			"Absent":         fmt.Sprintf("%d", summary.Absent),
			"Late":           fmt.Sprintf("%d", summary.Late),
			"Excused":        fmt.Sprintf("%d", summary.Excused),
			"Sick":           fmt.Sprintf("%d", summary.Sick),
			"Attendance (%)": fmt.Sprintf("%.2f", summary.Rate()),
		})
	}
	dataset := export.Dataset{
		Headers: []string{"Student ID", "Present", "Absent", "Late", "Excused", "Sick", "Attendance (%)"},
		Rows:    rows,
	}
	return dataset, "Class Attendance Report", "", nil
}

func derefString(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
