package service

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
	"github.com/sekolahku/sis-core-api/pkg/jobs"
	"github.com/sekolahku/sis-core-api/pkg/storage"
)

type fakeReportJobRepo struct {
	reports map[string]models.ReportJob
}

func (m *fakeReportJobRepo) Create(ctx context.Context, job *models.ReportJob) error {
	if m.reports == nil {
		m.reports = make(map[string]models.ReportJob)
	}
	if job.ID == "" {
		job.ID = "job-1"
	}
	if job.Status == "" {
		job.Status = models.ReportJobPending
	}
	m.reports[job.ID] = *job
	return nil
}

func (m *fakeReportJobRepo) FindByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if j, ok := m.reports[id]; ok {
		return &j, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeReportJobRepo) SetStatus(ctx context.Context, id string, status models.ReportJobStatus) error {
	j, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	j.Status = status
	m.reports[id] = j
	return nil
}

func (m *fakeReportJobRepo) MarkCompleted(ctx context.Context, id, filePath, token string, expiresAt time.Time) error {
	j, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	j.Status = models.ReportJobCompleted
	j.FilePath = &filePath
	j.DownloadToken = &token
	j.ExpiresAt = &expiresAt
	m.reports[id] = j
	return nil
}

func (m *fakeReportJobRepo) MarkFailed(ctx context.Context, id, reason string) error {
	j, ok := m.reports[id]
	if !ok {
		return sql.ErrNoRows
	}
	j.Status = models.ReportJobFailed
	j.ErrorMessage = &reason
	m.reports[id] = j
	return nil
}

func (m *fakeReportJobRepo) ListByRequester(ctx context.Context, requestedBy string, limit int) ([]models.ReportJob, error) {
	var list []models.ReportJob
	for _, j := range m.reports {
		if j.RequestedBy != nil && *j.RequestedBy == requestedBy {
			list = append(list, j)
		}
	}
	return list, nil
}

type fakeGradeReportReader struct {
	grades []models.GradeDetail
}

func (m *fakeGradeReportReader) ListScoresByClass(ctx context.Context, classID, academicYearID string, semester int) ([]models.GradeDetail, error) {
	return m.grades, nil
}

func (m *fakeGradeReportReader) ListScoresByStudent(ctx context.Context, studentID, academicYearID string, semester int) ([]models.GradeDetail, error) {
	return m.grades, nil
}

type fakeAttendanceReportReader struct{}

func (m *fakeAttendanceReportReader) Summary(ctx context.Context, enrollmentID string, from, to *time.Time) (*models.AttendanceSummary, error) {
	return &models.AttendanceSummary{Total: 10, Present: 9, Absent: 1}, nil
}

type fakeReportRoster struct {
	enrollments []models.Enrollment
}

func (m *fakeReportRoster) ListActiveByClassYear(ctx context.Context, classID, academicYearID string) ([]models.Enrollment, error) {
	return m.enrollments, nil
}

type recordingQueue struct {
	enqueued []jobs.Job
	fail     bool
}

func (q *recordingQueue) Enqueue(job jobs.Job) error {
	if q.fail {
		return errors.New("queue full")
	}
	q.enqueued = append(q.enqueued, job)
	return nil
}

func newReportFixture(t *testing.T) (*ReportService, *fakeReportJobRepo, *recordingQueue) {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	signer := storage.NewSignedURLSigner("report-secret", time.Hour)

	repo := &fakeReportJobRepo{reports: map[string]models.ReportJob{}}
	grades := &fakeGradeReportReader{grades: []models.GradeDetail{func() models.GradeDetail {
		d := models.GradeDetail{SubjectName: "Math", SubjectCode: "MTH", StudentName: "Student One"}
		d.SubjectID = "sub-1"
		score := 88.0
		d.Score = &score
		d.AssessmentType = models.AssessmentQuiz
		d.AssessmentDate = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
		return d
	}()}}
	roster := &fakeReportRoster{enrollments: []models.Enrollment{{ID: "enr-1", StudentID: "std-1"}}}

	svc := NewReportService(repo, grades, &fakeAttendanceReportReader{}, roster, store, signer, ReportConfig{}, nil, nil)
	queue := &recordingQueue{}
	svc.SetQueue(queue)
	return svc, repo, queue
}

func classGradesRequest(format models.ReportFormat) RequestReportRequest {
	classID := "cls-1"
	return RequestReportRequest{
		Type:           models.ReportTypeClassGrades,
		Format:         format,
		ClassID:        &classID,
		AcademicYearID: "ay-1",
		Semester:       1,
	}
}

func TestRequestReportEnqueues(t *testing.T) {
	svc, repo, queue := newReportFixture(t)

	job, err := svc.Request(context.Background(), classGradesRequest(models.ReportFormatCSV), nil)
	require.NoError(t, err)
	assert.Equal(t, models.ReportJobPending, job.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, job.ID, queue.enqueued[0].ID)
	assert.Contains(t, repo.reports, job.ID)
}

func TestRequestReportMissingScope(t *testing.T) {
	svc, _, _ := newReportFixture(t)

	req := classGradesRequest(models.ReportFormatCSV)
	req.ClassID = nil
	_, err := svc.Request(context.Background(), req, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	req = RequestReportRequest{
		Type:           models.ReportTypeReportCard,
		Format:         models.ReportFormatPDF,
		AcademicYearID: "ay-1",
	}
	_, err = svc.Request(context.Background(), req, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRequestReportQueueFailureMarksFailed(t *testing.T) {
	svc, repo, queue := newReportFixture(t)
	queue.fail = true

	_, err := svc.Request(context.Background(), classGradesRequest(models.ReportFormatCSV), nil)
	require.Error(t, err)

	for _, j := range repo.reports {
		assert.Equal(t, models.ReportJobFailed, j.Status)
	}
}

func TestProcessRendersCSVAndSignsDownload(t *testing.T) {
	svc, repo, queue := newReportFixture(t)

	job, err := svc.Request(context.Background(), classGradesRequest(models.ReportFormatCSV), nil)
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), queue.enqueued[0]))

	done := repo.reports[job.ID]
	assert.Equal(t, models.ReportJobCompleted, done.Status)
	require.NotNil(t, done.DownloadToken)
	require.NotNil(t, done.FilePath)

	file, _, err := svc.Download(*done.DownloadToken)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	content, err := io.ReadAll(file)
	require.NoError(t, err)
	text := string(content)
	assert.True(t, strings.Contains(text, "Student One"))
	assert.True(t, strings.Contains(text, "88.00"))
	assert.True(t, strings.Contains(text, "B"))
}

func TestProcessRendersPDFReportCard(t *testing.T) {
	svc, repo, queue := newReportFixture(t)
	studentID := "std-1"

	job, err := svc.Request(context.Background(), RequestReportRequest{
		Type:           models.ReportTypeReportCard,
		Format:         models.ReportFormatPDF,
		StudentID:      &studentID,
		AcademicYearID: "ay-1",
		Semester:       1,
	}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), queue.enqueued[0]))
	assert.Equal(t, models.ReportJobCompleted, repo.reports[job.ID].Status)
}

func TestProcessAttendanceReport(t *testing.T) {
	svc, repo, queue := newReportFixture(t)
	classID := "cls-1"

	job, err := svc.Request(context.Background(), RequestReportRequest{
		Type:           models.ReportTypeAttendance,
		Format:         models.ReportFormatCSV,
		ClassID:        &classID,
		AcademicYearID: "ay-1",
	}, nil)
	require.NoError(t, err)

	require.NoError(t, svc.Process(context.Background(), queue.enqueued[0]))
	assert.Equal(t, models.ReportJobCompleted, repo.reports[job.ID].Status)
}

func TestDownloadRejectsForgedToken(t *testing.T) {
	svc, _, _ := newReportFixture(t)

	_, _, err := svc.Download("job-1.12345.cGF0aA.deadbeef")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestStatusDecoratesDownloadURL(t *testing.T) {
	svc, _, queue := newReportFixture(t)

	job, err := svc.Request(context.Background(), classGradesRequest(models.ReportFormatCSV), nil)
	require.NoError(t, err)
	require.NoError(t, svc.Process(context.Background(), queue.enqueued[0]))

	status, err := svc.Status(context.Background(), job.ID)
	require.NoError(t, err)
	require.NotNil(t, status.DownloadURL)
	assert.True(t, strings.HasPrefix(*status.DownloadURL, "/api/v1/reports/download/"))
}
