package service

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

type stubEnrollmentRepo struct {
	enrollments map[string]models.Enrollment
	exists      bool
	created     *models.Enrollment
	promoted    int
	promoteArgs []string
	ranked      int
	summary     *models.EnrollmentSummary
}

func (m *stubEnrollmentRepo) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

func (m *stubEnrollmentRepo) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

func (m *stubEnrollmentRepo) Aggregate(ctx context.Context, enrollmentID string) (*models.EnrollmentSummary, error) {
	if m.summary != nil {
		s := *m.summary
		s.EnrollmentID = enrollmentID
		return &s, nil
	}
	return &models.EnrollmentSummary{EnrollmentID: enrollmentID}, nil
}

func (m *stubEnrollmentRepo) Exists(ctx context.Context, studentID, classID, academicYearID, excludeID string) (bool, error) {
	return m.exists, nil
}

func (m *stubEnrollmentRepo) Create(ctx context.Context, enrollment *models.Enrollment) error {
	if m.enrollments == nil {
		m.enrollments = make(map[string]models.Enrollment)
	}
	if enrollment.ID == "" {
		enrollment.ID = "new-enrollment"
	}
	m.enrollments[enrollment.ID] = *enrollment
	m.created = enrollment
	return nil
}

func (m *stubEnrollmentRepo) UpdateStatus(ctx context.Context, id string, status models.EnrollmentStatus, graduationDate *time.Time, updatedBy *string) error {
	e, ok := m.enrollments[id]
	if !ok {
		return sql.ErrNoRows
	}
	e.Status = status
	e.GraduationDate = graduationDate
	m.enrollments[id] = e
	return nil
}

func (m *stubEnrollmentRepo) ListActiveByClassYear(ctx context.Context, classID, academicYearID string) ([]models.Enrollment, error) {
	var list []models.Enrollment
	for _, e := range m.enrollments {
		if e.ClassID == classID && e.AcademicYearID == academicYearID && e.Status == models.EnrollmentStatusActive {
			list = append(list, e)
		}
	}
	return list, nil
}

func (m *stubEnrollmentRepo) UpdateClassRanks(ctx context.Context, classID, academicYearID string) (int, error) {
	return m.ranked, nil
}

func (m *stubEnrollmentRepo) Promote(ctx context.Context, fromYearID, toYearID, fromClassID, toClassID string, actorID *string) (int, error) {
	m.promoteArgs = []string{fromYearID, toYearID, fromClassID, toClassID}
	return m.promoted, nil
}

type stubClassReader struct {
	capacityFull bool
}

func (m *stubClassReader) FindByID(ctx context.Context, id string) (*models.ClassGroup, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.ClassGroup{ID: id}, nil
}

func (m *stubClassReader) FindDetailByID(ctx context.Context, id string) (*models.ClassGroupDetail, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	max := 30
	current := 10
	if m.capacityFull {
		current = 30
	}
	detail := &models.ClassGroupDetail{CurrentStudentCount: current}
	detail.ID = id
	detail.MaxStudents = &max
	return detail, nil
}

type stubYearReader struct{}

func (m *stubYearReader) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if id == "missing" {
		return nil, sql.ErrNoRows
	}
	return &models.AcademicYear{ID: id}, nil
}

func newEnrollmentFixture() (*EnrollmentService, *stubEnrollmentRepo, *stubClassReader) {
	repo := &stubEnrollmentRepo{enrollments: map[string]models.Enrollment{}}
	classes := &stubClassReader{}
	return NewEnrollmentService(repo, classes, &stubYearReader{}, nil, nil), repo, classes
}

func TestEnrollCreatesActiveEnrollment(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()

	enrollment, err := svc.Enroll(context.Background(), EnrollYearRequest{
		StudentID:      "std-1",
		ClassID:        "cls-1",
		AcademicYearID: "ay-1",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NotNil(t, repo.created)
}

func TestEnrollDuplicateRejected(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.exists = true

	_, err := svc.Enroll(context.Background(), EnrollYearRequest{
		StudentID:      "std-1",
		ClassID:        "cls-1",
		AcademicYearID: "ay-1",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicate))
}

func TestEnrollFullClassRejected(t *testing.T) {
	svc, _, classes := newEnrollmentFixture()
	classes.capacityFull = true

	_, err := svc.Enroll(context.Background(), EnrollYearRequest{
		StudentID:      "std-1",
		ClassID:        "cls-1",
		AcademicYearID: "ay-1",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestEnrollUnknownYear(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Enroll(context.Background(), EnrollYearRequest{
		StudentID:      "std-1",
		ClassID:        "cls-1",
		AcademicYearID: "missing",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestChangeStatusGraduatedDefaultsDate(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{
		ID:     "enr-1",
		Status: models.EnrollmentStatusActive,
	}

	enrollment, err := svc.ChangeStatus(context.Background(), "enr-1", ChangeEnrollmentStatusRequest{
		Status: models.EnrollmentStatusGraduated,
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusGraduated, enrollment.Status)
	require.NotNil(t, enrollment.GraduationDate)
}

func TestChangeStatusUnknownStatus(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusActive}

	_, err := svc.ChangeStatus(context.Background(), "enr-1", ChangeEnrollmentStatusRequest{
		Status: "expelled",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestPromoteLeavesSourceActive(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{
		ID: "enr-1", StudentID: "std-1", ClassID: "cls-7a",
		AcademicYearID: "ay-1", Status: models.EnrollmentStatusActive,
	}
	repo.enrollments["enr-2"] = models.Enrollment{
		ID: "enr-2", StudentID: "std-2", ClassID: "cls-7a",
		AcademicYearID: "ay-1", Status: models.EnrollmentStatusActive,
	}
	repo.promoted = 2

	promoted, err := svc.Promote(context.Background(), PromoteClassRequest{
		FromAcademicYearID: "ay-1",
		ToAcademicYearID:   "ay-2",
		FromClassID:        "cls-7a",
		ToClassID:          "cls-8a",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, promoted)
	assert.Equal(t, []string{"ay-1", "ay-2", "cls-7a", "cls-8a"}, repo.promoteArgs)

	// Promotion copies the roster; source enrollments stay active.
	for _, id := range []string{"enr-1", "enr-2"} {
		assert.Equal(t, models.EnrollmentStatusActive, repo.enrollments[id].Status)
	}
}

func TestPromoteIdenticalSourceAndDestination(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Promote(context.Background(), PromoteClassRequest{
		FromAcademicYearID: "ay-1",
		ToAcademicYearID:   "ay-1",
		FromClassID:        "cls-7a",
		ToClassID:          "cls-7a",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestPromoteUnknownDestinationYear(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Promote(context.Background(), PromoteClassRequest{
		FromAcademicYearID: "ay-1",
		ToAcademicYearID:   "missing",
		FromClassID:        "cls-7a",
		ToClassID:          "cls-8a",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestSummaryComputesAttendanceRate(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusActive}
	avg := 82.5
	repo.summary = &models.EnrollmentSummary{
		PresentCount:    18,
		AttendanceCount: 20,
		AverageGrade:    &avg,
		GradeCount:      6,
	}

	summary, err := svc.Summary(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Equal(t, "enr-1", summary.EnrollmentID)
	assert.InDelta(t, 90.0, summary.AttendanceRate, 0.001)
	require.NotNil(t, summary.AverageGrade)
	assert.InDelta(t, 82.5, *summary.AverageGrade, 0.001)
}

func TestSummaryNoRecordsIsZeroRate(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.enrollments["enr-1"] = models.Enrollment{ID: "enr-1", Status: models.EnrollmentStatusActive}

	summary, err := svc.Summary(context.Background(), "enr-1")
	require.NoError(t, err)
	assert.Zero(t, summary.AttendanceRate)
	assert.Nil(t, summary.AverageGrade)
}

func TestSummaryUnknownEnrollment(t *testing.T) {
	svc, _, _ := newEnrollmentFixture()

	_, err := svc.Summary(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestRecomputeRanksRequiresScope(t *testing.T) {
	svc, repo, _ := newEnrollmentFixture()
	repo.ranked = 5

	_, err := svc.RecomputeRanks(context.Background(), "", "ay-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	updated, err := svc.RecomputeRanks(context.Background(), "cls-1", "ay-1")
	require.NoError(t, err)
	assert.Equal(t, 5, updated)
}
