package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

type fakeGradeRepo struct {
	grades  []models.GradeDetail
	created []*models.Grade
	bulkErr error
}

func (m *fakeGradeRepo) List(ctx context.Context, filter models.GradeFilter) ([]models.GradeDetail, int, error) {
	return m.grades, len(m.grades), nil
}

func (m *fakeGradeRepo) FindByID(ctx context.Context, id string) (*models.Grade, error) {
	return nil, sql.ErrNoRows
}

func (m *fakeGradeRepo) Create(ctx context.Context, grade *models.Grade) error {
	m.created = append(m.created, grade)
	return nil
}

func (m *fakeGradeRepo) BulkCreate(ctx context.Context, grades []*models.Grade) error {
	if m.bulkErr != nil {
		return m.bulkErr
	}
	m.created = append(m.created, grades...)
	return nil
}

func (m *fakeGradeRepo) Update(ctx context.Context, grade *models.Grade) error { return nil }

func (m *fakeGradeRepo) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	return nil
}

func (m *fakeGradeRepo) ListScoresByClass(ctx context.Context, classID, academicYearID string, semester int) ([]models.GradeDetail, error) {
	return m.grades, nil
}

func (m *fakeGradeRepo) ListScoresByStudent(ctx context.Context, studentID, academicYearID string, semester int) ([]models.GradeDetail, error) {
	return m.grades, nil
}

type fakeEnrollmentReader struct {
	enrollments map[string]models.Enrollment
}

func (m *fakeEnrollmentReader) FindByID(ctx context.Context, id string) (*models.Enrollment, error) {
	if e, ok := m.enrollments[id]; ok {
		return &e, nil
	}
	return nil, sql.ErrNoRows
}

type fakeStatsCache struct {
	store    map[string][]byte
	deleted  []string
	setCalls int
}

func (m *fakeStatsCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := m.store[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (m *fakeStatsCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	if m.store == nil {
		m.store = make(map[string][]byte)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.store[key] = raw
	m.setCalls++
	return nil
}

func (m *fakeStatsCache) DeleteByPattern(ctx context.Context, pattern string) error {
	m.deleted = append(m.deleted, pattern)
	return nil
}

func scoredDetail(subjectID string, score float64) models.GradeDetail {
	s := score
	detail := models.GradeDetail{
		SubjectName: "Subject " + subjectID,
		SubjectCode: "SUB-" + subjectID,
		StudentID:   "std-1",
		StudentName: "Student One",
	}
	detail.SubjectID = subjectID
	detail.Score = &s
	detail.AssessmentType = models.AssessmentQuiz
	return detail
}

func TestLetterGradeBoundaries(t *testing.T) {
	cases := []struct {
		score  float64
		letter string
	}{
		{100, "A"},
		{90, "A"},
		{89.99, "B"},
		{80, "B"},
		{70, "C"},
		{60, "D"},
		{59.99, "E"},
		{0, "E"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.letter, LetterGrade(tc.score), "score %.2f", tc.score)
	}
}

func TestDistributeScoresFixedBuckets(t *testing.T) {
	grades := []models.GradeDetail{
		scoredDetail("sub-1", 95),
		scoredDetail("sub-1", 85),
		scoredDetail("sub-1", 72),
		scoredDetail("sub-1", 58),
	}

	buckets := DistributeScores(grades)
	require.Len(t, buckets, 5)
	assert.Equal(t, "A (90-100)", buckets[0].Label)
	assert.Equal(t, 1, buckets[0].Count)
	assert.Equal(t, 1, buckets[1].Count)
	assert.Equal(t, 1, buckets[2].Count)
	assert.Equal(t, 0, buckets[3].Count)
	assert.Equal(t, 1, buckets[4].Count)
}

func TestDistributeScoresSkipsUnscored(t *testing.T) {
	unscored := models.GradeDetail{}
	unscored.SubjectID = "sub-1"

	buckets := DistributeScores([]models.GradeDetail{unscored})
	for _, bucket := range buckets {
		assert.Equal(t, 0, bucket.Count)
	}
}

func newGradeFixture() (*GradeService, *fakeGradeRepo, *fakeStatsCache) {
	repo := &fakeGradeRepo{}
	cache := &fakeStatsCache{store: map[string][]byte{}}
	enrollments := &fakeEnrollmentReader{enrollments: map[string]models.Enrollment{
		"enr-1": {ID: "enr-1", StudentID: "std-1", ClassID: "cls-1", AcademicYearID: "ay-1"},
	}}
	return NewGradeService(repo, enrollments, cache, nil, nil), repo, cache
}

func TestRecordGradePersistsAndInvalidates(t *testing.T) {
	svc, repo, cache := newGradeFixture()

	grade, err := svc.Record(context.Background(), RecordGradeRequest{
		EnrollmentID:   "enr-1",
		SubjectID:      "sub-1",
		TeacherID:      "tch-1",
		AssessmentType: models.AssessmentQuiz,
		Score:          88,
		Semester:       1,
		AssessmentDate: "2026-03-02",
		AcademicYearID: "ay-1",
	}, nil)
	require.NoError(t, err)
	require.NotNil(t, grade.Score)
	assert.Equal(t, 88.0, *grade.Score)
	assert.Equal(t, 1.0, grade.Weight)
	require.Len(t, repo.created, 1)
	assert.Contains(t, cache.deleted, "stats:grades:class:cls-1:*")
	assert.Contains(t, cache.deleted, "stats:grades:student:std-1:*")
}

func TestRecordGradeUnknownEnrollment(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.Record(context.Background(), RecordGradeRequest{
		EnrollmentID:   "missing",
		SubjectID:      "sub-1",
		TeacherID:      "tch-1",
		AssessmentType: models.AssessmentQuiz,
		Score:          50,
		Semester:       1,
		AssessmentDate: "2026-03-02",
		AcademicYearID: "ay-1",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestBulkRecordPropagatesDuplicate(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	repo.bulkErr = appErrors.Clone(appErrors.ErrDuplicate, "grade already recorded for this assessment")

	_, err := svc.BulkRecord(context.Background(), BulkRecordGradesRequest{
		SubjectID:      "sub-1",
		TeacherID:      "tch-1",
		AssessmentType: models.AssessmentMidterm,
		Semester:       1,
		AssessmentDate: "2026-03-02",
		AcademicYearID: "ay-1",
		Items: []BulkGradeItem{
			{EnrollmentID: "enr-1", Score: 70},
			{EnrollmentID: "enr-2", Score: 75},
		},
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicate))
}

func TestBulkRecordInvalidatesWildcard(t *testing.T) {
	svc, _, cache := newGradeFixture()

	count, err := svc.BulkRecord(context.Background(), BulkRecordGradesRequest{
		SubjectID:      "sub-1",
		TeacherID:      "tch-1",
		AssessmentType: models.AssessmentMidterm,
		Semester:       1,
		AssessmentDate: "2026-03-02",
		AcademicYearID: "ay-1",
		Items: []BulkGradeItem{
			{EnrollmentID: "enr-1", Score: 70},
			{EnrollmentID: "enr-2", Score: 75},
		},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.Contains(t, cache.deleted, "stats:grades:*")
}

func TestClassStatisticsComputesAndCaches(t *testing.T) {
	svc, repo, cache := newGradeFixture()
	repo.grades = []models.GradeDetail{
		scoredDetail("sub-1", 95),
		scoredDetail("sub-1", 85),
		scoredDetail("sub-2", 60),
	}

	stats, err := svc.ClassStatistics(context.Background(), "cls-1", "ay-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Overall.Count)
	require.NotNil(t, stats.Overall.Average)
	assert.Equal(t, 80.0, *stats.Overall.Average)
	require.NotNil(t, stats.Overall.Max)
	assert.Equal(t, 95.0, *stats.Overall.Max)
	require.Len(t, stats.BySubject, 2)
	assert.Equal(t, 1, cache.setCalls)

	// Second call is served from cache, the repo result changes go unseen.
	repo.grades = nil
	cached, err := svc.ClassStatistics(context.Background(), "cls-1", "ay-1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, cached.Overall.Count)
	assert.Equal(t, 1, cache.setCalls)
}

func TestStudentStatisticsGroupsByType(t *testing.T) {
	svc, repo, _ := newGradeFixture()
	quiz := scoredDetail("sub-1", 90)
	midterm := scoredDetail("sub-1", 70)
	midterm.AssessmentType = models.AssessmentMidterm
	repo.grades = []models.GradeDetail{quiz, midterm}

	stats, err := svc.StudentStatistics(context.Background(), "std-1", "ay-1", 1)
	require.NoError(t, err)
	require.Len(t, stats.ByAssessmentType, 2)
	assert.Equal(t, 1, stats.ByAssessmentType[models.AssessmentQuiz].Count)
	assert.Equal(t, 1, stats.ByAssessmentType[models.AssessmentMidterm].Count)
}

func TestStatisticsRequireScope(t *testing.T) {
	svc, _, _ := newGradeFixture()

	_, err := svc.ClassStatistics(context.Background(), "", "ay-1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = svc.StudentStatistics(context.Background(), "", "ay-1", 1)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
