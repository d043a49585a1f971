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

type fakeAssignmentRepo struct {
	assignments map[string]models.Assignment
}

func (m *fakeAssignmentRepo) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	return nil, 0, nil
}

func (m *fakeAssignmentRepo) FindByID(ctx context.Context, id string) (*models.Assignment, error) {
	if a, ok := m.assignments[id]; ok {
		return &a, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeAssignmentRepo) Create(ctx context.Context, assignment *models.Assignment) error {
	if m.assignments == nil {
		m.assignments = make(map[string]models.Assignment)
	}
	if assignment.ID == "" {
		assignment.ID = "new-assignment"
	}
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *fakeAssignmentRepo) Update(ctx context.Context, assignment *models.Assignment) error {
	m.assignments[assignment.ID] = *assignment
	return nil
}

func (m *fakeAssignmentRepo) SetPublished(ctx context.Context, id string, published bool, updatedBy *string) error {
	a, ok := m.assignments[id]
	if !ok {
		return sql.ErrNoRows
	}
	a.IsPublished = published
	m.assignments[id] = a
	return nil
}

func (m *fakeAssignmentRepo) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	if _, ok := m.assignments[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.assignments, id)
	return nil
}

func (m *fakeAssignmentRepo) Progress(ctx context.Context, assignmentID string) (*models.AssignmentProgress, error) {
	return &models.AssignmentProgress{AssignmentID: assignmentID}, nil
}

type fakeSubmissionRepo struct {
	submissions map[string]models.Submission
	graded      *models.Submission
}

func (m *fakeSubmissionRepo) List(ctx context.Context, filter models.SubmissionFilter) ([]models.SubmissionDetail, int, error) {
	return nil, 0, nil
}

func (m *fakeSubmissionRepo) FindByID(ctx context.Context, id string) (*models.Submission, error) {
	if s, ok := m.submissions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeSubmissionRepo) FindByAssignmentAndStudent(ctx context.Context, assignmentID, studentID string) (*models.Submission, error) {
	for _, s := range m.submissions {
		if s.AssignmentID == assignmentID && s.StudentID == studentID {
			found := s
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *fakeSubmissionRepo) Create(ctx context.Context, submission *models.Submission) error {
	if m.submissions == nil {
		m.submissions = make(map[string]models.Submission)
	}
	if submission.ID == "" {
		submission.ID = "new-submission"
	}
	m.submissions[submission.ID] = *submission
	return nil
}

func (m *fakeSubmissionRepo) Update(ctx context.Context, submission *models.Submission) error {
	if _, ok := m.submissions[submission.ID]; !ok {
		return sql.ErrNoRows
	}
	m.submissions[submission.ID] = *submission
	return nil
}

func (m *fakeSubmissionRepo) SetGraded(ctx context.Context, submission *models.Submission) error {
	if _, ok := m.submissions[submission.ID]; !ok {
		return sql.ErrNoRows
	}
	m.submissions[submission.ID] = *submission
	m.graded = submission
	return nil
}

func (m *fakeSubmissionRepo) SetStatus(ctx context.Context, id string, status models.SubmissionStatus, updatedBy *string) error {
	s, ok := m.submissions[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.Status = status
	m.submissions[id] = s
	return nil
}

type fakeAttachmentStore struct {
	saved   []string
	deleted []string
}

func (m *fakeAttachmentStore) Save(filename string, data []byte) (string, error) {
	m.saved = append(m.saved, filename)
	return filename, nil
}

func (m *fakeAttachmentStore) Delete(filename string) error {
	m.deleted = append(m.deleted, filename)
	return nil
}

var submissionDueDate = time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)

func newSubmissionFixture(t *testing.T) (*SubmissionService, *fakeAssignmentRepo, *fakeSubmissionRepo) {
	t.Helper()
	assignments := &fakeAssignmentRepo{assignments: map[string]models.Assignment{
		"asg-1": {
			ID:                  "asg-1",
			SubjectID:           "sub-1",
			TeacherID:           "tch-1",
			ClassID:             "cls-1",
			Title:               "Essay on photosynthesis",
			AssignmentType:      models.AssignmentEssay,
			DueDate:             submissionDueDate,
			MaxScore:            100,
			IsPublished:         true,
			AllowLateSubmission: true,
			LatePenaltyPercent:  10,
			AcademicYearID:      "ay-1",
		},
	}}
	submissions := &fakeSubmissionRepo{submissions: map[string]models.Submission{}}
	svc := NewSubmissionService(assignments, submissions, nil, nil, nil)
	return svc, assignments, submissions
}

func TestSubmitOnTime(t *testing.T) {
	svc, _, _ := newSubmissionFixture(t)
	svc.now = func() time.Time { return submissionDueDate.Add(-time.Hour) }

	content := "my essay"
	submission, err := svc.Submit(context.Background(), SubmitRequest{
		AssignmentID: "asg-1",
		StudentID:    "std-1",
		Content:      &content,
	})
	require.NoError(t, err)
	assert.False(t, submission.IsLate)
	assert.Equal(t, 0, submission.DaysLate)
	assert.Equal(t, models.SubmissionSubmitted, submission.Status)
}

func TestSubmitLateStampsDaysLate(t *testing.T) {
	svc, _, _ := newSubmissionFixture(t)
	// 36 hours past due rounds up to two days late.
	svc.now = func() time.Time { return submissionDueDate.Add(36 * time.Hour) }

	content := "late essay"
	submission, err := svc.Submit(context.Background(), SubmitRequest{
		AssignmentID: "asg-1",
		StudentID:    "std-1",
		Content:      &content,
	})
	require.NoError(t, err)
	assert.True(t, submission.IsLate)
	assert.Equal(t, 2, submission.DaysLate)
}

func TestSubmitLateRejectedWhenNotAllowed(t *testing.T) {
	svc, assignments, _ := newSubmissionFixture(t)
	a := assignments.assignments["asg-1"]
	a.AllowLateSubmission = false
	assignments.assignments["asg-1"] = a
	svc.now = func() time.Time { return submissionDueDate.Add(time.Hour) }

	content := "too late"
	_, err := svc.Submit(context.Background(), SubmitRequest{
		AssignmentID: "asg-1",
		StudentID:    "std-1",
		Content:      &content,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSubmitUnpublishedRejected(t *testing.T) {
	svc, assignments, _ := newSubmissionFixture(t)
	a := assignments.assignments["asg-1"]
	a.IsPublished = false
	assignments.assignments["asg-1"] = a

	content := "early bird"
	_, err := svc.Submit(context.Background(), SubmitRequest{
		AssignmentID: "asg-1",
		StudentID:    "std-1",
		Content:      &content,
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSubmitDuplicateRejected(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	svc.now = func() time.Time { return submissionDueDate.Add(-time.Hour) }

	first := "first attempt"
	sub, err := svc.Submit(context.Background(), SubmitRequest{AssignmentID: "asg-1", StudentID: "std-1", Content: &first})
	require.NoError(t, err)

	second := "second attempt"
	_, err = svc.Submit(context.Background(), SubmitRequest{AssignmentID: "asg-1", StudentID: "std-1", Content: &second})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicate))
	// The first attempt stays untouched.
	assert.Equal(t, "first attempt", *submissions.submissions[sub.ID].Content)
}

func TestSubmitDuplicateStoresNoFile(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	store := &fakeAttachmentStore{}
	svc.storage = store
	svc.now = func() time.Time { return submissionDueDate.Add(-time.Hour) }
	submissions.submissions["s-1"] = models.Submission{
		ID: "s-1", AssignmentID: "asg-1", StudentID: "std-1", Status: models.SubmissionSubmitted,
	}

	name := "essay.pdf"
	_, err := svc.Submit(context.Background(), SubmitRequest{
		AssignmentID: "asg-1",
		StudentID:    "std-1",
		FileName:     &name,
		FileData:     []byte("pdf bytes"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicate))
	assert.Empty(t, store.saved)
}

func TestResubmitReplacesBeforeGrading(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	svc.now = func() time.Time { return submissionDueDate.Add(-time.Hour) }

	first := "draft one"
	sub, err := svc.Submit(context.Background(), SubmitRequest{AssignmentID: "asg-1", StudentID: "std-1", Content: &first})
	require.NoError(t, err)

	second := "draft two"
	resubmitted, err := svc.Resubmit(context.Background(), sub.ID, ResubmitRequest{Content: &second})
	require.NoError(t, err)
	assert.Equal(t, sub.ID, resubmitted.ID)
	assert.Equal(t, models.SubmissionSubmitted, resubmitted.Status)
	assert.Equal(t, "draft two", *submissions.submissions[sub.ID].Content)
}

func TestResubmitReplacesAttachment(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	store := &fakeAttachmentStore{}
	svc.storage = store
	svc.now = func() time.Time { return submissionDueDate.Add(-time.Hour) }
	oldPath := "submissions/asg-1/old.pdf"
	submissions.submissions["s-1"] = models.Submission{
		ID: "s-1", AssignmentID: "asg-1", StudentID: "std-1",
		Status: models.SubmissionSubmitted, FilePath: &oldPath,
	}

	name := "rework.pdf"
	resubmitted, err := svc.Resubmit(context.Background(), "s-1", ResubmitRequest{
		FileName: &name,
		FileData: []byte("new bytes"),
	})
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.Equal(t, []string{oldPath}, store.deleted)
	require.NotNil(t, resubmitted.FilePath)
	assert.Equal(t, store.saved[0], *resubmitted.FilePath)
}

func TestResubmitBlockedAfterGrading(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	store := &fakeAttachmentStore{}
	svc.storage = store
	svc.now = func() time.Time { return submissionDueDate.Add(-time.Hour) }
	submissions.submissions["s-1"] = models.Submission{
		ID:           "s-1",
		AssignmentID: "asg-1",
		StudentID:    "std-1",
		Status:       models.SubmissionGraded,
	}

	content := "second thoughts"
	name := "late-rework.pdf"
	_, err := svc.Resubmit(context.Background(), "s-1", ResubmitRequest{
		Content:  &content,
		FileName: &name,
		FileData: []byte("bytes"),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	// The guard fires before the attachment write.
	assert.Empty(t, store.saved)
}

func TestResubmitUnknownSubmission(t *testing.T) {
	svc, _, _ := newSubmissionFixture(t)
	svc.now = func() time.Time { return submissionDueDate.Add(-time.Hour) }

	content := "orphan"
	_, err := svc.Resubmit(context.Background(), "missing", ResubmitRequest{Content: &content})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestGradeAppliesLatePenalty(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	submissions.submissions["s-1"] = models.Submission{
		ID:           "s-1",
		AssignmentID: "asg-1",
		StudentID:    "std-1",
		Status:       models.SubmissionSubmitted,
		IsLate:       true,
		DaysLate:     2,
	}

	graded, err := svc.Grade(context.Background(), "s-1", GradeSubmissionRequest{Score: 80}, "tch-1")
	require.NoError(t, err)
	// 100 * 10% * 2 days = 20 off the raw score of 80.
	require.NotNil(t, graded.Score)
	assert.Equal(t, 80.0, *graded.Score)
	require.NotNil(t, graded.LatePenaltyNotes)
	assert.Equal(t, "late penalty: -20.00 (2 days late)", *graded.LatePenaltyNotes)
	require.NotNil(t, graded.Grade)
	assert.Equal(t, "D", *graded.Grade)
	assert.Equal(t, models.SubmissionGraded, graded.Status)
	require.NotNil(t, submissions.graded)
}

func TestGradePenaltyClampsAtZero(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	submissions.submissions["s-1"] = models.Submission{
		ID:           "s-1",
		AssignmentID: "asg-1",
		StudentID:    "std-1",
		Status:       models.SubmissionSubmitted,
		IsLate:       true,
		DaysLate:     30,
	}

	graded, err := svc.Grade(context.Background(), "s-1", GradeSubmissionRequest{Score: 40}, "tch-1")
	require.NoError(t, err)
	assignment := models.Assignment{MaxScore: 100, AllowLateSubmission: true, LatePenaltyPercent: 10}
	final := graded.FinalScore(assignment)
	require.NotNil(t, final)
	assert.Equal(t, 0.0, *final)
}

func TestGradeRejectsScoreAboveMax(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	submissions.submissions["s-1"] = models.Submission{
		ID: "s-1", AssignmentID: "asg-1", StudentID: "std-1", Status: models.SubmissionSubmitted,
	}

	_, err := svc.Grade(context.Background(), "s-1", GradeSubmissionRequest{Score: 101}, "tch-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestGradeRejectsDraft(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	submissions.submissions["s-1"] = models.Submission{
		ID: "s-1", AssignmentID: "asg-1", StudentID: "std-1", Status: models.SubmissionDraft,
	}

	_, err := svc.Grade(context.Background(), "s-1", GradeSubmissionRequest{Score: 50}, "tch-1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestRegradeAllowed(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	submissions.submissions["s-1"] = models.Submission{
		ID: "s-1", AssignmentID: "asg-1", StudentID: "std-1", Status: models.SubmissionGraded,
	}

	graded, err := svc.Grade(context.Background(), "s-1", GradeSubmissionRequest{Score: 90}, "tch-1")
	require.NoError(t, err)
	require.NotNil(t, graded.Grade)
	assert.Equal(t, "A", *graded.Grade)
}

func TestReturnRequiresGraded(t *testing.T) {
	svc, _, submissions := newSubmissionFixture(t)
	submissions.submissions["s-1"] = models.Submission{
		ID: "s-1", AssignmentID: "asg-1", StudentID: "std-1", Status: models.SubmissionSubmitted,
	}

	_, err := svc.Return(context.Background(), "s-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	s := submissions.submissions["s-1"]
	s.Status = models.SubmissionGraded
	submissions.submissions["s-1"] = s

	returned, err := svc.Return(context.Background(), "s-1", nil)
	require.NoError(t, err)
	assert.Equal(t, models.SubmissionReturned, returned.Status)
}

func TestCreateAssignmentRejectsInvertedWindow(t *testing.T) {
	svc, _, _ := newSubmissionFixture(t)
	start := submissionDueDate
	end := submissionDueDate.Add(-time.Hour)

	_, err := svc.CreateAssignment(context.Background(), CreateAssignmentRequest{
		SubjectID:       "sub-1",
		TeacherID:       "tch-1",
		ClassID:         "cls-1",
		Title:           "Broken window",
		AssignmentType:  models.AssignmentHomework,
		DueDate:         submissionDueDate,
		SubmissionStart: &start,
		SubmissionEnd:   &end,
		MaxScore:        100,
		AcademicYearID:  "ay-1",
	}, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestLatenessRounding(t *testing.T) {
	isLate, days := lateness(submissionDueDate, submissionDueDate.Add(time.Hour))
	assert.True(t, isLate)
	assert.Equal(t, 1, days)

	isLate, days = lateness(submissionDueDate, submissionDueDate.Add(49*time.Hour))
	assert.True(t, isLate)
	assert.Equal(t, 3, days)

	isLate, days = lateness(submissionDueDate, submissionDueDate)
	assert.False(t, isLate)
	assert.Equal(t, 0, days)
}
