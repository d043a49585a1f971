package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

func sampleGrade(score float64) *models.Grade {
	return &models.Grade{
		EnrollmentID:   "enr-1",
		SubjectID:      "sub-1",
		TeacherID:      "teacher-1",
		AssessmentType: models.AssessmentQuiz,
		Score:          &score,
		Weight:         1,
		Semester:       1,
		AssessmentDate: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		AcademicYearID: "ay-1",
	}
}

func TestGradeRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectExec(`INSERT INTO grades`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "grades_assessment_key"})

	err := repo.Create(context.Background(), sampleGrade(85))
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryBulkCreateAbortsOnDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO grades`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO grades`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "grades_assessment_key"})
	mock.ExpectRollback()

	first := sampleGrade(90)
	second := sampleGrade(75)
	second.EnrollmentID = "enr-2"
	err := repo.BulkCreate(context.Background(), []*models.Grade{first, second})
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeRepositoryStudentAverageNoScores(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewGradeRepository(db)

	mock.ExpectQuery(`SELECT AVG\(g.score\) FROM grades g`).
		WithArgs("stu-1").
		WillReturnRows(sqlmock.NewRows([]string{"avg"}).AddRow(nil))

	avg, err := repo.StudentAverage(context.Background(), "stu-1", "")
	require.NoError(t, err)
	require.Nil(t, avg)
	require.NoError(t, mock.ExpectationsWereMet())
}
