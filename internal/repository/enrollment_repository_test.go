package repository

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

func TestEnrollmentRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`INSERT INTO enrollments`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "enrollments_student_class_year_key"})

	err := repo.Create(context.Background(), &models.Enrollment{
		StudentID:      "stu-1",
		ClassID:        "class-1",
		AcademicYearID: "ay-1",
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateClassRanks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM enrollments WHERE class_id = \$1 AND academic_year_id = \$2`).
		WithArgs("class-1", "ay-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("enr-1").AddRow("enr-2").AddRow("enr-3"))
	mock.ExpectExec(`UPDATE enrollments SET class_rank = \$2`).
		WithArgs("enr-1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE enrollments SET class_rank = \$2`).
		WithArgs("enr-2", 2, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE enrollments SET class_rank = \$2`).
		WithArgs("enr-3", 3, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	updated, err := repo.UpdateClassRanks(context.Background(), "class-1", "ay-1")
	require.NoError(t, err)
	require.Equal(t, 3, updated)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUpdateClassRanksRollsBackOnFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id FROM enrollments`).
		WithArgs("class-1", "ay-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("enr-1").AddRow("enr-2"))
	mock.ExpectExec(`UPDATE enrollments SET class_rank = \$2`).
		WithArgs("enr-1", 1, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE enrollments SET class_rank = \$2`).
		WithArgs("enr-2", 2, sqlmock.AnyArg()).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := repo.UpdateClassRanks(context.Background(), "class-1", "ay-1")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryAggregate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectQuery(`SELECT\s+\(SELECT COUNT\(\*\) FROM attendances`).
		WithArgs("enr-1").
		WillReturnRows(sqlmock.NewRows([]string{"attendance_count", "present_count", "average_grade", "grade_count"}).
			AddRow(20, 18, 82.5, 6))

	summary, err := repo.Aggregate(context.Background(), "enr-1")
	require.NoError(t, err)
	require.Equal(t, "enr-1", summary.EnrollmentID)
	require.Equal(t, 20, summary.AttendanceCount)
	require.Equal(t, 18, summary.PresentCount)
	require.NotNil(t, summary.AverageGrade)
	require.InDelta(t, 82.5, *summary.AverageGrade, 0.001)
	require.Equal(t, 6, summary.GradeCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryPromote(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	actor := "admin-1"
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT student_id FROM enrollments`).
		WithArgs("class-7a", "ay-2025", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"student_id"}).AddRow("stu-1").AddRow("stu-2"))
	mock.ExpectExec(`INSERT INTO enrollments`).
		WithArgs(sqlmock.AnyArg(), "stu-1", "class-8a", "ay-2026", models.EnrollmentStatusActive, sqlmock.AnyArg(), promotionNote, &actor, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO enrollments`).
		WithArgs(sqlmock.AnyArg(), "stu-2", "class-8a", "ay-2026", models.EnrollmentStatusActive, sqlmock.AnyArg(), promotionNote, &actor, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	promoted, err := repo.Promote(context.Background(), "ay-2025", "ay-2026", "class-7a", "class-8a", &actor)
	require.NoError(t, err)
	require.Equal(t, 2, promoted)
	require.NoError(t, mock.ExpectationsWereMet())
}
