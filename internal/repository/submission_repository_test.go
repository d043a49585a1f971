package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

func TestSubmissionRepositoryCreateDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewSubmissionRepository(db)

	mock.ExpectExec(`INSERT INTO submissions`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "submissions_assignment_student_key"})

	err := repo.Create(context.Background(), &models.Submission{
		AssignmentID: "asg-1",
		StudentID:    "stu-1",
		Status:       models.SubmissionSubmitted,
	})
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}
