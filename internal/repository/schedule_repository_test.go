package repository

import (
	"context"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
)

func conflictRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"schedule_id", "class_id", "teacher_id", "day_of_week", "start_time", "end_time", "dimension"})
}

func TestScheduleRepositoryFindConflicts(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery(`SELECT s.id AS schedule_id`).
		WithArgs("ay-1", "Monday", "08:00", "09:00", "class-1", "teacher-1").
		WillReturnRows(conflictRows().
			AddRow("sch-9", "class-1", "teacher-2", "Monday", "08:30", "09:30", "class"))

	conflicts, err := repo.FindConflicts(context.Background(), "ay-1", "Monday", "08:00", "09:00", "class-1", "teacher-1", "")
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	require.Equal(t, "class", conflicts[0].Dimension)
	require.Equal(t, "sch-9", conflicts[0].ScheduleID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestScheduleRepositoryFindConflictsExcludesSelf(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewScheduleRepository(db)

	mock.ExpectQuery(`SELECT s.id AS schedule_id`).
		WithArgs("ay-1", "Tuesday", "10:00", "11:00", "class-1", "teacher-1", "sch-1").
		WillReturnRows(conflictRows())

	conflicts, err := repo.FindConflicts(context.Background(), "ay-1", "Tuesday", "10:00", "11:00", "class-1", "teacher-1", "sch-1")
	require.NoError(t, err)
	require.Empty(t, conflicts)
	require.NoError(t, mock.ExpectationsWereMet())
}
