package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/models"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func sampleAcademicYear() *models.AcademicYear {
	return &models.AcademicYear{
		Name:      "2026/2027",
		YearCode:  "AY2627",
		StartDate: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC),
		SchoolID:  "school-1",
	}
}

func yearRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "name", "year_code", "start_date", "end_date", "school_id", "is_active", "is_current",
		"description", "created_by", "updated_by", "created_at", "updated_at", "deleted_at",
	})
}

func TestAcademicYearRepositoryOverlapExists(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	start := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2027, 6, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT 1 FROM academic_years`).
		WithArgs("school-1", start, end).
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	overlaps, err := repo.OverlapExists(context.Background(), "school-1", start, end, "")
	require.NoError(t, err)
	require.True(t, overlaps)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryOverlapExistsNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	start := time.Date(2027, 7, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2028, 6, 30, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT 1 FROM academic_years`).
		WithArgs("school-1", start, end, "ay-1").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	overlaps, err := repo.OverlapExists(context.Background(), "school-1", start, end, "ay-1")
	require.NoError(t, err)
	require.False(t, overlaps)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositoryCreateDuplicateCode(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	mock.ExpectExec(`INSERT INTO academic_years`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "academic_years_year_code_key"})

	year := sampleAcademicYear()
	err := repo.Create(context.Background(), year)
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrDuplicate))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositorySetCurrent(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM academic_years WHERE id = \$1 AND deleted_at IS NULL FOR UPDATE`).
		WithArgs("ay-2").
		WillReturnRows(yearRows().AddRow(
			"ay-2", "2026/2027", "AY2627", now, now.AddDate(1, 0, 0), "school-1", false, false,
			nil, nil, nil, now, now, nil,
		))
	mock.ExpectExec(`UPDATE academic_years SET is_current = FALSE`).
		WithArgs("school-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE academic_years SET is_current = TRUE`).
		WithArgs("ay-2", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM academic_years WHERE school_id = \$1 AND is_current = TRUE`).
		WithArgs("school-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectCommit()

	year, err := repo.SetCurrent(context.Background(), "ay-2")
	require.NoError(t, err)
	require.True(t, year.IsCurrent)
	require.True(t, year.IsActive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAcademicYearRepositorySetCurrentConsistencyFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAcademicYearRepository(db)

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT .* FROM academic_years WHERE id = \$1 AND deleted_at IS NULL FOR UPDATE`).
		WithArgs("ay-2").
		WillReturnRows(yearRows().AddRow(
			"ay-2", "2026/2027", "AY2627", now, now.AddDate(1, 0, 0), "school-1", false, false,
			nil, nil, nil, now, now, nil,
		))
	mock.ExpectExec(`UPDATE academic_years SET is_current = FALSE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE academic_years SET is_current = TRUE`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM academic_years`).
		WithArgs("school-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectRollback()

	_, err := repo.SetCurrent(context.Background(), "ay-2")
	require.Error(t, err)
	require.True(t, errors.Is(err, appErrors.ErrConsistency))
	require.NoError(t, mock.ExpectationsWereMet())
}
