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

type fakeAcademicYearRepo struct {
	years      map[string]models.AcademicYear
	codes      map[string]bool
	overlaps   bool
	created    *models.AcademicYear
	currentErr error
	deleted    []string
}

func (m *fakeAcademicYearRepo) List(ctx context.Context, filter models.AcademicYearFilter) ([]models.AcademicYear, int, error) {
	return nil, 0, nil
}

func (m *fakeAcademicYearRepo) FindByID(ctx context.Context, id string) (*models.AcademicYear, error) {
	if y, ok := m.years[id]; ok {
		return &y, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeAcademicYearRepo) FindCurrent(ctx context.Context, schoolID string) (*models.AcademicYear, error) {
	for _, y := range m.years {
		if y.SchoolID == schoolID && y.IsCurrent {
			found := y
			return &found, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (m *fakeAcademicYearRepo) CodeExists(ctx context.Context, yearCode, excludeID string) (bool, error) {
	return m.codes[yearCode], nil
}

func (m *fakeAcademicYearRepo) OverlapExists(ctx context.Context, schoolID string, startDate, endDate time.Time, excludeID string) (bool, error) {
	return m.overlaps, nil
}

func (m *fakeAcademicYearRepo) Create(ctx context.Context, year *models.AcademicYear) error {
	if m.years == nil {
		m.years = make(map[string]models.AcademicYear)
	}
	if year.ID == "" {
		year.ID = "new-year"
	}
	m.years[year.ID] = *year
	m.created = year
	return nil
}

func (m *fakeAcademicYearRepo) Update(ctx context.Context, year *models.AcademicYear) error {
	if _, ok := m.years[year.ID]; !ok {
		return sql.ErrNoRows
	}
	m.years[year.ID] = *year
	return nil
}

func (m *fakeAcademicYearRepo) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	if _, ok := m.years[id]; !ok {
		return sql.ErrNoRows
	}
	m.deleted = append(m.deleted, id)
	delete(m.years, id)
	return nil
}

func (m *fakeAcademicYearRepo) SetCurrent(ctx context.Context, id string) (*models.AcademicYear, error) {
	if m.currentErr != nil {
		return nil, m.currentErr
	}
	target, ok := m.years[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	for yearID, y := range m.years {
		y.IsCurrent = yearID == id
		m.years[yearID] = y
	}
	target.IsCurrent = true
	target.IsActive = true
	m.years[id] = target
	return &target, nil
}

func (m *fakeAcademicYearRepo) ListUpcoming(ctx context.Context, schoolID string, limit int) ([]models.AcademicYear, error) {
	return nil, nil
}

func (m *fakeAcademicYearRepo) ListPrevious(ctx context.Context, schoolID string, limit int) ([]models.AcademicYear, error) {
	return nil, nil
}

func newAcademicYearFixture() (*AcademicYearService, *fakeAcademicYearRepo) {
	repo := &fakeAcademicYearRepo{
		years: map[string]models.AcademicYear{
			"ay-1": {
				ID:        "ay-1",
				Name:      "2025/2026",
				YearCode:  "AY2526",
				SchoolID:  "sch-1",
				IsCurrent: true,
				IsActive:  true,
			},
			"ay-2": {
				ID:       "ay-2",
				Name:     "2026/2027",
				YearCode: "AY2627",
				SchoolID: "sch-1",
				IsActive: true,
			},
		},
		codes: map[string]bool{"AY2526": true, "AY2627": true},
	}
	return NewAcademicYearService(repo, nil, nil), repo
}

func createYearRequest() CreateAcademicYearRequest {
	return CreateAcademicYearRequest{
		Name:      "2027/2028",
		YearCode:  "AY2728",
		StartDate: "2027-07-01",
		EndDate:   "2028-06-30",
		SchoolID:  "sch-1",
	}
}

func TestAcademicYearCreate(t *testing.T) {
	svc, repo := newAcademicYearFixture()

	year, err := svc.Create(context.Background(), createYearRequest(), nil)
	require.NoError(t, err)
	assert.Equal(t, "AY2728", year.YearCode)
	assert.False(t, year.IsCurrent)
	require.NotNil(t, repo.created)
}

func TestAcademicYearCreateDuplicateCode(t *testing.T) {
	svc, _ := newAcademicYearFixture()
	req := createYearRequest()
	req.YearCode = "AY2526"

	_, err := svc.Create(context.Background(), req, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrDuplicate))
}

func TestAcademicYearCreateOverlapRejected(t *testing.T) {
	svc, repo := newAcademicYearFixture()
	repo.overlaps = true

	_, err := svc.Create(context.Background(), createYearRequest(), nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Nil(t, repo.created)
}

func TestAcademicYearCreateInvertedDates(t *testing.T) {
	svc, _ := newAcademicYearFixture()
	req := createYearRequest()
	req.StartDate = "2028-06-30"
	req.EndDate = "2027-07-01"

	_, err := svc.Create(context.Background(), req, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestSetCurrentFlipsExclusively(t *testing.T) {
	svc, repo := newAcademicYearFixture()

	year, err := svc.SetCurrent(context.Background(), "ay-2")
	require.NoError(t, err)
	assert.True(t, year.IsCurrent)

	currentCount := 0
	for _, y := range repo.years {
		if y.IsCurrent {
			currentCount++
		}
	}
	assert.Equal(t, 1, currentCount)
}

func TestSetCurrentPropagatesConsistencyFailure(t *testing.T) {
	svc, repo := newAcademicYearFixture()
	repo.currentErr = appErrors.Clone(appErrors.ErrConsistency, "multiple current academic years detected")

	_, err := svc.SetCurrent(context.Background(), "ay-2")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrConsistency))
}

func TestSetCurrentUnknownYear(t *testing.T) {
	svc, _ := newAcademicYearFixture()

	_, err := svc.SetCurrent(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestDeleteCurrentYearBlocked(t *testing.T) {
	svc, repo := newAcademicYearFixture()

	err := svc.Delete(context.Background(), "ay-1", nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assert.Empty(t, repo.deleted)
}

func TestDeleteNonCurrentYear(t *testing.T) {
	svc, repo := newAcademicYearFixture()

	err := svc.Delete(context.Background(), "ay-2", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"ay-2"}, repo.deleted)
}

func TestGetCurrent(t *testing.T) {
	svc, _ := newAcademicYearFixture()

	year, err := svc.GetCurrent(context.Background(), "sch-1")
	require.NoError(t, err)
	assert.Equal(t, "ay-1", year.ID)

	_, err = svc.GetCurrent(context.Background(), "sch-other")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}
