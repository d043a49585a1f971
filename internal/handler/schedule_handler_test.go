package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/models"
	"github.com/sekolahku/sis-core-api/internal/service"
	"github.com/sekolahku/sis-core-api/pkg/response"
)

type scheduleRepoMock struct {
	conflicts  []models.ScheduleConflict
	created    *models.Schedule
	lastFilter models.ScheduleFilter
	listCalled bool
}

func (m *scheduleRepoMock) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	m.listCalled = true
	m.lastFilter = filter
	return nil, 0, nil
}

func (m *scheduleRepoMock) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	return nil, sql.ErrNoRows
}

func (m *scheduleRepoMock) FindConflicts(ctx context.Context, academicYearID, dayOfWeek, startTime, endTime, classID, teacherID, excludeID string) ([]models.ScheduleConflict, error) {
	return m.conflicts, nil
}

func (m *scheduleRepoMock) Create(ctx context.Context, schedule *models.Schedule) error {
	m.created = schedule
	return nil
}

func (m *scheduleRepoMock) Update(ctx context.Context, schedule *models.Schedule) error {
	return nil
}

func (m *scheduleRepoMock) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	return nil
}

func (m *scheduleRepoMock) SetActive(ctx context.Context, id string, active bool, updatedBy *string) error {
	return nil
}

func (m *scheduleRepoMock) ListWeekly(ctx context.Context, academicYearID, classID, teacherID string) ([]models.ScheduleDetail, error) {
	return nil, nil
}

func scheduleTestPayload() service.UpsertScheduleRequest {
	return service.UpsertScheduleRequest{
		ClassID:        "cls-1",
		SubjectID:      "sub-1",
		TeacherID:      "tch-1",
		DayOfWeek:      "Monday",
		StartTime:      "08:00",
		EndTime:        "09:00",
		AcademicYearID: "ay-1",
	}
}

func TestScheduleHandlerCreateOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &scheduleRepoMock{}
	handler := NewScheduleHandler(service.NewScheduleService(repo, nil, nil))

	payload, _ := json.Marshal(scheduleTestPayload())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/schedules", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotNil(t, repo.created)
	assert.Equal(t, "Monday", repo.created.DayOfWeek)
}

func TestScheduleHandlerCreateConflictReturns409(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &scheduleRepoMock{
		conflicts: []models.ScheduleConflict{{
			ScheduleID: "sch-9",
			ClassID:    "cls-1",
			TeacherID:  "tch-2",
			DayOfWeek:  "Monday",
			StartTime:  "08:30",
			EndTime:    "09:30",
			Dimension:  "class",
		}},
	}
	handler := NewScheduleHandler(service.NewScheduleService(repo, nil, nil))

	payload, _ := json.Marshal(scheduleTestPayload())
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/schedules", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Nil(t, repo.created)

	var envelope response.Envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	body, ok := envelope.Data.(map[string]interface{})
	require.True(t, ok)
	conflicts, ok := body["conflicts"].([]interface{})
	require.True(t, ok)
	require.Len(t, conflicts, 1)
}

func TestScheduleHandlerCreateInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewScheduleHandler(service.NewScheduleService(&scheduleRepoMock{}, nil, nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/schedules", bytes.NewBufferString(`{"class_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestScheduleHandlerListParsesFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &scheduleRepoMock{}
	handler := NewScheduleHandler(service.NewScheduleService(repo, nil, nil))

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/schedules?classId=cls-1&day=Monday&active=true&page=2&limit=10", nil)
	c.Request = req

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, repo.listCalled)
	assert.Equal(t, "cls-1", repo.lastFilter.ClassID)
	assert.Equal(t, "Monday", repo.lastFilter.DayOfWeek)
	assert.Equal(t, 2, repo.lastFilter.Page)
	assert.Equal(t, 10, repo.lastFilter.PageSize)
	require.NotNil(t, repo.lastFilter.IsActive)
	assert.True(t, *repo.lastFilter.IsActive)
}
