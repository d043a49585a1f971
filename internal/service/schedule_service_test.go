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

// fakeScheduleRepo mirrors the storage overlap predicate on its in-memory
// slots: two ranges collide when start < other.end and end > other.start.
type fakeScheduleRepo struct {
	slots   map[string]models.Schedule
	created *models.Schedule
}

func (m *fakeScheduleRepo) List(ctx context.Context, filter models.ScheduleFilter) ([]models.ScheduleDetail, int, error) {
	return nil, 0, nil
}

func (m *fakeScheduleRepo) FindByID(ctx context.Context, id string) (*models.Schedule, error) {
	if s, ok := m.slots[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *fakeScheduleRepo) FindConflicts(ctx context.Context, academicYearID, dayOfWeek, startTime, endTime, classID, teacherID, excludeID string) ([]models.ScheduleConflict, error) {
	var conflicts []models.ScheduleConflict
	for _, s := range m.slots {
		if s.ID == excludeID || !s.IsActive {
			continue
		}
		if s.AcademicYearID != academicYearID || s.DayOfWeek != dayOfWeek {
			continue
		}
		if s.ClassID != classID && s.TeacherID != teacherID {
			continue
		}
		if s.StartTime < endTime && s.EndTime > startTime {
			dimension := "teacher"
			if s.ClassID == classID {
				dimension = "class"
			}
			conflicts = append(conflicts, models.ScheduleConflict{
				ScheduleID: s.ID,
				ClassID:    s.ClassID,
				TeacherID:  s.TeacherID,
				DayOfWeek:  s.DayOfWeek,
				StartTime:  s.StartTime,
				EndTime:    s.EndTime,
				Dimension:  dimension,
			})
		}
	}
	return conflicts, nil
}

func (m *fakeScheduleRepo) Create(ctx context.Context, schedule *models.Schedule) error {
	if m.slots == nil {
		m.slots = make(map[string]models.Schedule)
	}
	if schedule.ID == "" {
		schedule.ID = "new-schedule"
	}
	m.slots[schedule.ID] = *schedule
	m.created = schedule
	return nil
}

func (m *fakeScheduleRepo) Update(ctx context.Context, schedule *models.Schedule) error {
	if _, ok := m.slots[schedule.ID]; !ok {
		return sql.ErrNoRows
	}
	m.slots[schedule.ID] = *schedule
	return nil
}

func (m *fakeScheduleRepo) SoftDelete(ctx context.Context, id string, deletedBy *string) error {
	if _, ok := m.slots[id]; !ok {
		return sql.ErrNoRows
	}
	delete(m.slots, id)
	return nil
}

func (m *fakeScheduleRepo) SetActive(ctx context.Context, id string, active bool, updatedBy *string) error {
	s, ok := m.slots[id]
	if !ok {
		return sql.ErrNoRows
	}
	s.IsActive = active
	m.slots[id] = s
	return nil
}

func (m *fakeScheduleRepo) ListWeekly(ctx context.Context, academicYearID, classID, teacherID string) ([]models.ScheduleDetail, error) {
	var slots []models.ScheduleDetail
	for _, s := range m.slots {
		if !s.IsActive || s.AcademicYearID != academicYearID {
			continue
		}
		if classID != "" && s.ClassID != classID {
			continue
		}
		if teacherID != "" && s.TeacherID != teacherID {
			continue
		}
		slots = append(slots, models.ScheduleDetail{Schedule: s})
	}
	return slots, nil
}

func newScheduleFixture() (*ScheduleService, *fakeScheduleRepo) {
	repo := &fakeScheduleRepo{slots: map[string]models.Schedule{
		"sch-1": {
			ID:             "sch-1",
			ClassID:        "cls-1",
			SubjectID:      "sub-1",
			TeacherID:      "tch-1",
			DayOfWeek:      "Monday",
			StartTime:      "08:00",
			EndTime:        "09:00",
			IsActive:       true,
			AcademicYearID: "ay-1",
		},
	}}
	return NewScheduleService(repo, nil, nil), repo
}

func slotRequest(classID, teacherID, start, end string) UpsertScheduleRequest {
	return UpsertScheduleRequest{
		ClassID:        classID,
		SubjectID:      "sub-2",
		TeacherID:      teacherID,
		DayOfWeek:      "Monday",
		StartTime:      start,
		EndTime:        end,
		AcademicYearID: "ay-1",
	}
}

func TestScheduleCreateBackToBackAllowed(t *testing.T) {
	svc, repo := newScheduleFixture()

	created, err := svc.Create(context.Background(), slotRequest("cls-1", "tch-1", "09:00", "10:00"), nil)
	require.NoError(t, err)
	assert.True(t, created.IsActive)
	assert.NotNil(t, repo.created)
}

func TestScheduleCreateClassOverlapRejected(t *testing.T) {
	svc, _ := newScheduleFixture()

	_, err := svc.Create(context.Background(), slotRequest("cls-1", "tch-2", "08:30", "09:30"), nil)
	require.Error(t, err)

	var conflictErr *models.ScheduleConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, "sch-1", conflictErr.Conflicts[0].ScheduleID)
	assert.Equal(t, "class", conflictErr.Conflicts[0].Dimension)
}

func TestScheduleCreateTeacherOverlapRejected(t *testing.T) {
	svc, _ := newScheduleFixture()

	// Different class, same teacher, overlapping slot.
	_, err := svc.Create(context.Background(), slotRequest("cls-2", "tch-1", "08:30", "09:30"), nil)
	require.Error(t, err)

	var conflictErr *models.ScheduleConflictError
	require.True(t, errors.As(err, &conflictErr))
	require.Len(t, conflictErr.Conflicts, 1)
	assert.Equal(t, "teacher", conflictErr.Conflicts[0].Dimension)
}

func TestScheduleCreateInactiveSlotIgnored(t *testing.T) {
	svc, repo := newScheduleFixture()
	s := repo.slots["sch-1"]
	s.IsActive = false
	repo.slots["sch-1"] = s

	_, err := svc.Create(context.Background(), slotRequest("cls-1", "tch-1", "08:30", "09:30"), nil)
	require.NoError(t, err)
}

func TestScheduleUpdateExcludesSelf(t *testing.T) {
	svc, _ := newScheduleFixture()

	// Shifting sch-1 within its own window must not collide with itself.
	updated, err := svc.Update(context.Background(), "sch-1", slotRequest("cls-1", "tch-1", "08:15", "09:00"), nil)
	require.NoError(t, err)
	assert.Equal(t, "08:15", updated.StartTime)
}

func TestScheduleRejectsMalformedTimes(t *testing.T) {
	svc, _ := newScheduleFixture()

	cases := []struct {
		name  string
		start string
		end   string
	}{
		{"unpadded hour", "8:00", "9:00"},
		{"out of range", "24:00", "25:00"},
		{"inverted", "10:00", "09:00"},
		{"equal", "09:00", "09:00"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Create(context.Background(), slotRequest("cls-9", "tch-9", tc.start, tc.end), nil)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrValidation))
		})
	}
}

func TestScheduleRejectsUnknownDay(t *testing.T) {
	svc, _ := newScheduleFixture()
	req := slotRequest("cls-9", "tch-9", "08:00", "09:00")
	req.DayOfWeek = "funday"

	_, err := svc.Create(context.Background(), req, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestWeeklyTimetableIncludesEmptyDays(t *testing.T) {
	svc, _ := newScheduleFixture()

	timetable, err := svc.WeeklyTimetable(context.Background(), "ay-1", "cls-1", "")
	require.NoError(t, err)
	require.Len(t, timetable, len(models.DaysOfWeek))
	assert.Len(t, timetable["Monday"], 1)
	assert.Empty(t, timetable["Friday"])
}

func TestWeeklyTimetableRequiresScope(t *testing.T) {
	svc, _ := newScheduleFixture()

	_, err := svc.WeeklyTimetable(context.Background(), "ay-1", "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}

func TestScheduleStatusHappeningNow(t *testing.T) {
	svc, _ := newScheduleFixture()
	// Monday, mid-slot for sch-1 (08:00-09:00).
	ref := time.Date(2026, time.January, 5, 8, 30, 0, 0, time.UTC)

	status, err := svc.Status(context.Background(), "sch-1", ref)
	require.NoError(t, err)
	assert.True(t, status.IsHappeningNow)
	require.NotNil(t, status.NextOccurrence)
	// The slot already started; the next occurrence is a week out.
	assert.Equal(t, time.Date(2026, time.January, 12, 8, 0, 0, 0, time.UTC), *status.NextOccurrence)
}

func TestScheduleStatusNextOccurrenceSameDay(t *testing.T) {
	svc, _ := newScheduleFixture()
	ref := time.Date(2026, time.January, 5, 7, 0, 0, 0, time.UTC)

	status, err := svc.Status(context.Background(), "sch-1", ref)
	require.NoError(t, err)
	assert.False(t, status.IsHappeningNow)
	require.NotNil(t, status.NextOccurrence)
	assert.Equal(t, time.Date(2026, time.January, 5, 8, 0, 0, 0, time.UTC), *status.NextOccurrence)
}

func TestScheduleStatusRollsToNextWeek(t *testing.T) {
	svc, _ := newScheduleFixture()
	// Monday after the slot ended.
	ref := time.Date(2026, time.January, 5, 9, 30, 0, 0, time.UTC)

	status, err := svc.Status(context.Background(), "sch-1", ref)
	require.NoError(t, err)
	assert.False(t, status.IsHappeningNow)
	require.NotNil(t, status.NextOccurrence)
	assert.Equal(t, time.Date(2026, time.January, 12, 8, 0, 0, 0, time.UTC), *status.NextOccurrence)
}

func TestScheduleStatusInactiveSlot(t *testing.T) {
	svc, repo := newScheduleFixture()
	s := repo.slots["sch-1"]
	s.IsActive = false
	repo.slots["sch-1"] = s
	ref := time.Date(2026, time.January, 5, 8, 30, 0, 0, time.UTC)

	status, err := svc.Status(context.Background(), "sch-1", ref)
	require.NoError(t, err)
	assert.False(t, status.IsHappeningNow)
	assert.Nil(t, status.NextOccurrence)
}

func TestScheduleStatusUnknownSlot(t *testing.T) {
	svc, _ := newScheduleFixture()

	_, err := svc.Status(context.Background(), "missing", time.Now())
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestCheckConflictsIsReadOnly(t *testing.T) {
	svc, repo := newScheduleFixture()

	conflicts, err := svc.CheckConflicts(context.Background(), slotRequest("cls-1", "tch-1", "08:30", "09:30"), "")
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)
	assert.Nil(t, repo.created)
}
