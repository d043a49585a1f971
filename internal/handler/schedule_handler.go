package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sekolahku/sis-core-api/internal/models"
	"github.com/sekolahku/sis-core-api/internal/service"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
	"github.com/sekolahku/sis-core-api/pkg/response"
)

// ScheduleHandler exposes timetable endpoints.
type ScheduleHandler struct {
	schedules *service.ScheduleService
}

// NewScheduleHandler constructs handler.
func NewScheduleHandler(schedules *service.ScheduleService) *ScheduleHandler {
	return &ScheduleHandler{schedules: schedules}
}

// scheduleError maps conflict errors to 409 with the colliding slots in the
// body, everything else goes through the common error path.
func scheduleError(c *gin.Context, err error) {
	var conflict *models.ScheduleConflictError
	if errors.As(err, &conflict) {
		response.JSON(c, http.StatusConflict, conflict, nil)
		return
	}
	response.Error(c, err)
}

// List godoc
// @Summary List schedule slots
// @Tags Schedules
// @Produce json
// @Param academicYearId query string false "Filter by academic year"
// @Param classId query string false "Filter by class"
// @Param teacherId query string false "Filter by teacher"
// @Param subjectId query string false "Filter by subject"
// @Param day query string false "Filter by day of week"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /schedules [get]
func (h *ScheduleHandler) List(c *gin.Context) {
	filter := models.ScheduleFilter{
		AcademicYearID: c.Query("academicYearId"),
		ClassID:        c.Query("classId"),
		TeacherID:      c.Query("teacherId"),
		SubjectID:      c.Query("subjectId"),
		DayOfWeek:      c.Query("day"),
		SortBy:         c.Query("sort"),
		SortOrder:      c.Query("order"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if raw := c.Query("active"); raw != "" {
		active := raw == "true"
		filter.IsActive = &active
	}

	schedules, total, err := h.schedules.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedules, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get schedule slot by id
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id} [get]
func (h *ScheduleHandler) Get(c *gin.Context) {
	schedule, err := h.schedules.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Status godoc
// @Summary Live status of a schedule slot
// @Description Reports whether the slot is in session at the reference time and when it next starts.
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Param at query string false "Reference time, RFC3339; defaults to now"
// @Success 200 {object} response.Envelope
// @Router /schedules/{id}/status [get]
func (h *ScheduleHandler) Status(c *gin.Context) {
	ref := time.Now()
	if raw := c.Query("at"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "reference time must be RFC3339"))
			return
		}
		ref = parsed
	}
	status, err := h.schedules.Status(c.Request.Context(), c.Param("id"), ref)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// Create godoc
// @Summary Create schedule slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.UpsertScheduleRequest true "Schedule payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Conflicting slots"
// @Router /schedules [post]
func (h *ScheduleHandler) Create(c *gin.Context) {
	var req service.UpsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.schedules.Create(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		scheduleError(c, err)
		return
	}
	response.Created(c, schedule)
}

// Update godoc
// @Summary Update schedule slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Schedule ID"
// @Param payload body service.UpsertScheduleRequest true "Schedule payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope "Conflicting slots"
// @Router /schedules/{id} [put]
func (h *ScheduleHandler) Update(c *gin.Context) {
	var req service.UpsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	schedule, err := h.schedules.Update(c.Request.Context(), c.Param("id"), req, actorFromContext(c))
	if err != nil {
		scheduleError(c, err)
		return
	}
	response.JSON(c, http.StatusOK, schedule, nil)
}

// Delete godoc
// @Summary Delete schedule slot
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Success 204 "No Content"
// @Router /schedules/{id} [delete]
func (h *ScheduleHandler) Delete(c *gin.Context) {
	if err := h.schedules.Delete(c.Request.Context(), c.Param("id"), actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// SetActive godoc
// @Summary Activate or deactivate a schedule slot
// @Tags Schedules
// @Produce json
// @Param id path string true "Schedule ID"
// @Param active query bool true "Target state"
// @Success 204 "No Content"
// @Router /schedules/{id}/active [patch]
func (h *ScheduleHandler) SetActive(c *gin.Context) {
	active := c.Query("active") == "true"
	if err := h.schedules.SetActive(c.Request.Context(), c.Param("id"), active, actorFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// CheckConflicts godoc
// @Summary Dry-run conflict check for a proposed slot
// @Tags Schedules
// @Accept json
// @Produce json
// @Param payload body service.UpsertScheduleRequest true "Proposed slot"
// @Param excludeId query string false "Schedule to exclude, for edits"
// @Success 200 {object} response.Envelope
// @Router /schedules/check-conflicts [post]
func (h *ScheduleHandler) CheckConflicts(c *gin.Context) {
	var req service.UpsertScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	conflicts, err := h.schedules.CheckConflicts(c.Request.Context(), req, c.Query("excludeId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"conflicts": conflicts, "has_conflicts": len(conflicts) > 0}, nil)
}

// Timetable godoc
// @Summary Weekly timetable grouped by day
// @Tags Schedules
// @Produce json
// @Param academicYearId query string true "Academic year ID"
// @Param classId query string false "Class scope"
// @Param teacherId query string false "Teacher scope"
// @Success 200 {object} response.Envelope
// @Router /schedules/timetable [get]
func (h *ScheduleHandler) Timetable(c *gin.Context) {
	timetable, err := h.schedules.WeeklyTimetable(c.Request.Context(), c.Query("academicYearId"), c.Query("classId"), c.Query("teacherId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, timetable, nil)
}
