package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/sekolahku/sis-core-api/internal/models"
	"github.com/sekolahku/sis-core-api/internal/service"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
	"github.com/sekolahku/sis-core-api/pkg/response"
)

// GradeHandler exposes grading and statistics endpoints.
type GradeHandler struct {
	grades *service.GradeService
}

// NewGradeHandler constructs handler.
func NewGradeHandler(grades *service.GradeService) *GradeHandler {
	return &GradeHandler{grades: grades}
}

// List godoc
// @Summary List grades
// @Tags Grades
// @Produce json
// @Param enrollmentId query string false "Filter by enrollment"
// @Param classId query string false "Filter by class"
// @Param subjectId query string false "Filter by subject"
// @Param teacherId query string false "Filter by teacher"
// @Param academicYearId query string false "Filter by academic year"
// @Param assessmentType query string false "Filter by assessment type"
// @Param semester query int false "Filter by semester"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /grades [get]
func (h *GradeHandler) List(c *gin.Context) {
	filter := models.GradeFilter{
		EnrollmentID:   c.Query("enrollmentId"),
		ClassID:        c.Query("classId"),
		SubjectID:      c.Query("subjectId"),
		TeacherID:      c.Query("teacherId"),
		AcademicYearID: c.Query("academicYearId"),
		AssessmentType: models.AssessmentType(c.Query("assessmentType")),
		SortBy:         c.Query("sort"),
		SortOrder:      c.Query("order"),
	}
	filter.Semester, _ = strconv.Atoi(c.Query("semester"))
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))

	grades, total, err := h.grades.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grades, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Record godoc
// @Summary Record one grade entry
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.RecordGradeRequest true "Grade payload"
// @Success 201 {object} response.Envelope
// @Router /grades [post]
func (h *GradeHandler) Record(c *gin.Context) {
	var req service.RecordGradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	grade, err := h.grades.Record(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grade)
}

// BulkRecord godoc
// @Summary Record grades for a whole class in one call
// @Tags Grades
// @Accept json
// @Produce json
// @Param payload body service.BulkRecordGradesRequest true "Bulk grade payload"
// @Success 200 {object} response.Envelope
// @Router /grades/bulk [post]
func (h *GradeHandler) BulkRecord(c *gin.Context) {
	var req service.BulkRecordGradesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	recorded, err := h.grades.BulkRecord(c.Request.Context(), req, actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"recorded": recorded}, nil)
}

// ClassStatistics godoc
// @Summary Aggregated grade statistics for a class
// @Tags Grades
// @Produce json
// @Param classId query string true "Class ID"
// @Param academicYearId query string true "Academic year ID"
// @Param semester query int false "Semester"
// @Success 200 {object} response.Envelope
// @Router /grades/statistics/class [get]
func (h *GradeHandler) ClassStatistics(c *gin.Context) {
	semester, _ := strconv.Atoi(c.Query("semester"))
	stats, err := h.grades.ClassStatistics(c.Request.Context(), c.Query("classId"), c.Query("academicYearId"), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// StudentStatistics godoc
// @Summary Aggregated grade statistics for a student
// @Tags Grades
// @Produce json
// @Param studentId query string true "Student ID"
// @Param academicYearId query string true "Academic year ID"
// @Param semester query int false "Semester"
// @Success 200 {object} response.Envelope
// @Router /grades/statistics/student [get]
func (h *GradeHandler) StudentStatistics(c *gin.Context) {
	semester, _ := strconv.Atoi(c.Query("semester"))
	stats, err := h.grades.StudentStatistics(c.Request.Context(), c.Query("studentId"), c.Query("academicYearId"), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, stats, nil)
}

// Distribution godoc
// @Summary Letter grade distribution for a class
// @Tags Grades
// @Produce json
// @Param classId query string true "Class ID"
// @Param academicYearId query string true "Academic year ID"
// @Param semester query int false "Semester"
// @Success 200 {object} response.Envelope
// @Router /grades/distribution [get]
func (h *GradeHandler) Distribution(c *gin.Context) {
	semester, _ := strconv.Atoi(c.Query("semester"))
	buckets, err := h.grades.Distribution(c.Request.Context(), c.Query("classId"), c.Query("academicYearId"), semester)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, buckets, nil)
}
