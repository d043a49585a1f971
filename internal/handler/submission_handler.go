package handler

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/sekolahku/sis-core-api/internal/models"
	"github.com/sekolahku/sis-core-api/internal/service"
	appErrors "github.com/sekolahku/sis-core-api/pkg/errors"
	"github.com/sekolahku/sis-core-api/pkg/response"
)

// SubmissionHandler exposes submission lifecycle endpoints.
type SubmissionHandler struct {
	submissions *service.SubmissionService
	maxUpload   int64
}

// NewSubmissionHandler constructs handler. maxUpload caps attachment size in
// bytes, zero disables the cap.
func NewSubmissionHandler(submissions *service.SubmissionService, maxUpload int64) *SubmissionHandler {
	return &SubmissionHandler{submissions: submissions, maxUpload: maxUpload}
}

// List godoc
// @Summary List submissions
// @Tags Submissions
// @Produce json
// @Param assignmentId query string false "Filter by assignment"
// @Param studentId query string false "Filter by student"
// @Param status query string false "Filter by status"
// @Param late query bool false "Filter by lateness"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /submissions [get]
func (h *SubmissionHandler) List(c *gin.Context) {
	filter := models.SubmissionFilter{
		AssignmentID: c.Query("assignmentId"),
		StudentID:    c.Query("studentId"),
		Status:       models.SubmissionStatus(c.Query("status")),
		SortBy:       c.Query("sort"),
		SortOrder:    c.Query("order"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("limit", "20"))
	if raw := c.Query("late"); raw != "" {
		late := raw == "true"
		filter.IsLate = &late
	}

	submissions, total, err := h.submissions.ListSubmissions(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submissions, &models.Pagination{
		Page:       filter.Page,
		PageSize:   filter.PageSize,
		TotalCount: total,
	})
}

// Get godoc
// @Summary Get submission by id
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [get]
func (h *SubmissionHandler) Get(c *gin.Context) {
	submission, err := h.submissions.GetSubmission(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Submit godoc
// @Summary Submit work for an assignment
// @Description Accepts JSON or multipart form data. Multipart requests may
// @Description attach a single file under the "file" field.
// @Tags Submissions
// @Accept json
// @Accept mpfd
// @Produce json
// @Param assignment_id formData string true "Assignment ID"
// @Param student_id formData string true "Student ID"
// @Param content formData string false "Text answer"
// @Param file formData file false "Attachment"
// @Success 201 {object} response.Envelope
// @Router /submissions [post]
func (h *SubmissionHandler) Submit(c *gin.Context) {
	req, err := h.bindSubmit(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	submission, err := h.submissions.Submit(c.Request.Context(), *req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, submission)
}

func (h *SubmissionHandler) bindSubmit(c *gin.Context) (*service.SubmitRequest, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req service.SubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
		}
		return &req, nil
	}

	req := service.SubmitRequest{
		AssignmentID: c.PostForm("assignment_id"),
		StudentID:    c.PostForm("student_id"),
	}
	if content := c.PostForm("content"); content != "" {
		req.Content = &content
	}
	name, data, err := h.readUpload(c)
	if err != nil {
		return nil, err
	}
	req.FileName = name
	req.FileData = data
	return &req, nil
}

func (h *SubmissionHandler) bindResubmit(c *gin.Context) (*service.ResubmitRequest, error) {
	if !strings.HasPrefix(c.ContentType(), "multipart/") {
		var req service.ResubmitRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload")
		}
		return &req, nil
	}

	var req service.ResubmitRequest
	if content := c.PostForm("content"); content != "" {
		req.Content = &content
	}
	name, data, err := h.readUpload(c)
	if err != nil {
		return nil, err
	}
	req.FileName = name
	req.FileData = data
	return &req, nil
}

// readUpload extracts the optional "file" part of a multipart request,
// enforcing the size cap.
func (h *SubmissionHandler) readUpload(c *gin.Context) (*string, []byte, error) {
	header, err := c.FormFile("file")
	if err != nil && err != http.ErrMissingFile {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid upload")
	}
	if header == nil {
		return nil, nil, nil
	}
	if h.maxUpload > 0 && header.Size > h.maxUpload {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "attachment exceeds the size limit")
	}
	file, err := header.Open()
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload")
	}
	name := header.Filename
	return &name, data, nil
}

// Resubmit godoc
// @Summary Replace an ungraded submission
// @Description Accepts JSON or multipart form data. Graded and returned
// @Description submissions cannot be changed.
// @Tags Submissions
// @Accept json
// @Accept mpfd
// @Produce json
// @Param id path string true "Submission ID"
// @Param content formData string false "Text answer"
// @Param file formData file false "Attachment"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id} [put]
func (h *SubmissionHandler) Resubmit(c *gin.Context) {
	req, err := h.bindResubmit(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	submission, err := h.submissions.Resubmit(c.Request.Context(), c.Param("id"), *req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Grade godoc
// @Summary Grade a submission
// @Tags Submissions
// @Accept json
// @Produce json
// @Param id path string true "Submission ID"
// @Param payload body service.GradeSubmissionRequest true "Grading payload"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/grade [post]
func (h *SubmissionHandler) Grade(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	var req service.GradeSubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	submission, err := h.submissions.Grade(c.Request.Context(), c.Param("id"), req, claims.UserID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}

// Return godoc
// @Summary Return a graded submission to the student
// @Tags Submissions
// @Produce json
// @Param id path string true "Submission ID"
// @Success 200 {object} response.Envelope
// @Router /submissions/{id}/return [post]
func (h *SubmissionHandler) Return(c *gin.Context) {
	submission, err := h.submissions.Return(c.Request.Context(), c.Param("id"), actorFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, submission, nil)
}
