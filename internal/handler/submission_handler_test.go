package handler

import (
	"bytes"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/sekolahku/sis-core-api/internal/service"
)

func multipartSubmission(t *testing.T, fileSize int) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	require.NoError(t, writer.WriteField("assignment_id", "asg-1"))
	require.NoError(t, writer.WriteField("student_id", "std-1"))
	part, err := writer.CreateFormFile("file", "answer.pdf")
	require.NoError(t, err)
	_, err = part.Write(bytes.Repeat([]byte("a"), fileSize))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return body, writer.FormDataContentType()
}

func TestSubmissionHandlerRejectsOversizedUpload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewSubmissionService(nil, nil, nil, nil, nil)
	handler := NewSubmissionHandler(svc, 64)

	body, contentType := multipartSubmission(t, 256)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/submissions", body)
	req.Header.Set("Content-Type", contentType)
	c.Request = req

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestSubmissionHandlerInvalidJSONBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := service.NewSubmissionService(nil, nil, nil, nil, nil)
	handler := NewSubmissionHandler(svc, 0)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/submissions", bytes.NewBufferString(`{"assignment_id":`))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req

	handler.Submit(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
