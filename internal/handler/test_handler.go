package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// multipartOverhead is allowed on top of the file size for form fields and
// part headers.
const multipartOverhead = 1 << 20

// TestHandler handles student-facing test endpoints.
type TestHandler struct {
	testService       *service.TestService
	submissionService *service.SubmissionService
	proctoringService *service.ProctoringService
	maxUploadBytes    int64
	log               zerolog.Logger
}

// NewTestHandler creates a new TestHandler.
func NewTestHandler(
	testService *service.TestService,
	submissionService *service.SubmissionService,
	proctoringService *service.ProctoringService,
	maxUploadBytes int64,
	log zerolog.Logger,
) *TestHandler {
	return &TestHandler{
		testService:       testService,
		submissionService: submissionService,
		proctoringService: proctoringService,
		maxUploadBytes:    maxUploadBytes,
		log:               log.With().Str("component", "test_handler").Logger(),
	}
}

// Available godoc
// GET /api/v1/tests/available
// Returns the student's tests grouped into upcoming, ongoing, submitted and expired.
func (h *TestHandler) Available(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	buckets, err := h.testService.ListForStudent(c.Request.Context(), claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, buckets)
}

// Content godoc
// GET /api/v1/tests/:test_id/content
// Streams the test paper: PDF bytes or plain text.
// Refused once the student is compromised, before the start and after the cutoff.
func (h *TestHandler) Content(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	paper, err := h.testService.GetContent(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	if paper.Type == model.ContentTypeText {
		c.Data(http.StatusOK, "text/plain; charset=utf-8", []byte(paper.Text))
		return
	}

	defer paper.Body.Close()
	c.DataFromReader(http.StatusOK, -1, "application/pdf", paper.Body, map[string]string{
		"Content-Disposition": `inline; filename="` + testID.String() + `.pdf"`,
	})
}

// Submit godoc
// POST /api/v1/tests/submit
// Accepts the multipart answer upload (testId, isLate, file). At most one per test.
func (h *TestHandler) Submit(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)

	var form model.SubmitForm
	if err := c.ShouldBind(&form); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		fields := validator.Translate(err)
		if _, missing := fields["file"]; missing {
			response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
			return
		}
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if form.File.Size > h.maxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	file, err := form.File.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	defer file.Close()

	sub, err := h.submissionService.Submit(c.Request.Context(), service.SubmitInput{
		TestID:     uuid.MustParse(form.TestID),
		StudentID:  claims.UserID,
		FileName:   form.File.Filename,
		Size:       form.File.Size,
		Body:       file,
		ClientLate: form.IsLate,
	})
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"submission": sub})
}

// ReportCompromise godoc
// POST /api/v1/tests/:test_id/compromise
// Records that the student left fullscreen. Idempotent; flagged_at is the
// time of the first report.
func (h *TestHandler) ReportCompromise(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	flaggedAt, err := h.proctoringService.ReportCompromise(c.Request.Context(), testID, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"compromise": model.CompromiseFlagged,
		"flagged_at": flaggedAt,
	})
}
