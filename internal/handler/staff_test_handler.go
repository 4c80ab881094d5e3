package handler

import (
	"errors"
	"mime"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/response"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
)

// StaffTestHandler handles staff endpoints for tests, grading and proctoring.
type StaffTestHandler struct {
	testService       *service.TestService
	submissionService *service.SubmissionService
	proctoringService *service.ProctoringService
	maxUploadBytes    int64
	log               zerolog.Logger
}

// NewStaffTestHandler creates a new StaffTestHandler.
func NewStaffTestHandler(
	testService *service.TestService,
	submissionService *service.SubmissionService,
	proctoringService *service.ProctoringService,
	maxUploadBytes int64,
	log zerolog.Logger,
) *StaffTestHandler {
	return &StaffTestHandler{
		testService:       testService,
		submissionService: submissionService,
		proctoringService: proctoringService,
		maxUploadBytes:    maxUploadBytes,
		log:               log.With().Str("component", "staff_test_handler").Logger(),
	}
}

// ─── Tests ──────────────────────────────────────────────────────────

// CreateTest godoc
// POST /api/v1/staff/tests
// Creates a test and assigns it to students.
func (h *StaffTestHandler) CreateTest(c *gin.Context) {
	claims := middleware.GetClaims(c)

	var req model.CreateTestRequest
	if fields := validator.BindJSON(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	test, err := h.testService.Create(c.Request.Context(), claims.UserID, req)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusCreated, gin.H{"test": test})
}

// ListTests godoc
// GET /api/v1/staff/tests
// Lists the tests created by the current staff member.
func (h *StaffTestHandler) ListTests(c *gin.Context) {
	claims := middleware.GetClaims(c)

	tests, err := h.testService.ListByAuthor(c.Request.Context(), claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"tests": tests})
}

// GetTest godoc
// GET /api/v1/staff/tests/:test_id
func (h *StaffTestHandler) GetTest(c *gin.Context) {
	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	test, err := h.testService.GetByID(c.Request.Context(), testID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"test": test})
}

// UploadPaper godoc
// PUT /api/v1/staff/tests/:test_id/paper
// Uploads the PDF paper of a PDF test (multipart field "file").
func (h *StaffTestHandler) UploadPaper(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes+multipartOverhead)
	header, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
			return
		}
		response.Fail(c, http.StatusBadRequest, response.ErrFileRequired)
		return
	}
	if header.Size > h.maxUploadBytes {
		response.Fail(c, http.StatusRequestEntityTooLarge, response.ErrFileTooLarge)
		return
	}

	file, err := header.Open()
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidPayload)
		return
	}
	defer file.Close()

	if err := h.testService.UploadPaper(c.Request.Context(), testID, claims.UserID, header.Filename, file, header.Size); err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// ─── Submissions ────────────────────────────────────────────────────

// ListSubmissions godoc
// GET /api/v1/staff/tests/:test_id/submissions
func (h *StaffTestHandler) ListSubmissions(c *gin.Context) {
	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	subs, err := h.submissionService.ListByTest(c.Request.Context(), testID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submissions": subs})
}

// GradeSubmission godoc
// PATCH /api/v1/staff/submissions/:submission_id/grade
// Records a grade from 0 to 100 and optional feedback.
func (h *StaffTestHandler) GradeSubmission(c *gin.Context) {
	claims := middleware.GetClaims(c)

	id, ok := paramUUID(c, "submission_id")
	if !ok {
		return
	}

	var req model.GradeSubmissionRequest
	if fields := validator.BindJSON(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	sub, err := h.submissionService.Grade(c.Request.Context(), id, req, claims.UserID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"submission": sub})
}

// DownloadSubmission godoc
// GET /api/v1/staff/submissions/:submission_id/file
// Streams the answer file as an attachment.
func (h *StaffTestHandler) DownloadSubmission(c *gin.Context) {
	id, ok := paramUUID(c, "submission_id")
	if !ok {
		return
	}

	sub, body, err := h.submissionService.OpenFile(c.Request.Context(), id)
	if err != nil {
		failWith(c, h.log, err)
		return
	}
	defer body.Close()

	c.DataFromReader(http.StatusOK, -1, service.ContentType(sub), body, map[string]string{
		"Content-Disposition": mime.FormatMediaType("attachment", map[string]string{"filename": sub.FileName}),
	})
}

// ─── Proctoring ─────────────────────────────────────────────────────

// ResetCompromise godoc
// POST /api/v1/tests/:test_id/reset-compromise/:student_id
// Clears a student's compromise flag so they can reopen the paper.
func (h *StaffTestHandler) ResetCompromise(c *gin.Context) {
	claims := middleware.GetClaims(c)

	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}
	studentID, ok := paramInt(c, "student_id")
	if !ok {
		return
	}

	if err := h.proctoringService.Reset(c.Request.Context(), testID, studentID, claims.UserID); err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"compromise": model.CompromiseReset})
}

// ListCompromiseEvents godoc
// GET /api/v1/staff/tests/:test_id/compromise-events
// Returns the audit log of flags and resets.
func (h *StaffTestHandler) ListCompromiseEvents(c *gin.Context) {
	testID, ok := paramUUID(c, "test_id")
	if !ok {
		return
	}

	events, err := h.proctoringService.Events(c.Request.Context(), testID)
	if err != nil {
		failWith(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}
