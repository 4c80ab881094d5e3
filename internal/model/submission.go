package model

import (
	"errors"
	"mime/multipart"
	"time"

	"github.com/google/uuid"
)

// ErrAlreadySubmitted means a submission already exists for the
// (test, student) pair. The server enforces at most one.
var ErrAlreadySubmitted = errors.New("test already submitted")

// Submission is a student's single answer file for a test. Students cannot
// change it once created; staff may grade it.
type Submission struct {
	ID          uuid.UUID  `json:"id"`
	TestID      uuid.UUID  `json:"test_id"`
	StudentID   int        `json:"student_id"`
	StudentName string     `json:"student_name,omitempty"`
	FileName    string     `json:"file_name"`
	ObjectKey   string     `json:"-"`
	SubmittedAt time.Time  `json:"submitted_at"`
	IsLate      bool       `json:"is_late"`
	Grade       *float64   `json:"grade"`
	Feedback    *string    `json:"feedback"`
	GradedBy    *int       `json:"graded_by,omitempty"`
	GradedAt    *time.Time `json:"graded_at,omitempty"`
}

// GradeSubmissionRequest is the payload for grading a submission.
type GradeSubmissionRequest struct {
	Grade    *float64 `json:"grade" binding:"required,min=0,max=100"`
	Feedback *string  `json:"feedback" binding:"omitempty,max=2000"`
}

// SubmitForm is the multipart payload of an answer upload.
type SubmitForm struct {
	TestID string                `form:"testId" binding:"required,uuid"`
	IsLate bool                  `form:"isLate"`
	File   *multipart.FileHeader `form:"file" binding:"required"`
}
