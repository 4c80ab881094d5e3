package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/storage"
	"github.com/stemsi/exstem-proctor/internal/websocket"
)

// SubmitInput is one uploaded answer file.
type SubmitInput struct {
	TestID    uuid.UUID
	StudentID int
	FileName  string
	Size      int64
	Body      io.Reader
	// ClientLate is the student's own late classification at submit time.
	ClientLate bool
}

// SubmissionService accepts answer files and serves them to staff.
type SubmissionService struct {
	submissionRepo *repository.SubmissionRepository
	testRepo       *repository.TestRepository
	proctoring     *ProctoringService
	store          storage.ObjectStorage
	leeway         time.Duration
	log            zerolog.Logger
	now            func() time.Time
}

// NewSubmissionService creates a new SubmissionService. leeway extends the
// cutoff to absorb upload transit time.
func NewSubmissionService(
	submissionRepo *repository.SubmissionRepository,
	testRepo *repository.TestRepository,
	proctoring *ProctoringService,
	store storage.ObjectStorage,
	leeway time.Duration,
	log zerolog.Logger,
) *SubmissionService {
	return &SubmissionService{
		submissionRepo: submissionRepo,
		testRepo:       testRepo,
		proctoring:     proctoring,
		store:          store,
		leeway:         leeway,
		log:            log.With().Str("component", "submission_service").Logger(),
		now:            time.Now,
	}
}

// checkWindow decides whether a submission received at now is accepted and
// whether it is late.
func checkWindow(t *model.Test, now time.Time, leeway time.Duration, clientLate bool) (late bool, err error) {
	if !t.HasStarted(now) {
		return false, ErrTestNotStarted
	}
	if now.After(t.Cutoff().Add(leeway)) {
		return false, ErrTestClosed
	}
	return clientLate || t.IsLate(now), nil
}

// Submit stores the answer file and records the submission. At most one
// submission per (test, student) is kept; later ones get
// model.ErrAlreadySubmitted. A compromised student may still submit.
func (s *SubmissionService) Submit(ctx context.Context, in SubmitInput) (*model.Submission, error) {
	if err := model.ValidateAnswerFile(in.FileName, in.Size); err != nil {
		return nil, err
	}

	t, err := s.testRepo.GetForStudent(ctx, in.TestID, in.StudentID)
	if err != nil {
		return nil, err
	}
	if t.HasSubmitted {
		return nil, model.ErrAlreadySubmitted
	}

	now := s.now()
	late, err := checkWindow(t, now, s.leeway, in.ClientLate)
	if err != nil {
		return nil, err
	}

	ext := strings.ToLower(filepath.Ext(in.FileName))
	key := storage.SubmissionKey(in.TestID.String(), in.StudentID, uuid.NewString(), ext)
	if err := s.store.Put(ctx, key, in.Body, in.Size, answerContentType(ext)); err != nil {
		return nil, fmt.Errorf("store answer: %w", err)
	}

	sub := &model.Submission{
		TestID:      in.TestID,
		StudentID:   in.StudentID,
		FileName:    filepath.Base(in.FileName),
		ObjectKey:   key,
		SubmittedAt: now,
		IsLate:      late,
	}
	if err := s.submissionRepo.Create(ctx, sub); err != nil {
		// The object is orphaned either way; the winner keeps its own key.
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log.Warn().Err(delErr).Str("key", key).Msg("Failed to delete orphaned answer file")
		}
		if errors.Is(err, model.ErrAlreadySubmitted) {
			return nil, err
		}
		return nil, fmt.Errorf("record submission: %w", err)
	}

	s.log.Info().
		Str("test_id", in.TestID.String()).
		Int("student_id", in.StudentID).
		Bool("is_late", late).
		Bool("client_late", in.ClientLate).
		Msg("Submission accepted")

	s.proctoring.Publish(ctx, websocket.MonitorEvent{
		Event:      websocket.EventSubmitted,
		TestID:     in.TestID,
		StudentID:  in.StudentID,
		Submission: sub,
		At:         now,
	})
	return sub, nil
}

func answerContentType(ext string) string {
	switch ext {
	case ".pdf":
		return "application/pdf"
	case ".doc":
		return "application/msword"
	case ".docx":
		return "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	}
	return "application/octet-stream"
}

// ListByTest lists every submission of a test.
func (s *SubmissionService) ListByTest(ctx context.Context, testID uuid.UUID) ([]model.Submission, error) {
	if _, err := s.testRepo.GetByID(ctx, testID); err != nil {
		return nil, err
	}
	subs, err := s.submissionRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if subs == nil {
		subs = []model.Submission{}
	}
	return subs, nil
}

// Grade records a grade and optional feedback.
func (s *SubmissionService) Grade(ctx context.Context, id uuid.UUID, req model.GradeSubmissionRequest, staffID int) (*model.Submission, error) {
	if err := s.submissionRepo.Grade(ctx, id, *req.Grade, req.Feedback, staffID, s.now()); err != nil {
		return nil, err
	}
	return s.submissionRepo.GetByID(ctx, id)
}

// OpenFile returns a submission with a reader over its answer file. The
// caller must close the reader.
func (s *SubmissionService) OpenFile(ctx context.Context, id uuid.UUID) (*model.Submission, io.ReadCloser, error) {
	sub, err := s.submissionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	body, err := s.store.Get(ctx, sub.ObjectKey)
	if err != nil {
		return nil, nil, fmt.Errorf("open answer file: %w", err)
	}
	return sub, body, nil
}

// ContentType returns the MIME type of a submission's answer file.
func ContentType(sub *model.Submission) string {
	return answerContentType(strings.ToLower(filepath.Ext(sub.FileName)))
}
