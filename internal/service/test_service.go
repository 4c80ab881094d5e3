package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/storage"
)

// Test access errors.
var (
	ErrTestNotStarted    = errors.New("test has not started")
	ErrTestClosed        = errors.New("test is closed")
	ErrTestCompromised   = errors.New("test compromised, ask staff to reset")
	ErrPaperNotAvailable = errors.New("test paper not uploaded")
	ErrNotTestAuthor     = errors.New("only the test author may change it")
	ErrNotPDFTest        = errors.New("test does not take a PDF paper")
)

// paperCacheTTL bounds how long a paper lookup is served from Redis.
const paperCacheTTL = 10 * time.Minute

// Paper is a test paper ready to be sent to a student. Body is set for PDF
// papers and must be closed by the caller.
type Paper struct {
	Type model.ContentType
	Text string
	Body io.ReadCloser
}

// TestService handles test lifecycle and paper delivery.
type TestService struct {
	testRepo   *repository.TestRepository
	proctoring *ProctoringService
	store      storage.ObjectStorage
	rdb        *redis.Client
	log        zerolog.Logger
	now        func() time.Time
}

// NewTestService creates a new TestService.
func NewTestService(
	testRepo *repository.TestRepository,
	proctoring *ProctoringService,
	store storage.ObjectStorage,
	rdb *redis.Client,
	log zerolog.Logger,
) *TestService {
	return &TestService{
		testRepo:   testRepo,
		proctoring: proctoring,
		store:      store,
		rdb:        rdb,
		log:        log.With().Str("component", "test_service").Logger(),
		now:        time.Now,
	}
}

// Create stores a new test assigned to the given students.
func (s *TestService) Create(ctx context.Context, authorID int, req model.CreateTestRequest) (*model.Test, error) {
	t := &model.Test{
		Title:           req.Title,
		Description:     req.Description,
		ContentType:     req.ContentType,
		StartTime:       req.StartTime.UTC(),
		DurationMinutes: req.DurationMinutes,
		AuthorID:        authorID,
	}
	if err := s.testRepo.Create(ctx, t, req.Text, dedupe(req.StudentIDs)); err != nil {
		return nil, err
	}
	s.log.Info().Str("test_id", t.ID.String()).Int("author_id", authorID).Msg("Test created")
	return t, nil
}

func dedupe(ids []int) []int {
	seen := make(map[int]struct{}, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// GetByID retrieves a test by ID.
func (s *TestService) GetByID(ctx context.Context, id uuid.UUID) (*model.Test, error) {
	return s.testRepo.GetByID(ctx, id)
}

// ListByAuthor lists the tests a staff member created.
func (s *TestService) ListByAuthor(ctx context.Context, authorID int) ([]model.Test, error) {
	tests, err := s.testRepo.ListByAuthor(ctx, authorID)
	if err != nil {
		return nil, err
	}
	if tests == nil {
		tests = []model.Test{}
	}
	return tests, nil
}

// ListForStudent returns the student's tests grouped by lifecycle, each
// carrying the student's compromise status.
func (s *TestService) ListForStudent(ctx context.Context, studentID int) (*model.TestBuckets, error) {
	tests, err := s.testRepo.ListForStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list tests: %w", err)
	}

	ids := make([]uuid.UUID, len(tests))
	for i := range tests {
		ids[i] = tests[i].ID
	}
	statuses, err := s.proctoring.StatusesForStudent(ctx, studentID, ids)
	if err != nil {
		// The list is still useful without the overlay; content access
		// re-checks the status.
		s.log.Warn().Err(err).Int("student_id", studentID).Msg("Listing tests without compromise status")
	}
	for i := range tests {
		rec := statuses[tests[i].ID]
		tests[i].Compromise = rec.Status
		if !rec.At.IsZero() {
			at := rec.At
			tests[i].CompromiseAt = &at
		}
	}

	buckets := model.Bucket(tests, s.now())
	return &buckets, nil
}

// checkAccess decides whether a student may read the paper at now.
func checkAccess(t *model.Test, status model.CompromiseStatus, now time.Time) error {
	switch {
	case t.HasSubmitted:
		return model.ErrAlreadySubmitted
	case !t.HasStarted(now):
		return ErrTestNotStarted
	case t.TimeLeft(now) == 0:
		return ErrTestClosed
	case status == model.CompromiseFlagged:
		return ErrTestCompromised
	}
	return nil
}

// GetContent returns the paper of a test for a student, enforcing
// assignment, timing and compromise rules.
func (s *TestService) GetContent(ctx context.Context, testID uuid.UUID, studentID int) (*Paper, error) {
	t, err := s.testRepo.GetForStudent(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	status, err := s.proctoring.Status(ctx, testID, studentID)
	if err != nil {
		return nil, err
	}
	if err := checkAccess(t, status, s.now()); err != nil {
		return nil, err
	}

	paper, err := s.paper(ctx, testID)
	if err != nil {
		return nil, err
	}

	if paper.Type == model.ContentTypeText {
		return &Paper{Type: model.ContentTypeText, Text: paper.Text}, nil
	}
	if paper.PaperKey == "" {
		return nil, ErrPaperNotAvailable
	}
	body, err := s.store.Get(ctx, paper.PaperKey)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrPaperNotAvailable
	}
	if err != nil {
		return nil, fmt.Errorf("open paper: %w", err)
	}
	return &Paper{Type: model.ContentTypePDF, Body: body}, nil
}

// paper reads the paper location through the Redis payload cache.
func (s *TestService) paper(ctx context.Context, testID uuid.UUID) (*repository.TestPaper, error) {
	key := config.CacheKey.TestPayloadKey(testID.String())

	if raw, err := s.rdb.Get(ctx, key).Bytes(); err == nil {
		var p repository.TestPaper
		if json.Unmarshal(raw, &p) == nil {
			return &p, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		s.log.Warn().Err(err).Msg("Paper cache read failed")
	}

	p, err := s.testRepo.GetPaper(ctx, testID)
	if err != nil {
		return nil, err
	}
	if raw, err := json.Marshal(p); err == nil {
		if err := s.rdb.Set(ctx, key, raw, paperCacheTTL).Err(); err != nil {
			s.log.Warn().Err(err).Msg("Paper cache write failed")
		}
	}
	return p, nil
}

// UploadPaper stores the PDF paper of a test. Only the author may upload.
func (s *TestService) UploadPaper(ctx context.Context, testID uuid.UUID, staffID int, name string, r io.Reader, size int64) error {
	t, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return err
	}
	if t.AuthorID != staffID {
		return ErrNotTestAuthor
	}
	if t.ContentType != model.ContentTypePDF {
		return ErrNotPDFTest
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return fmt.Errorf("%w: %q (allowed: .pdf)", model.ErrUnsupportedFile, filepath.Ext(name))
	}

	key := storage.PaperKey(testID.String())
	if err := s.store.Put(ctx, key, r, size, "application/pdf"); err != nil {
		return fmt.Errorf("store paper: %w", err)
	}
	if err := s.testRepo.SetPaperKey(ctx, testID, key); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotPDFTest
		}
		return err
	}
	if err := s.rdb.Del(ctx, config.CacheKey.TestPayloadKey(testID.String())).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Paper cache invalidation failed")
	}

	s.log.Info().Str("test_id", testID.String()).Int64("size", size).Msg("Test paper uploaded")
	return nil
}
