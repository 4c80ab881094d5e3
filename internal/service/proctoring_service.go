package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/websocket"
	"github.com/stemsi/exstem-proctor/internal/worker"
)

// ProctoringService tracks compromise state and feeds the live monitor.
//
// The current state per (test, student) lives in a Redis hash so reads on the
// hot path stay off Postgres. Every transition is also queued for the
// compromise worker, which appends it to the audit log.
type ProctoringService struct {
	testRepo       *repository.TestRepository
	submissionRepo *repository.SubmissionRepository
	compromiseRepo *repository.CompromiseRepository
	rdb            *redis.Client
	log            zerolog.Logger
	now            func() time.Time
}

// NewProctoringService creates a new ProctoringService.
func NewProctoringService(
	testRepo *repository.TestRepository,
	submissionRepo *repository.SubmissionRepository,
	compromiseRepo *repository.CompromiseRepository,
	rdb *redis.Client,
	log zerolog.Logger,
) *ProctoringService {
	return &ProctoringService{
		testRepo:       testRepo,
		submissionRepo: submissionRepo,
		compromiseRepo: compromiseRepo,
		rdb:            rdb,
		log:            log.With().Str("component", "proctoring").Logger(),
		now:            time.Now,
	}
}

// ReportCompromise flags a student for a test and returns when the flag was
// raised. Reporting twice is a no-op that returns the original time.
func (s *ProctoringService) ReportCompromise(ctx context.Context, testID uuid.UUID, studentID int) (time.Time, error) {
	if _, err := s.testRepo.GetForStudent(ctx, testID, studentID); err != nil {
		return time.Time{}, err
	}

	key := config.CacheKey.TestCompromiseKey(testID.String())
	vals, err := s.rdb.HMGet(ctx, key, strconv.Itoa(studentID), config.CacheKey.CompromiseAtField(studentID)).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("read compromise status: %w", err)
	}
	if rec := compromiseRecord(vals); rec.Status == model.CompromiseFlagged && !rec.At.IsZero() {
		return rec.At, nil
	}

	return s.transition(ctx, testID, studentID, 0, model.CompromiseFlagged, model.CompromiseEventFlagged, websocket.EventFlagged)
}

// Reset clears a student's compromise flag so the paper can be opened again.
func (s *ProctoringService) Reset(ctx context.Context, testID uuid.UUID, studentID, staffID int) error {
	if _, err := s.testRepo.GetForStudent(ctx, testID, studentID); err != nil {
		return err
	}
	_, err := s.transition(ctx, testID, studentID, staffID, model.CompromiseReset, model.CompromiseEventReset, websocket.EventReset)
	return err
}

func (s *ProctoringService) transition(
	ctx context.Context,
	testID uuid.UUID,
	studentID, actorID int,
	status model.CompromiseStatus,
	kind model.CompromiseEventKind,
	event websocket.Event,
) (time.Time, error) {
	now := s.now().UTC()
	key := config.CacheKey.TestCompromiseKey(testID.String())

	payload, err := json.Marshal(worker.NewCompromisePayload(model.CompromiseEvent{
		TestID:     testID,
		StudentID:  studentID,
		Kind:       kind,
		ActorID:    actorID,
		RecordedAt: now,
	}))
	if err != nil {
		return time.Time{}, fmt.Errorf("marshal compromise payload: %w", err)
	}

	// Status, its timestamp and the audit entry are written together.
	_, err = s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key,
			strconv.Itoa(studentID), string(status),
			config.CacheKey.CompromiseAtField(studentID), now.Format(time.RFC3339Nano),
		)
		pipe.RPush(ctx, config.WorkerKey.PersistCompromiseQueue, payload)
		return nil
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("store compromise status: %w", err)
	}

	s.log.Info().
		Str("test_id", testID.String()).
		Int("student_id", studentID).
		Int("actor_id", actorID).
		Str("status", string(status)).
		Msg("Compromise status changed")

	s.Publish(ctx, websocket.MonitorEvent{
		Event:     event,
		TestID:    testID,
		StudentID: studentID,
		ActorID:   actorID,
		At:        now,
	})
	return now, nil
}

// Status returns the compromise status of one student. The empty status means
// nothing was reported.
func (s *ProctoringService) Status(ctx context.Context, testID uuid.UUID, studentID int) (model.CompromiseStatus, error) {
	v, err := s.rdb.HGet(ctx, config.CacheKey.TestCompromiseKey(testID.String()), strconv.Itoa(studentID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("read compromise status: %w", err)
	}
	return model.CompromiseStatus(v), nil
}

// Statuses returns every recorded status of a test keyed by student id.
func (s *ProctoringService) Statuses(ctx context.Context, testID uuid.UUID) (map[int]model.CompromiseStatus, error) {
	raw, err := s.rdb.HGetAll(ctx, config.CacheKey.TestCompromiseKey(testID.String())).Result()
	if err != nil {
		return nil, fmt.Errorf("read compromise statuses: %w", err)
	}
	out := make(map[int]model.CompromiseStatus, len(raw))
	for field, v := range raw {
		id, err := strconv.Atoi(field)
		if err != nil {
			continue
		}
		out[id] = model.CompromiseStatus(v)
	}
	return out, nil
}

// StatusesForStudent returns the student's status on each test, with the
// time it was set, in one round trip.
func (s *ProctoringService) StatusesForStudent(ctx context.Context, studentID int, testIDs []uuid.UUID) (map[uuid.UUID]model.CompromiseRecord, error) {
	out := make(map[uuid.UUID]model.CompromiseRecord, len(testIDs))
	if len(testIDs) == 0 {
		return out, nil
	}

	field := strconv.Itoa(studentID)
	atField := config.CacheKey.CompromiseAtField(studentID)
	cmds := make([]*redis.SliceCmd, len(testIDs))
	_, err := s.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range testIDs {
			cmds[i] = pipe.HMGet(ctx, config.CacheKey.TestCompromiseKey(id.String()), field, atField)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("read compromise statuses: %w", err)
	}
	for i, cmd := range cmds {
		if rec := compromiseRecord(cmd.Val()); rec.Status != "" {
			out[testIDs[i]] = rec
		}
	}
	return out, nil
}

// compromiseRecord decodes an HMGET of the status and timestamp fields.
// Missing fields come back as nil.
func compromiseRecord(vals []any) model.CompromiseRecord {
	var rec model.CompromiseRecord
	if len(vals) != 2 {
		return rec
	}
	if v, ok := vals[0].(string); ok {
		rec.Status = model.CompromiseStatus(v)
	}
	if v, ok := vals[1].(string); ok {
		rec.At, _ = time.Parse(time.RFC3339Nano, v)
	}
	return rec
}

// Events returns the compromise audit log of a test.
func (s *ProctoringService) Events(ctx context.Context, testID uuid.UUID) ([]model.CompromiseEvent, error) {
	events, err := s.compromiseRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.CompromiseEvent{}
	}
	return events, nil
}

// Snapshot builds the initial monitor view of a test.
func (s *ProctoringService) Snapshot(ctx context.Context, testID uuid.UUID) (*websocket.SnapshotResponse, error) {
	test, err := s.testRepo.GetByID(ctx, testID)
	if err != nil {
		return nil, err
	}
	studentIDs, err := s.testRepo.ListAssignedStudentIDs(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list assigned students: %w", err)
	}
	subs, err := s.submissionRepo.ListByTest(ctx, testID)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	statuses, err := s.Statuses(ctx, testID)
	if err != nil {
		// Best-effort: the stream will still carry new transitions.
		s.log.Warn().Err(err).Str("test_id", testID.String()).Msg("Snapshot without compromise statuses")
		statuses = map[int]model.CompromiseStatus{}
	}

	return &websocket.SnapshotResponse{
		Event:    websocket.EventSnapshot,
		Test:     *test,
		Students: buildStudentStatuses(studentIDs, subs, statuses),
	}, nil
}

func buildStudentStatuses(studentIDs []int, subs []model.Submission, statuses map[int]model.CompromiseStatus) []websocket.StudentStatus {
	byStudent := make(map[int]*model.Submission, len(subs))
	for i := range subs {
		byStudent[subs[i].StudentID] = &subs[i]
	}

	out := make([]websocket.StudentStatus, 0, len(studentIDs))
	for _, id := range studentIDs {
		st := websocket.StudentStatus{StudentID: id, Compromise: statuses[id]}
		if sub, ok := byStudent[id]; ok {
			st.Submitted = true
			st.IsLate = sub.IsLate
			at := sub.SubmittedAt
			st.SubmittedAt = &at
		}
		out = append(out, st)
	}
	return out
}

// Publish sends ev to everyone watching the test. Failures are logged only.
func (s *ProctoringService) Publish(ctx context.Context, ev websocket.MonitorEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to marshal monitor event")
		return
	}
	if err := s.rdb.Publish(ctx, config.CacheKey.TestMonitorChannel(ev.TestID.String()), data).Err(); err != nil {
		s.log.Warn().Err(err).Str("test_id", ev.TestID.String()).Msg("Failed to publish monitor event")
	}
}

// Subscribe opens a pub/sub subscription to a test's monitor channel. The
// caller must close it.
func (s *ProctoringService) Subscribe(ctx context.Context, testID uuid.UUID) *redis.PubSub {
	return s.rdb.Subscribe(ctx, config.CacheKey.TestMonitorChannel(testID.String()))
}
