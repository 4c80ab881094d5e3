package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis
)

// EventSink is where compromise events end up.
type EventSink interface {
	BulkInsert(ctx context.Context, events []model.CompromiseEvent) (int64, error)
	Insert(ctx context.Context, e model.CompromiseEvent) error
}

// CompromisePayload is the queue wire format of a compromise event.
type CompromisePayload struct {
	TestID    string                    `json:"test_id"`
	StudentID int                       `json:"student_id"`
	Kind      model.CompromiseEventKind `json:"kind"`
	ActorID   int                       `json:"actor_id"`
	Timestamp int64                     `json:"timestamp"`
}

// NewCompromisePayload encodes an event for the queue.
func NewCompromisePayload(e model.CompromiseEvent) CompromisePayload {
	return CompromisePayload{
		TestID:    e.TestID.String(),
		StudentID: e.StudentID,
		Kind:      e.Kind,
		ActorID:   e.ActorID,
		Timestamp: e.RecordedAt.Unix(),
	}
}

func (p *CompromisePayload) event() (model.CompromiseEvent, error) {
	testID, err := uuid.Parse(p.TestID)
	if err != nil {
		return model.CompromiseEvent{}, err
	}
	return model.CompromiseEvent{
		TestID:     testID,
		StudentID:  p.StudentID,
		Kind:       p.Kind,
		ActorID:    p.ActorID,
		RecordedAt: time.Unix(p.Timestamp, 0).UTC(),
	}, nil
}

// CompromiseWorker drains the compromise queue into the audit log.
type CompromiseWorker struct {
	sink EventSink
	rdb  *redis.Client
	log  zerolog.Logger
}

func NewCompromiseWorker(sink EventSink, rdb *redis.Client, log zerolog.Logger) *CompromiseWorker {
	return &CompromiseWorker{
		sink: sink,
		rdb:  rdb,
		log:  log.With().Str("component", "compromise_worker").Logger(),
	}
}

func (w *CompromiseWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CompromiseWorker started")

	buffer := make([]*CompromisePayload, 0, BatchSize)
	lastFlushTime := time.Now()

	for {
		// 1. Check flush conditions (time or size)
		if len(buffer) > 0 {
			if len(buffer) >= BatchSize || time.Since(lastFlushTime) >= BatchTimeout {
				w.flushSafe(ctx, buffer)
				buffer = buffer[:0]
				lastFlushTime = time.Now()
			}
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch from Redis. BLPop returns immediately if data exists.
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistCompromiseQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue // Queue empty, loop back to check the flush timer
			}
			if ctx.Err() != nil {
				continue // Next iteration flushes and returns
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			time.Sleep(3 * time.Second)
			continue
		}

		// 4. Process data
		if len(result) < 2 {
			continue
		}

		var payload CompromisePayload
		if err := json.Unmarshal([]byte(result[1]), &payload); err != nil {
			// Malformed JSON cannot be retried.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}

		buffer = append(buffer, &payload)
	}
}

// flushSafe attempts bulk insert, then row-by-row insert, then requeue.
func (w *CompromiseWorker) flushSafe(ctx context.Context, batch []*CompromisePayload) {
	if err := w.bulkInsert(ctx, batch); err != nil {
		w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

		if failed := w.fallbackInsert(ctx, batch); len(failed) > 0 {
			w.requeue(ctx, failed)
		}
	}
}

func (w *CompromiseWorker) bulkInsert(ctx context.Context, batch []*CompromisePayload) error {
	events := make([]model.CompromiseEvent, 0, len(batch))
	for _, p := range batch {
		e, err := p.event()
		if err != nil {
			// The fallback handles the bad UUID individually.
			return err
		}
		events = append(events, e)
	}

	_, err := w.sink.BulkInsert(ctx, events)
	return err
}

// fallbackInsert inserts one by one and returns the payloads that failed.
func (w *CompromiseWorker) fallbackInsert(ctx context.Context, batch []*CompromisePayload) []*CompromisePayload {
	requeueList := make([]*CompromisePayload, 0)

	for _, p := range batch {
		e, err := p.event()
		if err != nil {
			w.log.Error().Str("test_id", p.TestID).Msg("Dropping compromise event with invalid UUID")
			continue
		}

		if err := w.sink.Insert(ctx, e); err != nil {
			w.log.Error().Err(err).Int("student_id", p.StudentID).Msg("Insert failed, requeueing")
			requeueList = append(requeueList, p)
		}
	}

	return requeueList
}

func (w *CompromiseWorker) requeue(ctx context.Context, items []*CompromisePayload) {
	pipe := w.rdb.Pipeline()
	for _, p := range items {
		data, _ := json.Marshal(p)
		pipe.RPush(ctx, config.WorkerKey.PersistCompromiseQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue compromise events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
	// Avoid thrashing while the DB is down.
	time.Sleep(2 * time.Second)
}

func (w *CompromiseWorker) shutdown(buffer []*CompromisePayload) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(shutdownCtx, buffer)
	}
}
