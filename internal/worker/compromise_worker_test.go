package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/model"
)

type fakeSink struct {
	bulkErr  error
	bulk     []model.CompromiseEvent
	inserted []model.CompromiseEvent
}

func (s *fakeSink) BulkInsert(_ context.Context, events []model.CompromiseEvent) (int64, error) {
	if s.bulkErr != nil {
		return 0, s.bulkErr
	}
	s.bulk = append(s.bulk, events...)
	return int64(len(events)), nil
}

func (s *fakeSink) Insert(_ context.Context, e model.CompromiseEvent) error {
	s.inserted = append(s.inserted, e)
	return nil
}

func TestPayloadRoundTrip(t *testing.T) {
	e := model.CompromiseEvent{
		TestID:     uuid.New(),
		StudentID:  9,
		Kind:       model.CompromiseEventFlagged,
		RecordedAt: time.Date(2026, 3, 2, 8, 15, 0, 0, time.UTC),
	}
	p := NewCompromisePayload(e)
	got, err := p.event()
	if err != nil {
		t.Fatal(err)
	}
	if got != e {
		t.Errorf("event = %+v, want %+v", got, e)
	}
}

func TestFlushUsesBulkInsert(t *testing.T) {
	sink := &fakeSink{}
	w := NewCompromiseWorker(sink, nil, zerolog.Nop())

	batch := []*CompromisePayload{
		{TestID: uuid.NewString(), StudentID: 1, Kind: model.CompromiseEventFlagged},
		{TestID: uuid.NewString(), StudentID: 2, Kind: model.CompromiseEventReset, ActorID: 4},
	}
	w.flushSafe(context.Background(), batch)

	if len(sink.bulk) != 2 || len(sink.inserted) != 0 {
		t.Errorf("bulk = %d, inserted = %d", len(sink.bulk), len(sink.inserted))
	}
}

func TestFlushFallsBackAndDropsBadIDs(t *testing.T) {
	sink := &fakeSink{bulkErr: errors.New("copy failed")}
	w := NewCompromiseWorker(sink, nil, zerolog.Nop())

	batch := []*CompromisePayload{
		{TestID: "not-a-uuid", StudentID: 1, Kind: model.CompromiseEventFlagged},
		{TestID: uuid.NewString(), StudentID: 2, Kind: model.CompromiseEventFlagged},
	}
	w.flushSafe(context.Background(), batch)

	if len(sink.inserted) != 1 || sink.inserted[0].StudentID != 2 {
		t.Errorf("inserted = %+v", sink.inserted)
	}
}
