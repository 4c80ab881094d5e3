// Package flagstore persists per-test compromise flags on the client.
package flagstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Flag is one recorded compromise of a test.
type Flag struct {
	// FlaggedAt is when the student left fullscreen, on the local clock.
	FlaggedAt time.Time `json:"flagged_at"`
	// ReportedAt is the server's time for the flag. Zero until the server
	// acknowledged it.
	ReportedAt time.Time `json:"reported_at,omitzero"`
}

// Reported reports whether the server has acknowledged the flag.
func (f Flag) Reported() bool { return !f.ReportedAt.IsZero() }

// Store maps a test id to its compromise flag. Writes are last-write-wins.
type Store interface {
	Get(ctx context.Context, testID uuid.UUID) (Flag, bool, error)
	Set(ctx context.Context, testID uuid.UUID, flag Flag) error
	Delete(ctx context.Context, testID uuid.UUID) error
}

// Reporter delivers a flag to the server and returns the server's time for it.
type Reporter interface {
	ReportCompromise(ctx context.Context, testID uuid.UUID) (time.Time, error)
}

// Memory is a process-local Store.
type Memory struct {
	mu    sync.RWMutex
	flags map[uuid.UUID]Flag
}

// NewMemory creates an empty Memory store.
func NewMemory() *Memory {
	return &Memory{flags: make(map[uuid.UUID]Flag)}
}

func (m *Memory) Get(_ context.Context, testID uuid.UUID) (Flag, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	f, ok := m.flags[testID]
	return f, ok, nil
}

func (m *Memory) Set(_ context.Context, testID uuid.UUID, flag Flag) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags[testID] = flag
	return nil
}

func (m *Memory) Delete(_ context.Context, testID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flags, testID)
	return nil
}

// Compromised reports whether testID carries a flag.
func Compromised(ctx context.Context, s Store, testID uuid.UUID) (bool, error) {
	_, ok, err := s.Get(ctx, testID)
	return ok, err
}

// MarkReported stores the server's time for the flag raised at flaggedAt.
// A flag that was cleared or raised again since is left alone.
func MarkReported(ctx context.Context, s Store, testID uuid.UUID, flaggedAt, reportedAt time.Time) error {
	flag, ok, err := s.Get(ctx, testID)
	if err != nil || !ok {
		return err
	}
	if flag.Reported() || !flag.FlaggedAt.Equal(flaggedAt) {
		return nil
	}
	flag.ReportedAt = reportedAt
	return s.Set(ctx, testID, flag)
}

// Sync folds the server's compromise view of tests into the store.
//
// A flag the server never acknowledged is reported first and is not cleared
// in the same pass. A reported flag is cleared only by a server reset that is
// newer than the report. A server flag missing locally is adopted. Failures
// are collected and the remaining tests are still processed.
func Sync(ctx context.Context, store Store, reporter Reporter, tests []model.Test) error {
	var errs []error
	for _, t := range tests {
		if err := syncOne(ctx, store, reporter, t); err != nil {
			errs = append(errs, fmt.Errorf("test %s: %w", t.ID, err))
		}
	}
	return errors.Join(errs...)
}

func syncOne(ctx context.Context, store Store, reporter Reporter, t model.Test) error {
	flag, ok, err := store.Get(ctx, t.ID)
	if err != nil {
		return fmt.Errorf("read flag: %w", err)
	}

	if ok && !flag.Reported() {
		if reporter == nil {
			return nil
		}
		at, err := reporter.ReportCompromise(ctx, t.ID)
		if err != nil {
			return fmt.Errorf("report flag: %w", err)
		}
		flag.ReportedAt = at
		if err := store.Set(ctx, t.ID, flag); err != nil {
			return fmt.Errorf("store report: %w", err)
		}
		return nil
	}

	switch t.Compromise {
	case model.CompromiseReset:
		if ok && t.CompromiseAt != nil && t.CompromiseAt.After(flag.ReportedAt) {
			if err := store.Delete(ctx, t.ID); err != nil {
				return fmt.Errorf("clear flag: %w", err)
			}
		}
	case model.CompromiseFlagged:
		if !ok {
			adopted := Flag{FlaggedAt: time.Now()}
			if t.CompromiseAt != nil {
				adopted.ReportedAt = *t.CompromiseAt
			}
			if err := store.Set(ctx, t.ID, adopted); err != nil {
				return fmt.Errorf("set flag: %w", err)
			}
		}
	}
	return nil
}
