package model

import (
	"time"

	"github.com/google/uuid"
)

// CompromiseStatus is the server's record of a student's fullscreen integrity
// for one test. The empty value means nothing was ever reported.
type CompromiseStatus string

const (
	CompromiseFlagged CompromiseStatus = "FLAGGED"
	CompromiseReset   CompromiseStatus = "RESET"
)

// CompromiseRecord is a status together with when it was set, on the
// server's clock.
type CompromiseRecord struct {
	Status CompromiseStatus
	At     time.Time
}

// CompromiseEventKind distinguishes audit log entries.
type CompromiseEventKind string

const (
	CompromiseEventFlagged CompromiseEventKind = "flagged"
	CompromiseEventReset   CompromiseEventKind = "reset"
)

// CompromiseEvent is one audit entry of the compromise log.
type CompromiseEvent struct {
	TestID     uuid.UUID           `json:"test_id"`
	StudentID  int                 `json:"student_id"`
	Kind       CompromiseEventKind `json:"kind"`
	ActorID    int                 `json:"actor_id"`
	RecordedAt time.Time           `json:"recorded_at"`
}
