package websocket

import (
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionPing Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
type RequestEnvelope struct {
	Action Action `json:"action"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventSnapshot  Event = "snapshot"
	EventFlagged   Event = "flagged"
	EventReset     Event = "reset"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// MonitorEvent is published on the test monitor channel and forwarded to
// every connected staff member as is.
type MonitorEvent struct {
	Event      Event             `json:"event"`
	TestID     uuid.UUID         `json:"test_id"`
	StudentID  int               `json:"student_id"`
	ActorID    int               `json:"actor_id,omitempty"`
	Submission *model.Submission `json:"submission,omitempty"`
	At         time.Time         `json:"at"`
}

// StudentStatus is one row of the monitor snapshot.
type StudentStatus struct {
	StudentID   int                    `json:"student_id"`
	Compromise  model.CompromiseStatus `json:"compromise,omitempty"`
	Submitted   bool                   `json:"submitted"`
	IsLate      bool                   `json:"is_late"`
	SubmittedAt *time.Time             `json:"submitted_at,omitempty"`
}

// SnapshotResponse is sent once right after the connection opens.
type SnapshotResponse struct {
	Event    Event           `json:"event"`
	Test     model.Test      `json:"test"`
	Students []StudentStatus `json:"students"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
