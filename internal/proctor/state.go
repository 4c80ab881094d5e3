// Package proctor drives a single timed, proctored test attempt: viewing the
// paper in fullscreen, counting down to the cutoff, and submitting an answer
// file exactly once.
package proctor

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// Phase is the lifecycle position of an attempt.
type Phase string

const (
	PhaseNotStarted Phase = "NOT_STARTED"
	PhaseViewing    Phase = "VIEWING"
	PhaseSubmitting Phase = "SUBMITTING"
	PhaseSubmitted  Phase = "SUBMITTED"
	PhaseExpired    Phase = "EXPIRED"
)

// Refusals returned by Reduce. The state is left unchanged unless noted.
var (
	ErrCompromised      = errors.New("test access revoked: fullscreen was exited")
	ErrExpired          = errors.New("test has expired")
	ErrNotYetOpen       = errors.New("test has not started yet")
	ErrAlreadySubmitted = model.ErrAlreadySubmitted
	ErrNoFile           = errors.New("no answer file selected")
	ErrTimeUp           = errors.New("time is up")
	ErrSubmitting       = errors.New("submission in progress")
	ErrFullscreen       = errors.New("fullscreen unavailable")
)

// State is an immutable snapshot of one attempt. Reduce returns a new value
// and never mutates its input.
type State struct {
	Test  model.Test
	Phase Phase

	// Compromised is orthogonal to Phase. Once set it blocks opening the
	// paper again until the server resets it.
	Compromised bool

	// Warning is the non-dismissible integrity notice shown after the
	// student left fullscreen during this attempt.
	Warning bool

	File       *model.AnswerFile
	Content    *model.Content
	Submission *model.Submission

	TimeLeft time.Duration
	Late     bool

	// TimeUp is set when the cutoff passed with no file selected.
	TimeUp bool

	// AutoSubmitted is set once the forced submission has been started.
	AutoSubmitted bool

	// Err is the dismissible error banner.
	Err error

	// resume is the phase a failed or cancelled submission returns to.
	resume Phase
}

// NewState derives the starting state for a test at now.
func NewState(test model.Test, compromised bool, now time.Time) State {
	s := State{
		Test:        test,
		Phase:       PhaseNotStarted,
		Compromised: compromised,
		TimeLeft:    test.TimeLeft(now),
		Late:        test.IsLate(now),
		Submission:  test.Submission,
	}
	switch {
	case test.HasSubmitted:
		s.Phase = PhaseSubmitted
	case s.TimeLeft == 0:
		s.Phase = PhaseExpired
	}
	return s
}

// CanView reports whether "view test paper" should be offered at now.
func (s State) CanView(now time.Time) bool {
	return s.Phase == PhaseNotStarted &&
		!s.Compromised &&
		s.Test.HasStarted(now) &&
		s.Test.TimeLeft(now) > 0
}

// CanSubmit reports whether the submit control should be enabled at now.
func (s State) CanSubmit(now time.Time) bool {
	if s.Test.HasSubmitted || s.TimeUp || s.File == nil {
		return false
	}
	switch s.Phase {
	case PhaseNotStarted:
		return s.Test.HasStarted(now) && s.Test.TimeLeft(now) > 0
	case PhaseViewing:
		return s.Test.TimeLeft(now) > 0 || s.AutoSubmitted
	}
	return false
}

// Event is an input to Reduce.
type Event interface{ event() }

// Open asks to view the test paper.
type Open struct{ Now time.Time }

// FullscreenFailed reports that the fullscreen request was rejected.
type FullscreenFailed struct{ Err error }

// FullscreenExited reports that the student left fullscreen.
type FullscreenExited struct{}

// Tick is the once-per-second clock signal.
type Tick struct{ Now time.Time }

// SelectFile picks an answer file.
type SelectFile struct{ File model.AnswerFile }

// Submit asks to send the selected file.
type Submit struct{ Now time.Time }

// SubmitResult is the outcome of a SendSubmission effect.
type SubmitResult struct {
	Submission *model.Submission
	Err        error
}

// ContentLoaded delivers the fetched test paper.
type ContentLoaded struct{ Content *model.Content }

// ContentFailed reports a failed paper fetch.
type ContentFailed struct{ Err error }

// Close dismisses the viewing dialog.
type Close struct{}

// DismissError clears the dismissible error banner.
type DismissError struct{}

func (Open) event()             {}
func (FullscreenFailed) event() {}
func (FullscreenExited) event() {}
func (Tick) event()             {}
func (SelectFile) event()       {}
func (Submit) event()           {}
func (SubmitResult) event()     {}
func (ContentLoaded) event()    {}
func (ContentFailed) event()    {}
func (Close) event()            {}
func (DismissError) event()     {}

// Effect is a side effect requested by Reduce. The Controller runs them in
// order.
type Effect interface{ effect() }

type EnterFullscreen struct{}

type ExitFullscreen struct{}

type StartTimer struct{}

type StopTimer struct{}

type FetchContent struct{ TestID uuid.UUID }

type PersistCompromise struct{ TestID uuid.UUID }

type SendSubmission struct {
	TestID uuid.UUID
	File   model.AnswerFile
	IsLate bool
	Forced bool
}

type RefreshList struct{}

func (EnterFullscreen) effect()   {}
func (ExitFullscreen) effect()    {}
func (StartTimer) effect()        {}
func (StopTimer) effect()         {}
func (FetchContent) effect()      {}
func (PersistCompromise) effect() {}
func (SendSubmission) effect()    {}
func (RefreshList) effect()       {}
