package proctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-proctor/internal/model"
)

var start = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

func sampleTest() model.Test {
	return model.Test{
		ID:              uuid.New(),
		Title:           "Physics",
		ContentType:     model.ContentTypeText,
		StartTime:       start,
		DurationMinutes: 60,
	}
}

func answer(name string, size int64) model.AnswerFile {
	return model.AnswerFile{
		Name: name,
		Size: size,
		Open: func() (io.ReadCloser, error) { return io.NopCloser(strings.NewReader("answer")), nil },
	}
}

func mustReduce(t *testing.T, s State, ev Event) (State, []Effect) {
	t.Helper()
	next, effects, err := Reduce(s, ev)
	if err != nil {
		t.Fatalf("Reduce(%T): %v", ev, err)
	}
	return next, effects
}

func effectTypes(effects []Effect) string {
	names := make([]string, len(effects))
	for i, e := range effects {
		names[i] = strings.TrimPrefix(fmt.Sprintf("%T", e), "proctor.")
	}
	return strings.Join(names, ",")
}

func viewing(t *testing.T, now time.Time) State {
	t.Helper()
	s, _ := mustReduce(t, NewState(sampleTest(), false, now), Open{Now: now})
	return s
}

func TestNewState(t *testing.T) {
	submitted := sampleTest()
	submitted.HasSubmitted = true

	tests := []struct {
		name string
		test model.Test
		now  time.Time
		want Phase
	}{
		{"upcoming", sampleTest(), start.Add(-time.Hour), PhaseNotStarted},
		{"ongoing", sampleTest(), start.Add(30 * time.Minute), PhaseNotStarted},
		{"grace period", sampleTest(), start.Add(65 * time.Minute), PhaseNotStarted},
		{"past cutoff", sampleTest(), start.Add(70 * time.Minute), PhaseExpired},
		{"submitted", submitted, start.Add(30 * time.Minute), PhaseSubmitted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NewState(tt.test, false, tt.now).Phase; got != tt.want {
				t.Errorf("phase = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestOpen(t *testing.T) {
	now := start.Add(10 * time.Minute)
	s, effects := mustReduce(t, NewState(sampleTest(), false, now), Open{Now: now})

	if s.Phase != PhaseViewing {
		t.Fatalf("phase = %s, want VIEWING", s.Phase)
	}
	if got := effectTypes(effects); got != "EnterFullscreen,StartTimer,FetchContent" {
		t.Errorf("effects = %s", got)
	}
	if s.TimeLeft != 60*time.Minute {
		t.Errorf("time left = %v, want 60m (50m + grace)", s.TimeLeft)
	}
}

func TestOpenRefusals(t *testing.T) {
	ongoing := start.Add(10 * time.Minute)

	t.Run("compromised", func(t *testing.T) {
		s := NewState(sampleTest(), true, ongoing)
		if s.CanView(ongoing) {
			t.Error("CanView = true for compromised test")
		}
		next, effects, err := Reduce(s, Open{Now: ongoing})
		if !errors.Is(err, ErrCompromised) || next.Phase != PhaseNotStarted || len(effects) != 0 {
			t.Errorf("got phase %s, effects %v, err %v", next.Phase, effects, err)
		}
	})

	t.Run("not yet started", func(t *testing.T) {
		before := start.Add(-time.Minute)
		_, _, err := Reduce(NewState(sampleTest(), false, before), Open{Now: before})
		if !errors.Is(err, ErrNotYetOpen) {
			t.Errorf("err = %v, want ErrNotYetOpen", err)
		}
	})

	t.Run("expired since listing", func(t *testing.T) {
		s := NewState(sampleTest(), false, ongoing)
		next, _, err := Reduce(s, Open{Now: start.Add(71 * time.Minute)})
		if !errors.Is(err, ErrExpired) || next.Phase != PhaseExpired {
			t.Errorf("phase = %s, err = %v", next.Phase, err)
		}
	})

	t.Run("submitted", func(t *testing.T) {
		test := sampleTest()
		test.HasSubmitted = true
		_, _, err := Reduce(NewState(test, false, ongoing), Open{Now: ongoing})
		if !errors.Is(err, ErrAlreadySubmitted) {
			t.Errorf("err = %v, want ErrAlreadySubmitted", err)
		}
	})
}

func TestFullscreenFailedRevertsOpen(t *testing.T) {
	s := viewing(t, start.Add(time.Minute))
	next, effects, err := Reduce(s, FullscreenFailed{Err: errors.New("denied")})
	if !errors.Is(err, ErrFullscreen) {
		t.Fatalf("err = %v, want ErrFullscreen", err)
	}
	if next.Phase != PhaseNotStarted || next.Compromised {
		t.Errorf("phase = %s, compromised = %v", next.Phase, next.Compromised)
	}
	if effectTypes(effects) != "StopTimer" {
		t.Errorf("effects = %s", effectTypes(effects))
	}
}

func TestFullscreenExitCompromises(t *testing.T) {
	now := start.Add(time.Minute)
	s := viewing(t, now)
	s, _ = mustReduce(t, s, ContentLoaded{Content: &model.Content{Type: model.ContentTypeText, Text: "Q1"}})

	s, effects := mustReduce(t, s, FullscreenExited{})
	if !s.Compromised || !s.Warning {
		t.Fatalf("compromised = %v, warning = %v", s.Compromised, s.Warning)
	}
	if s.Content != nil {
		t.Error("paper still visible after compromise")
	}
	if effectTypes(effects) != "PersistCompromise" {
		t.Errorf("effects = %s", effectTypes(effects))
	}

	// A second exit does not persist again.
	_, effects = mustReduce(t, s, FullscreenExited{})
	if len(effects) != 0 {
		t.Errorf("second exit effects = %s", effectTypes(effects))
	}

	// Warning is not dismissible.
	s, _ = mustReduce(t, s, DismissError{})
	if !s.Warning {
		t.Error("DismissError cleared the integrity warning")
	}

	// Closing keeps the flag and blocks re-entry.
	s, _ = mustReduce(t, s, Close{})
	if !s.Compromised || s.CanView(now) {
		t.Errorf("compromised = %v, can view = %v after close", s.Compromised, s.CanView(now))
	}
	if _, _, err := Reduce(s, Open{Now: now}); !errors.Is(err, ErrCompromised) {
		t.Errorf("reopen err = %v, want ErrCompromised", err)
	}
}

func TestFullscreenExitIgnoredOutsideViewing(t *testing.T) {
	s := NewState(sampleTest(), false, start.Add(time.Minute))
	next, effects := mustReduce(t, s, FullscreenExited{})
	if next.Compromised || len(effects) != 0 {
		t.Errorf("compromised = %v, effects = %v", next.Compromised, effects)
	}
}

func TestCompromisedStudentCanStillSubmit(t *testing.T) {
	now := start.Add(time.Minute)
	s := viewing(t, now)
	s, _ = mustReduce(t, s, FullscreenExited{})
	s, _ = mustReduce(t, s, SelectFile{File: answer("essay.pdf", 10)})

	if !s.CanSubmit(now) {
		t.Fatal("CanSubmit = false for compromised attempt with a file")
	}
	s, effects := mustReduce(t, s, Submit{Now: now})
	if s.Phase != PhaseSubmitting || effectTypes(effects) != "SendSubmission" {
		t.Errorf("phase = %s, effects = %s", s.Phase, effectTypes(effects))
	}
}

func TestSelectFileValidation(t *testing.T) {
	s := viewing(t, start.Add(time.Minute))

	tests := []struct {
		name    string
		file    model.AnswerFile
		wantErr error
	}{
		{"pdf", answer("essay.pdf", 1024), nil},
		{"upper case docx", answer("ESSAY.DOCX", 1024), nil},
		{"doc", answer("essay.doc", 1024), nil},
		{"exactly max", answer("essay.pdf", model.MaxAnswerFileBytes), nil},
		{"txt", answer("essay.txt", 1024), model.ErrUnsupportedFile},
		{"no extension", answer("essay", 1024), model.ErrUnsupportedFile},
		{"too large", answer("essay.pdf", model.MaxAnswerFileBytes+1), model.ErrFileTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, effects, err := Reduce(s, SelectFile{File: tt.file})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if len(effects) != 0 {
				t.Errorf("effects = %v", effects)
			}
			if tt.wantErr != nil && next.File != nil {
				t.Error("rejected file was stored")
			}
			if tt.wantErr == nil && (next.File == nil || next.File.Name != tt.file.Name) {
				t.Errorf("file = %+v", next.File)
			}
		})
	}
}

func TestSubmitRequiresFile(t *testing.T) {
	now := start.Add(time.Minute)
	_, _, err := Reduce(viewing(t, now), Submit{Now: now})
	if !errors.Is(err, ErrNoFile) {
		t.Errorf("err = %v, want ErrNoFile", err)
	}
}

func TestSubmitLateness(t *testing.T) {
	tests := []struct {
		name string
		at   time.Duration
		late bool
	}{
		{"before deadline", 59 * time.Minute, false},
		{"at deadline", 60 * time.Minute, false},
		{"in grace period", 61 * time.Minute, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			now := start.Add(tt.at)
			s := viewing(t, now)
			s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})
			_, effects := mustReduce(t, s, Submit{Now: now})
			send, ok := effects[0].(SendSubmission)
			if !ok {
				t.Fatalf("effects = %s", effectTypes(effects))
			}
			if send.IsLate != tt.late || send.Forced {
				t.Errorf("isLate = %v, forced = %v", send.IsLate, send.Forced)
			}
		})
	}
}

func TestSubmitFromListWithoutViewing(t *testing.T) {
	now := start.Add(time.Minute)
	s := NewState(sampleTest(), false, now)
	s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})
	s, _ = mustReduce(t, s, Submit{Now: now})

	s, effects := mustReduce(t, s, SubmitResult{Submission: &model.Submission{}})
	if s.Phase != PhaseSubmitted {
		t.Fatalf("phase = %s", s.Phase)
	}
	// Never entered fullscreen, so nothing to exit.
	if got := effectTypes(effects); got != "StopTimer,RefreshList" {
		t.Errorf("effects = %s", got)
	}
}

func TestSubmitSuccess(t *testing.T) {
	now := start.Add(time.Minute)
	s := viewing(t, now)
	s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})
	s, _ = mustReduce(t, s, Submit{Now: now})

	if _, _, err := Reduce(s, Submit{Now: now}); !errors.Is(err, ErrSubmitting) {
		t.Errorf("double submit err = %v, want ErrSubmitting", err)
	}
	if _, _, err := Reduce(s, Close{}); !errors.Is(err, ErrSubmitting) {
		t.Errorf("close while submitting err = %v, want ErrSubmitting", err)
	}

	s, effects := mustReduce(t, s, SubmitResult{Submission: &model.Submission{FileName: "a.pdf"}})
	if s.Phase != PhaseSubmitted || !s.Test.HasSubmitted || s.File != nil {
		t.Errorf("state = %+v", s)
	}
	if got := effectTypes(effects); got != "StopTimer,ExitFullscreen,RefreshList" {
		t.Errorf("effects = %s", got)
	}
	if s.CanSubmit(now) {
		t.Error("CanSubmit = true after submission")
	}
	if _, _, err := Reduce(s, SelectFile{File: answer("b.pdf", 1)}); !errors.Is(err, ErrAlreadySubmitted) {
		t.Errorf("select after submit err = %v", err)
	}
}

func TestSubmitAlreadySubmittedOnServer(t *testing.T) {
	now := start.Add(time.Minute)
	s := viewing(t, now)
	s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})
	s, _ = mustReduce(t, s, Submit{Now: now})

	s, _ = mustReduce(t, s, SubmitResult{Err: fmt.Errorf("submit: %w", model.ErrAlreadySubmitted)})
	if s.Phase != PhaseSubmitted || s.Err != nil {
		t.Errorf("phase = %s, err = %v", s.Phase, s.Err)
	}
}

func TestSubmitFailureKeepsFile(t *testing.T) {
	now := start.Add(time.Minute)
	s := viewing(t, now)
	s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})
	s, _ = mustReduce(t, s, Submit{Now: now})

	s, effects := mustReduce(t, s, SubmitResult{Err: errors.New("502 bad gateway")})
	if s.Phase != PhaseViewing || s.File == nil || s.Err == nil {
		t.Fatalf("phase = %s, file = %v, err = %v", s.Phase, s.File, s.Err)
	}
	if len(effects) != 0 {
		t.Errorf("effects = %s", effectTypes(effects))
	}

	s, _ = mustReduce(t, s, DismissError{})
	if s.Err != nil {
		t.Error("error not dismissed")
	}
	if !s.CanSubmit(now) {
		t.Error("retry not possible after failure")
	}
}

func TestSubmitCanceledIsSilent(t *testing.T) {
	now := start.Add(time.Minute)
	s := viewing(t, now)
	s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})
	s, _ = mustReduce(t, s, Submit{Now: now})

	s, _ = mustReduce(t, s, SubmitResult{Err: fmt.Errorf("request canceled: %w", context.Canceled)})
	if s.Phase != PhaseViewing || s.Err != nil {
		t.Errorf("phase = %s, err = %v", s.Phase, s.Err)
	}
}

func TestTickCountsDown(t *testing.T) {
	s := viewing(t, start)
	s, effects := mustReduce(t, s, Tick{Now: start.Add(61 * time.Minute)})
	if len(effects) != 0 {
		t.Errorf("effects = %s", effectTypes(effects))
	}
	if s.TimeLeft != 9*time.Minute || !s.Late {
		t.Errorf("time left = %v, late = %v", s.TimeLeft, s.Late)
	}
}

func TestTickAutoSubmitsOnce(t *testing.T) {
	s := viewing(t, start)
	s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})

	cutoff := start.Add(70 * time.Minute)
	s, effects := mustReduce(t, s, Tick{Now: cutoff})
	if got := effectTypes(effects); got != "StopTimer,SendSubmission" {
		t.Fatalf("effects = %s", got)
	}
	send := effects[1].(SendSubmission)
	if !send.Forced || !send.IsLate {
		t.Errorf("forced = %v, isLate = %v", send.Forced, send.IsLate)
	}

	// A stale tick while submitting does nothing.
	_, effects = mustReduce(t, s, Tick{Now: cutoff.Add(time.Second)})
	if len(effects) != 0 {
		t.Errorf("second tick effects = %s", effectTypes(effects))
	}

	// A failed forced submission does not fire again on the next tick.
	s, _ = mustReduce(t, s, SubmitResult{Err: errors.New("network down")})
	s, effects = mustReduce(t, s, Tick{Now: cutoff.Add(2 * time.Second)})
	if effectTypes(effects) == "StopTimer,SendSubmission" {
		t.Error("auto-submit fired twice")
	}

	// The student may retry it by hand.
	if _, effects, err := Reduce(s, Submit{Now: cutoff.Add(3 * time.Second)}); err != nil || len(effects) == 0 {
		t.Errorf("manual retry: effects = %v, err = %v", effects, err)
	}
}

func TestTickWithoutFileIsTimeUp(t *testing.T) {
	s := viewing(t, start)
	s, effects := mustReduce(t, s, Tick{Now: start.Add(70 * time.Minute)})

	if !s.TimeUp || !s.Late || s.Phase != PhaseViewing {
		t.Fatalf("timeUp = %v, late = %v, phase = %s", s.TimeUp, s.Late, s.Phase)
	}
	if effectTypes(effects) != "StopTimer" {
		t.Errorf("effects = %s", effectTypes(effects))
	}
	if _, _, err := Reduce(s, SelectFile{File: answer("a.pdf", 1)}); !errors.Is(err, ErrTimeUp) {
		t.Errorf("select err = %v, want ErrTimeUp", err)
	}
	if _, _, err := Reduce(s, Submit{Now: start.Add(70 * time.Minute)}); !errors.Is(err, ErrTimeUp) {
		t.Errorf("submit err = %v, want ErrTimeUp", err)
	}
}

func TestTickExpiresUnopenedTest(t *testing.T) {
	s := NewState(sampleTest(), false, start)
	s, _ = mustReduce(t, s, Tick{Now: start.Add(70 * time.Minute)})
	if s.Phase != PhaseExpired {
		t.Errorf("phase = %s, want EXPIRED", s.Phase)
	}
}

func TestCloseDiscardsFile(t *testing.T) {
	now := start.Add(time.Minute)
	s := viewing(t, now)
	s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})

	s, effects := mustReduce(t, s, Close{})
	if s.Phase != PhaseNotStarted || s.File != nil {
		t.Errorf("phase = %s, file = %v", s.Phase, s.File)
	}
	if got := effectTypes(effects); got != "StopTimer,ExitFullscreen" {
		t.Errorf("effects = %s", got)
	}

	// Re-opening recomputes from the fixed start time.
	later := start.Add(30 * time.Minute)
	s, _ = mustReduce(t, s, Open{Now: later})
	if s.TimeLeft != 40*time.Minute {
		t.Errorf("time left after reopen = %v, want 40m", s.TimeLeft)
	}
}

func TestContentIgnoredAfterClose(t *testing.T) {
	s := viewing(t, start)
	s, _ = mustReduce(t, s, Close{})
	s, _ = mustReduce(t, s, ContentLoaded{Content: &model.Content{Text: "late arrival"}})
	if s.Content != nil {
		t.Error("content stored after close")
	}
}

func TestContentFailedIsDismissible(t *testing.T) {
	s := viewing(t, start)
	s, effects := mustReduce(t, s, ContentFailed{Err: errors.New("boom")})
	if s.Phase != PhaseViewing || s.Err == nil || len(effects) != 0 {
		t.Errorf("phase = %s, err = %v, effects = %v", s.Phase, s.Err, effects)
	}
}

func TestReduceDoesNotMutateInput(t *testing.T) {
	s := viewing(t, start)
	s, _ = mustReduce(t, s, SelectFile{File: answer("a.pdf", 1)})
	before := s

	_, _, _ = Reduce(s, Submit{Now: start})
	if s.Phase != before.Phase || s.File != before.File {
		t.Error("Reduce mutated its input")
	}
}
