package proctor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/stemsi/exstem-proctor/internal/model"
)

// Reduce applies ev to s. It is pure: the returned effects describe every
// side effect the transition needs. A non-nil error is a refusal; the
// returned state is still authoritative (a refused Open may move to EXPIRED).
func Reduce(s State, ev Event) (State, []Effect, error) {
	switch e := ev.(type) {
	case Open:
		return reduceOpen(s, e)
	case FullscreenFailed:
		return reduceFullscreenFailed(s, e)
	case FullscreenExited:
		return reduceFullscreenExited(s)
	case Tick:
		return reduceTick(s, e)
	case SelectFile:
		return reduceSelectFile(s, e)
	case Submit:
		return reduceSubmit(s, e)
	case SubmitResult:
		return reduceSubmitResult(s, e)
	case ContentLoaded:
		if s.Phase == PhaseViewing && !s.Compromised {
			s.Content = e.Content
		}
		return s, nil, nil
	case ContentFailed:
		if s.Phase == PhaseViewing && !errors.Is(e.Err, context.Canceled) {
			s.Err = fmt.Errorf("load test paper: %w", e.Err)
		}
		return s, nil, nil
	case Close:
		return reduceClose(s)
	case DismissError:
		s.Err = nil
		return s, nil, nil
	}
	return s, nil, fmt.Errorf("unknown event %T", ev)
}

func reduceOpen(s State, e Open) (State, []Effect, error) {
	switch s.Phase {
	case PhaseViewing, PhaseSubmitting:
		return s, nil, nil
	case PhaseSubmitted:
		return s, nil, ErrAlreadySubmitted
	case PhaseExpired:
		return s, nil, ErrExpired
	}
	if s.Test.HasSubmitted {
		return s, nil, ErrAlreadySubmitted
	}
	if s.Compromised {
		return s, nil, ErrCompromised
	}
	if !s.Test.HasStarted(e.Now) {
		return s, nil, ErrNotYetOpen
	}
	if s.Test.TimeLeft(e.Now) == 0 {
		return expire(s), nil, ErrExpired
	}

	s.Phase = PhaseViewing
	s.TimeLeft = s.Test.TimeLeft(e.Now)
	s.Late = s.Test.IsLate(e.Now)
	s.TimeUp = false
	s.AutoSubmitted = false
	s.Warning = false
	s.Content = nil
	s.Err = nil
	return s, []Effect{EnterFullscreen{}, StartTimer{}, FetchContent{TestID: s.Test.ID}}, nil
}

func reduceFullscreenFailed(s State, e FullscreenFailed) (State, []Effect, error) {
	if s.Phase != PhaseViewing {
		return s, nil, nil
	}
	err := ErrFullscreen
	if e.Err != nil {
		err = fmt.Errorf("%w: %w", ErrFullscreen, e.Err)
	}
	s.Phase = PhaseNotStarted
	s.Content = nil
	s.Err = err
	return s, []Effect{StopTimer{}}, err
}

func reduceFullscreenExited(s State) (State, []Effect, error) {
	if s.Phase != PhaseViewing && s.Phase != PhaseSubmitting {
		return s, nil, nil
	}
	if s.Compromised {
		return s, nil, nil
	}
	s.Compromised = true
	s.Warning = true
	s.Content = nil
	return s, []Effect{PersistCompromise{TestID: s.Test.ID}}, nil
}

func reduceTick(s State, e Tick) (State, []Effect, error) {
	switch s.Phase {
	case PhaseNotStarted:
		if s.Test.HasStarted(e.Now) && s.Test.TimeLeft(e.Now) == 0 {
			return expire(s), nil, nil
		}
		return s, nil, nil
	case PhaseViewing:
	default:
		return s, nil, nil
	}
	if s.TimeUp {
		return s, nil, nil
	}

	s.TimeLeft = s.Test.TimeLeft(e.Now)
	s.Late = s.Test.IsLate(e.Now)
	if s.TimeLeft > 0 {
		return s, nil, nil
	}

	if s.File != nil {
		if s.AutoSubmitted {
			return s, nil, nil
		}
		s.AutoSubmitted = true
		var effects []Effect
		s, effects = beginSubmit(s, e.Now)
		return s, append([]Effect{StopTimer{}}, effects...), nil
	}

	s.TimeUp = true
	s.Late = true
	return s, []Effect{StopTimer{}}, nil
}

func reduceSelectFile(s State, e SelectFile) (State, []Effect, error) {
	if err := writable(s); err != nil {
		return s, nil, err
	}
	if err := model.ValidateAnswerFile(e.File.Name, e.File.Size); err != nil {
		return s, nil, err
	}
	f := e.File
	s.File = &f
	s.Err = nil
	return s, nil, nil
}

func reduceSubmit(s State, e Submit) (State, []Effect, error) {
	if err := writable(s); err != nil {
		return s, nil, err
	}
	if s.File == nil {
		return s, nil, ErrNoFile
	}
	if err := model.ValidateAnswerFile(s.File.Name, s.File.Size); err != nil {
		return s, nil, err
	}
	if !s.Test.HasStarted(e.Now) {
		return s, nil, ErrNotYetOpen
	}

	if s.Test.TimeLeft(e.Now) == 0 && !s.AutoSubmitted {
		if s.Phase == PhaseNotStarted {
			return expire(s), nil, ErrExpired
		}
		// The ticker has not caught up yet; this is the forced submission.
		s.AutoSubmitted = true
		var effects []Effect
		s, effects = beginSubmit(s, e.Now)
		return s, append([]Effect{StopTimer{}}, effects...), nil
	}

	s, effects := beginSubmit(s, e.Now)
	return s, effects, nil
}

// writable reports whether the attempt still accepts a file or a submission.
func writable(s State) error {
	switch s.Phase {
	case PhaseSubmitting:
		return ErrSubmitting
	case PhaseSubmitted:
		return ErrAlreadySubmitted
	case PhaseExpired:
		return ErrExpired
	}
	if s.Test.HasSubmitted {
		return ErrAlreadySubmitted
	}
	if s.TimeUp {
		return ErrTimeUp
	}
	return nil
}

func beginSubmit(s State, now time.Time) (State, []Effect) {
	s.resume = s.Phase
	s.Phase = PhaseSubmitting
	s.Err = nil
	return s, []Effect{SendSubmission{
		TestID: s.Test.ID,
		File:   *s.File,
		IsLate: s.Test.IsLate(now),
		Forced: s.AutoSubmitted,
	}}
}

func reduceSubmitResult(s State, e SubmitResult) (State, []Effect, error) {
	if s.Phase != PhaseSubmitting {
		return s, nil, nil
	}

	if e.Err == nil || errors.Is(e.Err, model.ErrAlreadySubmitted) {
		effects := []Effect{StopTimer{}}
		if s.resume == PhaseViewing {
			effects = append(effects, ExitFullscreen{})
		}
		s.Phase = PhaseSubmitted
		s.Test.HasSubmitted = true
		s.Submission = e.Submission
		s.File = nil
		s.Content = nil
		s.Warning = false
		s.Err = nil
		return s, append(effects, RefreshList{}), nil
	}

	s.Phase = s.resume
	if !errors.Is(e.Err, context.Canceled) {
		s.Err = fmt.Errorf("submit answer: %w", e.Err)
	}
	return s, nil, nil
}

func reduceClose(s State) (State, []Effect, error) {
	switch s.Phase {
	case PhaseSubmitting:
		return s, nil, ErrSubmitting
	case PhaseViewing:
		s.Phase = PhaseNotStarted
		s.File = nil
		s.Content = nil
		s.Warning = false
		s.TimeUp = false
		s.AutoSubmitted = false
		s.Err = nil
		return s, []Effect{StopTimer{}, ExitFullscreen{}}, nil
	case PhaseNotStarted:
		s.File = nil
		s.Err = nil
	}
	return s, nil, nil
}

func expire(s State) State {
	s.Phase = PhaseExpired
	s.TimeLeft = 0
	s.Late = true
	s.File = nil
	s.Content = nil
	return s
}
