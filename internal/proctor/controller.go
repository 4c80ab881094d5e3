package proctor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/flagstore"
	"github.com/stemsi/exstem-proctor/internal/model"
)

// TickInterval is how often the countdown is recomputed.
const TickInterval = time.Second

// reportTimeout bounds the best-effort compromise report.
const reportTimeout = 10 * time.Second

// Backend is the server the attempt talks to.
type Backend interface {
	Content(ctx context.Context, testID uuid.UUID) (*model.Content, error)
	Submit(ctx context.Context, testID uuid.UUID, file model.AnswerFile, isLate bool) (*model.Submission, error)
	ReportCompromise(ctx context.Context, testID uuid.UUID) (time.Time, error)
}

// Screen is the fullscreen capability of the presentation layer. Exits made
// by the student are reported back through Controller.FullscreenExited.
type Screen interface {
	EnterFullscreen(ctx context.Context) error
	ExitFullscreen(ctx context.Context) error
}

// Deps are the collaborators of a Controller.
type Deps struct {
	Backend Backend
	Flags   flagstore.Store
	Screen  Screen
	Clock   Clock
	Log     zerolog.Logger

	// OnChange is called with every new state, in order, while the
	// controller lock is held. It must not call back into the controller.
	OnChange func(State)

	// OnRefresh is called after a successful submission so the caller can
	// reload the test list.
	OnRefresh func()
}

// Controller serializes events for one attempt, runs their effects and owns
// the countdown ticker.
type Controller struct {
	deps Deps
	log  zerolog.Logger

	mu    sync.Mutex
	state State

	timerMu   sync.Mutex
	timerStop chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewController loads the persisted compromise flag for test and builds the
// starting state.
func NewController(ctx context.Context, test model.Test, deps Deps) (*Controller, error) {
	if deps.Backend == nil || deps.Screen == nil {
		return nil, errors.New("proctor: backend and screen are required")
	}
	if deps.Flags == nil {
		deps.Flags = flagstore.NewMemory()
	}
	if deps.Clock == nil {
		deps.Clock = SystemClock{}
	}

	compromised, err := flagstore.Compromised(ctx, deps.Flags, test.ID)
	if err != nil {
		return nil, fmt.Errorf("load compromise flag: %w", err)
	}

	lifetime, cancel := context.WithCancel(context.Background())
	c := &Controller{
		deps:   deps,
		log:    deps.Log.With().Str("component", "proctor").Str("test_id", test.ID.String()).Logger(),
		state:  NewState(test, compromised, deps.Clock.Now()),
		ctx:    lifetime,
		cancel: cancel,
	}
	return c, nil
}

// State returns the current snapshot.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Open enters fullscreen, starts the countdown and fetches the paper. It
// returns once the paper fetch has finished; a fetch failure is reported in
// State().Err rather than returned.
func (c *Controller) Open(ctx context.Context) error {
	return c.Dispatch(ctx, Open{Now: c.deps.Clock.Now()})
}

// SelectFile validates and stores the answer file.
func (c *Controller) SelectFile(ctx context.Context, f model.AnswerFile) error {
	return c.Dispatch(ctx, SelectFile{File: f})
}

// Submit sends the selected file and waits for the outcome.
func (c *Controller) Submit(ctx context.Context) error {
	return c.Dispatch(ctx, Submit{Now: c.deps.Clock.Now()})
}

// FullscreenExited records that the student left fullscreen.
func (c *Controller) FullscreenExited(ctx context.Context) error {
	return c.Dispatch(ctx, FullscreenExited{})
}

// Close dismisses the viewing dialog.
func (c *Controller) Close(ctx context.Context) error {
	return c.Dispatch(ctx, Close{})
}

// DismissError clears the dismissible error banner.
func (c *Controller) DismissError(ctx context.Context) error {
	return c.Dispatch(ctx, DismissError{})
}

// Shutdown stops the ticker, cancels background work and waits for it.
func (c *Controller) Shutdown() {
	c.stopTimer()
	c.cancel()
	c.wg.Wait()
}

// Dispatch reduces ev under the controller lock and then runs the resulting
// effects on the calling goroutine. Effects may dispatch further events.
func (c *Controller) Dispatch(ctx context.Context, ev Event) error {
	c.mu.Lock()
	next, effects, err := Reduce(c.state, ev)
	prev := c.state.Phase
	c.state = next
	if next.Phase != prev {
		c.log.Info().
			Str("from", string(prev)).
			Str("to", string(next.Phase)).
			Str("event", fmt.Sprintf("%T", ev)).
			Msg("Phase changed")
	}
	if c.deps.OnChange != nil {
		c.deps.OnChange(next)
	}
	c.mu.Unlock()

	if err != nil {
		c.log.Debug().Err(err).Str("event", fmt.Sprintf("%T", ev)).Msg("Event refused")
	}
	if effectErr := c.run(ctx, effects); effectErr != nil && err == nil {
		err = effectErr
	}
	return err
}

func (c *Controller) run(ctx context.Context, effects []Effect) error {
	for _, eff := range effects {
		switch e := eff.(type) {
		case EnterFullscreen:
			if ferr := c.deps.Screen.EnterFullscreen(ctx); ferr != nil {
				// The remaining effects of this batch belong to the aborted open.
				return c.Dispatch(ctx, FullscreenFailed{Err: ferr})
			}

		case ExitFullscreen:
			if err := c.deps.Screen.ExitFullscreen(ctx); err != nil {
				c.log.Warn().Err(err).Msg("Failed to exit fullscreen")
			}

		case StartTimer:
			c.startTimer()

		case StopTimer:
			c.stopTimer()

		case FetchContent:
			content, err := c.deps.Backend.Content(ctx, e.TestID)
			if err != nil {
				c.log.Warn().Err(err).Msg("Failed to load test paper")
				_ = c.Dispatch(ctx, ContentFailed{Err: err})
				continue
			}
			_ = c.Dispatch(ctx, ContentLoaded{Content: content})

		case PersistCompromise:
			c.persistCompromise(ctx, e.TestID)

		case SendSubmission:
			if err := c.sendSubmission(ctx, e); err != nil {
				return err
			}

		case RefreshList:
			if c.deps.OnRefresh != nil {
				c.deps.OnRefresh()
			}
		}
	}
	return nil
}

func (c *Controller) sendSubmission(ctx context.Context, e SendSubmission) error {
	c.log.Info().
		Str("file", e.File.Name).
		Bool("is_late", e.IsLate).
		Bool("forced", e.Forced).
		Msg("Submitting answer")

	sub, err := c.deps.Backend.Submit(ctx, e.TestID, e.File, e.IsLate)
	if derr := c.Dispatch(ctx, SubmitResult{Submission: sub, Err: err}); derr != nil {
		return derr
	}
	if err != nil && errors.Is(err, model.ErrAlreadySubmitted) {
		c.log.Info().Msg("Server already holds a submission")
		return nil
	}
	if err != nil {
		c.log.Error().Err(err).Msg("Submission failed")
	}
	return err
}

// persistCompromise stores the flag and reports it in the background. An
// unacknowledged flag stays pending in the store and is reported again on
// the next flagstore.Sync.
func (c *Controller) persistCompromise(ctx context.Context, testID uuid.UUID) {
	c.log.Warn().Msg("Fullscreen exited, test compromised")

	flaggedAt := c.deps.Clock.Now()
	if err := c.deps.Flags.Set(ctx, testID, flagstore.Flag{FlaggedAt: flaggedAt}); err != nil {
		c.log.Error().Err(err).Msg("Failed to persist compromise flag")
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		rctx, cancel := context.WithTimeout(c.ctx, reportTimeout)
		defer cancel()
		reportedAt, err := c.deps.Backend.ReportCompromise(rctx, testID)
		if err != nil {
			c.log.Warn().Err(err).Msg("Failed to report compromise, will retry on next sync")
			return
		}
		if err := flagstore.MarkReported(rctx, c.deps.Flags, testID, flaggedAt, reportedAt); err != nil {
			c.log.Warn().Err(err).Msg("Failed to record compromise report")
		}
	}()
}

// startTimer starts the ticker unless one runs already or the attempt left
// VIEWING before this effect ran.
func (c *Controller) startTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.timerStop != nil {
		return
	}
	if c.State().Phase != PhaseViewing {
		return
	}

	stop := make(chan struct{})
	c.timerStop = stop
	ticker := c.deps.Clock.NewTicker(TickInterval)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-c.ctx.Done():
				return
			case <-ticker.C():
				select {
				case <-stop:
					return
				default:
				}
				_ = c.Dispatch(c.ctx, Tick{Now: c.deps.Clock.Now()})
			}
		}
	}()
}

// stopTimer signals the ticker goroutine without waiting for it, so it is
// safe to call from a tick.
func (c *Controller) stopTimer() {
	c.timerMu.Lock()
	defer c.timerMu.Unlock()
	if c.timerStop == nil {
		return
	}
	close(c.timerStop)
	c.timerStop = nil
}
