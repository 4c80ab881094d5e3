package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/stemsi/exstem-proctor/internal/model"
	"github.com/stemsi/exstem-proctor/internal/proctor"
)

const keyCtrlC = 0x03

var (
	viewOut    string
	viewAnswer string
)

var viewCmd = &cobra.Command{
	Use:   "view <test-id>",
	Short: "Open a test paper in proctored fullscreen",
	Long: `Open a test paper in proctored fullscreen. The paper is saved to --out and
the countdown runs until you submit or close. Leaving fullscreen (Ctrl+C)
locks the paper until a proctor resets it. With --answer the file is
submitted automatically when time runs out.

Keys: s submit, q close, Ctrl+C leave fullscreen.
`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
		defer stop()

		flags, err := cli.flags()
		if err != nil {
			return err
		}
		test, err := cli.findTest(ctx, flags, args[0])
		if err != nil {
			return err
		}

		screen := newTerminalScreen(int(os.Stdin.Fd()), os.Stdout)
		v := &viewer{screen: screen, changed: make(chan struct{}, 1)}

		ctrl, err := proctor.NewController(ctx, *test, proctor.Deps{
			Backend:   cli.tests,
			Flags:     flags,
			Screen:    screen,
			Log:       cli.log,
			OnChange:  v.render,
			OnRefresh: cli.refresher(flags),
		})
		if err != nil {
			return err
		}
		defer ctrl.Shutdown()

		if viewAnswer != "" {
			file, err := model.AnswerFileFromPath(viewAnswer)
			if err != nil {
				return err
			}
			if err := ctrl.SelectFile(ctx, file); err != nil {
				return err
			}
		}

		// Keys are read while the paper loads so leaving fullscreen during
		// the fetch is recorded straight away.
		keys := readKeys()
		opened := make(chan error, 1)
		go func() { opened <- ctrl.Open(ctx) }()
		defer func() { _, _ = screen.leave() }()

		return v.loop(ctx, ctrl, keys, opened)
	},
}

type viewer struct {
	screen    *terminalScreen
	changed   chan struct{}
	paperPath string
}

// render runs under the controller lock on every state change.
func (v *viewer) render(s proctor.State) {
	select {
	case v.changed <- struct{}{}:
	default:
	}
	if s.Phase != proctor.PhaseViewing && s.Phase != proctor.PhaseSubmitting {
		return
	}
	v.screen.Printf("%s%s", clearLine, statusLine(s))
}

func statusLine(s proctor.State) string {
	var line string
	switch {
	case s.Phase == proctor.PhaseSubmitting:
		line = "Submitting answer..."
	case s.TimeUp:
		line = "Time is up and no answer was selected."
	default:
		line = formatLeft(s.TimeLeft) + " left"
		if s.Late {
			line += " (late)"
		}
		if s.File != nil {
			line += "  answer: " + s.File.Name + "  [s] submit"
		}
		line += "  [q] close"
	}
	if s.Warning {
		line = "LOCKED: you left fullscreen. " + line
	}
	if s.Err != nil {
		line += "  error: " + s.Err.Error()
	}
	return line
}

func (v *viewer) showPaper(s proctor.State) error {
	if s.Content == nil {
		return nil
	}

	path := viewOut
	if path == "" {
		ext := ".txt"
		if s.Content.Type == model.ContentTypePDF {
			ext = ".pdf"
		}
		path = s.Test.ID.String() + ext
	}
	data := s.Content.PDF
	if s.Content.Type == model.ContentTypeText {
		data = []byte(s.Content.Text)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("save paper: %w", err)
	}
	v.paperPath, _ = filepath.Abs(path)

	v.screen.Printf("%s\n\n", s.Test.Title)
	if s.Content.Type == model.ContentTypeText {
		v.screen.Printf("%s\n\n", s.Content.Text)
	}
	v.screen.Printf("Paper saved to %s\n\n", v.paperPath)
	return nil
}

// loop handles keys until the attempt leaves the viewing dialog. opened
// delivers the result of Open; phase checks wait for it.
func (v *viewer) loop(ctx context.Context, ctrl *proctor.Controller, keys <-chan byte, opened <-chan error) error {
	for {
		if opened == nil {
			s := ctrl.State()
			switch s.Phase {
			case proctor.PhaseSubmitted:
				_, _ = v.screen.leave()
				printSubmitted(s)
				return nil
			case proctor.PhaseExpired:
				return proctor.ErrExpired
			case proctor.PhaseNotStarted:
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if opened != nil {
				<-opened
			}
			v.leaveFullscreen(ctrl)
			return nil

		case err := <-opened:
			opened = nil
			if err != nil {
				return err
			}
			if err := v.showPaper(ctrl.State()); err != nil {
				return err
			}

		case <-v.changed:

		case k, ok := <-keys:
			if !ok {
				return nil
			}
			switch k {
			case keyCtrlC:
				v.leaveFullscreen(ctrl)
			case 'q', 'Q':
				if err := ctrl.Close(ctx); err != nil {
					v.screen.Printf("%s%v", clearLine, err)
				}
			case 's', 'S':
				if err := ctrl.Submit(ctx); err != nil && !errors.Is(err, proctor.ErrSubmitting) {
					v.screen.Printf("%ssubmit: %v", clearLine, err)
				}
			}
		}
	}
}

// leaveFullscreen restores the terminal and records the exit. The saved
// paper goes with it.
func (v *viewer) leaveFullscreen(ctrl *proctor.Controller) {
	left, err := v.screen.leave()
	if err != nil {
		cli.log.Warn().Err(err).Msg("Failed to restore terminal")
	}
	if !left {
		return
	}
	_ = ctrl.FullscreenExited(context.Background())
	if v.paperPath != "" {
		_ = os.Remove(v.paperPath)
		v.paperPath = ""
	}
	fmt.Fprintln(os.Stderr, "\nYou left fullscreen. The paper is locked until a proctor resets it.")
}

// readKeys streams stdin bytes. The goroutine ends with the process.
func readKeys() <-chan byte {
	keys := make(chan byte)
	go func() {
		defer close(keys)
		buf := make([]byte, 1)
		for {
			n, err := os.Stdin.Read(buf)
			if err != nil {
				return
			}
			if n == 1 {
				keys <- buf[0]
			}
		}
	}()
	return keys
}

func init() {
	rootCmd.AddCommand(viewCmd)

	viewCmd.Flags().StringVarP(&viewOut, "out", "o", "", "Where to save the paper (default <test-id>.pdf or .txt)")
	viewCmd.Flags().StringVarP(&viewAnswer, "answer", "a", "", "Answer file to submit (.pdf, .doc, .docx)")
}
