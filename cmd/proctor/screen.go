package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/term"
)

const (
	enterAltScreen = "\x1b[?1049h\x1b[H\x1b[2J"
	leaveAltScreen = "\x1b[?1049l"
	clearLine      = "\r\x1b[2K"
)

// terminalScreen is the fullscreen of the terminal: the alternate screen
// buffer with the tty in raw mode.
type terminalScreen struct {
	fd  int
	out io.Writer

	mu     sync.Mutex
	saved  *term.State
	active bool
}

func newTerminalScreen(fd int, out io.Writer) *terminalScreen {
	return &terminalScreen{fd: fd, out: out}
}

func (s *terminalScreen) EnterFullscreen(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return nil
	}
	if !term.IsTerminal(s.fd) {
		return errors.New("stdin is not a terminal")
	}
	saved, err := term.MakeRaw(s.fd)
	if err != nil {
		return fmt.Errorf("raw mode: %w", err)
	}
	s.saved = saved
	s.active = true
	fmt.Fprint(s.out, enterAltScreen)
	return nil
}

func (s *terminalScreen) ExitFullscreen(context.Context) error {
	_, err := s.leave()
	return err
}

// leave restores the terminal and reports whether it was fullscreen.
func (s *terminalScreen) leave() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return false, nil
	}
	s.active = false
	fmt.Fprint(s.out, leaveAltScreen)
	if err := term.Restore(s.fd, s.saved); err != nil {
		return true, fmt.Errorf("restore terminal: %w", err)
	}
	return true, nil
}

// Printf writes to the screen. Raw mode does not translate newlines.
func (s *terminalScreen) Printf(format string, args ...any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text := fmt.Sprintf(format, args...)
	if s.active {
		text = crlf(text)
	}
	fmt.Fprint(s.out, text)
}

func crlf(s string) string {
	out := make([]byte, 0, len(s)+8)
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' && (i == 0 || s[i-1] != '\r') {
			out = append(out, '\r')
		}
		out = append(out, s[i])
	}
	return string(out)
}
