package apiclient

import (
	"context"
	"sync"
)

// Superseder cancels an in-flight call when a newer call for the same logical
// key begins. The zero value is ready to use.
type Superseder struct {
	mu       sync.Mutex
	inflight map[string]*inflightCall
}

type inflightCall struct {
	cancel context.CancelFunc
}

// Begin cancels the previous call registered under key, then returns the
// context for the new call and a release func to call when it finishes.
func (s *Superseder) Begin(ctx context.Context, key string) (context.Context, func()) {
	callCtx, cancel := context.WithCancel(ctx)
	call := &inflightCall{cancel: cancel}

	s.mu.Lock()
	if s.inflight == nil {
		s.inflight = make(map[string]*inflightCall)
	}
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
	}
	s.inflight[key] = call
	s.mu.Unlock()

	return callCtx, func() {
		s.mu.Lock()
		if s.inflight[key] == call {
			delete(s.inflight, key)
		}
		s.mu.Unlock()
		cancel()
	}
}

// Cancel aborts the call registered under key, if any.
func (s *Superseder) Cancel(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if call, ok := s.inflight[key]; ok {
		call.cancel()
		delete(s.inflight, key)
	}
}
