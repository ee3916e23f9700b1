package engine

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// stubModel is an in-memory Model used by tests.
type stubModel struct {
	text       string
	err        error
	panicWith  any
	concurrent bool
	delay      time.Duration
	started    chan struct{} // if set, receives once per call after entry
	block      chan struct{} // if set, Generate waits for it to close

	active    atomic.Int32
	maxActive atomic.Int32
	calls     atomic.Int32

	mu        sync.Mutex
	gotPrompt string
	gotParams Params
	gotCtxErr error
	closed    bool
}

func (s *stubModel) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	s.calls.Add(1)
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		cur := s.maxActive.Load()
		if n <= cur || s.maxActive.CompareAndSwap(cur, n) {
			break
		}
	}
	s.mu.Lock()
	s.gotPrompt, s.gotParams = prompt, p
	s.mu.Unlock()
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.block != nil {
		<-s.block
	}
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	s.gotCtxErr = ctx.Err()
	s.mu.Unlock()
	if s.panicWith != nil {
		panic(s.panicWith)
	}
	if s.err != nil {
		return "", s.err
	}
	return s.text, nil
}

func (s *stubModel) ConcurrentSafe() bool { return s.concurrent }

func (s *stubModel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *stubModel) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
