package engine

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Mode is the concurrency policy applied around a Model.
type Mode string

const (
	// ModeSerial admits one generation at a time.
	ModeSerial Mode = "serial"
	// ModeParallel applies no mutual exclusion. Only honoured for models
	// that report ConcurrentSafe.
	ModeParallel Mode = "parallel"
)

// ParseMode parses a mode name. An empty string selects ModeSerial.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSerial:
		return ModeSerial, nil
	case ModeParallel:
		return ModeParallel, nil
	default:
		return "", fmt.Errorf("unknown concurrency mode %q", s)
	}
}

// ResolveMode returns the mode that is safe for m. The second result is true
// when a parallel request was downgraded to serial.
func ResolveMode(requested Mode, m Model) (Mode, bool) {
	if requested == ModeParallel && !m.ConcurrentSafe() {
		return ModeSerial, true
	}
	if requested == ModeParallel {
		return ModeParallel, false
	}
	return ModeSerial, false
}

// GuardOption configures a Guard.
type GuardOption func(*Guard)

// WithWaitObserver installs a callback that receives the time each call spent
// waiting for the generation slot.
func WithWaitObserver(fn func(time.Duration)) GuardOption {
	return func(g *Guard) { g.observeWait = fn }
}

// Guard is the shared, read-only entry point to a Model. In serial mode it
// holds a single generation slot; callers block on it until it frees up.
type Guard struct {
	model       Model
	mode        Mode
	slot        chan struct{} // size 1; nil in parallel mode
	observeWait func(time.Duration)
}

// NewGuard wraps m with the given mode. Callers should pass a mode obtained
// from ResolveMode.
func NewGuard(m Model, mode Mode, opts ...GuardOption) *Guard {
	g := &Guard{model: m, mode: mode}
	if mode != ModeParallel {
		g.mode = ModeSerial
		g.slot = make(chan struct{}, 1)
	}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Mode returns the effective concurrency mode.
func (g *Guard) Mode() Mode { return g.mode }

// Generate waits for the generation slot and runs the model. Cancelling ctx
// only abandons the wait; once the model starts it runs to completion.
// Backend failures and panics come back as *GenerationError, except for
// ErrUnavailable which is returned as is.
func (g *Guard) Generate(ctx context.Context, prompt string, p Params) (text string, err error) {
	start := time.Now()
	release, err := g.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()
	if g.slot != nil && g.observeWait != nil {
		g.observeWait(time.Since(start))
	}

	defer func() {
		if r := recover(); r != nil {
			text, err = "", &GenerationError{Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	text, err = g.model.Generate(context.WithoutCancel(ctx), prompt, p)
	if err != nil {
		if IsUnavailable(err) || IsGenerationError(err) {
			return "", err
		}
		return "", &GenerationError{Err: err}
	}
	return text, nil
}

// acquire reserves the generation slot. Returns a release func to be deferred.
func (g *Guard) acquire(ctx context.Context) (func(), error) {
	if err := ctx.Err(); err != nil {
		return func() {}, err
	}
	if g.slot == nil {
		return func() {}, nil
	}
	select {
	case g.slot <- struct{}{}:
		return func() { <-g.slot }, nil
	case <-ctx.Done():
		return func() {}, ctx.Err()
	}
}

// Close waits for any in-flight generation, then releases the underlying
// model. If ctx expires first the model is left open and ctx.Err is returned.
func (g *Guard) Close(ctx context.Context) error {
	release, err := g.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()
	return g.model.Close()
}
