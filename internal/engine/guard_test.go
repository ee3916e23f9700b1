package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestParseMode(t *testing.T) {
	cases := map[string]Mode{
		"":         ModeSerial,
		"serial":   ModeSerial,
		" Serial ": ModeSerial,
		"parallel": ModeParallel,
		"PARALLEL": ModeParallel,
	}
	for in, want := range cases {
		got, err := ParseMode(in)
		if err != nil || got != want {
			t.Fatalf("ParseMode(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	if _, err := ParseMode("queue"); err == nil {
		t.Fatalf("expected error for unknown mode")
	}
}

func TestResolveMode(t *testing.T) {
	unsafe := &stubModel{}
	safe := &stubModel{concurrent: true}
	if m, down := ResolveMode(ModeParallel, unsafe); m != ModeSerial || !down {
		t.Fatalf("unsafe parallel: got %q downgraded=%v", m, down)
	}
	if m, down := ResolveMode(ModeParallel, safe); m != ModeParallel || down {
		t.Fatalf("safe parallel: got %q downgraded=%v", m, down)
	}
	if m, down := ResolveMode(ModeSerial, safe); m != ModeSerial || down {
		t.Fatalf("safe serial: got %q downgraded=%v", m, down)
	}
}

func TestGuard_PassesParamsUnchanged(t *testing.T) {
	m := &stubModel{text: "Hello world"}
	g := NewGuard(m, ModeSerial)
	text, err := g.Generate(context.Background(), "Hi", Params{MaxTokens: 10, Temperature: 0.0})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if text != "Hello world" {
		t.Fatalf("text=%q", text)
	}
	if m.gotPrompt != "Hi" || m.gotParams.MaxTokens != 10 || m.gotParams.Temperature != 0.0 {
		t.Fatalf("unexpected args: prompt=%q params=%+v", m.gotPrompt, m.gotParams)
	}
}

func TestGuard_SerialNeverOverlaps(t *testing.T) {
	m := &stubModel{text: "x", delay: 5 * time.Millisecond}
	g := NewGuard(m, ModeSerial)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := g.Generate(context.Background(), "p", Params{}); err != nil {
				t.Errorf("Generate: %v", err)
			}
		}()
	}
	wg.Wait()
	if got := m.maxActive.Load(); got != 1 {
		t.Fatalf("expected at most 1 concurrent call, saw %d", got)
	}
	if got := m.calls.Load(); got != 8 {
		t.Fatalf("expected 8 calls, got %d", got)
	}
}

func TestGuard_ParallelOverlaps(t *testing.T) {
	m := &stubModel{text: "x", concurrent: true, started: make(chan struct{}, 2), block: make(chan struct{})}
	g := NewGuard(m, ModeParallel)
	if g.Mode() != ModeParallel {
		t.Fatalf("mode=%q", g.Mode())
	}
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Generate(context.Background(), "p", Params{})
		}()
	}
	for i := 0; i < 2; i++ {
		select {
		case <-m.started:
		case <-time.After(2 * time.Second):
			t.Fatalf("parallel calls did not start together")
		}
	}
	close(m.block)
	wg.Wait()
	if got := m.maxActive.Load(); got != 2 {
		t.Fatalf("expected 2 concurrent calls, saw %d", got)
	}
}

func TestGuard_CanceledWhileWaiting(t *testing.T) {
	m := &stubModel{text: "x", started: make(chan struct{}, 1), block: make(chan struct{})}
	g := NewGuard(m, ModeSerial)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Generate(context.Background(), "first", Params{})
	}()
	<-m.started

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := g.Generate(ctx, "second", Params{})
		errCh <- err
	}()
	cancel()
	select {
	case err := <-errCh:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter did not give up after cancel")
	}
	close(m.block)
	<-done
	if got := m.calls.Load(); got != 1 {
		t.Fatalf("canceled waiter must not reach the model; calls=%d", got)
	}
}

func TestGuard_InFlightIgnoresCancel(t *testing.T) {
	m := &stubModel{text: "done", started: make(chan struct{}, 1), block: make(chan struct{})}
	g := NewGuard(m, ModeSerial)
	ctx, cancel := context.WithCancel(context.Background())
	type result struct {
		text string
		err  error
	}
	resCh := make(chan result, 1)
	go func() {
		text, err := g.Generate(ctx, "p", Params{})
		resCh <- result{text, err}
	}()
	<-m.started
	cancel()
	close(m.block)
	res := <-resCh
	if res.err != nil || res.text != "done" {
		t.Fatalf("in-flight generation should complete: %+v", res)
	}
	if m.gotCtxErr != nil {
		t.Fatalf("model saw canceled context: %v", m.gotCtxErr)
	}
}

func TestGuard_WrapsBackendErrors(t *testing.T) {
	g := NewGuard(&stubModel{err: errors.New("out of memory")}, ModeSerial)
	_, err := g.Generate(context.Background(), "p", Params{})
	if !IsGenerationError(err) {
		t.Fatalf("expected GenerationError, got %T %v", err, err)
	}
	if !strings.Contains(err.Error(), "out of memory") {
		t.Fatalf("cause lost: %v", err)
	}

	g = NewGuard(&stubModel{err: ErrUnavailable}, ModeSerial)
	_, err = g.Generate(context.Background(), "p", Params{})
	if !IsUnavailable(err) || IsGenerationError(err) {
		t.Fatalf("ErrUnavailable should pass through unwrapped, got %v", err)
	}
}

func TestGuard_RecoversPanic(t *testing.T) {
	m := &stubModel{panicWith: "boom"}
	g := NewGuard(m, ModeSerial)
	_, err := g.Generate(context.Background(), "p", Params{})
	if !IsGenerationError(err) || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected GenerationError from panic, got %v", err)
	}
	// slot must be released after a panic
	m.panicWith = nil
	m.text = "ok"
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if text, err := g.Generate(ctx, "p", Params{}); err != nil || text != "ok" {
		t.Fatalf("after panic: text=%q err=%v", text, err)
	}
}

func TestGuard_WaitObserver(t *testing.T) {
	var observed int
	g := NewGuard(&stubModel{text: "x"}, ModeSerial, WithWaitObserver(func(time.Duration) { observed++ }))
	_, _ = g.Generate(context.Background(), "p", Params{})
	_, _ = g.Generate(context.Background(), "p", Params{})
	if observed != 2 {
		t.Fatalf("observed=%d", observed)
	}
}

func TestGuard_CloseWaitsForInFlight(t *testing.T) {
	m := &stubModel{text: "x", started: make(chan struct{}, 1), block: make(chan struct{})}
	g := NewGuard(m, ModeSerial)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = g.Generate(context.Background(), "p", Params{})
	}()
	<-m.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := g.Close(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if m.isClosed() {
		t.Fatalf("model closed while generation in flight")
	}
	close(m.block)
	<-done
	if err := g.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if !m.isClosed() {
		t.Fatalf("model not closed")
	}
}
