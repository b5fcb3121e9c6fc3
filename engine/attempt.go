package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"runtime"
	"strings"
	"sync"
)

// TestFunc is a UI test body.
type TestFunc func(ctx context.Context, s *Session) error

// TestCase is a named test body registered at startup.
type TestCase struct {
	Name string
	Run  TestFunc
}

// Prompter blocks until an operator lets the harness continue. It backs
// both the interactive mode and the pause-on-error state.
type Prompter interface {
	Wait(ctx context.Context, prompt string) error
}

// LinePrompter prints prompt to Out and waits for a line on In. One
// goroutine reads In for the prompter's lifetime; a line typed after a
// cancelled Wait goes to the next Wait.
type LinePrompter struct {
	In  io.Reader
	Out io.Writer

	start sync.Once
	lines chan struct{}
	// err is the read error that ended In, set before lines is closed.
	err error
}

func (p *LinePrompter) Wait(ctx context.Context, prompt string) error {
	p.start.Do(func() {
		p.lines = make(chan struct{})
		go p.read()
	})
	fmt.Fprint(p.Out, prompt)

	select {
	case _, ok := <-p.lines:
		if !ok {
			return p.err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *LinePrompter) read() {
	reader := bufio.NewReader(p.In)
	for {
		if _, err := reader.ReadString('\n'); err != nil {
			if err != io.EOF {
				p.err = err
			}
			close(p.lines)
			return
		}
		p.lines <- struct{}{}
	}
}

// Executor runs one test body against an open session.
type Executor struct {
	cfg    RunConfig
	prompt Prompter
}

func NewExecutor(cfg RunConfig, prompt Prompter) *Executor {
	return &Executor{cfg: cfg, prompt: prompt}
}

// Execute verifies the session identity, resets browser state and runs the
// test body. A non-nil error is the attempt's failure cause.
func (x *Executor) Execute(ctx context.Context, s *Session, tc TestCase) error {
	ua, err := s.UserAgent(ctx)
	if err != nil {
		return fmt.Errorf("failed to read user agent: %w", err)
	}
	if ua != x.cfg.UserAgent {
		return fmt.Errorf("user agent should be %q, but was %q", x.cfg.UserAgent, ua)
	}

	if err := s.Maximize(ctx); err != nil {
		return fmt.Errorf("failed to maximize window: %w", err)
	}
	if err := s.DeleteAllCookies(ctx); err != nil {
		return fmt.Errorf("failed to delete cookies: %w", err)
	}

	if err := runBody(ctx, s, tc); err != nil {
		return err
	}

	if x.cfg.Interactive && x.prompt != nil {
		if err := x.prompt.Wait(ctx, "ENTER to continue "); err != nil {
			return fmt.Errorf("interactive prompt: %w", err)
		}
	}
	return nil
}

func runBody(ctx context.Context, s *Session, tc TestCase) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Frames: panicFrames()}
		}
	}()
	return tc.Run(ctx, s)
}

// panicFrames returns the innermost frames of the panicking goroutine,
// skipping the runtime's own.
func panicFrames() []runtime.Frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	var out []runtime.Frame
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			out = append(out, frame)
		}
		if len(out) == maxTraceFrames || !more {
			break
		}
	}
	return out
}
