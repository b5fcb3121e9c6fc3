package engine

// This file contains the retry controller and the run loop that drive test
// cases through attempts.

import (
	"context"
	"fmt"
	"strings"

	"github.com/perfgo/e2erun/driver"
	"github.com/rs/zerolog"
)

// extensionTestMarker names tests that need the chrome extension bundle.
const extensionTestMarker = "test_browser_extension"

// Verdict is the terminal state of one test.
type Verdict int

const (
	Passed Verdict = iota
	Failed
	Skipped
)

func (v Verdict) String() string {
	switch v {
	case Passed:
		return "pass"
	case Failed:
		return "fail"
	case Skipped:
		return "skip"
	}
	return fmt.Sprintf("verdict(%d)", int(v))
}

// Failure is a test that failed on its last allowed attempt.
type Failure struct {
	Test        string
	Browser     driver.Kind
	URL         string
	Attempts    int
	Err         error
	Diagnostics Diagnostics
}

// Alerter escalates failures. Implementations must not block test
// progress on delivery errors.
type Alerter interface {
	ReportFailure(ctx context.Context, f Failure)
}

// Observer is notified of engine progress.
type Observer interface {
	AttemptStarted(test string, attempt int)
	// TestFinished reports the verdict; f is non-nil only for Failed.
	TestFinished(test string, v Verdict, attempts int, f *Failure)
	PassFinished(r RunResult)
}

// RunResult aggregates one sequential pass.
type RunResult struct {
	Attempted []string
	Failed    []string
	Skipped   []string
}

// Success reports whether no attempted test failed.
func (r RunResult) Success() bool {
	return len(r.Failed) == 0
}

// Summary renders "F / T FAILED" or "ALL SUCCESS". Skipped tests do not
// count towards T.
func (r RunResult) Summary() string {
	if len(r.Failed) > 0 {
		return fmt.Sprintf("%d / %d FAILED", len(r.Failed), len(r.Attempted))
	}
	return "ALL SUCCESS"
}

// Engine sequences tests through attempts, one session at a time.
type Engine struct {
	logger    zerolog.Logger
	cfg       RunConfig
	factory   *SessionFactory
	executor  *Executor
	alerter   Alerter
	prompt    Prompter
	observers []Observer
}

// Option configures an Engine.
type Option func(*Engine)

// WithAlerter escalates final failures when alerting is enabled.
func WithAlerter(a Alerter) Option {
	return func(e *Engine) {
		e.alerter = a
	}
}

// WithPrompter sets the resume signal source for interactive and
// pause-on-error modes.
func WithPrompter(p Prompter) Option {
	return func(e *Engine) {
		e.prompt = p
	}
}

// WithObserver adds a progress observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		e.observers = append(e.observers, o)
	}
}

func New(logger zerolog.Logger, cfg RunConfig, factory *SessionFactory, opts ...Option) *Engine {
	e := &Engine{
		logger:  logger,
		cfg:     cfg,
		factory: factory,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.executor = NewExecutor(cfg, e.prompt)
	return e
}

// RunTest drives tc through up to MaxAttempts attempts and stops at the
// first success. Only the final failed attempt is reported.
func (e *Engine) RunTest(ctx context.Context, tc TestCase) Verdict {
	browser := string(e.cfg.Browser)
	if e.cfg.Browser == driver.Firefox && strings.Contains(tc.Name, extensionTestMarker) {
		e.logger.Info().Str("browser", browser).Msgf("%s %s", tag(skipStyle, "SKIP"), tc.Name)
		e.notifyFinished(tc.Name, Skipped, 0, nil)
		return Skipped
	}

	for i := 1; i <= e.cfg.MaxAttempts; i++ {
		e.logger.Info().
			Str("browser", browser).
			Int("attempt", i).
			Int("of", e.cfg.MaxAttempts).
			Msgf("%s %s", tag(runStyle, "RUN "), tc.Name)
		for _, o := range e.observers {
			o.AttemptStarted(tc.Name, i)
		}

		if failure := e.attempt(ctx, tc, i); failure == nil {
			e.logger.Info().Str("browser", browser).Msgf("%s %s", tag(passStyle, "PASS"), tc.Name)
			e.notifyFinished(tc.Name, Passed, i, nil)
			return Passed
		} else if i == e.cfg.MaxAttempts {
			e.notifyFinished(tc.Name, Failed, i, failure)
			return Failed
		}
	}
	// Unreachable with MaxAttempts >= 1.
	return Failed
}

// attempt runs one attempt in a fresh session. On the final attempt a
// failure is diagnosed, reported and paused on while the session is still
// open. The session is released on every path.
func (e *Engine) attempt(ctx context.Context, tc TestCase, i int) (failure *Failure) {
	s, err := e.factory.Open(ctx)
	defer s.release(ctx)

	if err == nil {
		err = e.executor.Execute(ctx, s, tc)
		if err == nil {
			return nil
		}
	}
	attemptErr := &AttemptError{Test: tc.Name, Attempt: i, Err: err}

	if i < e.cfg.MaxAttempts {
		e.logger.Debug().Err(attemptErr).Msg("Attempt failed, retrying")
		return &Failure{Test: tc.Name, Err: attemptErr}
	}
	return e.fail(ctx, s, tc, i, attemptErr)
}

func (e *Engine) fail(ctx context.Context, s *Session, tc TestCase, attempts int, err *AttemptError) *Failure {
	browser := string(e.cfg.Browser)
	e.logger.Error().Str("browser", browser).Msgf("%s %s", tag(failStyle, "FAIL"), tc.Name)

	diag := Collect(ctx, s, err)
	e.logger.Error().Msgf("Error:\n%s", diag.Trace)
	e.logger.Info().Msgf("Browser log:\n%s", diag.ConsoleLog)
	for _, problem := range diag.Problems {
		e.logger.Warn().Str("test", tc.Name).Msgf("Incomplete diagnostics: %s", problem)
	}

	f := &Failure{
		Test:        tc.Name,
		Browser:     e.cfg.Browser,
		URL:         diag.CurrentURL,
		Attempts:    attempts,
		Err:         err,
		Diagnostics: diag,
	}
	if f.URL == "" {
		f.URL = e.cfg.URL
	}

	if e.cfg.AlertOnErr && e.alerter != nil {
		e.alerter.ReportFailure(ctx, *f)
	}

	if e.cfg.PauseOnErr && e.prompt != nil {
		e.logger.Warn().Str("test", tc.Name).Msg("PAUSED on error; the browser session stays open for inspection")
		if err := e.prompt.Wait(ctx, "Press ENTER to resume the test run "); err != nil {
			e.logger.Warn().Err(err).Msg("Resume signal failed")
		}
	}
	return f
}

func (e *Engine) notifyFinished(test string, v Verdict, attempts int, f *Failure) {
	for _, o := range e.observers {
		o.TestFinished(test, v, attempts, f)
	}
}

// Run makes one sequential pass over tests, in order.
func (e *Engine) Run(ctx context.Context, tests []TestCase) RunResult {
	plan := make([]string, 0, len(tests))
	for _, tc := range tests {
		plan = append(plan, "\t"+tc.Name)
	}
	e.logger.Info().Msgf("Starting test run with test plan:\n%s", strings.Join(plan, "\n"))

	var result RunResult
	for _, tc := range tests {
		switch e.RunTest(ctx, tc) {
		case Skipped:
			result.Skipped = append(result.Skipped, tc.Name)
		case Failed:
			result.Attempted = append(result.Attempted, tc.Name)
			result.Failed = append(result.Failed, tc.Name)
		default:
			result.Attempted = append(result.Attempted, tc.Name)
		}
	}

	if result.Success() {
		e.logger.Info().Msgf("Test run results: %s", passStyle.Render(result.Summary()))
	} else {
		e.logger.Error().Msgf("Test run results: %s", failStyle.Render(result.Summary()))
	}
	for _, o := range e.observers {
		o.PassFinished(result)
	}
	return result
}

// Loop repeats Run until ctx is cancelled.
func (e *Engine) Loop(ctx context.Context, tests []TestCase) error {
	e.logger.Info().Msg("Looping forever...")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.Run(ctx, tests)
	}
}
