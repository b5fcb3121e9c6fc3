package alert

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/perfgo/e2erun/driver"
	"github.com/perfgo/e2erun/engine"
	"github.com/rs/zerolog"
)

const screenshotFilename = "screenshot.png"

// Poster delivers messages to a chat channel.
type Poster interface {
	PostMessage(ctx context.Context, channel, text string) error
	PostFile(ctx context.Context, channel, text string, data []byte, filename string) error
}

// Escalation is one pager alert.
type Escalation struct {
	Message     string
	Alias       string
	Description string
	Tags        []string
}

// Escalator pages the on-call rotation.
type Escalator interface {
	Escalate(ctx context.Context, e Escalation) error
}

// DeliveryError is a failed post or escalation. It is logged, never fatal.
type DeliveryError struct {
	Op  string
	Err error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("alert delivery failed (%s): %v", e.Op, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

type Options struct {
	Logger    zerolog.Logger
	Poster    Poster
	Escalator Escalator
	Channel   string
	Browser   driver.Kind
	// Tests is the plan named in the announcement.
	Tests    []string
	ReproDir string
	// Rand picks the identity; nil uses the global source.
	Rand *rand.Rand
}

// Session is the alerting identity of one process.
type Session struct {
	opts      Options
	identity  Identity
	closeOnce sync.Once
}

var _ engine.Alerter = (*Session)(nil)

// Start picks an identity and announces the test plan.
func Start(ctx context.Context, opts Options) *Session {
	s := &Session{opts: opts, identity: RandomIdentity(opts.Rand)}
	s.post(ctx, "announce", announcement(s.identity, opts.Browser, opts.Tests))
	return s
}

func (s *Session) Identity() Identity {
	return s.identity
}

// ReportFailure posts the failure report with its screenshot and pages
// on-call.
func (s *Session) ReportFailure(ctx context.Context, f engine.Failure) {
	msg := FailureMessage(f, s.opts.ReproDir)
	if len(f.Diagnostics.Screenshot) > 0 {
		if err := s.opts.Poster.PostFile(ctx, s.opts.Channel, msg, f.Diagnostics.Screenshot, screenshotFilename); err != nil {
			s.warn(&DeliveryError{Op: "upload failure report", Err: err})
		}
	} else {
		s.post(ctx, "post failure report", msg)
	}

	if s.opts.Escalator == nil {
		return
	}
	err := s.opts.Escalator.Escalate(ctx, Escalation{
		Message:     fmt.Sprintf("e2e test %s failed on %s", f.Test, f.Browser.Title()),
		Alias:       fmt.Sprintf("e2e-%s-%s", f.Browser, f.Test),
		Description: msg,
		Tags:        []string{"e2e", string(f.Browser)},
	})
	if err != nil {
		s.warn(&DeliveryError{Op: "escalate", Err: err})
	}
}

// Close posts the death notice. Only the first call has an effect.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.post(ctx, "death notice", deathNotice(s.identity, s.opts.Browser))
	})
}

func (s *Session) post(ctx context.Context, op, text string) {
	if err := s.opts.Poster.PostMessage(ctx, s.opts.Channel, text); err != nil {
		s.warn(&DeliveryError{Op: op, Err: err})
	}
}

func (s *Session) warn(err error) {
	s.opts.Logger.Warn().Err(err).Msg("Alert not delivered")
}
