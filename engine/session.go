package engine

import (
	"context"
	"fmt"
	"net/url"

	"github.com/perfgo/e2erun/driver"
	"github.com/rs/zerolog"
)

// Session is one remote browser owned by a single attempt.
type Session struct {
	driver.Browser
	// BaseURL is the URL of the application under test.
	BaseURL string

	logger zerolog.Logger
	closed bool
}

// Visit navigates to ref resolved against BaseURL ("/search?q=x", or an
// absolute URL).
func (s *Session) Visit(ctx context.Context, ref string) error {
	base, err := url.Parse(s.BaseURL)
	if err != nil {
		return fmt.Errorf("invalid base url: %w", err)
	}
	target, err := base.Parse(ref)
	if err != nil {
		return fmt.Errorf("invalid url %q: %w", ref, err)
	}
	return s.Navigate(ctx, target.String())
}

// UserAgent reads navigator.userAgent from the page.
func (s *Session) UserAgent(ctx context.Context) (string, error) {
	v, err := s.ExecuteScript(ctx, "return navigator.userAgent")
	if err != nil {
		return "", err
	}
	ua, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("navigator.userAgent returned %T", v)
	}
	return ua, nil
}

// release closes the remote session once. Teardown errors are logged only.
func (s *Session) release(ctx context.Context) {
	if s == nil || s.closed {
		return
	}
	s.closed = true
	if err := s.Browser.Close(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to close browser session")
	}
}

// SessionFactory opens one session per attempt.
type SessionFactory struct {
	logger  zerolog.Logger
	backend driver.Backend
	cfg     RunConfig
}

func NewSessionFactory(logger zerolog.Logger, backend driver.Backend, cfg RunConfig) *SessionFactory {
	return &SessionFactory{logger: logger, backend: backend, cfg: cfg}
}

// Capabilities builds the capability request for the configured browser.
// Chrome takes the user agent as a command-line switch and loads the
// extension bundle; firefox can only override it via a profile preference.
func (f *SessionFactory) Capabilities() driver.Capabilities {
	caps := driver.Capabilities{
		Browser:      f.cfg.Browser,
		LoggingPrefs: map[string]string{driver.LogBrowser: driver.LevelSevere},
	}
	switch f.cfg.Browser {
	case driver.Chrome:
		caps.Args = []string{
			"--user-agent=" + f.cfg.UserAgent,
			"--load-extension=" + f.cfg.ExtensionPath,
		}
	case driver.Firefox:
		caps.Prefs = map[string]any{
			"general.useragent.override": f.cfg.UserAgent,
		}
	}
	return caps
}

// Open allocates a remote session. The caller owns it and must release it.
func (f *SessionFactory) Open(ctx context.Context) (*Session, error) {
	browser, err := f.backend.Open(ctx, f.Capabilities())
	if err != nil {
		return nil, &SessionError{Browser: f.cfg.Browser, Err: err}
	}

	s := &Session{Browser: browser, BaseURL: f.cfg.URL, logger: f.logger}
	if f.cfg.Slow {
		if err := browser.SetImplicitWait(ctx, slowImplicitWait); err != nil {
			s.release(ctx)
			return nil, &SessionError{Browser: f.cfg.Browser, Err: fmt.Errorf("set implicit wait: %w", err)}
		}
	}
	return s, nil
}
