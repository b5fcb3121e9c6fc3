package cdp

// Package cdp drives Chrome over the DevTools protocol with go-rod. The
// remote endpoint is a rod browser manager (ghcr.io/go-rod/rod), which
// launches one Chrome per session with the requested command-line switches.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/perfgo/e2erun/driver"
	"github.com/rs/zerolog"
)

// Backend opens Chrome sessions through a rod browser manager.
type Backend struct {
	logger     zerolog.Logger
	serviceURL string
}

// New creates a backend for the manager at serviceURL, e.g. ws://localhost:7317.
func New(logger zerolog.Logger, serviceURL string) *Backend {
	return &Backend{logger: logger, serviceURL: serviceURL}
}

// Open launches a remote Chrome and opens a blank page in it.
func (b *Backend) Open(ctx context.Context, caps driver.Capabilities) (driver.Browser, error) {
	if caps.Browser != driver.Chrome {
		return nil, fmt.Errorf("cdp backend only drives chrome, got %s", caps.Browser)
	}

	l, err := launcher.NewManaged(b.serviceURL)
	if err != nil {
		return nil, fmt.Errorf("connect to browser manager: %w", err)
	}
	for _, rawFlag := range caps.Args {
		name, val, hasVal := strings.Cut(strings.TrimLeft(rawFlag, "-"), "=")
		if hasVal {
			l = l.Set(flags.Flag(name), val)
		} else {
			l = l.Set(flags.Flag(name))
		}
	}

	client, err := l.Client()
	if err != nil {
		return nil, fmt.Errorf("launch remote chrome: %w", err)
	}

	browser := rod.New().Client(client).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to chrome: %w", err)
	}

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = browser.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	s := &session{logger: b.logger, browser: browser, page: page}
	if caps.LoggingPrefs[driver.LogBrowser] != "" {
		s.listen()
	}

	b.logger.Debug().Str("target", string(page.TargetID)).Msg("Opened CDP session")
	return s, nil
}

type session struct {
	logger  zerolog.Logger
	browser *rod.Browser
	page    *rod.Page
	wait    time.Duration

	mu   sync.Mutex
	logs []driver.LogEntry
}

// listen records console errors and uncaught exceptions until the page dies.
func (s *session) listen() {
	wait := s.page.EachEvent(
		func(ev *proto.RuntimeConsoleAPICalled) {
			if ev.Type != proto.RuntimeConsoleAPICalledTypeError {
				return
			}
			s.record(consoleText(ev.Args))
		},
		func(ev *proto.RuntimeExceptionThrown) {
			if ev.ExceptionDetails == nil {
				return
			}
			msg := ev.ExceptionDetails.Text
			if exc := ev.ExceptionDetails.Exception; exc != nil && exc.Description != "" {
				msg = exc.Description
			}
			s.record(msg)
		},
	)
	go wait()
}

func (s *session) record(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs = append(s.logs, driver.LogEntry{
		Level:     driver.LevelSevere,
		Message:   msg,
		Timestamp: time.Now(),
	})
}

func consoleText(args []*proto.RuntimeRemoteObject) string {
	parts := make([]string, 0, len(args))
	for _, a := range args {
		if a == nil {
			continue
		}
		if !a.Value.Nil() {
			parts = append(parts, a.Value.String())
			continue
		}
		if a.Description != "" {
			parts = append(parts, a.Description)
		}
	}
	return strings.Join(parts, " ")
}

func (s *session) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	res, err := s.page.Context(ctx).Eval("function() {"+script+"\n}", args...)
	if err != nil {
		return nil, err
	}
	return res.Value.Val(), nil
}

func (s *session) Navigate(ctx context.Context, url string) error {
	p := s.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return err
	}
	return p.WaitLoad()
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (s *session) Title(ctx context.Context) (string, error) {
	info, err := s.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.Title, nil
}

func (s *session) Maximize(ctx context.Context) error {
	return s.page.Context(ctx).SetWindow(&proto.BrowserBounds{
		WindowState: proto.BrowserWindowStateMaximized,
	})
}

func (s *session) DeleteAllCookies(ctx context.Context) error {
	return proto.NetworkClearBrowserCookies{}.Call(s.page.Context(ctx))
}

func (s *session) SetImplicitWait(_ context.Context, d time.Duration) error {
	s.wait = d
	return nil
}

func (s *session) FindElement(ctx context.Context, selector string) (driver.Element, error) {
	p := s.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	if s.wait > 0 {
		el, err = p.Timeout(s.wait).Element(selector)
		if el != nil {
			el = el.CancelTimeout()
		}
	} else {
		el, err = p.Sleeper(rod.NotFoundSleeper).Element(selector)
	}
	if err != nil {
		var notFound *rod.ElementNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("find %q: %w", selector, driver.ErrNoSuchElement)
		}
		return nil, fmt.Errorf("find %q: %w", selector, err)
	}
	return &element{el: el}, nil
}

func (s *session) Logs(_ context.Context, category string) ([]driver.LogEntry, error) {
	if category != driver.LogBrowser {
		return nil, fmt.Errorf("unsupported log category %q", category)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.logs
	s.logs = nil
	return entries, nil
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	return s.page.Context(ctx).Screenshot(false, nil)
}

func (s *session) Close(_ context.Context) error {
	return s.browser.Close()
}

type element struct {
	el *rod.Element
}

func (e *element) Click(ctx context.Context) error {
	return e.el.Context(ctx).Click(proto.InputMouseButtonLeft, 1)
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.el.Context(ctx).Input(text)
}

func (e *element) Text(ctx context.Context) (string, error) {
	return e.el.Context(ctx).Text()
}
