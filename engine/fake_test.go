package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/perfgo/e2erun/driver"
)

// fakeBackend is an in-memory automation server that counts sessions.
type fakeBackend struct {
	mu sync.Mutex

	userAgent string
	openErr   error
	logs      []driver.LogEntry
	shot      []byte
	shotErr   error

	caps        []driver.Capabilities
	opens       int
	closes      int
	doubleClose int
	live        int
	maxLive     int
	browsers    []*fakeBrowser
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		userAgent: DefaultUserAgent,
		shot:      []byte("\x89PNG"),
	}
}

func (b *fakeBackend) Open(_ context.Context, caps driver.Capabilities) (driver.Browser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.caps = append(b.caps, caps)
	if b.openErr != nil {
		return nil, b.openErr
	}
	b.opens++
	b.live++
	if b.live > b.maxLive {
		b.maxLive = b.live
	}
	br := &fakeBrowser{backend: b, url: "about:blank"}
	b.browsers = append(b.browsers, br)
	return br, nil
}

func (b *fakeBackend) liveSessions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.live
}

type fakeBrowser struct {
	backend *fakeBackend
	closed  bool

	url          string
	maximized    bool
	cookiesReset bool
	implicitWait time.Duration
}

func (f *fakeBrowser) ExecuteScript(_ context.Context, script string, _ ...any) (any, error) {
	if script == "return navigator.userAgent" {
		return f.backend.userAgent, nil
	}
	return nil, nil
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	f.url = url
	return nil
}

func (f *fakeBrowser) CurrentURL(context.Context) (string, error) { return f.url, nil }

func (f *fakeBrowser) Title(context.Context) (string, error) { return "Sourcegraph", nil }

func (f *fakeBrowser) Maximize(context.Context) error {
	f.maximized = true
	return nil
}

func (f *fakeBrowser) DeleteAllCookies(context.Context) error {
	f.cookiesReset = true
	return nil
}

func (f *fakeBrowser) SetImplicitWait(_ context.Context, d time.Duration) error {
	f.implicitWait = d
	return nil
}

func (f *fakeBrowser) FindElement(_ context.Context, selector string) (driver.Element, error) {
	return nil, driver.ErrNoSuchElement
}

func (f *fakeBrowser) Logs(context.Context, string) ([]driver.LogEntry, error) {
	return f.backend.logs, nil
}

func (f *fakeBrowser) Screenshot(context.Context) ([]byte, error) {
	return f.backend.shot, f.backend.shotErr
}

func (f *fakeBrowser) Close(context.Context) error {
	f.backend.mu.Lock()
	defer f.backend.mu.Unlock()
	if f.closed {
		f.backend.doubleClose++
		return errors.New("session already closed")
	}
	f.closed = true
	f.backend.closes++
	f.backend.live--
	return nil
}

// recordingAlerter remembers every reported failure.
type recordingAlerter struct {
	failures []Failure
}

func (a *recordingAlerter) ReportFailure(_ context.Context, f Failure) {
	a.failures = append(a.failures, f)
}

// funcPrompter runs fn on every Wait.
type funcPrompter struct {
	calls int
	fn    func()
}

func (p *funcPrompter) Wait(context.Context, string) error {
	p.calls++
	if p.fn != nil {
		p.fn()
	}
	return nil
}

// flakyTest fails its first n runs.
func flakyTest(name string, n int) (TestCase, *int) {
	runs := 0
	return TestCase{
		Name: name,
		Run: func(context.Context, *Session) error {
			runs++
			if runs <= n {
				return errors.New("element not visible")
			}
			return nil
		},
	}, &runs
}
