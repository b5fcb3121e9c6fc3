package driver

// Package driver defines the command/response surface e2erun needs from a
// remote browser-automation server. Concrete backends live in the
// webdriver (Selenium hub / W3C WebDriver) and cdp (Chrome DevTools via
// go-rod) sub-packages.

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Kind identifies the browser a session is opened against.
type Kind string

const (
	Chrome  Kind = "chrome"
	Firefox Kind = "firefox"
)

// ParseKind validates a browser name given on the command line.
func ParseKind(name string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(name))); k {
	case Chrome, Firefox:
		return k, nil
	}
	return "", fmt.Errorf("browser needs to be chrome or firefox, was %s", name)
}

// Title returns the capitalized browser name used in human-facing messages.
func (k Kind) Title() string {
	if k == "" {
		return ""
	}
	return strings.ToUpper(string(k[:1])) + string(k[1:])
}

// Log categories and levels understood by every backend.
const (
	LogBrowser  = "browser"
	LevelSevere = "SEVERE"
)

// ErrNoSuchElement is matched (via errors.Is) by backend errors returned when
// an element lookup finds nothing.
var ErrNoSuchElement = errors.New("no such element")

// Capabilities describes the session a backend should open.
type Capabilities struct {
	Browser Kind
	// Args are chrome command-line switches such as --user-agent=...
	Args []string
	// Prefs are firefox profile preferences.
	Prefs map[string]any
	// LoggingPrefs maps a log category to the minimum level to record.
	LoggingPrefs map[string]string
}

// LogEntry is a single browser console log record.
type LogEntry struct {
	Level     string
	Message   string
	Timestamp time.Time
}

// Browser is a live remote browser session.
type Browser interface {
	// ExecuteScript runs script as the body of a function and returns its
	// JSON-decoded return value.
	ExecuteScript(ctx context.Context, script string, args ...any) (any, error)
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	Title(ctx context.Context) (string, error)
	Maximize(ctx context.Context) error
	DeleteAllCookies(ctx context.Context) error
	// SetImplicitWait sets how long element lookups retry before failing.
	SetImplicitWait(ctx context.Context, d time.Duration) error
	FindElement(ctx context.Context, selector string) (Element, error)
	// Logs returns and drains the entries recorded for category.
	Logs(ctx context.Context, category string) ([]LogEntry, error)
	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	Close(ctx context.Context) error
}

// Element is a handle to a DOM element found in a Browser.
type Element interface {
	Click(ctx context.Context) error
	SendKeys(ctx context.Context, text string) error
	Text(ctx context.Context) (string, error)
}

// Backend opens sessions on a remote automation server.
type Backend interface {
	Open(ctx context.Context, caps Capabilities) (Browser, error)
}
