package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/perfgo/e2erun/driver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openFakeSession(t *testing.T, backend *fakeBackend) *Session {
	t.Helper()
	s, err := NewSessionFactory(zerolog.Nop(), backend, testConfig(1)).Open(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { s.release(context.Background()) })
	return s
}

func TestCollectWithoutConsoleEntries(t *testing.T) {
	backend := newFakeBackend()
	s := openFakeSession(t, backend)
	require.NoError(t, s.Navigate(context.Background(), "https://sourcegraph.example.com/github.com/foo/bar"))

	d := Collect(context.Background(), s, errors.New("timed out"))
	assert.Equal(t, "(None)", d.ConsoleLog)
	assert.Empty(t, d.Console)
	assert.Equal(t, "https://sourcegraph.example.com/github.com/foo/bar", d.CurrentURL)
	assert.Equal(t, []byte("\x89PNG"), d.Screenshot)
	assert.Empty(t, d.Problems)
}

func TestCollectSwallowsScreenshotErrors(t *testing.T) {
	backend := newFakeBackend()
	backend.shotErr = errors.New("session deleted")
	backend.logs = []driver.LogEntry{
		{Level: "SEVERE", Message: "first"},
		{Level: "WARNING", Message: "skipped"},
		{Level: "severe", Message: "second"},
	}
	s := openFakeSession(t, backend)

	d := Collect(context.Background(), s, errors.New("boom"))
	assert.Nil(t, d.Screenshot)
	require.Len(t, d.Problems, 1)
	assert.Contains(t, d.Problems[0], "screenshot: session deleted")
	assert.Equal(t, "[SEVERE] first\n[severe] second", d.ConsoleLog)
}

type wrappedCause struct{ msg string }

func (w *wrappedCause) Error() string { return w.msg }

func TestFormatTraceIncludesChain(t *testing.T) {
	err := &AttemptError{Test: "test_x", Attempt: 2, Err: fmt.Errorf("click submit: %w", &wrappedCause{msg: "stale element"})}

	trace := FormatTrace(err)
	lines := strings.Split(trace, "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "test_x (attempt 2): click submit: stale element", lines[0])
	assert.Equal(t, "caused by *fmt.wrapError: click submit: stale element", lines[1])
	assert.Equal(t, "caused by *engine.wrappedCause: stale element", lines[2])

	assert.Empty(t, FormatTrace(nil))
}

func TestPanicTraceIsBounded(t *testing.T) {
	var recurse func(n int)
	recurse = func(n int) {
		if n == 0 {
			panic("deep")
		}
		recurse(n - 1)
	}

	err := runBody(context.Background(), nil, TestCase{Name: "test_deep", Run: func(context.Context, *Session) error {
		recurse(100)
		return nil
	}})

	var panicErr *PanicError
	require.ErrorAs(t, err, &panicErr)
	assert.Equal(t, "deep", panicErr.Value)
	assert.Len(t, panicErr.Frames, maxTraceFrames)
	assert.Contains(t, panicErr.Frames[0].Function, "TestPanicTraceIsBounded")

	trace := FormatTrace(err)
	assert.True(t, strings.HasPrefix(trace, "panic: deep"))
	assert.Contains(t, trace, "goroutine frames (innermost first):")
}

func TestCapabilities(t *testing.T) {
	chrome := testConfig(1)
	caps := NewSessionFactory(zerolog.Nop(), nil, chrome).Capabilities()
	assert.Equal(t, driver.Chrome, caps.Browser)
	assert.Equal(t, []string{
		"--user-agent=Sourcegraph e2etest-bot",
		"--load-extension=/browser-ext",
	}, caps.Args)
	assert.Nil(t, caps.Prefs)
	assert.Equal(t, map[string]string{"browser": "SEVERE"}, caps.LoggingPrefs)

	firefox := testConfig(1)
	firefox.Browser = driver.Firefox
	caps = NewSessionFactory(zerolog.Nop(), nil, firefox).Capabilities()
	assert.Empty(t, caps.Args)
	assert.Equal(t, map[string]any{"general.useragent.override": "Sourcegraph e2etest-bot"}, caps.Prefs)
	assert.Equal(t, map[string]string{"browser": "SEVERE"}, caps.LoggingPrefs)
}

func TestSlowModeSetsImplicitWait(t *testing.T) {
	cfg := testConfig(1)
	cfg.Slow = true
	backend := newFakeBackend()
	s, err := NewSessionFactory(zerolog.Nop(), backend, cfg).Open(context.Background())
	require.NoError(t, err)
	defer s.release(context.Background())
	assert.Equal(t, 500*time.Millisecond, backend.browsers[0].implicitWait)

	backend = newFakeBackend()
	s = openFakeSession(t, backend)
	assert.Zero(t, backend.browsers[0].implicitWait)
}

func TestReleaseIsIdempotent(t *testing.T) {
	backend := newFakeBackend()
	s := openFakeSession(t, backend)
	s.release(context.Background())
	s.release(context.Background())
	assert.Equal(t, 1, backend.closes)
	assert.Zero(t, backend.doubleClose)

	var nilSession *Session
	assert.NotPanics(t, func() { nilSession.release(context.Background()) })
}

func TestValidate(t *testing.T) {
	base := RunConfig{URL: "https://sourcegraph.com", Selenium: "http://localhost:4444", Browser: driver.Chrome, MaxAttempts: 1}

	cfg, err := base.Validate()
	require.NoError(t, err)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, DefaultExtensionPath, cfg.ExtensionPath)

	for name, want := range map[string]driver.Kind{
		"Firefox":  driver.Firefox,
		" CHROME ": driver.Chrome,
	} {
		c := base
		c.Browser = driver.Kind(name)
		cfg, err := c.Validate()
		require.NoError(t, err, name)
		assert.Equal(t, want, cfg.Browser, name)
	}

	tests := []struct {
		name   string
		mutate func(*RunConfig)
		want   string
	}{
		{name: "bad browser", mutate: func(c *RunConfig) { c.Browser = "safari" }, want: "browser needs to be chrome or firefox"},
		{name: "zero attempts", mutate: func(c *RunConfig) { c.MaxAttempts = 0 }, want: "at least 1"},
		{name: "relative url", mutate: func(c *RunConfig) { c.URL = "/search" }, want: "url must be absolute"},
		{name: "no selenium", mutate: func(c *RunConfig) { c.Selenium = "" }, want: "automation server"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			_, err := c.Validate()
			var cfgErr *ConfigError
			require.ErrorAs(t, err, &cfgErr)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
