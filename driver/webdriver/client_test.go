package webdriver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/perfgo/e2erun/driver"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   map[string]any
}

type fakeHub struct {
	mu       sync.Mutex
	requests []recordedRequest
}

func (h *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&body)
	}
	h.mu.Lock()
	h.requests = append(h.requests, recordedRequest{Method: r.Method, Path: r.URL.Path, Body: body})
	h.mu.Unlock()

	reply := func(status int, value any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(map[string]any{"value": value})
	}

	switch r.Method + " " + r.URL.Path {
	case "POST /wd/hub/session":
		reply(http.StatusOK, map[string]any{"sessionId": "abc", "capabilities": map[string]any{}})
	case "POST /wd/hub/session/abc/execute/sync":
		reply(http.StatusOK, "Sourcegraph e2etest-bot")
	case "GET /wd/hub/session/abc/url":
		reply(http.StatusOK, "https://sourcegraph.com/search?q=x")
	case "POST /wd/hub/session/abc/element":
		if body["value"] == "#missing" {
			reply(http.StatusNotFound, map[string]any{"error": "no such element", "message": "Unable to locate element"})
			return
		}
		reply(http.StatusOK, map[string]any{elementKey: "el-1"})
	case "GET /wd/hub/session/abc/element/el-1/text":
		reply(http.StatusOK, "Sign in")
	case "POST /wd/hub/session/abc/se/log":
		reply(http.StatusOK, []map[string]any{
			{"level": "SEVERE", "message": "boom", "timestamp": 1700000000000},
		})
	case "GET /wd/hub/session/abc/screenshot":
		reply(http.StatusOK, base64.StdEncoding.EncodeToString([]byte("png-bytes")))
	default:
		reply(http.StatusOK, nil)
	}
}

func (h *fakeHub) last() recordedRequest {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests[len(h.requests)-1]
}

func newTestSession(t *testing.T) (driver.Browser, *fakeHub) {
	t.Helper()
	hub := &fakeHub{}
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	client := New(zerolog.Nop(), server.URL)
	browser, err := client.Open(context.Background(), driver.Capabilities{
		Browser:      driver.Chrome,
		Args:         []string{"--user-agent=Sourcegraph e2etest-bot"},
		LoggingPrefs: map[string]string{driver.LogBrowser: driver.LevelSevere},
	})
	require.NoError(t, err)
	return browser, hub
}

func TestOpenSendsChromeCapabilities(t *testing.T) {
	_, hub := newTestSession(t)

	req := hub.requests[0]
	require.Equal(t, "/wd/hub/session", req.Path)

	match := req.Body["capabilities"].(map[string]any)["alwaysMatch"].(map[string]any)
	assert.Equal(t, "chrome", match["browserName"])
	args := match["goog:chromeOptions"].(map[string]any)["args"].([]any)
	assert.Equal(t, []any{"--user-agent=Sourcegraph e2etest-bot"}, args)
	assert.Equal(t, map[string]any{"browser": "SEVERE"}, match["goog:loggingPrefs"])

	desired := req.Body["desiredCapabilities"].(map[string]any)
	assert.Equal(t, map[string]any{"browser": "SEVERE"}, desired["loggingPrefs"])
}

func TestNewSessionRequestFirefoxUsesPrefs(t *testing.T) {
	req := newSessionRequest(driver.Capabilities{
		Browser: driver.Firefox,
		Prefs:   map[string]any{"general.useragent.override": "bot"},
	})
	match := req["capabilities"].(map[string]any)["alwaysMatch"].(map[string]any)
	assert.Equal(t, map[string]any{"prefs": map[string]any{"general.useragent.override": "bot"}}, match["moz:firefoxOptions"])
	assert.NotContains(t, match, "goog:chromeOptions")
}

func TestSessionCommands(t *testing.T) {
	browser, hub := newTestSession(t)
	ctx := context.Background()

	ua, err := browser.ExecuteScript(ctx, "return navigator.userAgent")
	require.NoError(t, err)
	assert.Equal(t, "Sourcegraph e2etest-bot", ua)
	assert.Equal(t, []any{}, hub.last().Body["args"])

	url, err := browser.CurrentURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://sourcegraph.com/search?q=x", url)

	require.NoError(t, browser.SetImplicitWait(ctx, 500*time.Millisecond))
	assert.Equal(t, "/wd/hub/session/abc/timeouts", hub.last().Path)
	assert.EqualValues(t, 500, hub.last().Body["implicit"])

	require.NoError(t, browser.Maximize(ctx))
	assert.Equal(t, "/wd/hub/session/abc/window/maximize", hub.last().Path)

	require.NoError(t, browser.DeleteAllCookies(ctx))
	assert.Equal(t, http.MethodDelete, hub.last().Method)
	assert.Equal(t, "/wd/hub/session/abc/cookie", hub.last().Path)

	el, err := browser.FindElement(ctx, "a.sign-in")
	require.NoError(t, err)
	text, err := el.Text(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Sign in", text)

	entries, err := browser.Logs(ctx, driver.LogBrowser)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "SEVERE", entries[0].Level)
	assert.Equal(t, "boom", entries[0].Message)

	shot, err := browser.Screenshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("png-bytes"), shot)

	require.NoError(t, browser.Close(ctx))
	assert.Equal(t, http.MethodDelete, hub.last().Method)
	assert.Equal(t, "/wd/hub/session/abc", hub.last().Path)
}

func TestFindElementNotFound(t *testing.T) {
	browser, _ := newTestSession(t)

	_, err := browser.FindElement(context.Background(), "#missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, driver.ErrNoSuchElement))

	var wdErr *Error
	require.ErrorAs(t, err, &wdErr)
	assert.Equal(t, http.StatusNotFound, wdErr.StatusCode)
	assert.Equal(t, "Unable to locate element", wdErr.Message)
}

func TestOpenUnreachableServer(t *testing.T) {
	client := New(zerolog.Nop(), "http://127.0.0.1:1", WithHTTPClient(&http.Client{Timeout: time.Second}))
	_, err := client.Open(context.Background(), driver.Capabilities{Browser: driver.Chrome})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to create chrome session")
}

func TestWithBasePath(t *testing.T) {
	c := New(zerolog.Nop(), "http://localhost:9515/", WithBasePath(""))
	assert.Equal(t, "http://localhost:9515", c.endpoint)

	c = New(zerolog.Nop(), "http://localhost:4444")
	assert.Equal(t, "http://localhost:4444/wd/hub", c.endpoint)
}

// legacyHub answers in the JSON wire protocol shape: HTTP 200 with the
// session id and a numeric status at the top level.
func legacyHub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		reply := func(status int, value any) {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{"sessionId": "legacy-1", "status": status, "value": value})
		}
		switch r.Method + " " + r.URL.Path {
		case "POST /wd/hub/session":
			reply(0, map[string]any{})
		case "POST /wd/hub/session/legacy-1/element":
			if body["value"] == "#missing" {
				reply(7, map[string]any{"message": "Unable to locate element"})
				return
			}
			reply(0, map[string]any{"ELEMENT": "el-9"})
		case "GET /wd/hub/session/legacy-1/url":
			reply(13, map[string]any{"message": "chrome not reachable"})
		default:
			reply(0, nil)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestLegacyHub(t *testing.T) {
	ctx := context.Background()
	browser, err := New(zerolog.Nop(), legacyHub(t).URL).Open(ctx, driver.Capabilities{Browser: driver.Chrome})
	require.NoError(t, err)
	assert.Equal(t, "legacy-1", browser.(*session).id)

	_, err = browser.FindElement(ctx, "#present")
	require.NoError(t, err)

	tests := []struct {
		name     string
		call     func() error
		code     string
		notFound bool
	}{
		{
			name: "missing element",
			call: func() error {
				_, err := browser.FindElement(ctx, "#missing")
				return err
			},
			code:     "no such element",
			notFound: true,
		},
		{
			name: "generic failure",
			call: func() error {
				_, err := browser.CurrentURL(ctx)
				return err
			},
			code: "unknown error",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.call()
			var wdErr *Error
			require.ErrorAs(t, err, &wdErr)
			assert.Equal(t, tt.code, wdErr.Code)
			assert.Equal(t, http.StatusOK, wdErr.StatusCode)
			assert.NotEmpty(t, wdErr.Message)
			assert.Equal(t, tt.notFound, errors.Is(err, driver.ErrNoSuchElement))
		})
	}
}
