package webdriver

// Package webdriver implements driver.Backend on top of the W3C WebDriver
// protocol as served by a Selenium hub (or a bare chromedriver/geckodriver).

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/perfgo/e2erun/driver"
	"github.com/rs/zerolog"
)

// elementKey is the W3C web element identifier key.
const elementKey = "element-6066-11e4-a52e-4f735466cecf"

// Client talks to one WebDriver endpoint.
type Client struct {
	logger   zerolog.Logger
	endpoint string
	http     *http.Client
}

// Option is a function that configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client used for commands.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// WithBasePath overrides the command path prefix (default /wd/hub).
func WithBasePath(path string) Option {
	return func(c *Client) {
		c.endpoint = strings.TrimRight(c.endpoint, "/")
		c.endpoint = strings.TrimSuffix(c.endpoint, "/wd/hub") + path
	}
}

// New creates a client for the server at addr, e.g. http://localhost:4444.
func New(logger zerolog.Logger, addr string, opts ...Option) *Client {
	c := &Client{
		logger:   logger,
		endpoint: strings.TrimRight(addr, "/") + "/wd/hub",
		http:     &http.Client{Timeout: 2 * time.Minute},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.endpoint = strings.TrimRight(c.endpoint, "/")
	return c
}

// Open creates a new remote session.
func (c *Client) Open(ctx context.Context, caps driver.Capabilities) (driver.Browser, error) {
	resp, err := c.do(ctx, http.MethodPost, "/session", newSessionRequest(caps))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s session: %w", caps.Browser, err)
	}
	var created struct {
		SessionID string `json:"sessionId"`
	}
	if len(resp.Value) > 0 {
		// Legacy hubs reply with an empty value object and the id at the top.
		_ = json.Unmarshal(resp.Value, &created)
	}
	if created.SessionID == "" {
		created.SessionID = resp.SessionID
	}
	if created.SessionID == "" {
		return nil, fmt.Errorf("failed to create %s session: server returned no session id", caps.Browser)
	}

	c.logger.Debug().
		Str("session", created.SessionID).
		Str("browser", string(caps.Browser)).
		Msg("Opened WebDriver session")

	return &session{client: c, id: created.SessionID}, nil
}

// newSessionRequest renders capabilities in both the W3C and the legacy
// desiredCapabilities shape, so older hubs accept them as well.
func newSessionRequest(caps driver.Capabilities) map[string]any {
	match := map[string]any{
		"browserName": string(caps.Browser),
	}
	switch caps.Browser {
	case driver.Chrome:
		match["goog:chromeOptions"] = map[string]any{"args": caps.Args}
		if len(caps.LoggingPrefs) > 0 {
			match["goog:loggingPrefs"] = caps.LoggingPrefs
		}
	case driver.Firefox:
		match["moz:firefoxOptions"] = map[string]any{"prefs": caps.Prefs}
	}

	desired := map[string]any{}
	for k, v := range match {
		desired[k] = v
	}
	if caps.Browser == driver.Chrome {
		desired["chromeOptions"] = map[string]any{"args": caps.Args}
	}
	if len(caps.LoggingPrefs) > 0 {
		desired["loggingPrefs"] = caps.LoggingPrefs
	}

	return map[string]any{
		"capabilities":        map[string]any{"alwaysMatch": match},
		"desiredCapabilities": desired,
	}
}

// response is the envelope shared by W3C and legacy JSON wire replies.
type response struct {
	Value json.RawMessage `json:"value"`
	// SessionID and Status are only set by legacy JSON wire servers.
	SessionID string `json:"sessionId"`
	Status    *int   `json:"status"`
}

// command issues one WebDriver command and decodes the "value" member of the
// response into out (when out is non-nil).
func (c *Client) command(ctx context.Context, method, path string, body, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Value, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode value: %w", method, path, err)
	}
	return nil
}

// do sends one command and returns the decoded envelope. Both HTTP error
// statuses and a non-zero legacy status are returned as *Error.
func (c *Client) do(ctx context.Context, method, path string, body any) (*response, error) {
	var reader io.Reader
	if method == http.MethodPost {
		if body == nil {
			body = struct{}{}
		}
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return nil, err
	}
	if reader != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Accept", "application/json")

	c.logger.Debug().Str("method", method).Str("path", path).Msg("WebDriver command")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("%s %s: failed to read response: %w", method, path, err)
	}

	var resp response
	if len(data) > 0 {
		if err := json.Unmarshal(data, &resp); err != nil {
			return nil, fmt.Errorf("%s %s: invalid response (status %d): %w", method, path, httpResp.StatusCode, err)
		}
	}

	var value struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	_ = json.Unmarshal(resp.Value, &value)

	if httpResp.StatusCode >= http.StatusBadRequest {
		wdErr := &Error{StatusCode: httpResp.StatusCode, Code: value.Error, Message: value.Message}
		if wdErr.Code == "" && resp.Status != nil && *resp.Status != 0 {
			wdErr.Code = legacyCode(*resp.Status)
		}
		if wdErr.Code == "" {
			wdErr.Code = "unknown error"
			wdErr.Message = strings.TrimSpace(string(data))
		}
		return nil, wdErr
	}

	if resp.Status != nil && *resp.Status != 0 {
		return nil, &Error{
			StatusCode: httpResp.StatusCode,
			Code:       legacyCode(*resp.Status),
			Message:    value.Message,
		}
	}
	return &resp, nil
}

type session struct {
	client *Client
	id     string
}

func (s *session) path(suffix string) string {
	return "/session/" + s.id + suffix
}

func (s *session) ExecuteScript(ctx context.Context, script string, args ...any) (any, error) {
	if args == nil {
		args = []any{}
	}
	var result any
	err := s.client.command(ctx, http.MethodPost, s.path("/execute/sync"), map[string]any{
		"script": script,
		"args":   args,
	}, &result)
	return result, err
}

func (s *session) Navigate(ctx context.Context, url string) error {
	return s.client.command(ctx, http.MethodPost, s.path("/url"), map[string]string{"url": url}, nil)
}

func (s *session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	err := s.client.command(ctx, http.MethodGet, s.path("/url"), nil, &url)
	return url, err
}

func (s *session) Title(ctx context.Context) (string, error) {
	var title string
	err := s.client.command(ctx, http.MethodGet, s.path("/title"), nil, &title)
	return title, err
}

func (s *session) Maximize(ctx context.Context) error {
	return s.client.command(ctx, http.MethodPost, s.path("/window/maximize"), nil, nil)
}

func (s *session) DeleteAllCookies(ctx context.Context) error {
	return s.client.command(ctx, http.MethodDelete, s.path("/cookie"), nil, nil)
}

func (s *session) SetImplicitWait(ctx context.Context, d time.Duration) error {
	return s.client.command(ctx, http.MethodPost, s.path("/timeouts"), map[string]int64{
		"implicit": d.Milliseconds(),
	}, nil)
}

func (s *session) FindElement(ctx context.Context, selector string) (driver.Element, error) {
	var ref map[string]string
	err := s.client.command(ctx, http.MethodPost, s.path("/element"), map[string]string{
		"using": "css selector",
		"value": selector,
	}, &ref)
	if err != nil {
		return nil, fmt.Errorf("find %q: %w", selector, err)
	}
	id := ref[elementKey]
	if id == "" {
		id = ref["ELEMENT"]
	}
	if id == "" {
		return nil, fmt.Errorf("find %q: response carried no element reference", selector)
	}
	return &element{session: s, id: id}, nil
}

func (s *session) Logs(ctx context.Context, category string) ([]driver.LogEntry, error) {
	var raw []struct {
		Level     string  `json:"level"`
		Message   string  `json:"message"`
		Timestamp float64 `json:"timestamp"`
	}
	if err := s.client.command(ctx, http.MethodPost, s.path("/se/log"), map[string]string{"type": category}, &raw); err != nil {
		return nil, err
	}
	entries := make([]driver.LogEntry, 0, len(raw))
	for _, e := range raw {
		entries = append(entries, driver.LogEntry{
			Level:     e.Level,
			Message:   e.Message,
			Timestamp: time.UnixMilli(int64(e.Timestamp)),
		})
	}
	return entries, nil
}

func (s *session) Screenshot(ctx context.Context) ([]byte, error) {
	var encoded string
	if err := s.client.command(ctx, http.MethodGet, s.path("/screenshot"), nil, &encoded); err != nil {
		return nil, err
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode screenshot: %w", err)
	}
	return data, nil
}

func (s *session) Close(ctx context.Context) error {
	err := s.client.command(ctx, http.MethodDelete, s.path(""), nil, nil)
	if err == nil {
		s.client.logger.Debug().Str("session", s.id).Msg("Closed WebDriver session")
	}
	return err
}

type element struct {
	session *session
	id      string
}

func (e *element) path(suffix string) string {
	return e.session.path("/element/" + e.id + suffix)
}

func (e *element) Click(ctx context.Context) error {
	return e.session.client.command(ctx, http.MethodPost, e.path("/click"), nil, nil)
}

func (e *element) SendKeys(ctx context.Context, text string) error {
	return e.session.client.command(ctx, http.MethodPost, e.path("/value"), map[string]string{"text": text}, nil)
}

func (e *element) Text(ctx context.Context) (string, error) {
	var text string
	err := e.session.client.command(ctx, http.MethodGet, e.path("/text"), nil, &text)
	return text, err
}
