package engine

import (
	"fmt"
	"net/url"
	"time"

	"github.com/perfgo/e2erun/driver"
)

const (
	// DefaultUserAgent is injected into every session and verified before
	// each test body runs.
	DefaultUserAgent = "Sourcegraph e2etest-bot"
	// DefaultExtensionPath is where the browser extension bundle lives on
	// the automation server's filesystem.
	DefaultExtensionPath = "/browser-ext"
	// DefaultReproDir is printed in failure reports as the directory to run
	// the reproduction command from.
	DefaultReproDir = "$repo-root/test/e2e"

	// slowImplicitWait is the element lookup wait used in slow mode.
	slowImplicitWait = 500 * time.Millisecond
)

// RunConfig is the validated, immutable configuration of one harness process.
type RunConfig struct {
	// URL of the application under test.
	URL string
	// Selenium is the automation server address.
	Selenium    string
	Browser     driver.Kind
	Filter      string
	MaxAttempts int

	AlertOnErr  bool
	PauseOnErr  bool
	Interactive bool
	Slow        bool
	Loop        bool

	UserAgent     string
	ExtensionPath string
	ReproDir      string
}

// Validate checks the configuration before anything runs. Zero-valued
// optional fields are filled with their defaults on the returned copy.
func (c RunConfig) Validate() (RunConfig, error) {
	kind, err := driver.ParseKind(string(c.Browser))
	if err != nil {
		return c, &ConfigError{Reason: err.Error()}
	}
	c.Browser = kind
	if c.MaxAttempts < 1 {
		return c, &ConfigError{Reason: fmt.Sprintf("tries before error must be at least 1, was %d", c.MaxAttempts)}
	}
	u, err := url.Parse(c.URL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return c, &ConfigError{Reason: fmt.Sprintf("url must be absolute, was %q", c.URL)}
	}
	if c.Selenium == "" {
		return c, &ConfigError{Reason: "automation server address is required"}
	}
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.ExtensionPath == "" {
		c.ExtensionPath = DefaultExtensionPath
	}
	if c.ReproDir == "" {
		c.ReproDir = DefaultReproDir
	}
	return c, nil
}
