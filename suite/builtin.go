package suite

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/perfgo/e2erun/driver"
	"github.com/perfgo/e2erun/engine"
)

// ExtensionMarker is the attribute the browser extension sets on <html> once
// its content script has run.
const ExtensionMarker = "data-sourcegraph-extension"

// Builtin returns the smoke tests every deployment supports.
func Builtin() []engine.TestCase {
	return []engine.TestCase{
		{Name: "test_home_page_loads", Run: testHomePageLoads},
		{Name: "test_search_page_loads", Run: testSearchPageLoads},
		{Name: "test_browser_extension_loads", Run: testBrowserExtensionLoads},
	}
}

func testHomePageLoads(ctx context.Context, s *engine.Session) error {
	if err := s.Visit(ctx, "/"); err != nil {
		return err
	}
	if _, err := WaitForElement(ctx, s, "body", 10*time.Second); err != nil {
		return err
	}
	title, err := s.Title(ctx)
	if err != nil {
		return err
	}
	if strings.TrimSpace(title) == "" {
		return errors.New("home page has an empty title")
	}
	return nil
}

func testSearchPageLoads(ctx context.Context, s *engine.Session) error {
	if err := s.Visit(ctx, "/search"); err != nil {
		return err
	}
	_, err := WaitForElement(ctx, s, "input, textarea", 10*time.Second)
	return err
}

func testBrowserExtensionLoads(ctx context.Context, s *engine.Session) error {
	if err := s.Visit(ctx, "/"); err != nil {
		return err
	}
	deadline := time.Now().Add(10 * time.Second)
	for {
		v, err := s.ExecuteScript(ctx, fmt.Sprintf("return document.documentElement.hasAttribute(%q)", ExtensionMarker))
		if err != nil {
			return err
		}
		if loaded, _ := v.(bool); loaded {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("browser extension did not mark the page with %s", ExtensionMarker)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return err
		}
	}
}

const pollInterval = 200 * time.Millisecond

// WaitForElement polls for selector until it appears or timeout passes.
func WaitForElement(ctx context.Context, s *engine.Session, selector string, timeout time.Duration) (driver.Element, error) {
	deadline := time.Now().Add(timeout)
	for {
		el, err := s.FindElement(ctx, selector)
		if err == nil {
			return el, nil
		}
		if !errors.Is(err, driver.ErrNoSuchElement) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("element %q did not appear within %s: %w", selector, timeout, err)
		}
		if err := sleep(ctx, pollInterval); err != nil {
			return nil, err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
