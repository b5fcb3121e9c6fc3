package suite

import (
	"context"
	"time"

	"github.com/perfgo/e2erun/driver"
	"github.com/perfgo/e2erun/engine"
)

// fakePage is a browser whose DOM is a map of selector to text.
type fakePage struct {
	url      string
	title    string
	elements map[string]string
	typed    map[string]string
	clicked  []string
	script   any
}

func newSession(page *fakePage) *engine.Session {
	return &engine.Session{Browser: page, BaseURL: "https://sourcegraph.example.com"}
}

func (p *fakePage) ExecuteScript(context.Context, string, ...any) (any, error) {
	return p.script, nil
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.url = url
	return nil
}

func (p *fakePage) CurrentURL(context.Context) (string, error) { return p.url, nil }

func (p *fakePage) Title(context.Context) (string, error) { return p.title, nil }

func (p *fakePage) Maximize(context.Context) error { return nil }

func (p *fakePage) DeleteAllCookies(context.Context) error { return nil }

func (p *fakePage) SetImplicitWait(context.Context, time.Duration) error { return nil }

func (p *fakePage) FindElement(_ context.Context, selector string) (driver.Element, error) {
	text, ok := p.elements[selector]
	if !ok {
		return nil, driver.ErrNoSuchElement
	}
	return &fakeElement{page: p, selector: selector, text: text}, nil
}

func (p *fakePage) Logs(context.Context, string) ([]driver.LogEntry, error) { return nil, nil }

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return nil, nil }

func (p *fakePage) Close(context.Context) error { return nil }

type fakeElement struct {
	page     *fakePage
	selector string
	text     string
}

func (e *fakeElement) Click(context.Context) error {
	e.page.clicked = append(e.page.clicked, e.selector)
	return nil
}

func (e *fakeElement) SendKeys(_ context.Context, text string) error {
	if e.page.typed == nil {
		e.page.typed = map[string]string{}
	}
	e.page.typed[e.selector] += text
	return nil
}

func (e *fakeElement) Text(context.Context) (string, error) { return e.text, nil }
