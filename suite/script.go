package suite

// This file contains scripted test cases: UI flows described in YAML and
// compiled into engine.TestCase values at startup.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/perfgo/e2erun/driver"
	"github.com/perfgo/e2erun/engine"
	"gopkg.in/yaml.v3"
)

const defaultWaitTimeout = 10 * time.Second

// File is the top-level document of a suite file.
type File struct {
	Tests []Definition `yaml:"tests"`
}

// Definition is one scripted test.
type Definition struct {
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Step performs exactly one action.
type Step struct {
	// Visit navigates to a path relative to the target URL.
	Visit string `yaml:"visit,omitempty"`
	// Click clicks the element matching a CSS selector.
	Click string `yaml:"click,omitempty"`
	// Type sends keys to an element.
	Type *TypeStep `yaml:"type,omitempty"`
	// WaitFor waits until a CSS selector matches.
	WaitFor string `yaml:"wait_for,omitempty"`
	// Assert is an expr-lang boolean expression; see assertEnv.
	Assert string `yaml:"assert,omitempty"`
	// Timeout bounds wait_for (Go duration, default 10s).
	Timeout string `yaml:"timeout,omitempty"`
}

type TypeStep struct {
	Selector string `yaml:"selector"`
	Text     string `yaml:"text"`
}

// LoadFile reads and compiles the scripted tests in path.
func LoadFile(path string) ([]engine.TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file: %w", err)
	}
	cases, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cases, nil
}

// Parse compiles a suite document. Unknown keys and invalid assertions are
// rejected here, before any browser is opened.
func Parse(data []byte) ([]engine.TestCase, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var f File
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid suite document: %w", err)
	}

	cases := make([]engine.TestCase, 0, len(f.Tests))
	for _, def := range f.Tests {
		tc, err := def.compile()
		if err != nil {
			return nil, err
		}
		cases = append(cases, tc)
	}
	return cases, nil
}

type action func(ctx context.Context, s *engine.Session) error

func (d Definition) compile() (engine.TestCase, error) {
	if d.Name == "" {
		return engine.TestCase{}, errors.New("scripted test without a name")
	}
	if len(d.Steps) == 0 {
		return engine.TestCase{}, fmt.Errorf("test %s has no steps", d.Name)
	}

	actions := make([]action, 0, len(d.Steps))
	for i, step := range d.Steps {
		a, err := step.compile()
		if err != nil {
			return engine.TestCase{}, fmt.Errorf("test %s step %d: %w", d.Name, i+1, err)
		}
		actions = append(actions, a)
	}

	name := d.Name
	return engine.TestCase{
		Name: name,
		Run: func(ctx context.Context, s *engine.Session) error {
			for i, a := range actions {
				if err := a(ctx, s); err != nil {
					return fmt.Errorf("step %d: %w", i+1, err)
				}
			}
			return nil
		},
	}, nil
}

func (st Step) compile() (action, error) {
	set := 0
	for _, present := range []bool{st.Visit != "", st.Click != "", st.Type != nil, st.WaitFor != "", st.Assert != ""} {
		if present {
			set++
		}
	}
	if set != 1 {
		return nil, fmt.Errorf("a step needs exactly one of visit, click, type, wait_for, assert (got %d)", set)
	}

	timeout := defaultWaitTimeout
	if st.Timeout != "" {
		d, err := time.ParseDuration(st.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		timeout = d
	}

	switch {
	case st.Visit != "":
		ref := st.Visit
		return func(ctx context.Context, s *engine.Session) error {
			return s.Visit(ctx, ref)
		}, nil
	case st.Click != "":
		selector := st.Click
		return func(ctx context.Context, s *engine.Session) error {
			el, err := WaitForElement(ctx, s, selector, timeout)
			if err != nil {
				return err
			}
			return el.Click(ctx)
		}, nil
	case st.Type != nil:
		if st.Type.Selector == "" {
			return nil, errors.New("type needs a selector")
		}
		ts := *st.Type
		return func(ctx context.Context, s *engine.Session) error {
			el, err := WaitForElement(ctx, s, ts.Selector, timeout)
			if err != nil {
				return err
			}
			return el.SendKeys(ctx, ts.Text)
		}, nil
	case st.WaitFor != "":
		selector := st.WaitFor
		return func(ctx context.Context, s *engine.Session) error {
			_, err := WaitForElement(ctx, s, selector, timeout)
			return err
		}, nil
	}
	return compileAssert(st.Assert)
}

func compileAssert(src string) (action, error) {
	program, err := expr.Compile(src, expr.Env(assertEnv(context.Background(), nil)), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile assertion %q: %w", src, err)
	}
	return func(ctx context.Context, s *engine.Session) error {
		return evalAssert(program, src, assertEnv(ctx, s))
	}, nil
}

func evalAssert(program *vm.Program, src string, env map[string]any) error {
	out, err := expr.Run(program, env)
	if err != nil {
		return fmt.Errorf("eval assertion %q: %w", src, err)
	}
	if ok, _ := out.(bool); !ok {
		return fmt.Errorf("assertion failed: %s", src)
	}
	return nil
}

// assertEnv exposes the session to assertions, e.g.
//
//	url() contains "/search" && text("h1") == "Welcome"
func assertEnv(ctx context.Context, s *engine.Session) map[string]any {
	return map[string]any{
		"url": func() (string, error) {
			return s.CurrentURL(ctx)
		},
		"title": func() (string, error) {
			return s.Title(ctx)
		},
		"text": func(selector string) (string, error) {
			el, err := s.FindElement(ctx, selector)
			if err != nil {
				return "", err
			}
			return el.Text(ctx)
		},
		"exists": func(selector string) (bool, error) {
			_, err := s.FindElement(ctx, selector)
			if errors.Is(err, driver.ErrNoSuchElement) {
				return false, nil
			}
			return err == nil, err
		},
		"script": func(js string) (any, error) {
			return s.ExecuteScript(ctx, js)
		},
	}
}
