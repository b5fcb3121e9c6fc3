// Package suite holds the registry of UI test cases e2erun can run: the
// built-in smoke tests and scripted tests loaded from YAML files.
package suite

import (
	"fmt"
	"strings"

	"github.com/perfgo/e2erun/engine"
)

// Registry is an ordered set of uniquely named test cases, assembled once at
// startup.
type Registry struct {
	cases []engine.TestCase
	names map[string]struct{}
}

// NewRegistry registers cases in order.
func NewRegistry(cases ...engine.TestCase) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{})}
	if err := r.Register(cases...); err != nil {
		return nil, err
	}
	return r, nil
}

// Register appends cases, rejecting empty and duplicate names.
func (r *Registry) Register(cases ...engine.TestCase) error {
	for _, tc := range cases {
		if tc.Name == "" {
			return fmt.Errorf("test case without a name")
		}
		if tc.Run == nil {
			return fmt.Errorf("test case %s has no body", tc.Name)
		}
		if _, dup := r.names[tc.Name]; dup {
			return fmt.Errorf("test case %s registered twice", tc.Name)
		}
		r.names[tc.Name] = struct{}{}
		r.cases = append(r.cases, tc)
	}
	return nil
}

// Filter returns the cases whose name contains substr, in registration
// order. An empty substr matches everything.
func (r *Registry) Filter(substr string) []engine.TestCase {
	var out []engine.TestCase
	for _, tc := range r.cases {
		if strings.Contains(tc.Name, substr) {
			out = append(out, tc)
		}
	}
	return out
}

// Names lists the names of cases.
func Names(cases []engine.TestCase) []string {
	names := make([]string, 0, len(cases))
	for _, tc := range cases {
		names = append(names, tc.Name)
	}
	return names
}
