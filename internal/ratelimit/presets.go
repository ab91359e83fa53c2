package ratelimit

import (
	"fmt"
	"sort"
	"time"
)

const (
	PolicyAI      = "ai"
	PolicyCompile = "compile"
	PolicyAuth    = "auth"
)

// Presets returns the built-in policies.
func Presets() map[string]Policy {
	return map[string]Policy{
		// AI generation is the most expensive call
		PolicyAI:      {MaxRequests: 30, Window: time.Minute},
		PolicyCompile: {MaxRequests: 60, Window: time.Minute},
		// strict to slow down credential stuffing
		PolicyAuth: {MaxRequests: 10, Window: time.Minute},
	}
}

// Policies is an immutable name -> Policy registry.
type Policies struct {
	byName map[string]Policy
}

// NewPolicies merges overrides on top of the presets. Overrides may replace a
// preset or add a new name.
func NewPolicies(overrides map[string]Policy) (*Policies, error) {
	byName := Presets()
	for name, p := range overrides {
		if name == "" {
			return nil, fmt.Errorf("%w: policy name must not be empty", ErrInvalidConfiguration)
		}
		if err := p.Validate(); err != nil {
			return nil, fmt.Errorf("policy %s: %w", name, err)
		}
		byName[name] = p
	}
	return &Policies{byName: byName}, nil
}

func (p *Policies) Lookup(name string) (Policy, bool) {
	policy, ok := p.byName[name]
	return policy, ok
}

// Names returns the registered policy names in sorted order.
func (p *Policies) Names() []string {
	names := make([]string, 0, len(p.byName))
	for name := range p.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
