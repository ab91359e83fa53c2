// Package ratelimit implements a fixed-window request counter keyed by an
// opaque identifier such as "compile:203.0.113.7".
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidConfiguration marks a malformed policy or call. It signals a
	// bug in the caller and is never swallowed.
	ErrInvalidConfiguration = errors.New("ratelimit: invalid configuration")

	ErrEmptyIdentifier = fmt.Errorf("%w: identifier must not be empty", ErrInvalidConfiguration)
)

// Policy bounds an action to MaxRequests per Window.
type Policy struct {
	MaxRequests int
	Window      time.Duration
}

func (p Policy) Validate() error {
	if p.MaxRequests <= 0 {
		return fmt.Errorf("%w: max requests must be positive, got %d", ErrInvalidConfiguration, p.MaxRequests)
	}
	if p.Window < time.Millisecond {
		return fmt.Errorf("%w: window must be at least 1ms, got %s", ErrInvalidConfiguration, p.Window)
	}
	return nil
}

// Result is the outcome of a single Check.
type Result struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetIn   int       `json:"reset_in"` // seconds until the window resets, rounded up
	ResetAt   time.Time `json:"-"`        // when the window resets, on the limiter's clock
}

func (r Result) RetryAfter() time.Duration {
	return time.Duration(r.ResetIn) * time.Second
}

type Limiter interface {
	// Check counts one action for identifier under policy. Only
	// ErrInvalidConfiguration-class errors are returned.
	Check(ctx context.Context, identifier string, policy Policy) (Result, error)
}

// Key namespaces an identifier by action name.
func Key(action, identifier string) string {
	return action + ":" + identifier
}

func ceilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int((d + time.Second - 1) / time.Second)
}
