package moderation

import (
	"errors"
	"fmt"
)

// Configuration errors returned by BuildMatcher. Use errors.Is to test for
// them; the concrete type is *ConfigError.
var (
	ErrNoTerms      = errors.New("no forbidden terms configured")
	ErrEmptyTerm    = errors.New("forbidden term is empty")
	ErrInvalidTerm  = errors.New("forbidden term is not valid UTF-8")
	ErrBadEmphasis  = errors.New("emphasis run length must not be negative")
	ErrBadHeuristic = errors.New("unknown spam heuristic")
)

// ConfigError reports a term list or option set that cannot produce a
// working matcher.
type ConfigError struct {
	Index int    // position of the offending term, -1 when not term specific
	Value string // offending value, if any
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Index >= 0 {
		return fmt.Sprintf("moderation: config: term %d (%q): %v", e.Index, e.Value, e.Err)
	}
	if e.Value != "" {
		return fmt.Sprintf("moderation: config: %q: %v", e.Value, e.Err)
	}
	return fmt.Sprintf("moderation: config: %v", e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// PatternError is returned when the generated expression is rejected by the
// regexp compiler.
type PatternError struct {
	Pattern string
	Err     error
}

func (e *PatternError) Error() string {
	return fmt.Sprintf("moderation: compile pattern: %v", e.Err)
}

func (e *PatternError) Unwrap() error { return e.Err }
