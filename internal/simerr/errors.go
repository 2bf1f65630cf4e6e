// Package simerr defines the error kinds raised while validating a simulation
// before its step loop starts.
package simerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Every validation error wraps exactly one of these.
var (
	ErrInvalidParameter       = errors.New("invalid parameter")
	ErrInconsistentPopulation = errors.New("inconsistent population")
)

// ParamError names the offending parameter and value so a configuration can be fixed.
type ParamError struct {
	Kind   error
	Param  string
	Value  any
	Reason string
}

func (e *ParamError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("%v: %s=%v", e.Kind, e.Param, e.Value)
	}
	return fmt.Sprintf("%v: %s=%v: %s", e.Kind, e.Param, e.Value, e.Reason)
}

func (e *ParamError) Unwrap() error {
	return e.Kind
}

// Invalid returns an ErrInvalidParameter error for param.
func Invalid(param string, value any, reason string) error {
	return &ParamError{Kind: ErrInvalidParameter, Param: param, Value: value, Reason: reason}
}

// Inconsistent returns an ErrInconsistentPopulation error for param.
func Inconsistent(param string, value any, reason string) error {
	return &ParamError{Kind: ErrInconsistentPopulation, Param: param, Value: value, Reason: reason}
}

// Probability checks that p lies in [0, 1].
func Probability(param string, p float64) error {
	if !(p >= 0 && p <= 1) {
		return Invalid(param, p, "must be in [0, 1]")
	}
	return nil
}

// NonNegative checks that n is at least zero.
func NonNegative(param string, n int) error {
	if n < 0 {
		return Invalid(param, n, "must not be negative")
	}
	return nil
}
