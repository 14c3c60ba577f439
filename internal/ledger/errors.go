package ledger

import (
	"errors"
	"fmt"
)

// Kind classifies ledger failures so retry and propagation behavior can be
// decided without inspecting error strings.
type Kind string

const (
	// KindValidation is bad input. Never retried.
	KindValidation Kind = "VALIDATION"
	// KindNetwork is a transient failure, retried with backoff.
	KindNetwork Kind = "NETWORK"
	// KindConfiguration is missing or invalid setup. Never retried, fatal to
	// the calling cycle.
	KindConfiguration Kind = "CONFIGURATION"
	// KindCircuitOpen is a fast-fail while the breaker is open.
	KindCircuitOpen Kind = "CIRCUIT_OPEN"
)

// Error carries a classification kind alongside the wrapped cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewValidationError reports bad caller input.
func NewValidationError(format string, args ...interface{}) error {
	return &Error{Kind: KindValidation, Msg: fmt.Sprintf(format, args...)}
}

// NewConfigurationError reports missing or invalid setup.
func NewConfigurationError(format string, args ...interface{}) error {
	return &Error{Kind: KindConfiguration, Msg: fmt.Sprintf(format, args...)}
}

// NewNetworkError wraps a transient failure.
func NewNetworkError(msg string, err error) error {
	return &Error{Kind: KindNetwork, Msg: msg, Err: err}
}

func newCircuitOpenError(msg string) error {
	return &Error{Kind: KindCircuitOpen, Msg: msg}
}

// KindOf returns the classification of err, defaulting to NETWORK for
// unclassified errors: an unknown failure from a remote dependency is treated
// as transient, not as caller fault.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return KindNetwork
}

// IsRetryable reports whether the retry policy may re-attempt after err.
// Validation and configuration errors propagate immediately; an open circuit
// fails fast rather than burning attempts against a breaker that will not
// close within one call.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindConfiguration, KindCircuitOpen:
		return false
	}
	return true
}
