// Package errs defines the closed error taxonomy shared by providers,
// storage, the retry manager, and the circuit breaker, per spec.md §7.
// Keeping it a closed sum type (Kind) rather than ad hoc sentinel errors
// or string matching lets the retry predicate and the breaker's monitored
// set stay exhaustive and centrally maintained, per spec.md §9.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error for retry and circuit-breaker decisions.
type Kind int

// Error kinds, per spec.md §7.
const (
	// KindValidation covers bad periods, inverted ranges, and unsupported
	// instrument/provider pairs. Not retried; fatal to the job, not the run.
	KindValidation Kind = iota
	// KindAuthentication covers missing/invalid credentials or a session
	// refused after one re-login. Not retried; fatal to the provider for
	// the remainder of the run.
	KindAuthentication
	// KindConnection covers network timeouts, 5xx responses, and transport
	// resets. Retried with backoff; counts against the circuit breaker.
	KindConnection
	// KindRateLimit signals a provider-enforced rate limit. Retryable with
	// backoff; counts against the circuit breaker.
	KindRateLimit
	// KindAllowanceExceeded signals a provider quota has been exhausted.
	// Not retried; stops further jobs for that provider run-wide.
	KindAllowanceExceeded
	// KindDataNotFound covers an empty fetch result. Not retried; does not
	// count against the circuit breaker.
	KindDataNotFound
	// KindLowData covers a fetch that returned too few bars to be useful.
	// Not retried; does not count against the circuit breaker.
	KindLowData
	// KindStorage covers permission errors, disk-full, and other I/O
	// failures. Not retried at the retry-manager layer; fatal to the job.
	KindStorage
	// KindConfig covers a missing or invalid configuration key. Fatal at
	// startup; planning never begins.
	KindConfig
	// KindCircuitOpen is raised by the breaker itself when a call arrives
	// while the circuit is open. Surfaced immediately, never retried — the
	// breaker owns its own recovery timer.
	KindCircuitOpen
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindConnection:
		return "connection"
	case KindRateLimit:
		return "rate_limit"
	case KindAllowanceExceeded:
		return "allowance_exceeded"
	case KindDataNotFound:
		return "data_not_found"
	case KindLowData:
		return "low_data"
	case KindStorage:
		return "storage"
	case KindConfig:
		return "config"
	case KindCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// Error carries the error taxonomy plus the context every error must
// propagate per spec.md §7: correlation id, provider, instrument, period,
// operation, a human message, and a suggested action.
type Error struct {
	Kind          Kind
	CorrelationID string
	Provider      string
	InstrumentID  string
	Period        string
	Operation     string
	Message       string
	Suggestion    string
	Cause         error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := fmt.Sprintf("[%s] %s: %s", e.Kind, e.Operation, e.Message)
	if e.Provider != "" {
		msg = fmt.Sprintf("%s (provider=%s)", msg, e.Provider)
	}
	if e.InstrumentID != "" {
		msg = fmt.Sprintf("%s (instrument=%s)", msg, e.InstrumentID)
	}
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error { return e.Cause }

// New builds an *Error of the given kind with a formatted message.
func New(kind Kind, operation, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Operation: operation, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an *Error of the given kind around an existing cause.
func Wrap(kind Kind, operation string, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Operation: operation, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// WithContext returns a copy of e with correlation/provider/instrument/
// period context attached, for propagation up the call stack.
func (e *Error) WithContext(correlationID, provider, instrumentID, period string) *Error {
	cp := *e
	cp.CorrelationID = correlationID
	cp.Provider = provider
	cp.InstrumentID = instrumentID
	cp.Period = period
	return &cp
}

// WithSuggestion attaches a suggested user action.
func (e *Error) WithSuggestion(s string) *Error {
	cp := *e
	cp.Suggestion = s
	return &cp
}

// KindOf extracts the Kind from err if it (or something it wraps) is an
// *Error; otherwise it classifies unknown errors as KindConnection, since
// an un-typed error from a provider call is assumed to be a transient
// transport failure rather than something permanent.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindConnection
}

// IsRetryable reports whether the retry manager should retry a call that
// failed with err, per spec.md §4.5: only Connection and RateLimit errors
// are retried.
func IsRetryable(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindRateLimit:
		return true
	default:
		return false
	}
}

// IsMonitored reports whether err counts as a circuit-breaker failure
// signal, per spec.md §4.4: Connection and RateLimit count; Authentication,
// Config, and DataNotFound/LowData do not.
func IsMonitored(err error) bool {
	switch KindOf(err) {
	case KindConnection, KindRateLimit:
		return true
	default:
		return false
	}
}
