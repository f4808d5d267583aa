package domain

import (
	"errors"
	"fmt"
)

// Category sentinels, used with NewSubSystemError for subsystem-specific errors.
var (
	ErrNotFound     = fmt.Errorf("not found")
	ErrDuplicate    = fmt.Errorf("duplicate")
	ErrTimeout      = fmt.Errorf("operation timed out")
	ErrInvalidInput = fmt.Errorf("invalid input")
)

// Sentinel errors for the network error taxonomy. Each maps to exactly one
// failure category; callers branch with errors.Is.
var (
	// ErrPortUnavailable: a preferred port was requested but is already bound.
	// Never substituted silently; peers depend on advertised ports.
	ErrPortUnavailable = fmt.Errorf("port unavailable")

	// ErrAgentUnreachable: a call to a registered agent failed at the
	// transport level. The agent's descriptor flips to Failed.
	ErrAgentUnreachable = fmt.Errorf("agent unreachable")

	// ErrNoRoute: neither routing stage produced a confident candidate.
	ErrNoRoute = fmt.Errorf("no route for query")

	// ErrInvalidArguments: capability arguments failed schema validation.
	// Caller error; never retried.
	ErrInvalidArguments = fmt.Errorf("invalid arguments")

	// ErrServerUnreachable: a capability server could not be reached after
	// bounded retries.
	ErrServerUnreachable = fmt.Errorf("capability server unreachable")

	// ErrUnrecognizedShape: a capability response matched none of the known
	// normalization shapes. The raw payload travels with the DomainError.
	ErrUnrecognizedShape = fmt.Errorf("unrecognized response shape")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op        string // operation name (e.g., "Bridge.Invoke")
	Err       error  // underlying sentinel or wrapped error
	Detail    string // human-readable detail
	SubSystem string // subsystem identifier (e.g., "lifecycle", "bridge")
	Payload   []byte // raw diagnostic payload, preserved for logging
}

func (e *DomainError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *DomainError) Unwrap() error { return e.Err }

// NewDomainError creates a new DomainError.
func NewDomainError(op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail}
}

// NewSubSystemError creates a DomainError tagged with a subsystem.
func NewSubSystemError(subsystem, op string, err error, detail string) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, SubSystem: subsystem}
}

// NewPayloadError creates a DomainError carrying a raw diagnostic payload.
// The payload is never coerced into a fabricated success; it exists so the
// caller can log the offending bytes verbatim.
func NewPayloadError(op string, err error, detail string, payload []byte) *DomainError {
	return &DomainError{Op: op, Err: err, Detail: detail, Payload: payload}
}

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// RawPayload extracts the diagnostic payload from err, if any.
func RawPayload(err error) []byte {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Payload
	}
	return nil
}

// IsRetryableError reports whether err is a transient error that may succeed
// on retry. Only transport failures to capability servers qualify; argument
// and contract violations never do.
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrServerUnreachable) || errors.Is(err, ErrTimeout)
}
