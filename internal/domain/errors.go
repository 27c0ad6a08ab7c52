package domain

import "fmt"

// Sentinel errors for the domain layer.
var (
	// ErrConfiguration marks an intent/handler table mismatch or an invalid
	// config file. Fatal at startup; must never surface at request time.
	ErrConfiguration = fmt.Errorf("configuration invalid")

	// ErrHandlerNotFound means an intent resolved to a handler ID that has
	// no live instance in the directory. Surfaced to the caller, not retried.
	ErrHandlerNotFound = fmt.Errorf("handler not found")

	// ErrHandlerExecution wraps a handler/model failure mid-invocation.
	ErrHandlerExecution = fmt.Errorf("handler execution failed")

	// ErrTransport wraps a chat-sink post/update failure.
	ErrTransport = fmt.Errorf("chat transport failed")

	// ErrAuth marks a webhook signature or timestamp-freshness failure.
	ErrAuth = fmt.Errorf("authentication failed")

	// ErrStreamClosed is returned when events are read from a finished run.
	ErrStreamClosed = fmt.Errorf("event stream closed")
)

// DomainError wraps a sentinel error with context.
type DomainError struct {
	Op     string // operation name (e.g., "Dispatcher.Dispatch")
	Err    error  // underlying sentinel or wrapped error
	Detail string // human-readable detail
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

// WrapOp adds operation context to an error using fmt.Errorf wrapping.
// Returns nil if err is nil, enabling idiomatic use: return domain.WrapOp("op", err)
func WrapOp(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}
