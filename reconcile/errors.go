package reconcile

import (
	"context"
	"errors"
	"fmt"
	"net"
)

var (
	// ErrTransport is wrapped by every TransportError.
	ErrTransport = errors.New("remote transport failed")

	// ErrSyncInProgress is returned when a run starts while another is active.
	ErrSyncInProgress = errors.New("sync already in progress")
)

// TransportError reports a failed call to the remote store. Retryable
// failures (timeouts, unreachable host, 5xx) leave local state untouched and
// can simply be run again.
type TransportError struct {
	Op        string // "upsert" or "list"
	Err       error
	Retryable bool
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("remote %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() []error { return []error{ErrTransport, e.Err} }

// NewTransportError classifies err. Deadline and network errors are
// retryable, explicit cancellation is not.
func NewTransportError(op string, err error) *TransportError {
	retryable := errors.Is(err, context.DeadlineExceeded)
	var netErr net.Error
	if errors.As(err, &netErr) {
		retryable = true
	}
	if errors.Is(err, context.Canceled) {
		retryable = false
	}
	return &TransportError{Op: op, Err: err, Retryable: retryable}
}

// IsRetryable returns true if err is a transport failure worth retrying.
func IsRetryable(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.Retryable
}
