// coordinator/errors.go
package coordinator

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by Dispatch after Close, and to calls still queued when Close runs.
	ErrClosed = errors.New("coordinator: closed")
	// ErrQueueFull is returned when a call would have to wait but the queue is at MaxQueueDepth.
	ErrQueueFull = errors.New("coordinator: call queue is full")
	// ErrReplayLimit is returned when a queued call has been put back in the queue more than
	// MaxReplays times without getting through.
	ErrReplayLimit = errors.New("coordinator: call re-queued too many times")
	// ErrNoTransport is returned by New when Options.Transport is nil.
	ErrNoTransport = errors.New("coordinator: no transport configured")
)

// CredentialError reports a credential operation chain that ended without a usable token.
// Err is the failure of the operation that started the chain; the failures of the fallbacks
// tried after it are kept in Causes.
type CredentialError struct {
	Op     Operation
	Err    error
	Causes error
}

func (e *CredentialError) Error() string {
	if e.Causes != nil {
		return fmt.Sprintf("credential %s failed: %v (fallbacks: %v)", e.Op, e.Err, e.Causes)
	}
	return fmt.Sprintf("credential %s failed: %v", e.Op, e.Err)
}

func (e *CredentialError) Unwrap() error {
	return e.Err
}
