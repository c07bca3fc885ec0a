// coordinator/options.go
package coordinator

import (
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"github.com/deploymenttheory/go-api-credential-dispatcher/transport"
)

const (
	// DefaultRenewAfter is how long after issue an access token is renewed in the background.
	DefaultRenewAfter = 15 * time.Minute
	// DefaultMaxReplays bounds how often one queued call may be put back in the queue.
	DefaultMaxReplays = 5
)

// Options configure a Coordinator. Transport is required.
type Options struct {
	Transport  transport.Transport
	Store      *credentials.Store // a new empty store when nil
	Strategies Strategies

	// Connected is the initial value of the flag that enables Generate. A failed generate
	// clears it; SetConnected sets it again.
	Connected bool

	RenewAfter time.Duration // DefaultRenewAfter when zero

	// MaxReplays is the number of times a queued call may be re-queued by a drain before it
	// fails with ErrReplayLimit. Zero means DefaultMaxReplays, negative means unbounded.
	MaxReplays int

	// MaxQueueDepth caps the number of waiting calls. Zero means unbounded.
	MaxQueueDepth int

	Logger logger.Logger
	Trace  *Trace
	Now    func() time.Time // time.Now when nil
}

// CallInfo describes a call in Trace hooks.
type CallInfo struct {
	ID       string
	URL      string
	Sequence uint64
	Replays  int
}

// Trace holds optional hooks fired as calls move through the coordinator, in the spirit of
// net/http/httptrace. All hooks run synchronously in the order the events happen. CallQueued,
// CallReplayed and OperationStart run while the coordinator's state is locked, so they must
// return quickly and must not call back into the Coordinator.
type Trace struct {
	// CallQueued fires when a call starts waiting.
	CallQueued func(CallInfo)
	// CallReplayed fires when a drain takes a waiting call out of the queue, in queue order,
	// before its admission is decided again.
	CallReplayed func(CallInfo)
	// OperationStart fires when a credential operation, including a fallback, is started.
	OperationStart func(op Operation, mode credentials.PendingMode)
	// OperationDone fires when a single credential operation returns.
	OperationDone func(op Operation, err error)
}

func (t *Trace) callQueued(info CallInfo) {
	if t != nil && t.CallQueued != nil {
		t.CallQueued(info)
	}
}

func (t *Trace) callReplayed(info CallInfo) {
	if t != nil && t.CallReplayed != nil {
		t.CallReplayed(info)
	}
}

func (t *Trace) operationStart(op Operation, mode credentials.PendingMode) {
	if t != nil && t.OperationStart != nil {
		t.OperationStart(op, mode)
	}
}

func (t *Trace) operationDone(op Operation, err error) {
	if t != nil && t.OperationDone != nil {
		t.OperationDone(op, err)
	}
}
