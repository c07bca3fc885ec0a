// coordinator/coordinator.go
package coordinator

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"github.com/deploymenttheory/go-api-credential-dispatcher/response"
	"github.com/deploymenttheory/go-api-credential-dispatcher/transport"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Call is one Dispatch invocation, as seen by ErrorHandler.
type Call struct {
	ID      uuid.UUID
	URL     string
	Options transport.Options
	// Sequence is stamped the first time the call is queued; zero if it never waited.
	Sequence uint64
	// Replays counts how often a drain put the call back in the queue.
	Replays int
	// Retried is set once the call has been retried after a 401.
	Retried bool
}

func (c *Call) info() CallInfo {
	return CallInfo{ID: c.ID.String(), URL: c.URL, Sequence: c.Sequence, Replays: c.Replays}
}

// Coordinator decorates a Transport with credential management. It is safe for concurrent use.
type Coordinator struct {
	transport     transport.Transport
	store         *credentials.Store
	strategies    Strategies
	logger        logger.Logger
	trace         *Trace
	now           func() time.Time
	renewAfter    time.Duration
	maxReplays    int
	maxQueueDepth int

	connected atomic.Bool
	metrics   counters

	// opCtx is handed to credential operations; Close cancels it.
	opCtx    context.Context
	opCancel context.CancelFunc
	ops      sync.WaitGroup

	// mu guards everything below. The admission decision, including starting an operation,
	// happens in a single critical section.
	mu      sync.Mutex
	pending credentials.PendingMode
	queue   []*queuedCall
	seq     uint64
	closed  bool
	// chainErr is the error of the chain that just failed; only the drain that follows it
	// hands it to waiting calls.
	chainErr error
}

// New builds a Coordinator.
func New(opts Options) (*Coordinator, error) {
	if opts.Transport == nil {
		return nil, ErrNoTransport
	}

	c := &Coordinator{
		transport:     opts.Transport,
		store:         opts.Store,
		strategies:    opts.Strategies,
		logger:        opts.Logger,
		trace:         opts.Trace,
		now:           opts.Now,
		renewAfter:    opts.RenewAfter,
		maxReplays:    opts.MaxReplays,
		maxQueueDepth: opts.MaxQueueDepth,
	}
	if c.store == nil {
		c.store = credentials.NewStore()
	}
	if c.logger == nil {
		c.logger = logger.NewNopLogger()
	}
	c.logger = c.logger.With(zap.String("component", "coordinator"))
	if c.now == nil {
		c.now = time.Now
	}
	if c.renewAfter <= 0 {
		c.renewAfter = DefaultRenewAfter
	}
	if c.maxReplays == 0 {
		c.maxReplays = DefaultMaxReplays
	}
	c.connected.Store(opts.Connected)
	c.opCtx, c.opCancel = context.WithCancel(context.Background())

	c.logger.Debug("Coordinator initialized",
		zap.Bool("generate", c.strategies.Generator != nil),
		zap.Bool("renew", c.strategies.Renewer != nil),
		zap.Bool("refresh", c.strategies.Refresher != nil),
		zap.Bool("connected", opts.Connected),
		zap.Duration("renew_after", c.renewAfter),
		zap.Int("max_replays", c.maxReplays),
		zap.Int("max_queue_depth", c.maxQueueDepth),
	)

	return c, nil
}

// Store returns the credential store shared with the strategies.
func (c *Coordinator) Store() *credentials.Store {
	return c.store
}

// Connected reports whether Generate may currently be used.
func (c *Coordinator) Connected() bool {
	return c.connected.Load()
}

// SetConnected enables or disables Generate.
func (c *Coordinator) SetConnected(connected bool) {
	c.connected.Store(connected)
}

// Pending returns the current pending mode.
func (c *Coordinator) Pending() credentials.PendingMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}

// QueueLen returns the number of calls currently waiting.
func (c *Coordinator) QueueLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue)
}

// Metrics returns a snapshot of the coordinator's counters.
func (c *Coordinator) Metrics() Metrics {
	return c.metrics.snapshot()
}

// Dispatch sends one call through the transport, attaching the current access token and
// waiting for a credential operation first when the token is unusable. A 401 answer is retried
// once when a refresh or generate can produce a new token. An io.Reader body is read once up
// front so the retry sends the same bytes.
func (c *Coordinator) Dispatch(ctx context.Context, url string, opts transport.Options) (*transport.Response, error) {
	call := &Call{ID: uuid.New(), URL: url, Options: opts}
	c.metrics.dispatched.Add(1)

	if r, ok := opts.Body.(io.Reader); ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, c.fail(ctx, call, fmt.Errorf("failed to read request body: %w", err))
		}
		opts.Body = data
		call.Options = opts
	}

	for {
		token, err := c.admit(ctx, call)
		if err != nil {
			return nil, c.fail(ctx, call, err)
		}

		sendOpts := opts.Clone()
		if token != "" {
			if sendOpts.Header == nil {
				sendOpts.Header = http.Header{}
			}
			sendOpts.Header.Set("Authorization", "Bearer "+token)
		}

		resp, err := c.transport.Send(ctx, url, sendOpts)
		if err == nil {
			return resp, nil
		}

		if response.IsUnauthorized(err) {
			c.store.ResetAccessIf(func(r credentials.Record) bool { return r.Token == token })
			if !call.Retried && c.canRecover() {
				call.Retried = true
				c.metrics.retried401.Add(1)
				c.logger.Info("Unauthorized response, retrying with new credentials",
					zap.String("call_id", call.ID.String()),
					zap.String("url", url),
				)
				continue
			}
		}

		return nil, c.fail(ctx, call, err)
	}
}

// Close fails every waiting call with ErrClosed, cancels the context given to a running
// credential operation and waits for it to return. Dispatch returns ErrClosed afterwards.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	waiting := c.queue
	c.queue = nil
	for _, qc := range waiting {
		qc.hand(admission{err: ErrClosed})
	}
	c.mu.Unlock()

	c.opCancel()
	c.ops.Wait()
	c.logger.Debug("Coordinator closed", zap.Int("released_calls", len(waiting)))
	return nil
}

// fail runs the error handler and returns err unchanged.
func (c *Coordinator) fail(ctx context.Context, call *Call, err error) error {
	if handler := c.strategies.ErrorHandler; handler != nil {
		if herr := handler.HandleError(ctx, err, call); herr != nil {
			c.logger.Warn("Error handler failed", zap.String("call_id", call.ID.String()), zap.Error(herr))
		}
	}
	return err
}

func (c *Coordinator) accessValid(access credentials.Record, now time.Time) bool {
	return access.ValidAt(now)
}

func (c *Coordinator) refreshValid(now time.Time) bool {
	return c.strategies.Refresher != nil && c.store.Refresh().ValidAt(now)
}

func (c *Coordinator) generateValid() bool {
	return c.strategies.Generator != nil && c.connected.Load()
}

// renewDue reports whether the access token was issued more than renewAfter ago.
func (c *Coordinator) renewDue(access credentials.Record, now time.Time) bool {
	if c.strategies.Renewer == nil {
		return false
	}
	issuedAt := access.ExpiresAt.Add(-access.IssuedDelay)
	return issuedAt.Before(now.Add(-c.renewAfter))
}

func (c *Coordinator) canRecover() bool {
	return c.refreshValid(c.now()) || c.generateValid()
}
