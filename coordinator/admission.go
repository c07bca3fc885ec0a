// coordinator/admission.go
package coordinator

import (
	"context"

	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
	"go.uber.org/zap"
)

type decision int

const (
	// decisionProceed sends the call with the current access token.
	decisionProceed decision = iota
	// decisionDegraded sends the call without a usable token: no strategy can produce one.
	decisionDegraded
	// decisionQueue makes the call wait for the running operation.
	decisionQueue
)

// admit decides whether call may be sent now. It returns the access token to attach, which may
// be empty, or blocks until a drain hands the call a decision.
func (c *Coordinator) admit(ctx context.Context, call *Call) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return "", ErrClosed
	}

	switch c.decideLocked() {
	case decisionQueue:
		if c.maxQueueDepth > 0 && len(c.queue) >= c.maxQueueDepth {
			depth := len(c.queue)
			c.mu.Unlock()
			c.logger.Warn("Call queue is full", zap.String("call_id", call.ID.String()), zap.Int("queue_depth", depth))
			return "", ErrQueueFull
		}
		qc := c.enqueueLocked(call)
		c.mu.Unlock()
		return c.wait(ctx, qc)

	case decisionDegraded:
		c.drainLocked()
		c.mu.Unlock()
		c.logger.Debug("No credential strategy available, sending without token", zap.String("call_id", call.ID.String()))
		return "", nil

	default:
		token := c.store.Access().Token
		c.mu.Unlock()
		return token, nil
	}
}

// decideLocked is the admission decision. It may start a credential operation and reset
// records that are no longer valid. c.mu must be held.
func (c *Coordinator) decideLocked() decision {
	if c.pending == credentials.PendingSync {
		return decisionQueue
	}

	for {
		now := c.now()
		access := c.store.Access()
		refresh := c.store.Refresh()

		if c.accessValid(access, now) {
			if c.pending == credentials.PendingNone && c.renewDue(access, now) {
				c.startLocked(OperationRenew, credentials.PendingAsync)
			}
			return decisionProceed
		}

		// A renew running in the background may have stored a new token since the snapshot.
		if !c.store.ResetAccessIf(func(r credentials.Record) bool { return r == access }) {
			continue
		}

		if c.refreshValid(now) {
			if c.pending == credentials.PendingNone {
				c.startLocked(OperationRefresh, credentials.PendingSync)
			}
			c.pending = credentials.PendingSync
			return decisionQueue
		}
		// Same for a refresh token stored by a renew that returned it.
		if !c.store.ResetRefreshIf(func(r credentials.Record) bool { return r == refresh }) {
			continue
		}

		if c.generateValid() {
			if c.pending == credentials.PendingNone {
				c.startLocked(OperationGenerate, credentials.PendingSync)
			}
			c.pending = credentials.PendingSync
			return decisionQueue
		}

		return decisionDegraded
	}
}
