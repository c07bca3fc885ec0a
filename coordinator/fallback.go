// coordinator/fallback.go
package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/credentials"
	"go.uber.org/multierr"
)

// startLocked marks op as in flight and runs its chain in the background. c.mu must be held.
func (c *Coordinator) startLocked(op Operation, mode credentials.PendingMode) {
	c.pending = mode
	c.metrics.started(op).Add(1)
	c.trace.operationStart(op, mode)

	c.ops.Add(1)
	go c.runChain(op, mode)
}

// runChain runs op and its fallbacks, then clears the pending mode and drains the queue once.
func (c *Coordinator) runChain(op Operation, mode credentials.PendingMode) {
	defer c.ops.Done()

	err := c.runWithFallback(c.opCtx, op, mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = credentials.PendingNone
	if c.closed {
		return
	}
	c.chainErr = err
	c.drainLocked()
}

// runWithFallback runs first and, while it keeps failing, the next weaker operation. The
// returned error carries the failure of first; fallback failures are kept as causes.
func (c *Coordinator) runWithFallback(ctx context.Context, first Operation, mode credentials.PendingMode) error {
	var original, causes error

	op := first
	for {
		err := c.invoke(ctx, op, mode)
		if err == nil {
			return nil
		}
		if original == nil {
			original = err
		} else {
			causes = multierr.Append(causes, err)
		}
		if ctx.Err() != nil {
			break
		}

		c.mu.Lock()
		next, ok := c.nextFallbackLocked(op)
		if ok {
			mode = credentials.PendingSync
			c.pending = mode
			c.metrics.started(next).Add(1)
			c.trace.operationStart(next, mode)
		}
		c.mu.Unlock()

		if !ok {
			break
		}
		op = next
	}

	return &CredentialError{Op: first, Err: original, Causes: causes}
}

// nextFallbackLocked resets what the failed operation leaves unusable and picks the next
// operation to try, if any. c.mu must be held.
func (c *Coordinator) nextFallbackLocked(failed Operation) (Operation, bool) {
	now := c.now()

	switch failed {
	case OperationRenew:
		c.store.ResetAccess()
		if c.refreshValid(now) {
			return OperationRefresh, true
		}
		c.store.ResetRefresh()
		if c.generateValid() {
			return OperationGenerate, true
		}

	case OperationRefresh:
		c.store.ResetRefresh()
		if c.generateValid() {
			return OperationGenerate, true
		}

	case OperationGenerate:
		c.connected.Store(false)
		c.logger.Warn("Generate failed, coordinator marked disconnected")
	}

	return "", false
}

// invoke runs a single credential operation.
func (c *Coordinator) invoke(ctx context.Context, op Operation, mode credentials.PendingMode) error {
	start := time.Now()
	c.logger.LogCredentialOperation("credential_operation_started", string(op), mode.String(), 0, nil)

	var err error
	switch {
	case op == OperationGenerate && c.strategies.Generator != nil:
		err = c.strategies.Generator.Generate(ctx, c.store)
	case op == OperationRenew && c.strategies.Renewer != nil:
		err = c.strategies.Renewer.Renew(ctx, c.store)
	case op == OperationRefresh && c.strategies.Refresher != nil:
		err = c.strategies.Refresher.Refresh(ctx, c.store)
	default:
		err = fmt.Errorf("no %s strategy configured", op)
	}

	c.logger.LogCredentialOperation("credential_operation_completed", string(op), mode.String(), time.Since(start), err)
	if err != nil {
		c.metrics.failed(op).Add(1)
	}
	c.trace.operationDone(op, err)
	return err
}
