// coordinator/queue.go
package coordinator

import (
	"context"
)

// admission is what a drain hands to a waiting call.
type admission struct {
	token string
	err   error
}

// queuedCall is a call waiting for a credential operation. The handoff channel has room for
// exactly one admission, so a drain never blocks on a caller.
type queuedCall struct {
	call    *Call
	handoff chan admission
}

func (qc *queuedCall) hand(a admission) {
	qc.handoff <- a
}

// enqueueLocked appends call to the queue. The sequence number is stamped on first arrival;
// a call queued again after a 401 keeps it. c.mu must be held.
func (c *Coordinator) enqueueLocked(call *Call) *queuedCall {
	if call.Sequence == 0 {
		c.seq++
		call.Sequence = c.seq
	}
	qc := &queuedCall{call: call, handoff: make(chan admission, 1)}
	c.queue = append(c.queue, qc)
	c.metrics.queued.Add(1)

	c.trace.callQueued(call.info())
	c.logger.LogQueueEvent("call_queued", call.ID.String(), call.Sequence, len(c.queue))
	return qc
}

// wait blocks until qc is handed an admission or ctx is done. A cancelled call is removed from
// the queue; an admission already handed to it is dropped.
func (c *Coordinator) wait(ctx context.Context, qc *queuedCall) (string, error) {
	select {
	case a := <-qc.handoff:
		return a.token, a.err
	case <-ctx.Done():
		c.mu.Lock()
		c.removeLocked(qc)
		c.mu.Unlock()
		return "", ctx.Err()
	}
}

func (c *Coordinator) removeLocked(qc *queuedCall) bool {
	for i, queued := range c.queue {
		if queued == qc {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)
			c.logger.LogQueueEvent("call_abandoned", qc.call.ID.String(), qc.call.Sequence, len(c.queue))
			return true
		}
	}
	return false
}

// drainLocked takes every waiting call, in arrival order, and decides its admission again with
// the current state. Calls that may proceed are released without waiting for their exchange to
// finish; calls that still have to wait go back to the queue. c.mu must be held for the whole
// drain so that decisions are made strictly in queue order.
func (c *Coordinator) drainLocked() {
	waiting := c.queue
	c.queue = nil
	failure := c.chainErr
	c.chainErr = nil

	for _, qc := range waiting {
		call := qc.call
		c.metrics.replayed.Add(1)
		c.trace.callReplayed(call.info())
		c.logger.LogQueueEvent("call_replayed", call.ID.String(), call.Sequence, len(c.queue))

		switch c.decideLocked() {
		case decisionProceed:
			qc.hand(admission{token: c.store.Access().Token})

		case decisionDegraded:
			if failure != nil {
				qc.hand(admission{err: failure})
			} else {
				qc.hand(admission{})
			}

		case decisionQueue:
			call.Replays++
			if c.maxReplays > 0 && call.Replays > c.maxReplays {
				qc.hand(admission{err: ErrReplayLimit})
				continue
			}
			c.queue = append(c.queue, qc)
			c.metrics.queued.Add(1)
			c.logger.LogQueueEvent("call_requeued", call.ID.String(), call.Sequence, len(c.queue))
		}
	}
}
