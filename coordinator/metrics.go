// coordinator/metrics.go
package coordinator

import "sync/atomic"

// Metrics is a point-in-time copy of the coordinator's counters.
type Metrics struct {
	Dispatched        int64 // Dispatch invocations
	Queued            int64 // times a call started waiting, re-queues included
	Replayed          int64 // queued calls taken out of the queue by a drain
	Retried401        int64 // automatic retries after HTTP 401
	OperationsStarted map[Operation]int64
	OperationsFailed  map[Operation]int64
}

type counters struct {
	dispatched atomic.Int64
	queued     atomic.Int64
	replayed   atomic.Int64
	retried401 atomic.Int64

	generateStarted atomic.Int64
	renewStarted    atomic.Int64
	refreshStarted  atomic.Int64
	generateFailed  atomic.Int64
	renewFailed     atomic.Int64
	refreshFailed   atomic.Int64
}

func (c *counters) started(op Operation) *atomic.Int64 {
	switch op {
	case OperationGenerate:
		return &c.generateStarted
	case OperationRenew:
		return &c.renewStarted
	default:
		return &c.refreshStarted
	}
}

func (c *counters) failed(op Operation) *atomic.Int64 {
	switch op {
	case OperationGenerate:
		return &c.generateFailed
	case OperationRenew:
		return &c.renewFailed
	default:
		return &c.refreshFailed
	}
}

func (c *counters) snapshot() Metrics {
	m := Metrics{
		Dispatched:        c.dispatched.Load(),
		Queued:            c.queued.Load(),
		Replayed:          c.replayed.Load(),
		Retried401:        c.retried401.Load(),
		OperationsStarted: map[Operation]int64{},
		OperationsFailed:  map[Operation]int64{},
	}
	for _, op := range []Operation{OperationGenerate, OperationRenew, OperationRefresh} {
		m.OperationsStarted[op] = c.started(op).Load()
		m.OperationsFailed[op] = c.failed(op).Load()
	}
	return m
}
