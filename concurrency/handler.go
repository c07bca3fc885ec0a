// concurrency/handler.go
package concurrency

import (
	"sync"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
)

// ConcurrencyHandler controls the number of concurrent HTTP exchanges.
type ConcurrencyHandler struct {
	sem     chan struct{}
	logger  logger.Logger
	Metrics *ConcurrencyMetrics
}

// ConcurrencyMetrics captures counters about permit usage.
type ConcurrencyMetrics struct {
	TotalRequests  int64         // Total number of permits granted
	TotalTimeouts  int64         // Permits not granted before the context expired
	PermitWaitTime time.Duration // Total time spent waiting for permits
	Lock           sync.Mutex
}

// NewConcurrencyHandler initializes a new ConcurrencyHandler with the given
// concurrency limit, logger, and concurrency metrics. It uses a semaphore to control concurrency.
func NewConcurrencyHandler(limit int, logger logger.Logger, metrics *ConcurrencyMetrics) *ConcurrencyHandler {
	if limit < 1 {
		limit = 1
	}
	if metrics == nil {
		metrics = &ConcurrencyMetrics{}
	}
	return &ConcurrencyHandler{
		sem:     make(chan struct{}, limit),
		logger:  logger,
		Metrics: metrics,
	}
}

// Limit returns the maximum number of concurrent permits.
func (ch *ConcurrencyHandler) Limit() int {
	return cap(ch.sem)
}

// InUse returns the number of permits currently held.
func (ch *ConcurrencyHandler) InUse() int {
	return len(ch.sem)
}

// RequestIDKey is the context key under which the permit's request ID is stored.
type RequestIDKey struct{}
