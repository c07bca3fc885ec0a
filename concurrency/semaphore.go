// concurrency/semaphore.go
/* package provides utilities to manage concurrency control. The ConcurrencyHandler
ensures no more than a certain number of HTTP exchanges are in flight at the same time.
This is managed using a semaphore */
package concurrency

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// AcquireConcurrencyPermit blocks until a permit is available or ctx is done. On success the
// returned context carries the permit's request ID under RequestIDKey, and the same ID must be
// passed to ReleaseConcurrencyPermit.
//
// Example:
//
//	ctx, requestID, err := handler.AcquireConcurrencyPermit(ctx)
//	if err != nil {
//	    return err
//	}
//	defer handler.ReleaseConcurrencyPermit(requestID)
func (ch *ConcurrencyHandler) AcquireConcurrencyPermit(ctx context.Context) (context.Context, uuid.UUID, error) {
	start := time.Now()
	requestID := uuid.New()

	select {
	case ch.sem <- struct{}{}:
		wait := time.Since(start)
		ch.Metrics.Lock.Lock()
		ch.Metrics.PermitWaitTime += wait
		ch.Metrics.TotalRequests++
		ch.Metrics.Lock.Unlock()

		ch.logger.Debug("Acquired concurrency permit",
			zap.String("RequestID", requestID.String()),
			zap.Duration("AcquisitionTime", wait),
			zap.Int("UtilizedPermits", len(ch.sem)),
			zap.Int("AvailablePermits", cap(ch.sem)-len(ch.sem)),
		)

		return context.WithValue(ctx, RequestIDKey{}, requestID), requestID, nil

	case <-ctx.Done():
		ch.Metrics.Lock.Lock()
		ch.Metrics.TotalTimeouts++
		ch.Metrics.Lock.Unlock()

		ch.logger.Warn("Failed to acquire concurrency permit", zap.Error(ctx.Err()))
		return ctx, requestID, ctx.Err()
	}
}

// ReleaseConcurrencyPermit returns a permit back to the semaphore pool, allowing other
// exchanges to proceed.
func (ch *ConcurrencyHandler) ReleaseConcurrencyPermit(requestID uuid.UUID) {
	<-ch.sem

	ch.logger.Debug("Released concurrency permit",
		zap.String("RequestID", requestID.String()),
		zap.Int("UtilizedPermits", len(ch.sem)),
		zap.Int("AvailablePermits", cap(ch.sem)-len(ch.sem)),
	)
}

// RequestIDFromContext returns the permit request ID stored by AcquireConcurrencyPermit.
func RequestIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(RequestIDKey{}).(uuid.UUID)
	return id, ok
}
