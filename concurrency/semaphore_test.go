// concurrency/semaphore_test.go
package concurrency

import (
	"context"
	"testing"
	"time"

	"github.com/deploymenttheory/go-api-credential-dispatcher/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireAndReleaseConcurrencyPermit(t *testing.T) {
	handler := NewConcurrencyHandler(2, logger.NewNopLogger(), nil)

	ctx, id, err := handler.AcquireConcurrencyPermit(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, handler.InUse())

	stored, ok := RequestIDFromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, id, stored)

	handler.ReleaseConcurrencyPermit(id)
	assert.Equal(t, 0, handler.InUse())
	assert.Equal(t, int64(1), handler.Metrics.TotalRequests)
}

// TestAcquireConcurrencyPermit_Timeout fills the semaphore and checks a further acquisition
// gives up when its context expires.
func TestAcquireConcurrencyPermit_Timeout(t *testing.T) {
	handler := NewConcurrencyHandler(1, logger.NewNopLogger(), nil)

	_, held, err := handler.AcquireConcurrencyPermit(context.Background())
	require.NoError(t, err)
	defer handler.ReleaseConcurrencyPermit(held)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, _, err = handler.AcquireConcurrencyPermit(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(1), handler.Metrics.TotalTimeouts)
}

func TestNewConcurrencyHandler_MinimumLimit(t *testing.T) {
	handler := NewConcurrencyHandler(0, logger.NewNopLogger(), nil)
	assert.Equal(t, 1, handler.Limit())
}
