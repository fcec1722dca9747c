package ratelimiter_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notifyhub/quicksched/internal/ratelimiter"
)

func TestOpLimiters_BurstThenThrottle(t *testing.T) {
	l := ratelimiter.New(2, 1)
	ctx := context.Background()

	// The burst equals the rate, so two status tokens are available at once.
	require.NoError(t, l.Wait(ctx, ratelimiter.OpStatus))
	require.NoError(t, l.Wait(ctx, ratelimiter.OpStatus))

	// The publish bucket is independent of the status bucket.
	require.NoError(t, l.Wait(ctx, ratelimiter.OpPublish))

	short, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(short, ratelimiter.OpPublish), "second publish token should not be available within 50ms")
}

func TestOpLimiters_UnknownOp(t *testing.T) {
	l := ratelimiter.New(1, 1)
	assert.Error(t, l.Wait(context.Background(), ratelimiter.Op("delete")))
}
