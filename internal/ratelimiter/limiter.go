package ratelimiter

import (
	"context"
	"fmt"

	"golang.org/x/time/rate"
)

// Op names a class of platform request that is throttled independently.
type Op string

const (
	// OpStatus covers publish-status lookups made by the reconciler.
	OpStatus Op = "status"
	// OpPublish covers photo uploads and feed submissions.
	OpPublish Op = "publish"
)

// OpLimiters holds one token bucket limiter per operation class.
// Burst is set equal to the rate so no extra burst capacity is allowed
// beyond the configured per-second maximum.
type OpLimiters struct {
	limiters map[Op]*rate.Limiter
}

// New creates an OpLimiters with the given tokens per second per operation.
func New(statusPerSec, publishPerSec int) *OpLimiters {
	return &OpLimiters{
		limiters: map[Op]*rate.Limiter{
			OpStatus:  rate.NewLimiter(rate.Limit(statusPerSec), statusPerSec),
			OpPublish: rate.NewLimiter(rate.Limit(publishPerSec), publishPerSec),
		},
	}
}

// Wait blocks until the operation's limiter grants a token.
// Returns a non-nil error if ctx is cancelled while waiting or if op is unknown.
func (l *OpLimiters) Wait(ctx context.Context, op Op) error {
	lim, ok := l.limiters[op]
	if !ok {
		return fmt.Errorf("no limiter for operation %q", op)
	}
	return lim.Wait(ctx)
}
