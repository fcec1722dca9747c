package platform

import (
	"context"

	"github.com/notifyhub/quicksched/internal/domain"
)

// StatusOracle reports whether a submitted post is live on the platform.
// Implementations may be slow, rate limited, and transiently wrong; callers
// treat every error as retriable on the next reconciliation pass.
type StatusOracle interface {
	IsPublished(ctx context.Context, externalRef string) (bool, error)
}

// Publisher submits a post to the platform for scheduled publication and
// returns the platform's identifier for it.
type Publisher interface {
	Submit(ctx context.Context, p *domain.ScheduledPost) (externalRef string, err error)
}

// StatusOracleFunc adapts a plain function to StatusOracle.
type StatusOracleFunc func(ctx context.Context, externalRef string) (bool, error)

func (f StatusOracleFunc) IsPublished(ctx context.Context, externalRef string) (bool, error) {
	return f(ctx, externalRef)
}
