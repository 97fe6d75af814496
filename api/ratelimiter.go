package api

import (
	"context"

	"github.com/ethereum/go-ethereum/rpc"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-limiter"

	errs "github.com/smallyunet/userop-validator/models/errors"
)

// RateLimiter bounds how often a single client may hit an endpoint.
type RateLimiter interface {
	Apply(ctx context.Context, method string) error
}

type limiterRateLimiter struct {
	store  limiter.Store
	logger zerolog.Logger
}

func NewRateLimiter(store limiter.Store, logger zerolog.Logger) RateLimiter {
	return &limiterRateLimiter{
		store:  store,
		logger: logger.With().Str("component", "rate-limiter").Logger(),
	}
}

// Apply takes one token for the calling client. Clients without transport
// information (in-process callers, tests) are not limited.
func (r *limiterRateLimiter) Apply(ctx context.Context, method string) error {
	remote := rpc.PeerInfoFromContext(ctx).RemoteAddr
	if remote == "" {
		return nil
	}

	_, _, _, ok, err := r.store.Take(ctx, remote)
	if err != nil {
		return err
	}
	if !ok {
		r.logger.Debug().
			Str("origin", remote).
			Str("method", method).
			Msg("rate limit reached")
		return errs.ErrRateLimit
	}

	return nil
}

// NopRateLimiter never limits; used by the one-shot CLI path and tests.
type NopRateLimiter struct{}

func (NopRateLimiter) Apply(ctx context.Context, method string) error { return nil }
