package ratelimit

import "context"

// RateLimiter controls call throughput per named operation, e.g. "render".
type RateLimiter interface {
	Allow(ctx context.Context, operation string) (bool, error)
	Wait(ctx context.Context, operation string) error
}
