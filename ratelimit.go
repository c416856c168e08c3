package courier

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimit returns a request interceptor that waits for a token from
// limiter before letting the request continue. It blocks, so it is never
// registered as Synchronous and its presence puts the chain in async mode.
//
//	client.Interceptors.Request.Use(courier.RateLimit(limiter), nil)
func RateLimit(limiter *rate.Limiter) func(ctx context.Context, cfg *Config) (*Config, error) {
	return func(ctx context.Context, cfg *Config) (*Config, error) {
		if limiter == nil {
			return cfg, nil
		}
		if cfg.CancelToken != nil {
			var release context.CancelFunc
			ctx, release = cfg.CancelToken.Context(ctx)
			defer release()
		}
		if err := limiter.Wait(ctx); err != nil {
			if cerr := cancellationRequested(ctx, cfg); cerr != nil {
				return nil, cerr
			}
			return nil, err
		}
		return cfg, nil
	}
}
