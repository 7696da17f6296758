package orphan

import (
	"context"
	"time"

	"github.com/okian/scorepipe/pkg/logger"
)

// Option configures a Resolver.
type Option func(*Resolver)

// WithThreshold sets how many distinct users must submit against an
// admittable chart before it is admitted.
func WithThreshold(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.threshold = n
		}
	}
}

// WithCorroborationHandler hands corroborated fingerprints to fn (e.g. a
// background job) instead of resolving them inline.
func WithCorroborationHandler(fn func(ctx context.Context, fingerprint string) error) Option {
	return func(r *Resolver) {
		r.corroborated = fn
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(r *Resolver) {
		if now != nil {
			r.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}
