package goals

import (
	"time"

	"github.com/okian/scorepipe/internal/adapters/webhook"
	"github.com/okian/scorepipe/pkg/logger"
)

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithEmitter sets where goals-achieved events go.
func WithEmitter(em webhook.Emitter) Option {
	return func(e *Evaluator) {
		if em != nil {
			e.emitter = em
		}
	}
}

// WithConcurrency bounds how many goals (or users) are evaluated at once.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithClock sets the time source for achievement timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.logger = l
		}
	}
}
