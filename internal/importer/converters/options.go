package converters

import "github.com/okian/scorepipe/pkg/logger"

// Option configures a converter.
type Option func(*base)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}
