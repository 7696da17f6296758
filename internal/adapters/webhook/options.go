package webhook

import (
	"net/http"
	"time"

	"github.com/okian/scorepipe/pkg/logger"
)

// Option applies a configuration option to the HTTPEmitter.
type Option func(*HTTPEmitter)

// WithTimeout bounds each delivery.
func WithTimeout(d time.Duration) Option {
	return func(e *HTTPEmitter) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithHTTPClient sets the client used for deliveries.
func WithHTTPClient(c *http.Client) Option {
	return func(e *HTTPEmitter) {
		if c != nil {
			e.client = c
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *HTTPEmitter) {
		if l != nil {
			e.logger = l
		}
	}
}
