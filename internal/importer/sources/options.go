package sources

import (
	"net/http"
	"time"

	"github.com/okian/scorepipe/pkg/logger"
)

// KaiOption configures a KaiAPI source.
type KaiOption func(*KaiAPI)

// WithHTTPClient sets the client used for requests.
func WithHTTPClient(c *http.Client) KaiOption {
	return func(k *KaiAPI) {
		if c != nil {
			k.client = c
		}
	}
}

// WithRequestTimeout bounds each page request.
func WithRequestTimeout(d time.Duration) KaiOption {
	return func(k *KaiAPI) {
		if d > 0 {
			k.timeout = d
		}
	}
}

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) KaiOption {
	return func(k *KaiAPI) {
		if l != nil {
			k.logger = l
		}
	}
}
