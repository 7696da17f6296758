package webhook

import "errors"

// Sentinel errors for webhook delivery.
var (
	ErrEncode   = errors.New("webhook: encode event")
	ErrRejected = errors.New("webhook: rejected by receiver")
)
