package service

import "errors"

// Sentinel errors returned by the service.
var (
	ErrNotStarted  = errors.New("service not started")
	ErrQueueFull   = errors.New("job queue full or closed")
	ErrMissingArgs = errors.New("job is missing arguments")
)
