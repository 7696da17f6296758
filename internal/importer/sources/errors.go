package sources

import "errors"

// Sentinel errors for record sources.
var (
	ErrUnauthorized    = errors.New("source rejected credentials")
	ErrBadStatus       = errors.New("source returned an unexpected status")
	ErrInvalidDocument = errors.New("invalid import document")
)
