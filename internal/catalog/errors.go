package catalog

import "errors"

var (
	// ErrNotFound is returned when a lookup matches nothing.
	ErrNotFound = errors.New("not found in catalog")
	// ErrInvalidSeed is returned for a seed document that cannot be indexed.
	ErrInvalidSeed = errors.New("invalid catalog seed")
)
