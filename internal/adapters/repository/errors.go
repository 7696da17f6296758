package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrNotFound        = errors.New("not found")
	ErrEmptyBulkWrite  = errors.New("empty bulk write")
	ErrInvalidDocument = errors.New("invalid document")
)
