package importer

import "errors"

// Sentinel errors returned by the importer.
var (
	ErrStream           = errors.New("record stream failed")
	ErrFlush            = errors.New("score insert failed")
	ErrGoals            = errors.New("goal update failed")
	ErrLoadBlacklist    = errors.New("load blacklist")
	ErrConverterPanic   = errors.New("converter panicked")
	ErrIncompleteResult = errors.New("converter returned an incomplete result")
)
