package games

import "errors"

var (
	// ErrUnknownGPT is returned for a game:playtype with no implementation.
	ErrUnknownGPT = errors.New("unknown game:playtype")
	// ErrNoNotecount is returned when a percent needs a chart notecount.
	ErrNoNotecount = errors.New("chart has no notecount")
)
