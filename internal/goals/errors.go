package goals

import "errors"

// Sentinel errors returned by the goals package.
var (
	ErrLookup          = errors.New("goal lookup failed")
	ErrBulkWrite       = errors.New("goal subscription bulk write failed")
	ErrUnknownCriteria = errors.New("unknown goal criteria")
	ErrUnknownMetric   = errors.New("unknown goal metric")
	ErrEmptyGoal       = errors.New("goal selects no charts")
)
