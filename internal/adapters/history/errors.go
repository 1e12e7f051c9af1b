package history

import "errors"

// Sentinel kinds for history store errors.
var (
	ErrDuplicate    = errors.New("race already recorded")
	ErrInvalidLimit = errors.New("invalid record limit")
)
