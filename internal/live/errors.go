package live

import "errors"

// Sentinel kinds for live session errors.
var (
	ErrAlreadyActive = errors.New("race session already active")
	ErrNotActive     = errors.New("race session not active")
)
