package lifecycle

import "errors"

// Sentinel kinds for lifecycle errors.
var (
	ErrNotLoaded         = errors.New("model not loaded")
	ErrRetrainInProgress = errors.New("retrain already in progress")
	ErrValidationFailed  = errors.New("candidate model failed validation")
	ErrInsufficientData  = errors.New("not enough history to train")
	ErrOutcomeIncomplete = errors.New("race outcome is missing the winner")
)
