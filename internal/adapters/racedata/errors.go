package racedata

import "errors"

// Sentinel kinds for race data errors.
var (
	ErrRaceFinished = errors.New("race already finished")
	ErrNoHistory    = errors.New("no historical races available")
)
