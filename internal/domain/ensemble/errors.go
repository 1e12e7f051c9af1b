package ensemble

import "errors"

// Sentinel kinds for unit prediction errors.
var (
	ErrUntrained  = errors.New("unit is not trained")
	ErrNoFeatures = errors.New("feature vector carries no usable features")
	ErrNoSamples  = errors.New("no training samples provided")
)
