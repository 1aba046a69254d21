package domain

import "errors"

var (
	ErrInvalidTier         = errors.New("quality tier has no resolution")
	ErrInvalidAdaptiveMode = errors.New("invalid adaptive mode")
	ErrInconsistentBounds  = errors.New("min quality ranks above max quality")
	ErrMissingCallContext  = errors.New("no active call")
	ErrInvalidLayout       = errors.New("invalid layout variant")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrInvalidScreenPreset = errors.New("invalid screen share preset")
)
