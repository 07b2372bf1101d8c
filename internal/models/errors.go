package models

import "errors"

// Sentinel errors shared across the run.
var (
	ErrInvalidConfiguration  = errors.New("invalid configuration")
	ErrCredentialIO          = errors.New("credential io error")
	ErrWorkspace             = errors.New("workspace error")
	ErrFetchFailure          = errors.New("fetch failure")
	ErrConversionFailure     = errors.New("conversion failure")
	ErrUnsupportedInstrument = errors.New("unsupported instrument")
)
