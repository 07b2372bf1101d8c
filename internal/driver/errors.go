package driver

import "errors"

// Sentinel errors for run outcomes.
var (
	ErrWindowsFailed = errors.New("one or more windows failed")
	ErrRunAborted    = errors.New("run aborted")
	ErrNoConnector   = errors.New("no connector configured")
)
