package metrics

import "errors"

// Sentinel kinds for metrics errors.
var (
	ErrGatherFailed = errors.New("metrics gather failed")
	ErrEncodeFailed = errors.New("metrics encode failed")
)
