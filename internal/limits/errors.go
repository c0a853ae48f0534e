package limits

import "errors"

var (
	ErrInvalidMemoryLimit = errors.New("invalid memory limit")
	ErrInvalidCPULimit    = errors.New("invalid cpu limit")
	ErrInvalidPidsLimit   = errors.New("invalid pids limit")
)
