package gitcmd

import "errors"

// Sentinel errors for the gitcmd package.
var (
	// ErrPoolClosed is returned when Execute is called on a closed pool.
	ErrPoolClosed = errors.New("process pool is closed")

	// ErrTimeout is returned when an execution exceeds its deadline and the
	// process was killed.
	ErrTimeout = errors.New("execution deadline exceeded")

	// ErrEmptyCommand is returned when Execute is called without arguments.
	ErrEmptyCommand = errors.New("empty command")
)
