package scheduler

import "errors"

// Sync worker pool errors. Callers match them with errors.Is.
var (
	ErrInvalidConfig = errors.New("scheduler: invalid sync worker pool config")
	ErrPoolStopped   = errors.New("scheduler: sync worker pool is stopped")
	ErrJobQueueFull  = errors.New("scheduler: sync job queue is full")
	// ErrJobNotFound covers unknown ids and jobs evicted from the result cache
	ErrJobNotFound = errors.New("scheduler: sync job not found")
)
