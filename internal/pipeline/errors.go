package pipeline

import "errors"

var (
	ErrServiceRequired = errors.New("enrichment service is required")
	ErrQueueFull       = errors.New("job queue is full")
	ErrStopped         = errors.New("pipeline stopped")
)
