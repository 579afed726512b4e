package monitor

import "errors"

var (
	// ErrOrderNotFound is returned when an order is not found
	ErrOrderNotFound = errors.New("order not found")

	// ErrSweepInProgress is returned when a sweep of the same kind is
	// already running
	ErrSweepInProgress = errors.New("sweep already in progress")
)
