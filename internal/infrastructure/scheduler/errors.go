package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when triggering a scan on a stopped scheduler
	ErrSchedulerNotRunning = errors.New("scheduler is not running")

	// ErrScanInProgress is returned when a manual scan overlaps a running one
	ErrScanInProgress = errors.New("detection scan already in progress")

	// ErrInvalidConfig is returned when configuration is invalid
	ErrInvalidConfig = errors.New("invalid scheduler configuration")
)
