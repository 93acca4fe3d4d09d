// Package model defines the data types and error taxonomy shared by the
// queue, lease, scheduler and worker packages.
package model

import "errors"

// Sentinel errors surfaced to callers of the queue, lease and worker APIs.
// Check with errors.Is; some are wrapped with additional context via fmt.Errorf.
var (
	ErrScraperNotFound    = errors.New("scraper not found")
	ErrTaskNotFound       = errors.New("task not found")
	ErrTaskHasActiveRun   = errors.New("concurrent execution of the task is disallowed")
	ErrTaskPingNotStarted = errors.New("failed to ping not started task")
	ErrTaskPingFinished   = errors.New("tried to ping finished task")
	ErrTaskTimedOut       = errors.New("task has timed out")
	ErrUnknownTaskHandler = errors.New("unknown task handler")
	ErrStorageIsReadOnly  = errors.New("storage is read-only")
)
