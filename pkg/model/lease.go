package model

import "time"

// Lease is a named, time-bounded exclusive claim used for leader election.
type Lease struct {
	Name          string
	OwnerID       string
	AcquiredAt    time.Time
	AcquiredUntil time.Time
}
