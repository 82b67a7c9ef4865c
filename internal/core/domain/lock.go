package domain

import "time"

// LockHandle identifies one acquisition of a distributed lock.
// Token is unique per acquisition and must be presented on release.
type LockHandle struct {
	Name  string
	Token string
	Lease time.Duration
}
