// Package system supplies the wall clock used outside of tests.
package system

import "time"

// Clock implements jobs.Clock; timestamps are always UTC so stored rows
// compare cleanly regardless of host timezone.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
