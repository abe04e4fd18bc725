// Package system provides the real clock implementation.
package system

import "time"

// Clock implements capture.Clock using time.Now. Timestamps are UTC so
// artifact tokens and expiry comparisons are timezone independent.
type Clock struct{}

// New creates a new Clock.
func New() *Clock {
	return &Clock{}
}

// Now returns the current UTC time.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}
