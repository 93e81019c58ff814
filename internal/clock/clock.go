// Package clock abstracts time retrieval so logic that depends on "now"
// (snapshot names, due-date priorities) is deterministic in tests.
package clock

import "time"

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// Real returns the actual current time.
type Real struct{}

func (Real) Now() time.Time { return time.Now() }
