// Package clock abstracts time for schedulers and tests.
package clock

import "time"

type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

// New returns the wall clock.
func New() Clock { return realClock{} }
