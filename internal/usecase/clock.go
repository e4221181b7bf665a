package usecase

import "time"

// Clock returns the current time. Tests pass a fixed or steppable clock;
// nil means time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
