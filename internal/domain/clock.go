package domain

import "time"

// Clock abstracts wall-clock reads so lifecycle transitions can be
// driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the ambient wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
