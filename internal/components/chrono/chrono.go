package chrono

import (
	"fmt"
	"time"
)

// API is the clock, everything that reads the time takes one so tests can pin it.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// DefaultTimezone is the timezone the fleet portal operates in.
const DefaultTimezone = "Europe/Amsterdam"

// StandardImpl reads the system clock and reports times in a fixed timezone.
type StandardImpl struct {
	location *time.Location
}

func NewStandardImpl(timezone string) (StandardImpl, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return StandardImpl{}, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl is a stopped clock, tests move it by assigning Instant.
type FixedImpl struct {
	Instant time.Time
}

func (f *FixedImpl) Now() time.Time {
	return f.Instant
}

func (f *FixedImpl) Location() *time.Location {
	return f.Instant.Location()
}
