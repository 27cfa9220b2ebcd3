package chrono

import (
	"time"

	"cloud.google.com/go/civil"
)

// API is the interface that anything depending on the system clock should use.
type API interface {
	Now() time.Time
	Location() *time.Location
}

// Today returns the calendar date of api.Now() in api.Location().
func Today(api API) civil.Date {
	return civil.DateOf(api.Now().In(api.Location()))
}

type StandardImpl struct {
	location *time.Location
}

// NewStandardImpl loads the named IANA location, an empty name means the
// local timezone.
func NewStandardImpl(locationName string) (StandardImpl, error) {
	if locationName == "" {
		return StandardImpl{location: time.Local}, nil
	}
	location, err := time.LoadLocation(locationName)
	if err != nil {
		return StandardImpl{}, err
	}
	return StandardImpl{location: location}, nil
}

func (s StandardImpl) Now() time.Time {
	return time.Now().In(s.location)
}

func (s StandardImpl) Location() *time.Location {
	return s.location
}

// FixedImpl always returns the same instant, it is meant for tests.
type FixedImpl struct {
	Instant time.Time
}

func (f FixedImpl) Now() time.Time {
	return f.Instant
}

func (f FixedImpl) Location() *time.Location {
	return f.Instant.Location()
}
