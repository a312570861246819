package itinerary

import "fmt"

// ErrorKind distinguishes the two ways a strict build can be rejected.
type ErrorKind string

const (
	// KindMissingEndpoints: start or end city was empty. No network call was made.
	KindMissingEndpoints ErrorKind = "missing_endpoints"
	// KindCityUnresolved: geocoding or weather retrieval failed for City.
	KindCityUnresolved ErrorKind = "city_unresolved"
)

// ValidationError is returned by Build. City is set for KindCityUnresolved and names
// the first failing city in itinerary order; Err is the underlying client error.
type ValidationError struct {
	Kind ErrorKind
	City string
	Err  error
}

func (e *ValidationError) Error() string {
	switch e.Kind {
	case KindMissingEndpoints:
		return "start and end cities are required"
	case KindCityUnresolved:
		if e.Err != nil {
			return fmt.Sprintf("could not get weather for %q: %v", e.City, e.Err)
		}
		return fmt.Sprintf("could not get weather for %q", e.City)
	}
	return "invalid itinerary"
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}
