package models

import "time"

// Coordinate is a resolved latitude/longitude pair. It is recomputed on every request.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Reading is one timestamped weather observation.
// Pointer fields are nil when the provider omitted them from the payload.
type Reading struct {
	Temperature  *float64      `json:"temperature,omitempty"` // °C
	WindSpeed    *float64      `json:"windSpeed,omitempty"`   // m/s
	Rain         *float64      `json:"rain,omitempty"`        // mm over PrecipWindow
	Snow         *float64      `json:"snow,omitempty"`        // mm over PrecipWindow
	PrecipWindow time.Duration `json:"precipWindow,omitempty"`
	Clouds       *float64      `json:"clouds,omitempty"` // %
	Condition    string        `json:"condition"`
	Timestamp    time.Time     `json:"timestamp"`
}

// Forecast is an ordered sequence of readings at 3-hour cadence for one location.
type Forecast struct {
	City           string    `json:"city"`
	TimezoneOffset int       `json:"timezoneOffset"` // seconds east of UTC, as reported upstream
	Readings       []Reading `json:"readings"`
}

// First returns the earliest reading of the forecast, or nil when it has none.
func (f *Forecast) First() *Reading {
	if f == nil || len(f.Readings) == 0 {
		return nil
	}
	return &f.Readings[0]
}

// CityWeather is what was resolved for one itinerary stop. Coordinate and the
// weather fields stay nil when the corresponding lookup was not performed or failed.
type CityWeather struct {
	City       string      `json:"city"`
	Coordinate *Coordinate `json:"coordinate,omitempty"`
	Current    *Reading    `json:"current,omitempty"`
	Forecast   *Forecast   `json:"forecast,omitempty"`
}

// Headline returns the reading shown in summaries: the current reading when present,
// otherwise the first forecast point.
func (c CityWeather) Headline() *Reading {
	if c.Current != nil {
		return c.Current
	}
	return c.Forecast.First()
}

// Float returns a pointer to v. Used when building readings by hand.
func Float(v float64) *float64 {
	return &v
}
