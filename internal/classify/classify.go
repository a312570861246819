// Package classify decides whether a weather reading is good or bad for travel.
package classify

import "github.com/kjstillabower/route-weather-service/internal/models"

// Verdict is the GOOD/BAD outcome for one reading.
type Verdict string

const (
	Good Verdict = "good"
	Bad  Verdict = "bad"
)

// Thresholds. A reading is bad when any single one is crossed.
const (
	MinTemperature   = 0.0  // °C, bad below
	MaxTemperature   = 35.0 // °C, bad above
	MaxWindSpeed     = 10.0 // m/s
	MaxPrecipitation = 2.0  // mm over the reading's window
	MaxCloudCover    = 80.0 // %
)

// IsBad reports whether v is Bad.
func (v Verdict) IsBad() bool {
	return v == Bad
}

// Classify returns Bad if the reading crosses any threshold.
//
// Temperature, wind speed and cloud cover are required; when any of them is missing
// the reading is reported Good rather than rejected (fail-open). Rain and snow are
// optional and count as zero. Precipitation compares the larger of rain and snow,
// not their sum.
func Classify(r models.Reading) Verdict {
	if r.Temperature == nil || r.WindSpeed == nil || r.Clouds == nil {
		return Good
	}
	temp := *r.Temperature
	switch {
	case temp < MinTemperature, temp > MaxTemperature:
		return Bad
	case *r.WindSpeed > MaxWindSpeed:
		return Bad
	case precipitation(r) > MaxPrecipitation:
		return Bad
	case *r.Clouds > MaxCloudCover:
		return Bad
	}
	return Good
}

// Forecast classifies every reading of f, in order.
func Forecast(f models.Forecast) []Verdict {
	out := make([]Verdict, len(f.Readings))
	for i, r := range f.Readings {
		out[i] = Classify(r)
	}
	return out
}

func precipitation(r models.Reading) float64 {
	var rain, snow float64
	if r.Rain != nil {
		rain = *r.Rain
	}
	if r.Snow != nil {
		snow = *r.Snow
	}
	return max(rain, snow)
}
