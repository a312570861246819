package client

import (
	"time"

	"github.com/kjstillabower/route-weather-service/internal/models"
)

const forecastTimeLayout = "2006-01-02 15:04:05"

type geocodeMatch struct {
	Name    string   `json:"name"`
	Lat     *float64 `json:"lat"`
	Lon     *float64 `json:"lon"`
	Country string   `json:"country"`
}

type precipitation struct {
	OneHour    *float64 `json:"1h"`
	ThreeHours *float64 `json:"3h"`
}

// owmReading is the block shared by the current-weather payload and each forecast list entry.
type owmReading struct {
	Dt    int64  `json:"dt"`
	DtTxt string `json:"dt_txt"`
	Main  *struct {
		Temp *float64 `json:"temp"`
	} `json:"main"`
	Wind *struct {
		Speed *float64 `json:"speed"`
	} `json:"wind"`
	Clouds *struct {
		All *float64 `json:"all"`
	} `json:"clouds"`
	Rain    *precipitation `json:"rain"`
	Snow    *precipitation `json:"snow"`
	Weather []struct {
		Main        string `json:"main"`
		Description string `json:"description"`
	} `json:"weather"`
}

type currentResponse struct {
	owmReading
	Name string `json:"name"`
}

type forecastResponse struct {
	List []owmReading `json:"list"`
	City struct {
		Name     string `json:"name"`
		Timezone int    `json:"timezone"`
	} `json:"city"`
}

// toCurrentReading prefers 1h precipitation totals and falls back to 3h.
func (r currentResponse) toCurrentReading(now time.Time) models.Reading {
	out := r.base()
	rain, rainWindow := r.Rain.pick()
	snow, snowWindow := r.Snow.pick()
	out.Rain, out.Snow = rain, snow
	out.PrecipWindow = max(rainWindow, snowWindow)

	out.Timestamp = now.UTC()
	if r.Dt > 0 {
		out.Timestamp = time.Unix(r.Dt, 0).UTC()
	}
	return out
}

func (r owmReading) toForecastReading() models.Reading {
	out := r.base()
	if r.Rain != nil {
		out.Rain = r.Rain.ThreeHours
	}
	if r.Snow != nil {
		out.Snow = r.Snow.ThreeHours
	}
	if out.Rain != nil || out.Snow != nil {
		out.PrecipWindow = 3 * time.Hour
	}

	if ts, err := time.ParseInLocation(forecastTimeLayout, r.DtTxt, time.UTC); err == nil {
		out.Timestamp = ts
	} else if r.Dt > 0 {
		out.Timestamp = time.Unix(r.Dt, 0).UTC()
	}
	return out
}

func (r owmReading) base() models.Reading {
	var out models.Reading
	if r.Main != nil {
		out.Temperature = r.Main.Temp
	}
	if r.Wind != nil {
		out.WindSpeed = r.Wind.Speed
	}
	if r.Clouds != nil {
		out.Clouds = r.Clouds.All
	}
	if len(r.Weather) > 0 {
		out.Condition = r.Weather[0].Description
		if out.Condition == "" {
			out.Condition = r.Weather[0].Main
		}
	}
	return out
}

func (p *precipitation) pick() (*float64, time.Duration) {
	switch {
	case p == nil:
		return nil, 0
	case p.OneHour != nil:
		return p.OneHour, time.Hour
	case p.ThreeHours != nil:
		return p.ThreeHours, 3 * time.Hour
	}
	return nil, 0
}
