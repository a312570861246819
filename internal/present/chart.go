// Package present turns resolved weather into chart series and map layers.
// It does no I/O; the HTTP layer serializes what it returns.
package present

import (
	"strings"
	"time"

	"github.com/kjstillabower/route-weather-service/internal/models"
)

// Indicator selects one chart series.
type Indicator string

const (
	IndicatorTemperature   Indicator = "temperature"
	IndicatorWind          Indicator = "wind"
	IndicatorPrecipitation Indicator = "precipitation"
)

// AllIndicators returns every indicator in display order.
func AllIndicators() []Indicator {
	return []Indicator{IndicatorTemperature, IndicatorWind, IndicatorPrecipitation}
}

// ParseIndicators accepts indicator names, either as separate values or comma-joined.
// Unknown names are ignored, duplicates are dropped and first-seen order is kept.
func ParseIndicators(values []string) []Indicator {
	seen := make(map[Indicator]bool, 3)
	var out []Indicator
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			ind := Indicator(strings.ToLower(strings.TrimSpace(part)))
			switch ind {
			case IndicatorTemperature, IndicatorWind, IndicatorPrecipitation:
			default:
				continue
			}
			if !seen[ind] {
				seen[ind] = true
				out = append(out, ind)
			}
		}
	}
	return out
}

// SeriesKind is how a series is drawn.
type SeriesKind string

const (
	KindLine SeriesKind = "line"
	KindBar  SeriesKind = "bar"
)

// Series is one plotted indicator. Y[i] is nil where the reading lacked the value.
type Series struct {
	Indicator Indicator   `json:"indicator"`
	Name      string      `json:"name"`
	Kind      SeriesKind  `json:"kind"`
	Color     string      `json:"color"`
	X         []time.Time `json:"x"`
	Y         []*float64  `json:"y"`
}

// ChartSpec is the chart for one city's forecast.
type ChartSpec struct {
	City   string   `json:"city"`
	Title  string   `json:"title"`
	Series []Series `json:"series"`
}

// ToChartSeries builds one series per requested indicator, in the order requested.
// No indicators yields no series. Precipitation is rain plus snow per reading with
// missing values counted as zero, so unlike the classifier it sums the two.
func ToChartSeries(city string, f models.Forecast, indicators []Indicator) ChartSpec {
	spec := ChartSpec{City: city, Title: "Weather forecast for " + city}
	if len(indicators) == 0 {
		return spec
	}

	x := make([]time.Time, len(f.Readings))
	for i, r := range f.Readings {
		x[i] = r.Timestamp
	}

	for _, ind := range indicators {
		s := Series{Indicator: ind, X: x, Y: make([]*float64, len(f.Readings))}
		switch ind {
		case IndicatorTemperature:
			s.Name, s.Kind, s.Color = "Temperature (°C)", KindLine, "red"
			for i, r := range f.Readings {
				s.Y[i] = r.Temperature
			}
		case IndicatorWind:
			s.Name, s.Kind, s.Color = "Wind speed (m/s)", KindLine, "blue"
			for i, r := range f.Readings {
				s.Y[i] = r.WindSpeed
			}
		case IndicatorPrecipitation:
			s.Name, s.Kind, s.Color = "Precipitation (mm)", KindBar, "green"
			for i, r := range f.Readings {
				s.Y[i] = models.Float(valueOrZero(r.Rain) + valueOrZero(r.Snow))
			}
		default:
			continue
		}
		spec.Series = append(spec.Series, s)
	}
	return spec
}

// Figure is a Plotly figure ({data, layout}) ready for Plotly.newPlot.
type Figure struct {
	Data   []Trace `json:"data"`
	Layout Layout  `json:"layout"`
}

// Trace is a Plotly scatter or bar trace.
type Trace struct {
	Type   string      `json:"type"`
	Mode   string      `json:"mode,omitempty"`
	Name   string      `json:"name"`
	X      []string    `json:"x"`
	Y      []*float64  `json:"y"`
	Line   *TraceColor `json:"line,omitempty"`
	Marker *TraceColor `json:"marker,omitempty"`
}

// TraceColor is the line or marker style of a trace.
type TraceColor struct {
	Color string `json:"color"`
}

// Layout is the subset of Plotly layout the dashboard uses.
type Layout struct {
	Title        Text   `json:"title"`
	XAxis        Axis   `json:"xaxis"`
	YAxis        Axis   `json:"yaxis"`
	BarMode      string `json:"barmode"`
	Legend       Legend `json:"legend"`
	PaperBGColor string `json:"paper_bgcolor"`
	PlotBGColor  string `json:"plot_bgcolor"`
}

type Text struct {
	Text string `json:"text"`
}

type Axis struct {
	Title     Text   `json:"title"`
	GridColor string `json:"gridcolor,omitempty"`
}

type Legend struct {
	Title Text `json:"title"`
}

// plotly_white palette.
const (
	whiteBackground = "white"
	whiteGrid       = "#EBF0F8"
)

// Figure renders the series as lines+markers and grouped bars on a white template.
// Timestamps are formatted in UTC shifted by tzOffset seconds.
func (c ChartSpec) Figure(tzOffset int) Figure {
	loc := time.FixedZone("", tzOffset)
	fig := Figure{
		Data: make([]Trace, 0, len(c.Series)),
		Layout: Layout{
			Title:        Text{Text: c.Title},
			XAxis:        Axis{Title: Text{Text: "Date"}, GridColor: whiteGrid},
			YAxis:        Axis{Title: Text{Text: "Value"}, GridColor: whiteGrid},
			BarMode:      "group",
			Legend:       Legend{Title: Text{Text: "Indicators"}},
			PaperBGColor: whiteBackground,
			PlotBGColor:  whiteBackground,
		},
	}
	for _, s := range c.Series {
		t := Trace{Name: s.Name, X: make([]string, len(s.X)), Y: s.Y}
		for i, ts := range s.X {
			t.X[i] = ts.In(loc).Format("2006-01-02 15:04")
		}
		if s.Kind == KindBar {
			t.Type = "bar"
			t.Marker = &TraceColor{Color: s.Color}
		} else {
			t.Type = "scatter"
			t.Mode = "lines+markers"
			t.Line = &TraceColor{Color: s.Color}
		}
		fig.Data = append(fig.Data, t)
	}
	return fig
}

// MessageFigure is an empty figure whose title carries a message, used when there is
// nothing to plot.
func MessageFigure(msg string) Figure {
	return Figure{
		Data: []Trace{},
		Layout: Layout{
			Title:        Text{Text: msg},
			BarMode:      "group",
			PaperBGColor: whiteBackground,
			PlotBGColor:  whiteBackground,
		},
	}
}

func valueOrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
