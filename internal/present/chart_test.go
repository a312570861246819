package present

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/kjstillabower/route-weather-service/internal/models"
)

func sampleForecast() models.Forecast {
	t0 := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return models.Forecast{
		City: "Paris",
		Readings: []models.Reading{
			{Timestamp: t0, Temperature: models.Float(10), WindSpeed: models.Float(3), Rain: models.Float(1.5), Snow: models.Float(0.5)},
			{Timestamp: t0.Add(3 * time.Hour), Temperature: models.Float(12), WindSpeed: nil, Rain: models.Float(0.25)},
			{Timestamp: t0.Add(6 * time.Hour), Temperature: nil, WindSpeed: models.Float(6)},
		},
	}
}

func TestParseIndicators(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []Indicator
	}{
		{name: "none", in: nil, want: nil},
		{name: "separate values", in: []string{"wind", "temperature"}, want: []Indicator{IndicatorWind, IndicatorTemperature}},
		{name: "comma joined", in: []string{"temperature, precipitation"}, want: []Indicator{IndicatorTemperature, IndicatorPrecipitation}},
		{name: "unknown ignored", in: []string{"humidity", "WIND"}, want: []Indicator{IndicatorWind}},
		{name: "duplicates dropped", in: []string{"wind", "wind,wind"}, want: []Indicator{IndicatorWind}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseIndicators(tt.in); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseIndicators(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestToChartSeries_NoIndicators(t *testing.T) {
	spec := ToChartSeries("Paris", sampleForecast(), nil)
	if len(spec.Series) != 0 {
		t.Errorf("len(Series) = %d, want 0", len(spec.Series))
	}
	if spec.Title != "Weather forecast for Paris" {
		t.Errorf("Title = %q", spec.Title)
	}
}

func TestToChartSeries_AllIndicators(t *testing.T) {
	f := sampleForecast()
	spec := ToChartSeries("Paris", f, AllIndicators())
	if len(spec.Series) != 3 {
		t.Fatalf("len(Series) = %d, want 3", len(spec.Series))
	}

	want := []struct {
		ind   Indicator
		kind  SeriesKind
		color string
	}{
		{IndicatorTemperature, KindLine, "red"},
		{IndicatorWind, KindLine, "blue"},
		{IndicatorPrecipitation, KindBar, "green"},
	}
	for i, w := range want {
		s := spec.Series[i]
		if s.Indicator != w.ind || s.Kind != w.kind || s.Color != w.color {
			t.Errorf("Series[%d] = %s/%s/%s, want %s/%s/%s", i, s.Indicator, s.Kind, s.Color, w.ind, w.kind, w.color)
		}
		if len(s.X) != len(f.Readings) || len(s.Y) != len(f.Readings) {
			t.Errorf("Series[%d] has %d/%d points, want %d", i, len(s.X), len(s.Y), len(f.Readings))
		}
		if !s.X[1].Equal(f.Readings[1].Timestamp) {
			t.Errorf("Series[%d].X[1] = %v, want %v", i, s.X[1], f.Readings[1].Timestamp)
		}
	}

	temp := spec.Series[0]
	if temp.Y[2] != nil {
		t.Errorf("temperature Y[2] = %v, want nil gap", *temp.Y[2])
	}
	wind := spec.Series[1]
	if wind.Y[1] != nil || wind.Y[2] == nil || *wind.Y[2] != 6 {
		t.Errorf("wind Y = %v, want [3 nil 6]", wind.Y)
	}
}

// TestToChartSeries_PrecipitationSumsRainAndSnow verifies the chart sums rain and snow
// with missing values as zero.
func TestToChartSeries_PrecipitationSumsRainAndSnow(t *testing.T) {
	spec := ToChartSeries("Paris", sampleForecast(), []Indicator{IndicatorPrecipitation})
	if len(spec.Series) != 1 {
		t.Fatalf("len(Series) = %d, want 1", len(spec.Series))
	}
	want := []float64{2, 0.25, 0}
	for i, y := range spec.Series[0].Y {
		if y == nil || *y != want[i] {
			t.Errorf("precipitation Y[%d] = %v, want %v", i, y, want[i])
		}
	}
}

func TestChartSpec_Figure(t *testing.T) {
	spec := ToChartSeries("Paris", sampleForecast(), []Indicator{IndicatorPrecipitation, IndicatorTemperature})
	fig := spec.Figure(3600)

	if len(fig.Data) != 2 {
		t.Fatalf("len(Data) = %d, want 2", len(fig.Data))
	}
	bar, line := fig.Data[0], fig.Data[1]
	if bar.Type != "bar" || bar.Marker == nil || bar.Marker.Color != "green" || bar.Mode != "" {
		t.Errorf("bar trace = %+v", bar)
	}
	if line.Type != "scatter" || line.Mode != "lines+markers" || line.Line == nil || line.Line.Color != "red" {
		t.Errorf("line trace = %+v", line)
	}
	if line.X[0] != "2024-03-01 13:00" {
		t.Errorf("X[0] = %q, want local time 2024-03-01 13:00", line.X[0])
	}
	if fig.Layout.BarMode != "group" || fig.Layout.PlotBGColor != "white" {
		t.Errorf("layout = %+v", fig.Layout)
	}

	b, err := json.Marshal(fig)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	body := string(b)
	for _, want := range []string{`"barmode":"group"`, `"title":{"text":"Weather forecast for Paris"}`, `null`} {
		if !strings.Contains(body, want) {
			t.Errorf("figure JSON missing %s: %s", want, body)
		}
	}
}

func TestMessageFigure(t *testing.T) {
	fig := MessageFigure("Could not fetch data")
	if fig.Layout.Title.Text != "Could not fetch data" || len(fig.Data) != 0 {
		t.Errorf("MessageFigure() = %+v", fig)
	}
	b, _ := json.Marshal(fig)
	if !strings.Contains(string(b), `"data":[]`) {
		t.Errorf("data should serialize as an empty array: %s", b)
	}
}
