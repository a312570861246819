package present

import (
	"fmt"
	"html"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/geojson"

	"github.com/kjstillabower/route-weather-service/internal/models"
)

// DefaultZoom is the initial zoom level of the route map.
const DefaultZoom = 6

// Route line style.
const (
	RouteColor   = "blue"
	RouteWeight  = 4
	RouteOpacity = 0.8
)

// Marker is one city pin on the map.
type Marker struct {
	City        string            `json:"city"`
	Coordinate  models.Coordinate `json:"coordinate"`
	Temperature *float64          `json:"temperature,omitempty"`
	Condition   string            `json:"condition,omitempty"`
	Popup       string            `json:"popup"` // HTML, already escaped
}

// MapSpec is everything the map view draws. Center is nil when no city resolved.
type MapSpec struct {
	Center     *models.Coordinate `json:"center,omitempty"`
	Zoom       int                `json:"zoom"`
	Markers    []Marker           `json:"markers"`
	Route      orb.LineString     `json:"route"`
	DistanceKm float64            `json:"distanceKm"`
}

// Empty reports whether there is nothing to draw.
func (m MapSpec) Empty() bool {
	return m.Center == nil
}

// ToMapLayers builds markers and the route line from stops in itinerary order.
// The route passes through every stop with a coordinate; a marker additionally needs a
// reading. Stops without a coordinate are skipped.
func ToMapLayers(stops []models.CityWeather) MapSpec {
	spec := MapSpec{Zoom: DefaultZoom, Markers: []Marker{}, Route: orb.LineString{}}
	for _, s := range stops {
		if s.Coordinate == nil {
			continue
		}
		c := *s.Coordinate
		if spec.Center == nil {
			spec.Center = &c
		}
		spec.Route = append(spec.Route, orb.Point{c.Lon, c.Lat})

		r := s.Headline()
		if r == nil {
			continue
		}
		spec.Markers = append(spec.Markers, Marker{
			City:        s.City,
			Coordinate:  c,
			Temperature: r.Temperature,
			Condition:   r.Condition,
			Popup:       popup(s.City, r),
		})
	}
	spec.DistanceKm = routeLengthKm(spec.Route)
	return spec
}

// FeatureCollection renders the map as GeoJSON: one Point per marker and, when at
// least two stops resolved, a LineString for the route.
func (m MapSpec) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, mk := range m.Markers {
		f := geojson.NewFeature(orb.Point{mk.Coordinate.Lon, mk.Coordinate.Lat})
		f.Properties["kind"] = "city"
		f.Properties["city"] = mk.City
		f.Properties["popup"] = mk.Popup
		if mk.Temperature != nil {
			f.Properties["temperature"] = *mk.Temperature
		}
		if mk.Condition != "" {
			f.Properties["condition"] = mk.Condition
		}
		fc.Append(f)
	}
	if len(m.Route) >= 2 {
		f := geojson.NewFeature(m.Route)
		f.Properties["kind"] = "route"
		f.Properties["name"] = "Route"
		f.Properties["stroke"] = RouteColor
		f.Properties["stroke-width"] = RouteWeight
		f.Properties["stroke-opacity"] = RouteOpacity
		f.Properties["distanceKm"] = m.DistanceKm
		fc.Append(f)
	}
	return fc
}

func popup(city string, r *models.Reading) string {
	temp := "n/a"
	if r.Temperature != nil {
		temp = fmt.Sprintf("%.1f°C", *r.Temperature)
	}
	cond := r.Condition
	if cond == "" {
		cond = "n/a"
	}
	return fmt.Sprintf("<b>%s</b><br>Temperature: %s<br>Weather: %s",
		html.EscapeString(city), html.EscapeString(temp), html.EscapeString(cond))
}

// routeLengthKm is the geodesic length of the route through its points.
func routeLengthKm(ls orb.LineString) float64 {
	var meters float64
	for i := 1; i < len(ls); i++ {
		meters += geo.Distance(ls[i-1], ls[i])
	}
	return meters / 1000
}
