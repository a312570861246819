package itinerary

import "strings"

// ParseCities returns the itinerary [start, stops..., end]. stops is comma-separated;
// each entry is trimmed and empty entries are dropped. Duplicates are kept.
// Empty start or end is omitted, which is what the lenient dashboard wants; Build
// rejects that case before calling here.
func ParseCities(start, end, stops string) []string {
	cities := make([]string, 0, 2)
	if s := strings.TrimSpace(start); s != "" {
		cities = append(cities, s)
	}
	cities = append(cities, SplitStops(stops)...)
	if e := strings.TrimSpace(end); e != "" {
		cities = append(cities, e)
	}
	return cities
}

// SplitStops splits a comma-separated list of intermediate cities.
func SplitStops(stops string) []string {
	var out []string
	for _, part := range strings.Split(stops, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
