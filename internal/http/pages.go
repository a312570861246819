package http

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"

	"github.com/kjstillabower/route-weather-service/internal/classify"
	"github.com/kjstillabower/route-weather-service/internal/itinerary"
	"github.com/kjstillabower/route-weather-service/internal/observability"
	"github.com/kjstillabower/route-weather-service/internal/present"
)

//go:embed templates/*.html
var templateFS embed.FS

var pages = template.Must(template.New("pages").Funcs(template.FuncMap{
	"num": formatNumber,
}).ParseFS(templateFS, "templates/*.html"))

// formPage backs index.html: the itinerary form and, after a successful POST, its results.
type formPage struct {
	Start, End, Stops, Days string
	ShowMap                 bool
	Error                   string
	Result                  *resultView
}

type resultView struct {
	Forecast     bool
	Stops        []stopView
	Map          present.MapSpec
	DashboardURL string
}

type stopView struct {
	City        string
	Bad         bool
	Temperature *float64
	WindSpeed   *float64
	Clouds      *float64
	Condition   string
	BadReadings int
	Readings    int
}

// dashboardPage backs dashboard.html.
type dashboardPage struct {
	Start, End, Stops, Days string
	Cities                  []string
	Selected                string
	Indicators              map[present.Indicator]bool
	AllIndicators           []present.Indicator
	Message                 string
	Figure                  present.Figure
	Map                     present.MapSpec
}

func newResultView(res *itinerary.Result, form formPage) *resultView {
	v := &resultView{
		Forecast: res.Mode == itinerary.ModeForecast,
		Stops:    make([]stopView, 0, len(res.Stops)),
	}
	for _, s := range res.Stops {
		sv := stopView{City: s.City, Bad: s.Verdict.IsBad()}
		if r := s.Headline(); r != nil {
			sv.Temperature, sv.WindSpeed, sv.Clouds, sv.Condition = r.Temperature, r.WindSpeed, r.Clouds, r.Condition
		}
		sv.Readings = len(s.Verdicts)
		for _, verdict := range s.Verdicts {
			if verdict == classify.Bad {
				sv.BadReadings++
			}
		}
		v.Stops = append(v.Stops, sv)
	}
	if form.ShowMap {
		v.Map = present.ToMapLayers(res.CityWeather())
	}

	q := url.Values{}
	q.Set("start", form.Start)
	q.Set("end", form.End)
	if form.Stops != "" {
		q.Set("stops", form.Stops)
	}
	if form.Days != "" {
		q.Set("days", form.Days)
	}
	v.DashboardURL = "/dashboard?" + q.Encode()
	return v
}

// renderPage executes the named template into a buffer first so a template error
// never leaves a half-written page behind.
func renderPage(w http.ResponseWriter, r *http.Request, status int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := pages.ExecuteTemplate(&buf, name, data); err != nil {
		observability.LoggerFromContext(r.Context()).Error("render page", zap.String("template", name), zap.Error(err))
		writeError(w, r, http.StatusInternalServerError, "RENDER_FAILED", "Unable to render page")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func formatNumber(v *float64, unit string) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', 1, 64) + unit
}
