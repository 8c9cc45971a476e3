package server

import (
	"bytes"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/mirrorlake/geodesk/internal/geo"
	"github.com/mirrorlake/geodesk/internal/httputil"
)

// schoolChart renders a bar chart (HTML) of feature counts per school
// for one file. This is a debugging-only endpoint to eyeball a file's
// composition without the map UI.
// Query params:
//   - file (required): the polygon file name
func (s *Server) schoolChart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	file := r.URL.Query().Get("file")
	if file == "" {
		httputil.BadRequest(w, "file is required")
		return
	}

	fc, err := s.store.LoadPolygons(file)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	counts := make(map[string]int)
	for _, f := range fc.Features {
		name, _ := f.Properties[geo.SchoolNameProperty].(string)
		if name == "" {
			name = "(unnamed)"
		}
		counts[name]++
	}

	schools := make([]string, 0, len(counts))
	for name := range counts {
		schools = append(schools, name)
	}
	sort.Strings(schools)

	data := make([]opts.BarData, 0, len(schools))
	for _, name := range schools {
		data = append(data, opts.BarData{Value: counts[name]})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Geodesk School Counts", Width: "900px", Height: "500px"}),
		charts.WithTitleOpts(opts.Title{Title: "Features per school", Subtitle: fmt.Sprintf("file=%s features=%d schools=%d", file, len(fc.Features), len(schools))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(schools)
	bar.AddSeries("features", data)

	var buf bytes.Buffer
	if err := bar.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
