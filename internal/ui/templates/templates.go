// Package templates renders the dashboard page and the fragments patched
// into it over SSE. Components satisfy templ.Component so handlers can
// render them the same way regardless of how they are produced.
package templates

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"math"

	"github.com/a-h/templ"
	"github.com/dustin/go-humanize"

	"ecoprint-dashboard/internal/models"
)

//go:embed html/*.html
var files embed.FS

var pages = template.Must(template.New("").Funcs(template.FuncMap{
	"comma":   commaf,
	"fixed":   fixed,
	"percent": percent,
	"count":   func(n int) string { return humanize.Comma(int64(n)) },
}).ParseFS(files, "html/*.html"))

func commaf(v float64) string {
	return humanize.Commaf(math.Round(v))
}

func fixed(v float64) string {
	return humanize.CommafWithDigits(v, 2)
}

// percent renders part as a share of total, or 0% when total is zero.
func percent(part, total float64) string {
	if total <= 0 {
		return "0%"
	}
	return fmt.Sprintf("%.1f%%", part/total*100)
}

func component(name string, data any) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		return pages.ExecuteTemplate(w, name, data)
	})
}

// Page is the data the full dashboard is rendered from.
type Page struct {
	Options   models.FilterOptions
	Dashboard models.Dashboard
	Insights  bool
	Err       string
}

// Signals is the initial datastar signal set as JSON.
func (p Page) Signals() string {
	dept, year := p.Dashboard.Filter.Label()
	data, err := json.Marshal(ChartSignals(p.Dashboard, map[string]any{
		"dept":           dept,
		"year":           year,
		"loading":        false,
		"insightLoading": false,
	}))
	if err != nil {
		return "{}"
	}
	return string(data)
}

// ChartSignals adds the chart series of d to extra and returns it.
func ChartSignals(d models.Dashboard, extra map[string]any) map[string]any {
	if extra == nil {
		extra = make(map[string]any, 3)
	}
	extra["deptData"] = nonNil(d.DepartmentUsage)
	extra["printModeData"] = nonNil(d.PrintModeSplit)
	extra["trendData"] = nonNil(d.YearlyTrend)
	return extra
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

func (p Page) FilterBarData() any {
	return struct {
		Options models.FilterOptions
		Filter  models.Filter
	}{p.Options, p.Dashboard.Filter}
}

func (p Page) TableData() any {
	return struct {
		Usage []models.ChartDataPoint
		Total float64
	}{p.Dashboard.DepartmentUsage, p.Dashboard.Stats.TotalSheetsUsed}
}

func (p Page) InsightData() any {
	return struct {
		Text    string
		Loading bool
	}{}
}

// Dashboard renders the full HTML document.
func Dashboard(p Page) templ.Component {
	return component("dashboard", p)
}

// Content renders the replaceable body of the dashboard: the stat cards and
// department table, or the error state.
func Content(p Page) templ.Component {
	return component("content", p)
}

func FilterBar(opts models.FilterOptions, f models.Filter) templ.Component {
	return component("filter-bar", struct {
		Options models.FilterOptions
		Filter  models.Filter
	}{opts, f})
}

// InsightPanel shows generated text, or a placeholder while loading.
func InsightPanel(text string, loading bool) templ.Component {
	return component("insight-panel", struct {
		Text    string
		Loading bool
	}{text, loading})
}

// RenderString renders c into a string for SSE element patches.
func RenderString(ctx context.Context, c templ.Component) (string, error) {
	var buf bytes.Buffer
	if err := c.Render(ctx, &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}
