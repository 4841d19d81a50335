package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/a-h/templ"
	"github.com/starfederation/datastar-go/datastar"

	"ecoprint-dashboard/internal/models"
	"ecoprint-dashboard/internal/observability"
	"ecoprint-dashboard/internal/services"
	"ecoprint-dashboard/internal/ui/templates"
)

type SSEHandlers struct {
	dataset       *services.Dataset
	insight       Generator
	insightBudget time.Duration
	logger        *slog.Logger
}

func NewSSEHandlers(dataset *services.Dataset, insight Generator, insightBudget time.Duration, logger *slog.Logger) *SSEHandlers {
	return &SSEHandlers{
		dataset:       dataset,
		insight:       insight,
		insightBudget: insightBudget,
		logger:        logger,
	}
}

type filterSignals struct {
	Dept *string `json:"dept"`
	Year *string `json:"year"`
}

// readFilter starts from the query string and lets datastar signals, when
// sent, override each selector. A malformed year falls back to all years.
func (h *SSEHandlers) readFilter(r *http.Request) models.Filter {
	f := h.applySignals(r, filterFromQuery(r))
	if err := f.Validate(); err != nil {
		h.logger.Warn("ignoring year selector",
			"error", err,
			"request_id", observability.GetRequestID(r.Context()),
		)
		f.Year = ""
	}
	return f
}

func (h *SSEHandlers) applySignals(r *http.Request, f models.Filter) models.Filter {
	if r.URL.Query().Get("datastar") == "" {
		return f
	}

	var signals filterSignals
	if err := datastar.ReadSignals(r, &signals); err != nil {
		h.logger.Warn("ignoring malformed signals",
			"error", err,
			"request_id", observability.GetRequestID(r.Context()),
		)
		return f
	}
	if signals.Dept != nil {
		f.Department = strings.TrimSpace(*signals.Dept)
	}
	if signals.Year != nil {
		f.Year = strings.TrimSpace(*signals.Year)
	}
	return f
}

// page builds the view model for f. A dataset error becomes the page's
// error state rather than a failure.
func (h *SSEHandlers) page(f models.Filter) templates.Page {
	return BuildPage(h.dataset, h.insight.Configured(), f)
}

// BuildPage assembles everything the dashboard template needs. A malformed
// year selector falls back to all years.
func BuildPage(dataset *services.Dataset, insights bool, f models.Filter) templates.Page {
	if f.Validate() != nil {
		f.Year = ""
	}
	snap := dataset.Snapshot()
	p := templates.Page{Insights: insights}
	if snap.Err != nil {
		p.Err = "The print log could not be loaded. Check the data source and retry."
		p.Dashboard = services.BuildDashboard(nil, f)
		p.Options = models.FilterOptions{Departments: []string{}, Years: []string{}}
		return p
	}
	p.Options = services.Options(snap.Records)
	p.Dashboard = services.BuildDashboard(snap.Records, f)
	return p
}

// patchDashboard sends the filter bar, content section and chart signals.
func (h *SSEHandlers) patchDashboard(ctx context.Context, sse *datastar.ServerSentEventGenerator, p templates.Page) error {
	for _, c := range []templ.Component{
		templates.FilterBar(p.Options, p.Dashboard.Filter),
		templates.Content(p),
	} {
		html, err := templates.RenderString(ctx, c)
		if err != nil {
			return err
		}
		if err := sse.PatchElements(html); err != nil {
			return err
		}
	}

	dept, year := p.Dashboard.Filter.Label()
	return sse.MarshalAndPatchSignals(templates.ChartSignals(p.Dashboard, map[string]any{
		"dept":    dept,
		"year":    year,
		"loading": false,
	}))
}

func (h *SSEHandlers) HandleDashboard(w http.ResponseWriter, r *http.Request) {
	f := h.readFilter(r)
	sse := datastar.NewSSE(w, r)

	if err := h.patchDashboard(r.Context(), sse, h.page(f)); err != nil {
		h.logger.Error("patch dashboard", "error", err, "request_id", observability.GetRequestID(r.Context()))
	}
}

// HandleRefresh reloads the source and then redraws the dashboard, which
// shows the error state when the reload failed.
func (h *SSEHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	f := h.readFilter(r)
	sse := datastar.NewSSE(w, r)

	if err := sse.MarshalAndPatchSignals(map[string]any{"loading": true}); err != nil {
		h.logger.Warn("patch loading signal", "error", err)
	}

	if err := h.dataset.Refresh(r.Context()); err != nil {
		h.logger.Warn("refresh from dashboard failed",
			"error", err,
			"request_id", observability.GetRequestID(r.Context()),
		)
	}

	if err := h.patchDashboard(r.Context(), sse, h.page(f)); err != nil {
		h.logger.Error("patch dashboard", "error", err, "request_id", observability.GetRequestID(r.Context()))
	}
}

func (h *SSEHandlers) HandleInsight(w http.ResponseWriter, r *http.Request) {
	f := h.readFilter(r)
	requestID := observability.GetRequestID(r.Context())
	sse := datastar.NewSSE(w, r)

	d, err := h.dataset.Dashboard(f)
	if err != nil {
		h.patchInsight(r.Context(), sse, "The print log is not available, so no insight can be generated.")
		return
	}

	if html, err := templates.RenderString(r.Context(), templates.InsightPanel("", true)); err == nil {
		if err := sse.PatchElements(html); err != nil {
			h.logger.Warn("patch insight placeholder", "error", err, "request_id", requestID)
		}
	}

	text, ok := generateInsight(r.Context(), h.insight, h.insightBudget, d)
	if !ok {
		h.logger.Info("insight discarded, client went away", "request_id", requestID)
		return
	}
	h.patchInsight(r.Context(), sse, text)
}

func (h *SSEHandlers) patchInsight(ctx context.Context, sse *datastar.ServerSentEventGenerator, text string) {
	html, err := templates.RenderString(ctx, templates.InsightPanel(text, false))
	if err != nil {
		h.logger.Error("render insight panel", "error", err)
		return
	}
	if err := sse.PatchElements(html); err != nil {
		h.logger.Warn("patch insight panel", "error", err)
		return
	}
	if err := sse.MarshalAndPatchSignals(map[string]any{"insightLoading": false}); err != nil {
		h.logger.Warn("patch insight signal", "error", err)
	}
}
