package handlers

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ecoprint-dashboard/internal/errors"
	"ecoprint-dashboard/internal/models"
	"ecoprint-dashboard/internal/observability"
	"ecoprint-dashboard/internal/services"
)

const (
	cacheControl = "private, max-age=30"
	version      = "1.0.0"

	csvContentType  = "text/csv; charset=utf-8"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Generator produces insight text. It never fails; problems come back as
// fallback messages.
type Generator interface {
	Generate(ctx context.Context, req services.InsightRequest) string
	Configured() bool
}

type APIHandlers struct {
	dataset       *services.Dataset
	insight       Generator
	insightBudget time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

func NewAPIHandlers(dataset *services.Dataset, insight Generator, insightBudget time.Duration, logger *slog.Logger) *APIHandlers {
	return &APIHandlers{
		dataset:       dataset,
		insight:       insight,
		insightBudget: insightBudget,
		logger:        logger,
		now:           time.Now,
	}
}

// filterFromQuery reads the dept and year selectors from the query string.
func filterFromQuery(r *http.Request) models.Filter {
	q := r.URL.Query()
	return models.Filter{
		Department: strings.TrimSpace(q.Get("dept")),
		Year:       strings.TrimSpace(q.Get("year")),
	}
}

func unavailable(err error) *errors.AppError {
	msg := "Dataset is not available"
	if stderrors.Is(err, services.ErrNotLoaded) {
		msg = "Dataset has not been loaded yet"
	}
	return errors.ServiceUnavailableWrap(err, msg).WithDetails("Retry after refreshing the data source")
}

func (h *APIHandlers) fail(w http.ResponseWriter, r *http.Request, err error) {
	errors.WriteError(w, h.logger, err, observability.GetRequestID(r.Context()))
}

// filter reads and validates the selectors, answering 400 when the year
// is malformed.
func (h *APIHandlers) filter(w http.ResponseWriter, r *http.Request) (models.Filter, bool) {
	f := filterFromQuery(r)
	if err := f.Validate(); err != nil {
		h.fail(w, r, errors.BadRequest("Invalid filter").WithDetails("year must be All or a four-digit year"))
		return models.Filter{}, false
	}
	return f, true
}

func (h *APIHandlers) dashboard(w http.ResponseWriter, r *http.Request) (models.Dashboard, bool) {
	f, ok := h.filter(w, r)
	if !ok {
		return models.Dashboard{}, false
	}
	d, err := h.dataset.Dashboard(f)
	if err != nil {
		h.fail(w, r, unavailable(err))
		return models.Dashboard{}, false
	}
	return d, true
}

func (h *APIHandlers) records(w http.ResponseWriter, r *http.Request) ([]models.PrintRecord, bool) {
	f, ok := h.filter(w, r)
	if !ok {
		return nil, false
	}
	snap := h.dataset.Snapshot()
	if snap.Err != nil {
		h.fail(w, r, unavailable(snap.Err))
		return nil, false
	}
	return services.FilterRecords(snap.Records, f), true
}

func (h *APIHandlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	if h.dataset.Snapshot().Err != nil {
		status = "degraded"
	}

	errors.WriteSuccess(w, map[string]string{
		"status":    status,
		"timestamp": h.now().UTC().Format(time.RFC3339),
		"version":   version,
	})
}

func (h *APIHandlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	errors.WriteSuccess(w, h.dataset.Stats())
}

func (h *APIHandlers) HandleFilters(w http.ResponseWriter, r *http.Request) {
	snap := h.dataset.Snapshot()
	if snap.Err != nil {
		h.fail(w, r, unavailable(snap.Err))
		return
	}
	errors.WriteSuccessWithHeaders(w, services.Options(snap.Records), map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandleRecords(w http.ResponseWriter, r *http.Request) {
	records, ok := h.records(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, records, map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandleDashboardStats(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dashboard(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, d.Stats, map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandleDepartmentUsage(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dashboard(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, d.DepartmentUsage, map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandlePrintMode(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dashboard(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, d.PrintModeSplit, map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandleYearlyTrend(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dashboard(w, r)
	if !ok {
		return
	}
	errors.WriteSuccessWithHeaders(w, d.YearlyTrend, map[string]string{
		"Cache-Control": cacheControl,
	})
}

func (h *APIHandlers) HandleExportCSV(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "csv", csvContentType, services.WriteCSV)
}

func (h *APIHandlers) HandleExportXLSX(w http.ResponseWriter, r *http.Request) {
	h.export(w, r, "xlsx", xlsxContentType, services.WriteXLSX)
}

// export renders the whole file before writing so a failure can still be
// reported as a JSON error.
func (h *APIHandlers) export(w http.ResponseWriter, r *http.Request, ext, contentType string,
	write func(w io.Writer, records []models.PrintRecord) error) {
	records, ok := h.records(w, r)
	if !ok {
		return
	}
	if len(records) == 0 {
		h.fail(w, r, errors.NotFound("No records match the current filter"))
		return
	}

	var buf bytes.Buffer
	if err := write(&buf, records); err != nil {
		h.fail(w, r, errors.InternalWrap(err, "Failed to build export"))
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, services.ExportFilename(h.now(), ext)))
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("export write failed", "error", err, "request_id", observability.GetRequestID(r.Context()))
		return
	}

	h.logger.Info("export served",
		"format", ext,
		"records", len(records),
		"bytes", buf.Len(),
		"request_id", observability.GetRequestID(r.Context()),
	)
}

func (h *APIHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := h.dataset.Refresh(r.Context()); err != nil {
		h.fail(w, r, errors.ServiceUnavailableWrap(err, "Failed to reload the data source"))
		return
	}
	snap := h.dataset.Snapshot()
	errors.WriteSuccess(w, map[string]any{
		"record_count": len(snap.Records),
		"raw_rows":     snap.RawRows,
		"loaded_at":    snap.LoadedAt,
	})
}

func (h *APIHandlers) HandleInsight(w http.ResponseWriter, r *http.Request) {
	d, ok := h.dashboard(w, r)
	if !ok {
		return
	}

	text, ok := generateInsight(r.Context(), h.insight, h.insightBudget, d)
	if !ok {
		h.logger.Info("insight discarded, client went away",
			"request_id", observability.GetRequestID(r.Context()))
		return
	}

	errors.WriteSuccess(w, map[string]any{
		"insight":    text,
		"configured": h.insight.Configured(),
		"filter":     d.Filter,
	})
}

// generateInsight runs the insight call detached from request cancellation,
// bounded by budget. ok is false when the request finished first, in which
// case the text is stale and must not be shown.
func generateInsight(ctx context.Context, gen Generator, budget time.Duration, d models.Dashboard) (string, bool) {
	callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	text := gen.Generate(callCtx, services.NewInsightRequest(d))
	return text, ctx.Err() == nil
}
