package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"ecoprint-dashboard/internal/models"
	"ecoprint-dashboard/internal/services"
)

func newTestAPIHandlers(dataset *services.Dataset) (*APIHandlers, *stubGenerator) {
	gen := &stubGenerator{text: "Print double-sided.", configured: true}
	h := NewAPIHandlers(dataset, gen, time.Second, testLogger())
	h.now = func() time.Time { return time.Date(2024, 3, 14, 12, 0, 0, 0, time.UTC) }
	return h, gen
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		RequestID string `json:"request_id"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	if err := json.NewDecoder(w.Body).Decode(&env); err != nil {
		t.Fatalf("failed to decode JSON: %v", err)
	}
	return env
}

func TestAPIHandlers_DataEndpoints(t *testing.T) {
	h, _ := newTestAPIHandlers(createTestDataset())

	tests := []struct {
		name    string
		path    string
		handler http.HandlerFunc
	}{
		{"filters", "/api/filters", h.HandleFilters},
		{"records", "/api/records", h.HandleRecords},
		{"stats", "/api/stats", h.HandleDashboardStats},
		{"department usage", "/api/department-usage", h.HandleDepartmentUsage},
		{"print mode", "/api/print-mode", h.HandlePrintMode},
		{"yearly trend", "/api/yearly-trend", h.HandleYearlyTrend},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			w := httptest.NewRecorder()

			tt.handler(w, req)

			if w.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			if ct := w.Header().Get("Content-Type"); ct != "application/json" {
				t.Errorf("expected content-type 'application/json', got %q", ct)
			}
			if cc := w.Header().Get("Cache-Control"); cc != cacheControl {
				t.Errorf("expected cache-control %q, got %q", cacheControl, cc)
			}

			env := decodeEnvelope(t, w)
			if !env.Success || len(env.Data) == 0 {
				t.Errorf("expected success with data, got %+v", env)
			}
		})
	}
}

func TestAPIHandlers_HandleDashboardStats_Filtered(t *testing.T) {
	h, _ := newTestAPIHandlers(createTestDataset())

	tests := []struct {
		query     string
		wantTotal float64
		wantTop   string
	}{
		{"", 90, "HR"},
		{"?dept=All&year=All", 90, "HR"},
		{"?dept=IT", 20, "IT"},
		{"?year=2023", 10, "IT"},
		{"?dept=HR&year=2023", 0, services.NoDepartment},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/stats"+tt.query, nil)
			w := httptest.NewRecorder()
			h.HandleDashboardStats(w, req)

			var stats models.DashboardStats
			if err := json.Unmarshal(decodeEnvelope(t, w).Data, &stats); err != nil {
				t.Fatal(err)
			}
			if stats.TotalSheetsUsed != tt.wantTotal || stats.MostActiveDepartment != tt.wantTop {
				t.Errorf("stats = %+v, want total %v top %q", stats, tt.wantTotal, tt.wantTop)
			}
		})
	}
}

func TestAPIHandlers_HandleFilters(t *testing.T) {
	h, _ := newTestAPIHandlers(createTestDataset())

	w := httptest.NewRecorder()
	h.HandleFilters(w, httptest.NewRequest(http.MethodGet, "/api/filters", nil))

	var opts models.FilterOptions
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &opts); err != nil {
		t.Fatal(err)
	}
	if strings.Join(opts.Departments, ",") != "HR,IT" || strings.Join(opts.Years, ",") != "2024,2023" {
		t.Errorf("options = %+v", opts)
	}
}

func TestAPIHandlers_Unavailable(t *testing.T) {
	h, _ := newTestAPIHandlers(services.NewDataset(nil, testLogger()))

	handlers := map[string]http.HandlerFunc{
		"/api/filters":          h.HandleFilters,
		"/api/records":          h.HandleRecords,
		"/api/stats":            h.HandleDashboardStats,
		"/api/department-usage": h.HandleDepartmentUsage,
		"/api/print-mode":       h.HandlePrintMode,
		"/api/yearly-trend":     h.HandleYearlyTrend,
		"/api/export.csv":       h.HandleExportCSV,
		"/api/export.xlsx":      h.HandleExportXLSX,
		"/api/insight":          h.HandleInsight,
	}

	for path, handler := range handlers {
		t.Run(path, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler(w, httptest.NewRequest(http.MethodGet, path, nil))

			if w.Code != http.StatusServiceUnavailable {
				t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
			}
			env := decodeEnvelope(t, w)
			if env.Success || env.Error == nil || env.Error.Code != "SERVICE_UNAVAILABLE" {
				t.Errorf("unexpected envelope %+v", env)
			}
		})
	}
}

func TestAPIHandlers_HandleHealth(t *testing.T) {
	tests := []struct {
		name    string
		dataset *services.Dataset
		want    string
	}{
		{"loaded", createTestDataset(), "healthy"},
		{"not loaded", services.NewDataset(nil, testLogger()), "degraded"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestAPIHandlers(tt.dataset)
			w := httptest.NewRecorder()
			h.HandleHealth(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != http.StatusOK {
				t.Errorf("expected status %d, got %d", http.StatusOK, w.Code)
			}
			var data map[string]string
			if err := json.Unmarshal(decodeEnvelope(t, w).Data, &data); err != nil {
				t.Fatal(err)
			}
			if data["status"] != tt.want || data["version"] != version {
				t.Errorf("health = %+v", data)
			}
		})
	}
}

func TestAPIHandlers_HandleStats(t *testing.T) {
	h, _ := newTestAPIHandlers(createTestDataset())
	w := httptest.NewRecorder()
	h.HandleStats(w, httptest.NewRequest(http.MethodGet, "/admin/stats", nil))

	var data map[string]any
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data["record_count"] != float64(4) || data["healthy"] != true {
		t.Errorf("stats = %+v", data)
	}
}

func TestAPIHandlers_HandleExportCSV(t *testing.T) {
	h, _ := newTestAPIHandlers(createTestDataset())

	w := httptest.NewRecorder()
	h.HandleExportCSV(w, httptest.NewRequest(http.MethodGet, "/api/export.csv?dept=HR", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != csvContentType {
		t.Errorf("content-type = %q", ct)
	}
	want := `attachment; filename="ecoprint_analytics_2024-03-14.csv"`
	if cd := w.Header().Get("Content-Disposition"); cd != want {
		t.Errorf("content-disposition = %q, want %q", cd, want)
	}

	rows, err := services.ParseCSV(w.Body)
	if err != nil {
		t.Fatalf("export is not valid CSV: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("exported %d rows, want 2", len(rows))
	}
	for _, row := range rows {
		if row["department"] != "HR" {
			t.Errorf("unexpected department %q in filtered export", row["department"])
		}
	}
}

func TestAPIHandlers_HandleExportXLSX(t *testing.T) {
	h, _ := newTestAPIHandlers(createTestDataset())

	w := httptest.NewRecorder()
	h.HandleExportXLSX(w, httptest.NewRequest(http.MethodGet, "/api/export.xlsx", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != xlsxContentType {
		t.Errorf("content-type = %q", ct)
	}
	if !bytes.HasPrefix(w.Body.Bytes(), []byte("PK")) {
		t.Error("expected a zip container")
	}

	rows, err := services.ParseXLSX(bytes.NewReader(w.Body.Bytes()))
	if err != nil {
		t.Fatalf("ParseXLSX() error = %v", err)
	}
	if len(rows) != 4 {
		t.Errorf("exported %d rows, want 4", len(rows))
	}
}

func TestAPIHandlers_ExportEmptySelection(t *testing.T) {
	h, _ := newTestAPIHandlers(createTestDataset())

	w := httptest.NewRecorder()
	h.HandleExportCSV(w, httptest.NewRequest(http.MethodGet, "/api/export.csv?dept=Legal", nil))

	if w.Code != http.StatusNotFound {
		t.Errorf("expected status %d, got %d", http.StatusNotFound, w.Code)
	}
	if cd := w.Header().Get("Content-Disposition"); cd != "" {
		t.Errorf("unexpected content-disposition %q", cd)
	}
}

func TestAPIHandlers_HandleRefresh(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		src := stubSource{rows: []models.RawRow{
			{"date": "2024", "department": "IT", "sheet_used": "3"},
			{"date": "", "department": "IT", "sheet_used": "3"},
		}}
		h, _ := newTestAPIHandlers(services.NewDataset(src, testLogger()))

		w := httptest.NewRecorder()
		h.HandleRefresh(w, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

		if w.Code != http.StatusOK {
			t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
		}
		var data map[string]any
		if err := json.Unmarshal(decodeEnvelope(t, w).Data, &data); err != nil {
			t.Fatal(err)
		}
		if data["record_count"] != float64(1) || data["raw_rows"] != float64(2) {
			t.Errorf("refresh result = %+v", data)
		}
	})

	t.Run("source failure", func(t *testing.T) {
		h, _ := newTestAPIHandlers(services.NewDataset(stubSource{err: errors.New("offline")}, testLogger()))

		w := httptest.NewRecorder()
		h.HandleRefresh(w, httptest.NewRequest(http.MethodPost, "/api/refresh", nil))

		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status %d, got %d", http.StatusServiceUnavailable, w.Code)
		}
	})
}

func TestAPIHandlers_HandleInsight(t *testing.T) {
	h, gen := newTestAPIHandlers(createTestDataset())

	w := httptest.NewRecorder()
	h.HandleInsight(w, httptest.NewRequest(http.MethodPost, "/api/insight?dept=IT", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, w.Code)
	}
	var data struct {
		Insight    string        `json:"insight"`
		Configured bool          `json:"configured"`
		Filter     models.Filter `json:"filter"`
	}
	if err := json.Unmarshal(decodeEnvelope(t, w).Data, &data); err != nil {
		t.Fatal(err)
	}
	if data.Insight != "Print double-sided." || !data.Configured || data.Filter.Department != "IT" {
		t.Errorf("insight response = %+v", data)
	}

	req, ok := gen.lastRequest()
	if !ok {
		t.Fatal("generator was not called")
	}
	if req.Stats.TotalSheetsUsed != 20 || len(req.Departments) != 1 {
		t.Errorf("generator saw %+v", req)
	}
}

func TestAPIHandlers_HandleInsight_ClientGone(t *testing.T) {
	h, gen := newTestAPIHandlers(createTestDataset())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/api/insight", nil).WithContext(ctx)
	w := httptest.NewRecorder()

	h.HandleInsight(w, req)

	if _, ok := gen.lastRequest(); !ok {
		t.Error("generation should still run detached from the request")
	}
	if w.Body.Len() != 0 {
		t.Errorf("stale insight was written: %q", w.Body.String())
	}
}

func TestGenerateInsight_Detached(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var sawCancelled bool
	gen := generatorFunc(func(c context.Context) string {
		sawCancelled = c.Err() != nil
		return "ok"
	})

	text, ok := generateInsight(ctx, gen, time.Second, models.Dashboard{})
	if sawCancelled {
		t.Error("insight call inherited request cancellation")
	}
	if ok || text != "ok" {
		t.Errorf("generateInsight() = %q, %v; want \"ok\", false", text, ok)
	}
}

type generatorFunc func(ctx context.Context) string

func (f generatorFunc) Generate(ctx context.Context, _ services.InsightRequest) string {
	return f(ctx)
}

func (f generatorFunc) Configured() bool {
	return true
}

func TestAPIHandlers_InvalidYear(t *testing.T) {
	h, _ := newTestAPIHandlers(createTestDataset())

	tests := []struct {
		name    string
		query   string
		handler http.HandlerFunc
		status  int
	}{
		{"stats with short year", "?year=24", h.HandleDashboardStats, http.StatusBadRequest},
		{"records with text year", "?year=last", h.HandleRecords, http.StatusBadRequest},
		{"export with five digits", "?year=20240", h.HandleExportCSV, http.StatusBadRequest},
		{"insight with bad year", "?year=2024x", h.HandleInsight, http.StatusBadRequest},
		{"all years", "?year=All", h.HandleDashboardStats, http.StatusOK},
		{"four digits", "?year=2024", h.HandleDashboardStats, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			tt.handler(w, httptest.NewRequest(http.MethodGet, "/api/x"+tt.query, nil))

			if w.Code != tt.status {
				t.Fatalf("status = %d, want %d", w.Code, tt.status)
			}
			if tt.status == http.StatusBadRequest {
				env := decodeEnvelope(t, w)
				if env.Error == nil || env.Error.Code != "BAD_REQUEST" {
					t.Errorf("error = %+v, want BAD_REQUEST", env.Error)
				}
			}
		})
	}
}
