package server

import (
	"log/slog"
	"net/http"
	"time"

	"ecoprint-dashboard/internal/handlers"
	"ecoprint-dashboard/internal/services"
)

type Server struct {
	mux         *http.ServeMux
	logger      *slog.Logger
	apiHandlers *handlers.APIHandlers
	sseHandlers *handlers.SSEHandlers
}

type TemplateHandlers struct {
	Dashboard http.HandlerFunc
}

func NewServer(dataset *services.Dataset, insight handlers.Generator, insightBudget time.Duration, logger *slog.Logger, templateHandlers *TemplateHandlers) *Server {
	s := &Server{
		mux:         http.NewServeMux(),
		logger:      logger,
		apiHandlers: handlers.NewAPIHandlers(dataset, insight, insightBudget, logger),
		sseHandlers: handlers.NewSSEHandlers(dataset, insight, insightBudget, logger),
	}
	s.setupRoutes(templateHandlers)
	return s
}

func (s *Server) setupRoutes(templateHandlers *TemplateHandlers) {
	// Dashboard routes
	s.mux.HandleFunc("GET /{$}", templateHandlers.Dashboard)
	s.mux.HandleFunc("GET /health", s.apiHandlers.HandleHealth)
	s.mux.HandleFunc("GET /admin/stats", s.apiHandlers.HandleStats)

	// REST API endpoints
	s.mux.HandleFunc("GET /api/filters", s.apiHandlers.HandleFilters)
	s.mux.HandleFunc("GET /api/records", s.apiHandlers.HandleRecords)
	s.mux.HandleFunc("GET /api/stats", s.apiHandlers.HandleDashboardStats)
	s.mux.HandleFunc("GET /api/department-usage", s.apiHandlers.HandleDepartmentUsage)
	s.mux.HandleFunc("GET /api/print-mode", s.apiHandlers.HandlePrintMode)
	s.mux.HandleFunc("GET /api/yearly-trend", s.apiHandlers.HandleYearlyTrend)
	s.mux.HandleFunc("GET /api/export.csv", s.apiHandlers.HandleExportCSV)
	s.mux.HandleFunc("GET /api/export.xlsx", s.apiHandlers.HandleExportXLSX)
	s.mux.HandleFunc("POST /api/refresh", s.apiHandlers.HandleRefresh)
	s.mux.HandleFunc("POST /api/insight", s.apiHandlers.HandleInsight)

	// Datastar SSE endpoints
	s.mux.HandleFunc("GET /sse/dashboard", s.sseHandlers.HandleDashboard)
	s.mux.HandleFunc("GET /sse/refresh", s.sseHandlers.HandleRefresh)
	s.mux.HandleFunc("GET /sse/insight", s.sseHandlers.HandleInsight)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
