package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"

	"ecoprint-dashboard/internal/config"
	"ecoprint-dashboard/internal/handlers"
	"ecoprint-dashboard/internal/middleware"
	"ecoprint-dashboard/internal/models"
	"ecoprint-dashboard/internal/observability"
	"ecoprint-dashboard/internal/server"
	"ecoprint-dashboard/internal/services"
	"ecoprint-dashboard/internal/ui/templates"
)

const (
	renderTimeout = 10 * time.Second
	cacheControl  = "no-cache"
)

// dashboardHandler renders the full page for the dept and year in the query.
func dashboardHandler(dataset *services.Dataset, insights bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), renderTimeout)
		defer cancel()

		q := r.URL.Query()
		page := handlers.BuildPage(dataset, insights, models.Filter{
			Department: q.Get("dept"),
			Year:       q.Get("year"),
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", cacheControl)
		if err := templates.Dashboard(page).Render(ctx, w); err != nil {
			slog.Error("render dashboard", "error", err)
			http.Error(w, "render error", http.StatusInternalServerError)
		}
	}
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg.Logger)
	slog.SetDefault(logger)

	logger.Info("starting application",
		"version", "1.0.0",
		"addr", cfg.Address(),
		"data_source", cfg.DataSource.URL,
		"insight", cfg.Insight.String(),
	)

	source := services.NewHTTPSource(cfg.DataSource.URL, cfg.DataSource.FetchTimeout, cfg.DataSource.MaxElapsed,
		observability.Component(logger, "source"))
	dataset := services.NewDataset(source, observability.Component(logger, "dataset"))
	dataset.SetRefreshTimeout(cfg.DataSource.MaxElapsed + cfg.DataSource.FetchTimeout)

	// A failed first load leaves the dashboard in its error state; the
	// refresh action can recover it without a restart.
	ctx, cancel := context.WithTimeout(context.Background(), cfg.DataSource.FetchTimeout+cfg.DataSource.MaxElapsed)
	start := time.Now()
	if err := dataset.Refresh(ctx); err != nil {
		logger.Error("initial data load failed", "error", err)
	} else {
		logger.Info("initial data load completed", "duration", time.Since(start))
	}
	cancel()

	insight := services.NewInsightClient(services.InsightConfig{
		APIKey:   cfg.Insight.APIKey,
		Model:    cfg.Insight.Model,
		BaseURL:  cfg.Insight.BaseURL,
		Language: cfg.Insight.Language,
		Timeout:  cfg.Insight.Timeout,
	}, observability.Component(logger, "insight"))
	if !insight.Configured() {
		logger.Warn("insight API key not set, AI insights disabled")
	}

	templateHandlers := &server.TemplateHandlers{
		Dashboard: dashboardHandler(dataset, insight.Configured()),
	}

	srv := server.NewServer(dataset, insight, cfg.Insight.Timeout, logger, templateHandlers)

	rateLimiter := middleware.NewRateLimiter(cfg.Security)

	middlewareChain := middleware.Chain(
		middleware.Recovery(logger),
		middleware.RequestID(),
		middleware.Logger(logger),
		middleware.Tracing(logger),
		middleware.SecurityHeaders(),
		middleware.CORS(cfg.Security),
		middleware.TrustedProxy(cfg.Security),
		middleware.RateLimit(rateLimiter, logger),
	)

	httpServer := &http.Server{
		Addr:         cfg.Address(),
		Handler:      middlewareChain(srv),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	gracefulServer := server.NewGracefulServer(httpServer, logger, cfg.Server)

	gracefulServer.RegisterShutdownHook(func(ctx context.Context) error {
		logger.Info("shutting down dataset", "stats", dataset.Stats())
		return nil
	})

	logger.Info("starting graceful server")
	if err := gracefulServer.ListenAndServe(); err != nil {
		logger.Error("server failed", "error", err)
		os.Exit(1)
	}

	logger.Info("application stopped gracefully")
}
