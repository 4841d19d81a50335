package handlers

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"ecoprint-dashboard/internal/models"
	"ecoprint-dashboard/internal/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func createTestRecords() []models.PrintRecord {
	return []models.PrintRecord{
		{Date: "14/3/2024", Department: "IT", UserType: "Staff", PagesPerSheet: 1, TotalPages: 10, Copies: 1, SheetUsed: 10},
		{Date: "2024-05-01", Department: "HR", UserType: "Staff", PagesPerSheet: 2, TotalPages: 20, Copies: 1, SheetUsed: 10},
		{Date: "1/2/23", Department: "IT", UserType: "Student", PagesPerSheet: 4, TotalPages: 40, Copies: 1, SheetUsed: 10},
		{Date: "20/12/2024", Department: "HR", UserType: "Teacher", PagesPerSheet: 1, TotalPages: 30, Copies: 2, SheetUsed: 60},
	}
}

func createTestDataset() *services.Dataset {
	d := services.NewDataset(nil, testLogger())
	d.SetRecords(createTestRecords())
	return d
}

type stubSource struct {
	rows []models.RawRow
	err  error
}

func (s stubSource) Fetch(ctx context.Context) ([]models.RawRow, error) {
	return s.rows, s.err
}

type stubGenerator struct {
	mu         sync.Mutex
	text       string
	configured bool
	requests   []services.InsightRequest
}

func (g *stubGenerator) Generate(ctx context.Context, req services.InsightRequest) string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requests = append(g.requests, req)
	return g.text
}

func (g *stubGenerator) Configured() bool {
	return g.configured
}

func (g *stubGenerator) lastRequest() (services.InsightRequest, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.requests) == 0 {
		return services.InsightRequest{}, false
	}
	return g.requests[len(g.requests)-1], true
}
