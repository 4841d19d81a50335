package services

import (
	"log/slog"
	"os"

	"ecoprint-dashboard/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

// createTestRecords returns a small mixed dataset spanning two years and
// three departments.
func createTestRecords() []models.PrintRecord {
	return []models.PrintRecord{
		{Date: "14/3/2024", Department: "IT", UserType: "Staff", PagesPerSheet: 1, TotalPages: 10, Copies: 1, SheetUsed: 10},
		{Date: "2024-05-01", Department: "HR", UserType: "Staff", PagesPerSheet: 2, TotalPages: 20, Copies: 1, SheetUsed: 10},
		{Date: "1/2/23", Department: "IT", UserType: "Student", PagesPerSheet: 4, TotalPages: 40, Copies: 1, SheetUsed: 10},
		{Date: "2023", Department: "Finance", UserType: "Staff", PagesPerSheet: 1, TotalPages: 5, Copies: 1, SheetUsed: 5},
		{Date: "20/12/2024", Department: "HR", UserType: "Teacher", PagesPerSheet: 1, TotalPages: 30, Copies: 2, SheetUsed: 60},
	}
}
