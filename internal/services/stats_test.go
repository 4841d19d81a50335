package services

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"ecoprint-dashboard/internal/models"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestCalculateStats(t *testing.T) {
	got := CalculateStats(createTestRecords())
	want := models.DashboardStats{
		TotalSheetsUsed:         95,
		TotalRequests:           5,
		AverageSheetsPerRequest: 19,
		MostActiveDepartment:    "HR",
		TreesConsumed:           95 / SheetsPerTree,
		CO2Emitted:              0.4275,
		WaterUsed:               28.5,
		SheetsSaved:             40,
	}
	if diff := cmp.Diff(want, got, approx); diff != "" {
		t.Errorf("CalculateStats() mismatch (-want +got):\n%s", diff)
	}
}

func TestCalculateStats_Empty(t *testing.T) {
	got := CalculateStats(nil)
	want := models.DashboardStats{MostActiveDepartment: NoDepartment}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("CalculateStats(nil) mismatch (-want +got):\n%s", diff)
	}
}

func TestCalculateStats_AverageRounds(t *testing.T) {
	records := []models.PrintRecord{
		{Date: "2024", Department: "IT", SheetUsed: 1},
		{Date: "2024", Department: "IT", SheetUsed: 2},
	}
	if got := CalculateStats(records).AverageSheetsPerRequest; got != 2 {
		t.Errorf("AverageSheetsPerRequest = %v, want 2", got)
	}
}

func TestCalculateStats_EnvironmentalFactors(t *testing.T) {
	records := []models.PrintRecord{{Date: "2024", Department: "IT", SheetUsed: 8333}}
	got := CalculateStats(records)

	if math.Abs(got.TreesConsumed-1) > 1e-9 {
		t.Errorf("TreesConsumed = %v, want 1", got.TreesConsumed)
	}
	if want := 8333 * 4.5 / 1000; math.Abs(got.CO2Emitted-want) > 1e-9 {
		t.Errorf("CO2Emitted = %v, want %v", got.CO2Emitted, want)
	}
	if want := 8333 * 0.3; math.Abs(got.WaterUsed-want) > 1e-9 {
		t.Errorf("WaterUsed = %v, want %v", got.WaterUsed, want)
	}
}

func TestDepartmentUsage(t *testing.T) {
	got := DepartmentUsage(createTestRecords())
	want := []models.ChartDataPoint{
		{Name: "HR", Value: 70},
		{Name: "IT", Value: 20},
		{Name: "Finance", Value: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DepartmentUsage() mismatch (-want +got):\n%s", diff)
	}
}

func TestDepartmentUsage_TiesKeepFirstSeenOrder(t *testing.T) {
	records := []models.PrintRecord{
		{Date: "2024", Department: "B", SheetUsed: 5},
		{Date: "2024", Department: "A", SheetUsed: 5},
		{Date: "2024", Department: "", SheetUsed: 7},
	}
	got := DepartmentUsage(records)
	want := []models.ChartDataPoint{
		{Name: "Unknown", Value: 7},
		{Name: "B", Value: 5},
		{Name: "A", Value: 5},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DepartmentUsage() mismatch (-want +got):\n%s", diff)
	}
}

func TestDepartmentUsage_SumsToTotal(t *testing.T) {
	records := createTestRecords()
	var sum float64
	for _, p := range DepartmentUsage(records) {
		sum += p.Value
	}
	if total := CalculateStats(records).TotalSheetsUsed; sum != total {
		t.Errorf("department sum = %v, total = %v", sum, total)
	}
}

func TestTopDepartments(t *testing.T) {
	usage := DepartmentUsage(createTestRecords())
	if got := TopDepartments(usage, 2); len(got) != 2 || got[0].Name != "HR" {
		t.Errorf("TopDepartments(2) = %+v", got)
	}
	if got := TopDepartments(usage, 10); len(got) != 3 {
		t.Errorf("TopDepartments(10) len = %d, want 3", len(got))
	}
}

func TestPrintModeSplit(t *testing.T) {
	got := PrintModeSplit(createTestRecords())
	want := []models.ChartDataPoint{
		{Name: StandardModeName, Value: 75, Color: "#4ade80"},
		{Name: EcoModeName, Value: 20, Color: "#16a34a"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("PrintModeSplit() mismatch (-want +got):\n%s", diff)
	}
}

func TestPrintModeSplit_Empty(t *testing.T) {
	got := PrintModeSplit(nil)
	if len(got) != 2 || got[0].Value != 0 || got[1].Value != 0 {
		t.Errorf("PrintModeSplit(nil) = %+v, want two zero buckets", got)
	}
}

func TestYearlyTrend(t *testing.T) {
	records := append(createTestRecords(), models.PrintRecord{Date: "someday", Department: "IT", SheetUsed: 99})
	got := YearlyTrend(records)
	want := []models.TrendDataPoint{
		{Date: "2023", Sheets: 15},
		{Date: "2024", Sheets: 80},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("YearlyTrend() mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildDashboard(t *testing.T) {
	records := createTestRecords()
	f := models.Filter{Department: "HR"}

	first := BuildDashboard(records, f)
	second := BuildDashboard(records, f)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("BuildDashboard() not deterministic (-first +second):\n%s", diff)
	}

	if first.RecordCount != 2 {
		t.Errorf("RecordCount = %d, want 2", first.RecordCount)
	}
	if first.Stats.TotalSheetsUsed != 70 {
		t.Errorf("TotalSheetsUsed = %v, want 70", first.Stats.TotalSheetsUsed)
	}
	if len(first.DepartmentUsage) != 1 || first.DepartmentUsage[0].Name != "HR" {
		t.Errorf("DepartmentUsage = %+v", first.DepartmentUsage)
	}
}

func TestBuildDashboard_NoMatches(t *testing.T) {
	d := BuildDashboard(createTestRecords(), models.Filter{Year: "1990"})

	if d.Stats.MostActiveDepartment != NoDepartment {
		t.Errorf("MostActiveDepartment = %q, want %q", d.Stats.MostActiveDepartment, NoDepartment)
	}
	if len(d.DepartmentUsage) != 0 || len(d.YearlyTrend) != 0 {
		t.Errorf("expected empty projections, got %+v / %+v", d.DepartmentUsage, d.YearlyTrend)
	}
	if len(d.PrintModeSplit) != 2 {
		t.Errorf("PrintModeSplit len = %d, want 2", len(d.PrintModeSplit))
	}
}

func BenchmarkBuildDashboard(b *testing.B) {
	base := createTestRecords()
	records := make([]models.PrintRecord, 0, 50000)
	for len(records) < cap(records) {
		records = append(records, base...)
	}

	for b.Loop() {
		BuildDashboard(records, models.Filter{Year: "2024"})
	}
}
