package services

import (
	"math"
	"slices"

	"ecoprint-dashboard/internal/models"
)

// Environmental conversion factors per A4 sheet.
const (
	SheetsPerTree       = 8333.0
	CO2GramsPerSheet    = 4.5
	WaterLitersPerSheet = 0.3

	NoDepartment       = "N/A"
	TopDepartmentCount = 3
)

const (
	StandardModeName = "Standard (1 Page/Sheet)"
	EcoModeName      = "Eco-Save (2+ Pages/Sheet)"
	standardColor    = "#4ade80"
	ecoColor         = "#16a34a"
)

// CalculateStats derives the summary cards for a filtered subset.
//
// SheetsSaved is max(0, total_pages - sheet_used) per record. It mixes
// logical-page and physical-sheet accounting and overlaps with the print
// mode split; it is kept as-is for compatibility with existing reports.
func CalculateStats(records []models.PrintRecord) models.DashboardStats {
	var total, saved float64
	for _, rec := range records {
		total += rec.SheetUsed
		saved += math.Max(0, rec.TotalPages-rec.SheetUsed)
	}

	stats := models.DashboardStats{
		TotalSheetsUsed:      total,
		TotalRequests:        len(records),
		MostActiveDepartment: NoDepartment,
		TreesConsumed:        total / SheetsPerTree,
		CO2Emitted:           total * CO2GramsPerSheet / 1000,
		WaterUsed:            total * WaterLitersPerSheet,
		SheetsSaved:          saved,
	}
	if len(records) > 0 {
		stats.AverageSheetsPerRequest = math.Round(total / float64(len(records)))
	}
	if usage := DepartmentUsage(records); len(usage) > 0 {
		stats.MostActiveDepartment = usage[0].Name
	}
	return stats
}

// DepartmentUsage sums sheets per department, largest first. Equal totals
// keep the order in which departments first appear.
func DepartmentUsage(records []models.PrintRecord) []models.ChartDataPoint {
	index := make(map[string]int)
	result := make([]models.ChartDataPoint, 0)

	for _, rec := range records {
		dept := rec.Department
		if dept == "" {
			dept = unknownText
		}
		i, ok := index[dept]
		if !ok {
			i = len(result)
			index[dept] = i
			result = append(result, models.ChartDataPoint{Name: dept})
		}
		result[i].Value += rec.SheetUsed
	}

	slices.SortStableFunc(result, func(a, b models.ChartDataPoint) int {
		if a.Value > b.Value {
			return -1
		}
		if a.Value < b.Value {
			return 1
		}
		return 0
	})
	return result
}

// TopDepartments returns at most n leading entries of DepartmentUsage.
func TopDepartments(usage []models.ChartDataPoint, n int) []models.ChartDataPoint {
	if len(usage) <= n {
		return usage
	}
	return usage[:n]
}

// PrintModeSplit always returns the standard bucket followed by the eco bucket.
func PrintModeSplit(records []models.PrintRecord) []models.ChartDataPoint {
	var single, multi float64
	for _, rec := range records {
		if rec.PagesPerSheet > 1 {
			multi += rec.SheetUsed
		} else {
			single += rec.SheetUsed
		}
	}
	return []models.ChartDataPoint{
		{Name: StandardModeName, Value: single, Color: standardColor},
		{Name: EcoModeName, Value: multi, Color: ecoColor},
	}
}

// YearlyTrend sums sheets per year in ascending year order. Records without
// a determinable year are left out.
func YearlyTrend(records []models.PrintRecord) []models.TrendDataPoint {
	byYear := make(map[string]float64)
	for _, rec := range records {
		if year, ok := YearOf(rec.Date); ok {
			byYear[year] += rec.SheetUsed
		}
	}

	result := make([]models.TrendDataPoint, 0, len(byYear))
	for year, sheets := range byYear {
		result = append(result, models.TrendDataPoint{Date: year, Sheets: sheets})
	}
	slices.SortFunc(result, func(a, b models.TrendDataPoint) int {
		switch {
		case a.Date < b.Date:
			return -1
		case a.Date > b.Date:
			return 1
		}
		return 0
	})
	return result
}

// BuildDashboard filters the full record set and derives every view from
// the result. Nothing is cached between calls.
func BuildDashboard(records []models.PrintRecord, f models.Filter) models.Dashboard {
	filtered := FilterRecords(records, f)
	return models.Dashboard{
		Filter:          f,
		Stats:           CalculateStats(filtered),
		DepartmentUsage: DepartmentUsage(filtered),
		PrintModeSplit:  PrintModeSplit(filtered),
		YearlyTrend:     YearlyTrend(filtered),
		RecordCount:     len(filtered),
	}
}
