package models

import (
	"errors"
	"fmt"
	"time"
)

// AllOption is the selector value meaning "no filter".
const AllOption = "All"

// ErrInvalidYear rejects a year selector that is neither AllOption nor a
// four-digit year.
var ErrInvalidYear = errors.New("invalid year selector")

// RawRow is one source row keyed by normalized (trimmed, lowercased) header.
type RawRow map[string]string

// PrintRecord is one normalized print job.
type PrintRecord struct {
	Date          string  `json:"date"`
	Department    string  `json:"department"`
	UserType      string  `json:"user_type"`
	PagesPerSheet float64 `json:"pages_per_sheet"`
	TotalPages    float64 `json:"total_pages"`
	Copies        float64 `json:"copies"`
	SheetUsed     float64 `json:"sheet_used"`
}

type DashboardStats struct {
	TotalSheetsUsed         float64 `json:"total_sheets_used"`
	TotalRequests           int     `json:"total_requests"`
	AverageSheetsPerRequest float64 `json:"average_sheets_per_request"`
	MostActiveDepartment    string  `json:"most_active_department"`
	TreesConsumed           float64 `json:"trees_consumed"`
	CO2Emitted              float64 `json:"co2_emitted_kg"`
	WaterUsed               float64 `json:"water_used_liters"`
	SheetsSaved             float64 `json:"sheets_saved"`
}

type ChartDataPoint struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Color string  `json:"color,omitempty"`
}

type TrendDataPoint struct {
	Date   string  `json:"date"`
	Sheets float64 `json:"sheets"`
}

// Filter narrows a record list. Empty or AllOption selectors match everything.
type Filter struct {
	Department string `json:"dept"`
	Year       string `json:"year"`
}

func (f Filter) HasDepartment() bool {
	return f.Department != "" && f.Department != AllOption
}

func (f Filter) HasYear() bool {
	return f.Year != "" && f.Year != AllOption
}

// Validate checks the year selector. Any department name is accepted.
func (f Filter) Validate() error {
	if !f.HasYear() {
		return nil
	}
	if len(f.Year) != 4 {
		return fmt.Errorf("%w: %q", ErrInvalidYear, f.Year)
	}
	for _, c := range f.Year {
		if c < '0' || c > '9' {
			return fmt.Errorf("%w: %q", ErrInvalidYear, f.Year)
		}
	}
	return nil
}

func (f Filter) IsFiltered() bool {
	return f.HasDepartment() || f.HasYear()
}

// Label renders a selector for display, using AllOption when unset.
func (f Filter) Label() (dept, year string) {
	dept, year = AllOption, AllOption
	if f.HasDepartment() {
		dept = f.Department
	}
	if f.HasYear() {
		year = f.Year
	}
	return dept, year
}

type FilterOptions struct {
	Departments []string `json:"departments"`
	Years       []string `json:"years"`
}

// Dashboard bundles every derived view of one filtered subset.
type Dashboard struct {
	Filter          Filter           `json:"filter"`
	Stats           DashboardStats   `json:"stats"`
	DepartmentUsage []ChartDataPoint `json:"department_usage"`
	PrintModeSplit  []ChartDataPoint `json:"print_mode_split"`
	YearlyTrend     []TrendDataPoint `json:"yearly_trend"`
	RecordCount     int              `json:"record_count"`
}

// Snapshot is the dataset as of the last load attempt.
type Snapshot struct {
	Records  []PrintRecord
	RawRows  int
	LoadedAt time.Time
	Err      error
}
