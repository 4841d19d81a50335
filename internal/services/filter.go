package services

import (
	"slices"
	"strings"
	"time"

	"ecoprint-dashboard/internal/models"
	"github.com/samber/lo"
)

// Layouts tried, in order and in UTC, when a date is neither slash, dash nor
// bare-year shaped.
var fallbackDateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"2 Jan 2006",
	"Mon, 02 Jan 2006",
	"Monday, January 2, 2006",
	"20060102",
}

// YearOf extracts a four-digit year from free-form date text. Rules are
// tried in order and the first one that yields a year wins:
//
//  1. slash separated: the last token (ignoring a trailing time of day),
//     four digits as-is, two digits via the time package pivot
//     (69-99 → 19xx, 00-68 → 20xx)
//  2. dash separated: the first token when it has four digits
//  3. the whole string when it is exactly four digits
//  4. a fixed list of calendar layouts
//
// Filtering and the yearly trend both rely on this function.
func YearOf(date string) (string, bool) {
	s := strings.TrimSpace(date)
	if s == "" {
		return "", false
	}

	if strings.Contains(s, "/") {
		last := strings.TrimSpace(s[strings.LastIndex(s, "/")+1:])
		// "3/14/2024 10:30:00" style timestamps
		if i := strings.IndexByte(last, ' '); i >= 0 {
			last = last[:i]
		}
		switch {
		case len(last) == 4 && isDigits(last):
			return last, true
		case len(last) == 2 && isDigits(last):
			if t, err := time.Parse("06", last); err == nil {
				return t.Format("2006"), true
			}
		}
	}

	if strings.Contains(s, "-") {
		first, _, _ := strings.Cut(s, "-")
		first = strings.TrimSpace(first)
		if len(first) == 4 && isDigits(first) {
			return first, true
		}
	}

	if len(s) == 4 && isDigits(s) {
		return s, true
	}

	for _, layout := range fallbackDateLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			if y := t.Year(); y >= 1000 && y <= 9999 {
				return t.Format("2006"), true
			}
		}
	}
	return "", false
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// FilterRecords returns the records matching both selectors, in order.
func FilterRecords(records []models.PrintRecord, f models.Filter) []models.PrintRecord {
	if !f.IsFiltered() {
		return records
	}
	return lo.Filter(records, func(rec models.PrintRecord, _ int) bool {
		if f.HasDepartment() && rec.Department != f.Department {
			return false
		}
		if f.HasYear() {
			year, ok := YearOf(rec.Date)
			if !ok || year != f.Year {
				return false
			}
		}
		return true
	})
}

// Options lists the selectable departments (ascending) and years
// (newest first) present in the full record set.
func Options(records []models.PrintRecord) models.FilterOptions {
	departments := lo.Uniq(lo.FilterMap(records, func(rec models.PrintRecord, _ int) (string, bool) {
		return rec.Department, rec.Department != ""
	}))
	slices.Sort(departments)

	years := lo.Uniq(lo.FilterMap(records, func(rec models.PrintRecord, _ int) (string, bool) {
		return YearOf(rec.Date)
	}))
	slices.Sort(years)
	slices.Reverse(years)

	return models.FilterOptions{
		Departments: departments,
		Years:       years,
	}
}
