package services

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"ecoprint-dashboard/internal/models"
	"golang.org/x/sync/errgroup"
)

const (
	normalizeBatchSize = 5000
	maxWorkers         = 10

	unknownText = "Unknown"
)

// Header aliases per field, checked in order. English and Thai spellings.
var (
	dateAliases          = []string{"date", "timestamp", "วันที่", "time"}
	departmentAliases    = []string{"department", "dept", "แผนก", "dep"}
	userTypeAliases      = []string{"user_type", "usertype", "user type", "ประเภทผู้ใช้", "ประเภท"}
	pagesPerSheetAliases = []string{"pages_per_sheet", "pagespersheet", "pages per sheet", "pps", "จำนวนหน้าต่อแผ่น"}
	totalPagesAliases    = []string{"total_pages", "totalpages", "total pages", "จำนวนหน้าทั้งหมด", "จำนวนหน้า"}
	copiesAliases        = []string{"copies", "copy", "amount", "จำนวนชุด"}
	sheetUsedAliases     = []string{"sheet_used", "sheetused", "sheets used", "usage", "used", "จำนวนกระดาษ", "จำนวนกระดาษที่ใช้ไป", "กระดาษที่ใช้"}
)

var leadingFloat = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?`)

// NormalizeHeader trims and lowercases a column name.
func NormalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(h))
}

func lookup(row models.RawRow, aliases []string) (string, bool) {
	for _, alias := range aliases {
		if v := strings.TrimSpace(row[alias]); v != "" {
			return v, true
		}
	}
	return "", false
}

func textField(row models.RawRow, aliases []string, def string) string {
	if v, ok := lookup(row, aliases); ok {
		return v
	}
	return def
}

func numberField(row models.RawRow, aliases []string, def float64) float64 {
	v, ok := lookup(row, aliases)
	if !ok {
		return def
	}
	n, ok := parseNumber(v)
	if !ok {
		return def
	}
	return n
}

// parseNumber drops thousands separators and reads the leading decimal
// number, so "1,200 sheets" is 1200. Negative and non-finite values are
// rejected.
func parseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	m := leadingFloat.FindString(s)
	if m == "" {
		return 0, false
	}
	n, err := strconv.ParseFloat(m, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) || n < 0 {
		return 0, false
	}
	return n, true
}

// NormalizeRow maps one raw row onto a PrintRecord using the alias tables.
// Missing or malformed cells take the field default.
func NormalizeRow(row models.RawRow) models.PrintRecord {
	return models.PrintRecord{
		Date:          textField(row, dateAliases, ""),
		Department:    textField(row, departmentAliases, unknownText),
		UserType:      textField(row, userTypeAliases, unknownText),
		PagesPerSheet: numberField(row, pagesPerSheetAliases, 1),
		TotalPages:    numberField(row, totalPagesAliases, 0),
		Copies:        numberField(row, copiesAliases, 0),
		SheetUsed:     numberField(row, sheetUsedAliases, 0),
	}
}

// Retained reports whether a record belongs in the normalized set.
func Retained(rec models.PrintRecord) bool {
	return rec.SheetUsed > 0 && rec.Date != ""
}

// Normalize converts raw rows into retained records, preserving order.
// Rows are processed in batches on a bounded worker pool.
func Normalize(ctx context.Context, rows []models.RawRow) ([]models.PrintRecord, error) {
	if len(rows) == 0 {
		return []models.PrintRecord{}, nil
	}

	batches := (len(rows) + normalizeBatchSize - 1) / normalizeBatchSize
	results := make([][]models.PrintRecord, batches)

	var g errgroup.Group
	g.SetLimit(maxWorkers)

	for i := range batches {
		start := i * normalizeBatchSize
		end := min(start+normalizeBatchSize, len(rows))
		g.Go(func() error {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			out := make([]models.PrintRecord, 0, end-start)
			for _, row := range rows[start:end] {
				if rec := NormalizeRow(row); Retained(rec) {
					out = append(out, rec)
				}
			}
			results[i] = out
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	total := 0
	for _, batch := range results {
		total += len(batch)
	}
	records := make([]models.PrintRecord, 0, total)
	for _, batch := range results {
		records = append(records, batch...)
	}
	return records, nil
}
