package services

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"ecoprint-dashboard/internal/models"
	"github.com/xuri/excelize/v2"
)

const (
	exportSheetName = "EcoPrint"
	exportPrefix    = "ecoprint_analytics_"
)

// ExportHeaders is the header row shared by CSV and XLSX exports.
var ExportHeaders = []string{"Date", "Department", "User Type", "Sheets Used", "Total Pages", "Copies", "Pages Per Sheet"}

// ExportFilename returns ecoprint_analytics_<YYYY-MM-DD>.<ext> for the UTC date of now.
func ExportFilename(now time.Time, ext string) string {
	return exportPrefix + now.UTC().Format("2006-01-02") + "." + ext
}

// WriteCSV writes records as a BOM-prefixed UTF-8 CSV. Text columns are
// always quoted; numbers use the shortest form that parses back exactly.
func WriteCSV(w io.Writer, records []models.PrintRecord) error {
	bw := bufio.NewWriter(w)
	if _, err := bw.WriteString(utf8BOM + strings.Join(ExportHeaders, ",")); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range records {
		line := []string{
			quote(rec.Date),
			quote(rec.Department),
			quote(rec.UserType),
			formatNumber(rec.SheetUsed),
			formatNumber(rec.TotalPages),
			formatNumber(rec.Copies),
			formatNumber(rec.PagesPerSheet),
		}
		if _, err := bw.WriteString("\n" + strings.Join(line, ",")); err != nil {
			return fmt.Errorf("write record: %w", err)
		}
	}
	return bw.Flush()
}

// WriteXLSX writes records to a single-sheet workbook with numeric cells.
func WriteXLSX(w io.Writer, records []models.PrintRecord) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheetName); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}

	sw, err := f.NewStreamWriter(exportSheetName)
	if err != nil {
		return fmt.Errorf("stream writer: %w", err)
	}

	header := make([]any, len(ExportHeaders))
	for i, h := range ExportHeaders {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		row := []any{rec.Date, rec.Department, rec.UserType, rec.SheetUsed, rec.TotalPages, rec.Copies, rec.PagesPerSheet}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func quote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
