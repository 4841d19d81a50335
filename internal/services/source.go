package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ecoprint-dashboard/internal/models"
	"github.com/cenkalti/backoff/v4"
	"github.com/xuri/excelize/v2"
)

const (
	DefaultMaxSourceBytes = 64 << 20
	utf8BOM               = "\uFEFF"
)

var (
	// ErrEmptySource is returned when a document has no header row.
	ErrEmptySource = errors.New("empty source document")
	// ErrSourceTooLarge is returned instead of parsing a truncated document.
	ErrSourceTooLarge = errors.New("source document too large")
)

// Source produces raw rows for one data load.
type Source interface {
	Fetch(ctx context.Context) ([]models.RawRow, error)
}

// ParseCSV reads a header row followed by records. Short rows leave the
// missing columns absent; extra cells are ignored.
func ParseCSV(r io.Reader) ([]models.RawRow, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && string(prefix) == utf8BOM {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, ErrEmptySource
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	headers := normalizeHeaders(header)

	rows := make([]models.RawRow, 0, 256)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if isBlank(record) {
			continue
		}
		rows = append(rows, toRawRow(headers, record))
	}
	return rows, nil
}

// ParseXLSX reads the first worksheet of a workbook with the same header
// rules as ParseCSV.
func ParseXLSX(r io.Reader) ([]models.RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets: %w", ErrEmptySource)
	}
	matrix, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(matrix) == 0 {
		return nil, ErrEmptySource
	}

	headers := normalizeHeaders(matrix[0])
	rows := make([]models.RawRow, 0, len(matrix)-1)
	for _, record := range matrix[1:] {
		if isBlank(record) {
			continue
		}
		rows = append(rows, toRawRow(headers, record))
	}
	return rows, nil
}

func normalizeHeaders(header []string) []string {
	out := make([]string, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, utf8BOM)
		}
		out[i] = NormalizeHeader(h)
	}
	return out
}

// toRawRow keys cells by header. When a header repeats, the first column wins.
func toRawRow(headers, record []string) models.RawRow {
	row := make(models.RawRow, len(headers))
	for i, h := range headers {
		if i >= len(record) || h == "" {
			continue
		}
		if _, seen := row[h]; seen {
			continue
		}
		row[h] = record[i]
	}
	return row
}

func isBlank(record []string) bool {
	return len(record) == 0 || (len(record) == 1 && strings.TrimSpace(record[0]) == "")
}

// HTTPSource fetches a published spreadsheet over HTTP.
type HTTPSource struct {
	URL            string
	Client         *http.Client
	RequestTimeout time.Duration
	MaxElapsed     time.Duration
	MaxBytes       int64
	logger         *slog.Logger
}

func NewHTTPSource(rawURL string, requestTimeout, maxElapsed time.Duration, logger *slog.Logger) *HTTPSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPSource{
		URL:            rawURL,
		Client:         &http.Client{Timeout: requestTimeout},
		RequestTimeout: requestTimeout,
		MaxElapsed:     maxElapsed,
		MaxBytes:       DefaultMaxSourceBytes,
		logger:         logger,
	}
}

// Fetch downloads and parses the document. Transport errors and 5xx
// responses are retried with exponential backoff; anything else fails fast.
func (s *HTTPSource) Fetch(ctx context.Context) ([]models.RawRow, error) {
	var rows []models.RawRow
	attempt := 0

	op := func() error {
		attempt++
		reqCtx, cancel := context.WithTimeout(ctx, s.RequestTimeout)
		defer cancel()

		req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, s.URL, nil)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "text/csv, application/vnd.openxmlformats-officedocument.spreadsheetml.sheet;q=0.9, */*;q=0.5")

		resp, err := s.Client.Do(req)
		if err != nil {
			s.logger.Warn("source request failed", "attempt", attempt, "error", err)
			return fmt.Errorf("request source: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
			s.logger.Warn("source server error", "attempt", attempt, "status", resp.StatusCode)
			return fmt.Errorf("source returned %s", resp.Status)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("source returned %s", resp.Status))
		}

		body, err := readLimited(resp.Body, s.MaxBytes)
		if err != nil {
			return backoff.Permanent(err)
		}
		if isXLSX(resp.Header.Get("Content-Type"), s.URL) {
			rows, err = ParseXLSX(body)
		} else {
			rows, err = ParseCSV(body)
		}
		if err != nil {
			return backoff.Permanent(fmt.Errorf("parse source: %w", err))
		}
		return nil
	}

	var b backoff.BackOff = &backoff.StopBackOff{}
	if s.MaxElapsed > 0 {
		exp := backoff.NewExponentialBackOff()
		exp.MaxElapsedTime = s.MaxElapsed
		b = exp
	}
	if err := backoff.Retry(op, backoff.WithContext(b, ctx)); err != nil {
		return nil, err
	}
	return rows, nil
}

// readLimited reads the whole body, failing when it holds more than max bytes.
func readLimited(r io.Reader, max int64) (*bytes.Reader, error) {
	data, err := io.ReadAll(io.LimitReader(r, max+1))
	if err != nil {
		return nil, fmt.Errorf("read source: %w", err)
	}
	if int64(len(data)) > max {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrSourceTooLarge, max)
	}
	return bytes.NewReader(data), nil
}

func isXLSX(contentType, rawURL string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if strings.Contains(mediaType, "spreadsheetml") {
			return true
		}
		if strings.HasPrefix(mediaType, "text/") {
			return false
		}
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.HasSuffix(strings.ToLower(u.Path), ".xlsx") || u.Query().Get("output") == "xlsx"
}
