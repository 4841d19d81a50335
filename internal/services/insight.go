package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"ecoprint-dashboard/internal/models"
	"ecoprint-dashboard/internal/observability"
	"github.com/dustin/go-humanize"
)

// Fixed user-facing messages returned instead of an insight.
const (
	FallbackNotConfigured = "AI insights are not configured. Set INSIGHT_API_KEY to enable them."
	FallbackError         = "Could not reach the AI service. Please try again later."
	FallbackEmpty         = "Unable to analyze the data at this time."
)

const maxInsightResponseBytes = 1 << 20

// InsightRequest is everything the summary is allowed to see.
type InsightRequest struct {
	Stats       models.DashboardStats
	Departments []models.ChartDataPoint
	Filter      models.Filter
}

// NewInsightRequest trims the department breakdown to the top entries.
func NewInsightRequest(d models.Dashboard) InsightRequest {
	return InsightRequest{
		Stats:       d.Stats,
		Departments: TopDepartments(d.DepartmentUsage, TopDepartmentCount),
		Filter:      d.Filter,
	}
}

type InsightConfig struct {
	APIKey   string
	Model    string
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// InsightClient asks a Gemini generateContent endpoint for a prose summary.
// It never fails: every problem degrades to one of the fallback messages.
type InsightClient struct {
	cfg    InsightConfig
	client *http.Client
	logger *slog.Logger
}

func NewInsightClient(cfg InsightConfig, logger *slog.Logger) *InsightClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &InsightClient{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

func (c *InsightClient) Configured() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error,omitempty"`
}

// Generate makes one request with no retry.
func (c *InsightClient) Generate(ctx context.Context, req InsightRequest) string {
	if !c.Configured() {
		c.logger.Warn("insight requested without API key")
		return FallbackNotConfigured
	}

	ctx, span := observability.StartSpan(ctx, "insight.generate")
	defer span.FinishAndLog(c.logger)
	span.SetTag("model", c.cfg.Model)

	text, err := c.call(ctx, BuildPrompt(req, c.cfg.Language))
	if err != nil {
		span.SetError(err)
		c.logger.Error("insight generation failed", "error", err)
		return FallbackError
	}
	if strings.TrimSpace(text) == "" {
		c.logger.Warn("insight service returned no text")
		return FallbackEmpty
	}
	return text
}

func (c *InsightClient) call(ctx context.Context, prompt string) (string, error) {
	body, err := json.Marshal(generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(c.cfg.BaseURL, "/"), url.PathEscape(c.cfg.Model))

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxInsightResponseBytes))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var parsed generateResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return "", fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		if parsed.Error != nil {
			return "", fmt.Errorf("insight service %s: %s", parsed.Error.Status, parsed.Error.Message)
		}
		return "", fmt.Errorf("insight service returned %s", resp.Status)
	}

	var sb strings.Builder
	for _, cand := range parsed.Candidates {
		for _, p := range cand.Content.Parts {
			sb.WriteString(p.Text)
		}
		if sb.Len() > 0 {
			break
		}
	}
	return sb.String(), nil
}

// BuildPrompt renders the analyst prompt for the given aggregates.
func BuildPrompt(req InsightRequest, language string) string {
	if language == "" {
		language = "English"
	}
	dept, year := req.Filter.Label()
	s := req.Stats

	var b strings.Builder
	b.WriteString("You are an environmental data analyst for an organization.\n\n")
	fmt.Fprintf(&b, "Analyze the following paper usage statistics and summarize them in plain %s.\n\n", language)

	b.WriteString("Context:\n")
	fmt.Fprintf(&b, "- Current filter: department %s, year %s\n\n", dept, year)

	b.WriteString("Key statistics:\n")
	fmt.Fprintf(&b, "- Total paper used: %s sheets\n", humanize.Commaf(s.TotalSheetsUsed))
	fmt.Fprintf(&b, "- Print requests: %s\n", humanize.Comma(int64(s.TotalRequests)))
	fmt.Fprintf(&b, "- Average per request: %s sheets\n", humanize.Commaf(s.AverageSheetsPerRequest))
	fmt.Fprintf(&b, "- Most active department: %s\n", s.MostActiveDepartment)
	fmt.Fprintf(&b, "- Sheets saved: %s\n\n", humanize.Commaf(s.SheetsSaved))

	b.WriteString("Environmental impact:\n")
	fmt.Fprintf(&b, "- Trees consumed: %.2f\n", s.TreesConsumed)
	fmt.Fprintf(&b, "- CO2 emitted: %.2f kg\n\n", s.CO2Emitted)

	b.WriteString("Usage by department (top 3):\n")
	if len(req.Departments) == 0 {
		b.WriteString("- no data\n")
	}
	for _, d := range req.Departments {
		fmt.Fprintf(&b, "- %s: %s sheets\n", d.Name, humanize.Commaf(d.Value))
	}

	b.WriteString("\nOutput requirements:\n")
	b.WriteString("1. Overview: a short summary of the current situation.\n")
	b.WriteString("2. Key findings: 2-3 points, such as departments with unusually high usage or how savings are trending.\n")
	b.WriteString("3. Action items: 2 data-driven recommendations to reduce paper use or improve efficiency.\n\n")
	b.WriteString("Tone: formal but friendly, encouraging eco-friendly habits. ")
	b.WriteString("Do not use large headings; use bold text or bullet points only.\n")
	return b.String()
}
