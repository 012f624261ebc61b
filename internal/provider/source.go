// Package provider contains the adapters between the pipeline and external
// job portals: search sources and application submitters.
package provider

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/applyflow/applyflow-be/internal/domain"
)

// Source queries one job portal for listings matching the filters.
type Source interface {
	Name() string
	Search(ctx context.Context, filters domain.SearchFilters) ([]domain.JobListing, error)
}

// HTTPSourceConfig configures one Adzuna-style search API.
type HTTPSourceConfig struct {
	Name     string
	BaseURL  string
	AppID    string
	AppKey   string
	Country  string
	PageSize int
	Timeout  time.Duration
}

// HTTPSource fetches listings from a paged search API.
type HTTPSource struct {
	cfg      HTTPSourceConfig
	client   *resty.Client
	maxPages int
	logger   *slog.Logger
}

// NewHTTPSource creates a source with a shared HTTP client.
func NewHTTPSource(cfg HTTPSourceConfig, logger *slog.Logger) *HTTPSource {
	if cfg.PageSize <= 0 {
		cfg.PageSize = 50
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPSource{
		cfg:      cfg,
		client:   resty.New().SetTimeout(timeout),
		maxPages: 3,
		logger:   logger,
	}
}

// Name returns the portal identifier recorded on each listing.
func (s *HTTPSource) Name() string {
	return s.cfg.Name
}

// Search retrieves listings for the filters, iterating pages until the API
// runs out of results or maxPages is reached.
func (s *HTTPSource) Search(ctx context.Context, filters domain.SearchFilters) ([]domain.JobListing, error) {
	if s.cfg.AppID == "" || s.cfg.AppKey == "" {
		return nil, fmt.Errorf("source %s has no credentials configured", s.cfg.Name)
	}

	var listings []domain.JobListing
	for page := 1; page <= s.maxPages; page++ {
		batch, err := s.fetchPage(ctx, filters, page)
		if err != nil {
			return listings, fmt.Errorf("page %d: %w", page, err)
		}
		if len(batch) == 0 {
			break
		}
		listings = append(listings, batch...)
		if len(batch) < s.cfg.PageSize {
			break
		}
	}
	return listings, nil
}

func (s *HTTPSource) fetchPage(ctx context.Context, filters domain.SearchFilters, page int) ([]domain.JobListing, error) {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Accept", "application/json").
		SetQueryParams(map[string]string{
			"app_id":           s.cfg.AppID,
			"app_key":          s.cfg.AppKey,
			"results_per_page": fmt.Sprintf("%d", s.cfg.PageSize),
			"what":             strings.Join(filters.Keywords, " "),
			"where":            filters.Location,
			"sort_by":          "date",
		}).
		Get(fmt.Sprintf("%s/%s/search/%d", s.cfg.BaseURL, s.cfg.Country, page))
	if err != nil {
		return nil, fmt.Errorf("http GET: %w", err)
	}
	if resp.StatusCode() != 200 {
		return nil, fmt.Errorf("source %s returned %d: %s", s.cfg.Name, resp.StatusCode(), resp.String())
	}

	body := resp.String()
	results := gjson.Get(body, "results").Array()

	listings := make([]domain.JobListing, 0, len(results))
	for _, r := range results {
		listings = append(listings, domain.JobListing{
			ID:              fmt.Sprintf("%s:%s", s.cfg.Name, r.Get("id").String()),
			Title:           r.Get("title").String(),
			Company:         r.Get("company.display_name").String(),
			Location:        r.Get("location.display_name").String(),
			SalaryRange:     salaryRange(r.Get("salary_min").Float(), r.Get("salary_max").Float()),
			JobType:         contractTimeToJobType(r.Get("contract_time").String()),
			WorkArrangement: workArrangementFromText(r.Get("title").String() + " " + r.Get("description").String()),
			Description:     r.Get("description").String(),
			Requirements:    splitRequirements(r.Get("description").String()),
			PostedDate:      parsePostedDate(r.Get("created").String()),
			SourcePortal:    s.cfg.Name,
		})
	}

	s.logger.Debug("Fetched source page",
		slog.String("source", s.cfg.Name),
		slog.Int("page", page),
		slog.Int("results", len(listings)),
	)
	return listings, nil
}

func salaryRange(min, max float64) string {
	if min <= 0 && max <= 0 {
		return ""
	}
	return fmt.Sprintf("%.0f-%.0f", min, max)
}

func contractTimeToJobType(contractTime string) string {
	switch contractTime {
	case "full_time":
		return "full-time"
	case "part_time":
		return "part-time"
	default:
		return contractTime
	}
}

func workArrangementFromText(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "remote"):
		return "remote"
	case strings.Contains(lower, "hybrid"):
		return "hybrid"
	default:
		return "onsite"
	}
}

// splitRequirements pulls short sentence fragments from a description as a
// coarse requirements list; portals rarely expose structured requirements.
func splitRequirements(description string) []string {
	var reqs []string
	for _, line := range strings.Split(description, ".") {
		trimmed := strings.TrimSpace(line)
		lower := strings.ToLower(trimmed)
		if trimmed == "" {
			continue
		}
		if strings.Contains(lower, "experience") || strings.Contains(lower, "required") || strings.Contains(lower, "must") {
			reqs = append(reqs, trimmed)
		}
	}
	return reqs
}

func parsePostedDate(raw string) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05Z", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return time.Time{}
}
