package analytics

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// DefaultTimeout bounds every analytics request.
const DefaultTimeout = 15 * time.Second

// HTTPConfig configures the HTTP analytics client.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// HTTPClient talks to the analytics REST API.
type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ Client = (*HTTPClient)(nil)

// NewHTTPClient builds a client for the analytics API at cfg.BaseURL.
func NewHTTPClient(cfg HTTPConfig) (*HTTPClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("analytics: base url is required")
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("analytics: invalid base url: %w", err)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		client:  httpClient,
	}, nil
}

// FetchCatalog implements dashboard.CatalogRepository via GET /filters.
func (c *HTTPClient) FetchCatalog(ctx context.Context) (dashboard.FilterCatalog, error) {
	var resp filtersResponse
	if err := c.get(ctx, "/filters", nil, &resp); err != nil {
		return dashboard.FilterCatalog{}, err
	}
	return resp.toCatalog(), nil
}

// FetchKPIs implements dashboard.KPIRepository via GET /kpis.
func (c *HTTPClient) FetchKPIs(ctx context.Context, query dashboard.AnalyticsQuery) (dashboard.KPIReport, error) {
	var report dashboard.KPIReport
	if err := c.get(ctx, "/kpis", filterParams(query), &report); err != nil {
		return dashboard.KPIReport{}, err
	}
	return report, nil
}

// FetchTimeSeries implements dashboard.TimeSeriesRepository via GET /timeseries.
func (c *HTTPClient) FetchTimeSeries(ctx context.Context, query dashboard.TimeSeriesQuery) (dashboard.TimeSeriesReport, error) {
	params := filterParams(query.AnalyticsQuery)
	if query.Granularity != "" {
		params.Set("granularity", query.Granularity)
	}
	var resp struct {
		Points []dashboard.SeriesPoint `json:"points"`
	}
	if err := c.get(ctx, "/timeseries", params, &resp); err != nil {
		return dashboard.TimeSeriesReport{}, err
	}
	return dashboard.TimeSeriesReport{Granularity: query.Granularity, Points: nonNilPoints(resp.Points)}, nil
}

// FetchCategories implements dashboard.CategoryRepository via GET /categories.
func (c *HTTPClient) FetchCategories(ctx context.Context, query dashboard.AnalyticsQuery) (dashboard.CategoryReport, error) {
	var resp breakdownResponse
	if err := c.get(ctx, "/categories", filterParams(query), &resp); err != nil {
		return dashboard.CategoryReport{}, err
	}
	return dashboard.CategoryReport{Items: resp.items()}, nil
}

// FetchRegions implements dashboard.RegionRepository via GET /regions.
func (c *HTTPClient) FetchRegions(ctx context.Context, query dashboard.RegionQuery) (dashboard.RegionReport, error) {
	params := filterParams(query.AnalyticsQuery)
	if query.Level != "" {
		params.Set("level", query.Level)
	}
	var resp breakdownResponse
	if err := c.get(ctx, "/regions", params, &resp); err != nil {
		return dashboard.RegionReport{}, err
	}
	return dashboard.RegionReport{Level: query.Level, Items: resp.items()}, nil
}

// FetchForecast implements dashboard.ForecastRepository via GET /forecast.
func (c *HTTPClient) FetchForecast(ctx context.Context, query dashboard.ForecastQuery) (dashboard.ForecastReport, error) {
	params := filterParams(query.AnalyticsQuery)
	if query.Horizon > 0 {
		params.Set("h", strconv.Itoa(query.Horizon))
	}
	if query.Model != "" {
		params.Set("model", query.Model)
	}
	var resp struct {
		History  []dashboard.SeriesPoint `json:"history"`
		Forecast []dashboard.SeriesPoint `json:"forecast"`
	}
	if err := c.get(ctx, "/forecast", params, &resp); err != nil {
		return dashboard.ForecastReport{}, err
	}
	return dashboard.ForecastReport{
		Horizon:  query.Horizon,
		Model:    query.Model,
		History:  nonNilPoints(resp.History),
		Forecast: nonNilPoints(resp.Forecast),
	}, nil
}

// SendContact implements dashboard.ContactSender via POST /contact.
func (c *HTTPClient) SendContact(ctx context.Context, msg dashboard.ContactMessage) error {
	return c.do(ctx, http.MethodPost, "/contact", nil, msg, nil)
}

// Health implements HealthChecker via GET /health.
func (c *HTTPClient) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/health", nil, &resp); err != nil {
		return err
	}
	if resp.Status != "ok" {
		return fmt.Errorf("analytics: health status %q", resp.Status)
	}
	return nil
}

func (c *HTTPClient) get(ctx context.Context, path string, params url.Values, target any) error {
	return c.do(ctx, http.MethodGet, path, params, nil, target)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, params url.Values, payload any, target any) error {
	endpoint := c.baseURL + path
	if len(params) > 0 {
		endpoint += "?" + params.Encode()
	}
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("analytics: encode payload: %w", err)
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("analytics: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("analytics: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("analytics: %s %s: remote error %d: %s", method, path, resp.StatusCode, strings.TrimSpace(buf.String()))
	}
	if target == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("analytics: decode %s: %w", path, err)
	}
	return nil
}

// filterParams encodes the selection as repeated keys plus the date window.
func filterParams(query dashboard.AnalyticsQuery) url.Values {
	params := url.Values{}
	for _, facet := range dashboard.Facets() {
		for _, value := range query.Filters.Values(facet) {
			params.Add(string(facet), value)
		}
	}
	if query.StartDate != "" {
		params.Set("start_date", query.StartDate)
	}
	if query.EndDate != "" {
		params.Set("end_date", query.EndDate)
	}
	return params
}

type filtersResponse struct {
	Categories    []string            `json:"categories"`
	States        []string            `json:"states"`
	Cities        []string            `json:"cities"`
	CitiesByState map[string][]string `json:"cities_by_state"`
	DateMin       string              `json:"date_min"`
	DateMax       string              `json:"date_max"`
}

// toCatalog tolerates missing fields; each one becomes empty.
func (r filtersResponse) toCatalog() dashboard.FilterCatalog {
	catalog := dashboard.EmptyCatalog()
	if r.Categories != nil {
		catalog.Categories = r.Categories
	}
	if r.States != nil {
		catalog.States = r.States
	}
	if r.Cities != nil {
		catalog.Cities = r.Cities
	}
	for state, cities := range r.CitiesByState {
		catalog.CitiesByState[state] = append([]string{}, cities...)
	}
	catalog.DateMin = r.DateMin
	catalog.DateMax = r.DateMax
	return catalog
}

type breakdownRow struct {
	Name     string  `json:"name"`
	Category string  `json:"Category"`
	Value    float64 `json:"value"`
}

type breakdownResponse struct {
	Items []breakdownRow `json:"items"`
}

// items accepts either "name" or "Category" as the label key.
func (r breakdownResponse) items() []dashboard.BreakdownItem {
	out := make([]dashboard.BreakdownItem, 0, len(r.Items))
	for _, row := range r.Items {
		name := row.Name
		if name == "" {
			name = row.Category
		}
		out = append(out, dashboard.BreakdownItem{Name: name, Value: row.Value})
	}
	return out
}

func nonNilPoints(points []dashboard.SeriesPoint) []dashboard.SeriesPoint {
	if points == nil {
		return []dashboard.SeriesPoint{}
	}
	return points
}
