package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
)

// DateRange narrows analytics queries to an inclusive ISO date window.
type DateRange struct {
	StartDate string `json:"start_date,omitempty"`
	EndDate   string `json:"end_date,omitempty"`
}

// AnalyticsQuery is the filter part shared by every analytics endpoint.
type AnalyticsQuery struct {
	Filters FilterSelection
	DateRange
}

// TimeSeriesQuery adds the bucket size.
type TimeSeriesQuery struct {
	AnalyticsQuery
	Granularity string
}

// RegionQuery adds the aggregation level.
type RegionQuery struct {
	AnalyticsQuery
	Level string
}

// ForecastQuery adds the horizon and model.
type ForecastQuery struct {
	AnalyticsQuery
	Horizon int
	Model   string
}

// KPIReport carries the headline metrics. MoMDeltaPct is nil when the
// previous month had no revenue.
type KPIReport struct {
	TotalRevenue     float64  `json:"total_revenue"`
	TotalOrders      int64    `json:"total_orders"`
	AvgOrderValue    float64  `json:"avg_order_value"`
	TotalQuantity    int64    `json:"total_quantity"`
	LastMonthRevenue float64  `json:"last_month_revenue"`
	MoMDelta         float64  `json:"mom_delta"`
	MoMDeltaPct      *float64 `json:"mom_delta_pct"`
}

// SeriesPoint is a single dated value.
type SeriesPoint struct {
	Date  string  `json:"date"`
	Value float64 `json:"value"`
}

// TimeSeriesReport is revenue bucketed by granularity.
type TimeSeriesReport struct {
	Granularity string        `json:"granularity"`
	Points      []SeriesPoint `json:"points"`
}

// BreakdownItem is a labeled value of a breakdown chart.
type BreakdownItem struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}

// CategoryReport is revenue per category.
type CategoryReport struct {
	Items []BreakdownItem `json:"items"`
}

// RegionReport is revenue per state or city.
type RegionReport struct {
	Level string          `json:"level"`
	Items []BreakdownItem `json:"items"`
}

// ForecastReport pairs the observed history with the projected values.
type ForecastReport struct {
	Horizon  int           `json:"h"`
	Model    string        `json:"model"`
	History  []SeriesPoint `json:"history"`
	Forecast []SeriesPoint `json:"forecast"`
}

// KPIRepository loads headline metrics.
type KPIRepository interface {
	FetchKPIs(ctx context.Context, query AnalyticsQuery) (KPIReport, error)
}

// TimeSeriesRepository loads revenue over time.
type TimeSeriesRepository interface {
	FetchTimeSeries(ctx context.Context, query TimeSeriesQuery) (TimeSeriesReport, error)
}

// CategoryRepository loads the category breakdown.
type CategoryRepository interface {
	FetchCategories(ctx context.Context, query AnalyticsQuery) (CategoryReport, error)
}

// RegionRepository loads the regional breakdown.
type RegionRepository interface {
	FetchRegions(ctx context.Context, query RegionQuery) (RegionReport, error)
}

// ForecastRepository loads the linear forecast.
type ForecastRepository interface {
	FetchForecast(ctx context.Context, query ForecastQuery) (ForecastReport, error)
}

// Repositories groups the remote collaborators of every view.
type Repositories struct {
	Catalog    CatalogRepository
	KPIs       KPIRepository
	TimeSeries TimeSeriesRepository
	Categories CategoryRepository
	Regions    RegionRepository
	Forecast   ForecastRepository
}

// AnalyticsBackend is implemented by clients that serve every endpoint.
type AnalyticsBackend interface {
	CatalogRepository
	KPIRepository
	TimeSeriesRepository
	CategoryRepository
	RegionRepository
	ForecastRepository
}

// RepositoriesFrom wires a single backend into every slot.
func RepositoriesFrom(backend AnalyticsBackend) Repositories {
	return Repositories{
		Catalog:    backend,
		KPIs:       backend,
		TimeSeries: backend,
		Categories: backend,
		Regions:    backend,
		Forecast:   backend,
	}
}

// SummaryParams configures the KPI fetcher.
type SummaryParams struct {
	DateRange
}

// TimeSeriesParams configures the time series fetcher.
type TimeSeriesParams struct {
	DateRange
	Granularity string `json:"granularity"`
}

// CategoryParams configures the category breakdown fetcher.
type CategoryParams struct {
	DateRange
}

// RegionParams configures the region breakdown fetcher.
type RegionParams struct {
	DateRange
	Level string `json:"level"`
}

// ForecastParams configures the forecast fetcher.
type ForecastParams struct {
	DateRange
	Horizon int    `json:"h"`
	Model   string `json:"model"`
}

const (
	GranularityDay   = "day"
	GranularityMonth = "month"

	LevelState = "state"
	LevelCity  = "city"

	ForecastModelLinear    = "linear"
	DefaultForecastHorizon = 3
	MinForecastHorizon     = 1
	MaxForecastHorizon     = 12
)

func normalizeTimeSeriesParams(p TimeSeriesParams) TimeSeriesParams {
	if p.Granularity != GranularityDay {
		p.Granularity = GranularityMonth
	}
	return p
}

func normalizeRegionParams(p RegionParams) RegionParams {
	if p.Level != LevelCity {
		p.Level = LevelState
	}
	return p
}

func normalizeForecastParams(p ForecastParams) ForecastParams {
	switch {
	case p.Horizon == 0:
		p.Horizon = DefaultForecastHorizon
	case p.Horizon < MinForecastHorizon:
		p.Horizon = MinForecastHorizon
	case p.Horizon > MaxForecastHorizon:
		p.Horizon = MaxForecastHorizon
	}
	if p.Model == "" {
		p.Model = ForecastModelLinear
	}
	return p
}

// NewFetcher builds the fetcher registered under name, seeded with the
// definition's default params.
func (r Repositories) NewFetcher(name string, defaults map[string]any, telemetry Telemetry) (ViewFetcher, error) {
	switch name {
	case FetcherSummary:
		params, err := decodeParams[SummaryParams](name, defaults)
		if err != nil {
			return nil, err
		}
		return NewFetcher(name, params, func(ctx context.Context, sel FilterSelection, p SummaryParams) (KPIReport, error) {
			if r.KPIs == nil {
				return KPIReport{}, missingRepository(name)
			}
			return r.KPIs.FetchKPIs(ctx, AnalyticsQuery{Filters: sel, DateRange: p.DateRange})
		}, telemetry), nil
	case FetcherTimeSeries:
		params, err := decodeParams[TimeSeriesParams](name, defaults)
		if err != nil {
			return nil, err
		}
		return NewFetcher(name, params, func(ctx context.Context, sel FilterSelection, p TimeSeriesParams) (TimeSeriesReport, error) {
			if r.TimeSeries == nil {
				return TimeSeriesReport{}, missingRepository(name)
			}
			return r.TimeSeries.FetchTimeSeries(ctx, TimeSeriesQuery{
				AnalyticsQuery: AnalyticsQuery{Filters: sel, DateRange: p.DateRange},
				Granularity:    p.Granularity,
			})
		}, telemetry).WithNormalizer(normalizeTimeSeriesParams), nil
	case FetcherCategories:
		params, err := decodeParams[CategoryParams](name, defaults)
		if err != nil {
			return nil, err
		}
		return NewFetcher(name, params, func(ctx context.Context, sel FilterSelection, p CategoryParams) (CategoryReport, error) {
			if r.Categories == nil {
				return CategoryReport{}, missingRepository(name)
			}
			return r.Categories.FetchCategories(ctx, AnalyticsQuery{Filters: sel, DateRange: p.DateRange})
		}, telemetry), nil
	case FetcherRegions:
		params, err := decodeParams[RegionParams](name, defaults)
		if err != nil {
			return nil, err
		}
		return NewFetcher(name, params, func(ctx context.Context, sel FilterSelection, p RegionParams) (RegionReport, error) {
			if r.Regions == nil {
				return RegionReport{}, missingRepository(name)
			}
			return r.Regions.FetchRegions(ctx, RegionQuery{
				AnalyticsQuery: AnalyticsQuery{Filters: sel, DateRange: p.DateRange},
				Level:          p.Level,
			})
		}, telemetry).WithNormalizer(normalizeRegionParams), nil
	case FetcherForecast:
		params, err := decodeParams[ForecastParams](name, defaults)
		if err != nil {
			return nil, err
		}
		return NewFetcher(name, params, func(ctx context.Context, sel FilterSelection, p ForecastParams) (ForecastReport, error) {
			if r.Forecast == nil {
				return ForecastReport{}, missingRepository(name)
			}
			return r.Forecast.FetchForecast(ctx, ForecastQuery{
				AnalyticsQuery: AnalyticsQuery{Filters: sel, DateRange: p.DateRange},
				Horizon:        p.Horizon,
				Model:          p.Model,
			})
		}, telemetry).WithNormalizer(normalizeForecastParams), nil
	}
	return nil, fmt.Errorf("dashboard: unknown fetcher %q", name)
}

func decodeParams[P any](name string, raw map[string]any) (P, error) {
	var params P
	if len(raw) == 0 {
		return params, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return params, fmt.Errorf("dashboard: encode %s params: %w", name, err)
	}
	if err := json.Unmarshal(data, &params); err != nil {
		return params, fmt.Errorf("dashboard: decode %s params: %w", name, err)
	}
	return params, nil
}

func missingRepository(name string) error {
	return fmt.Errorf("dashboard: %s repository not configured", name)
}
