package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type keyRecordingCache struct {
	keys []string
}

func (c *keyRecordingCache) GetOrRender(key string, render func() (string, error)) (string, error) {
	c.keys = append(c.keys, key)
	return render()
}

func TestEChartsRendererSkipsUnsettledAndKPI(t *testing.T) {
	r := NewEChartsRenderer(WithChartCache(nil))
	line := FetcherDefinition{Name: FetcherTimeSeries, Chart: ChartLine}

	html, err := r.RenderChart(ViewOverview, line, FetchSnapshot{State: FetchPending})
	require.NoError(t, err)
	assert.Empty(t, html)

	html, err = r.RenderChart(ViewOverview, line, FetchSnapshot{State: FetchFailed, Error: "boom"})
	require.NoError(t, err)
	assert.Empty(t, html)

	kpi := FetcherDefinition{Name: FetcherSummary, Chart: ChartKPI}
	html, err = r.RenderChart(ViewOverview, kpi, FetchSnapshot{State: FetchReady, Value: KPIReport{}})
	require.NoError(t, err)
	assert.Empty(t, html)
}

func TestEChartsRendererDrawsReports(t *testing.T) {
	r := NewEChartsRenderer(WithChartCache(nil))
	cases := []struct {
		view  ViewCode
		def   FetcherDefinition
		value any
		id    string
	}{
		{
			view:  ViewOverview,
			def:   FetcherDefinition{Name: FetcherTimeSeries, Title: "Revenue over time", Chart: ChartLine},
			value: TimeSeriesReport{Granularity: GranularityMonth, Points: []SeriesPoint{{Date: "2022-01", Value: 10}, {Date: "2022-02", Value: 12}}},
			id:    "overview_timeseries_chart",
		},
		{
			view:  ViewCategories,
			def:   FetcherDefinition{Name: FetcherCategories, Title: "Revenue by category", Chart: ChartBar},
			value: CategoryReport{Items: []BreakdownItem{{Name: "Set", Value: 5}}},
			id:    "categories_categories_chart",
		},
		{
			view:  ViewRegions,
			def:   FetcherDefinition{Name: FetcherRegions, Title: "Revenue by region", Chart: ChartBar},
			value: RegionReport{Level: LevelCity, Items: []BreakdownItem{{Name: "Buffalo", Value: 7}}},
			id:    "regions_regions_chart",
		},
		{
			view: ViewForecast,
			def:  FetcherDefinition{Name: FetcherForecast, Title: "Revenue forecast", Chart: ChartForecast},
			value: ForecastReport{
				Horizon:  1,
				Model:    ForecastModelLinear,
				History:  []SeriesPoint{{Date: "2022-01", Value: 10}},
				Forecast: []SeriesPoint{{Date: "2022-02", Value: 11}},
			},
			id: "forecast_forecast_chart",
		},
	}
	for _, tc := range cases {
		html, err := r.RenderChart(tc.view, tc.def, FetchSnapshot{State: FetchReady, Value: tc.value})
		require.NoError(t, err, tc.id)
		assert.Contains(t, html, tc.id)
		assert.Contains(t, html, tc.def.Title)
	}
}

func TestEChartsRendererRejectsMismatchedValues(t *testing.T) {
	r := NewEChartsRenderer(WithChartCache(nil))
	_, err := r.RenderChart(ViewOverview, FetcherDefinition{Name: FetcherTimeSeries, Chart: ChartLine}, FetchSnapshot{State: FetchReady, Value: CategoryReport{}})
	assert.Error(t, err)
	_, err = r.RenderChart(ViewOverview, FetcherDefinition{Name: "pie", Chart: "pie"}, FetchSnapshot{State: FetchReady, Value: CategoryReport{}})
	assert.Error(t, err)
}

func TestEChartsRendererCacheKeyFollowsValue(t *testing.T) {
	cache := &keyRecordingCache{}
	r := NewEChartsRenderer(WithChartCache(cache), WithChartTheme("dark"))
	def := FetcherDefinition{Name: FetcherCategories, Chart: ChartBar}

	first := CategoryReport{Items: []BreakdownItem{{Name: "Set", Value: 5}}}
	second := CategoryReport{Items: []BreakdownItem{{Name: "Set", Value: 6}}}
	for _, value := range []CategoryReport{first, first, second} {
		_, err := r.RenderChart(ViewCategories, def, FetchSnapshot{State: FetchReady, Value: value})
		require.NoError(t, err)
	}
	require.Len(t, cache.keys, 3)
	assert.Equal(t, cache.keys[0], cache.keys[1])
	assert.NotEqual(t, cache.keys[1], cache.keys[2])
	assert.Contains(t, cache.keys[0], "dark")
}
