package dashboard

const isoDatePattern = `^\d{4}-\d{2}-\d{2}$`

var defaultViewDefinitions = []ViewDefinition{
	{
		Code:        ViewOverview,
		Title:       "Overview",
		Route:       "/dashboard",
		Description: "Headline KPIs and monthly revenue",
		Position:    0,
		Fetchers: []FetcherDefinition{
			{Name: FetcherSummary, Title: "Key metrics", Chart: ChartKPI, Schema: dateRangeSchema(nil)},
			{
				Name:   FetcherTimeSeries,
				Title:  "Revenue over time",
				Chart:  ChartLine,
				Params: map[string]any{"granularity": GranularityMonth},
				Schema: dateRangeSchema(map[string]any{
					"granularity": map[string]any{"type": "string", "enum": []string{GranularityDay, GranularityMonth}},
				}),
			},
		},
	},
	{
		Code:        ViewCategories,
		Title:       "Categories",
		Route:       "/dashboard/categories",
		Description: "Revenue by product category",
		Position:    1,
		Fetchers: []FetcherDefinition{
			{Name: FetcherCategories, Title: "Revenue by category", Chart: ChartBar, Schema: dateRangeSchema(nil)},
		},
	},
	{
		Code:        ViewRegions,
		Title:       "Regions",
		Route:       "/dashboard/regions",
		Description: "Revenue by state or city",
		Position:    2,
		Fetchers: []FetcherDefinition{
			{
				Name:   FetcherRegions,
				Title:  "Revenue by region",
				Chart:  ChartBar,
				Params: map[string]any{"level": LevelState},
				Schema: dateRangeSchema(map[string]any{
					"level": map[string]any{"type": "string", "enum": []string{LevelState, LevelCity}},
				}),
			},
		},
	},
	{
		Code:        ViewForecast,
		Title:       "Forecast",
		Route:       "/dashboard/forecast",
		Description: "Linear revenue forecast",
		Position:    3,
		Fetchers: []FetcherDefinition{
			{
				Name:   FetcherForecast,
				Title:  "Revenue forecast",
				Chart:  ChartForecast,
				Params: map[string]any{"h": DefaultForecastHorizon, "model": ForecastModelLinear},
				Schema: dateRangeSchema(map[string]any{
					"h":     map[string]any{"type": "integer", "minimum": MinForecastHorizon, "maximum": MaxForecastHorizon},
					"model": map[string]any{"type": "string", "enum": []string{ForecastModelLinear}},
				}),
			},
		},
	},
}

// DefaultViewDefinitions returns copies of the built-in views.
func DefaultViewDefinitions() []ViewDefinition {
	out := make([]ViewDefinition, len(defaultViewDefinitions))
	for i, def := range defaultViewDefinitions {
		def.Fetchers = append([]FetcherDefinition(nil), def.Fetchers...)
		out[i] = def
	}
	return out
}

func dateRangeSchema(extra map[string]any) map[string]any {
	props := map[string]any{
		"start_date": map[string]any{"type": "string", "pattern": isoDatePattern},
		"end_date":   map[string]any{"type": "string", "pattern": isoDatePattern},
	}
	for k, v := range extra {
		props[k] = v
	}
	return map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
}
