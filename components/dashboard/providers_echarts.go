package dashboard

import (
	"bytes"
	"fmt"
	"io"
	"time"

	"github.com/ettle/strcase"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/go-echarts/go-echarts/v2/types"
)

const defaultChartHeight = "360px"

// emptyPoint is the ECharts placeholder for a missing value.
const emptyPoint = "-"

var sharedChartCache = NewChartCache(5 * time.Minute)

// ChartRenderer turns a settled fetcher slot into chart markup.
type ChartRenderer interface {
	RenderChart(view ViewCode, def FetcherDefinition, snap FetchSnapshot) (string, error)
}

// EChartsRenderer renders server-side chart HTML with go-echarts.
type EChartsRenderer struct {
	cache      RenderCache
	theme      string
	assetsHost string
}

// EChartsRendererOption customizes renderer behavior.
type EChartsRendererOption func(*EChartsRenderer)

// WithChartCache injects a render cache.
func WithChartCache(cache RenderCache) EChartsRendererOption {
	return func(r *EChartsRenderer) {
		r.cache = cache
	}
}

// WithChartTheme sets a static theme (defaults to Westeros).
func WithChartTheme(theme string) EChartsRendererOption {
	return func(r *EChartsRenderer) {
		if theme != "" {
			r.theme = theme
		}
	}
}

// WithChartAssetsHost rewrites the assets host so ECharts JS loads from a CDN.
func WithChartAssetsHost(host string) EChartsRendererOption {
	return func(r *EChartsRenderer) {
		r.assetsHost = host
	}
}

// NewEChartsRenderer builds a renderer.
func NewEChartsRenderer(options ...EChartsRendererOption) *EChartsRenderer {
	r := &EChartsRenderer{
		cache: sharedChartCache,
		theme: types.ThemeWesteros,
	}
	for _, opt := range options {
		opt(r)
	}
	return r
}

// RenderChart returns the chart HTML for a ready slot. Pending and failed
// slots, and KPI fetchers, render nothing.
func (r *EChartsRenderer) RenderChart(view ViewCode, def FetcherDefinition, snap FetchSnapshot) (string, error) {
	if snap.State != FetchReady || def.Chart == ChartKPI || def.Chart == "" {
		return "", nil
	}
	chartID := strcase.ToSnake(fmt.Sprintf("%s %s chart", view, def.Name))
	render := func() (string, error) {
		return r.render(chartID, def, snap.Value)
	}
	if r.cache == nil {
		return render()
	}
	key := fmt.Sprintf("%s:%s:%s:%s", chartID, def.Chart, r.theme, contentHash(snap.Value))
	return r.cache.GetOrRender(key, render)
}

func (r *EChartsRenderer) render(chartID string, def FetcherDefinition, value any) (string, error) {
	title := def.Title
	switch def.Chart {
	case ChartLine:
		report, ok := value.(TimeSeriesReport)
		if !ok {
			return "", unexpectedValue(def, value)
		}
		return r.renderLine(chartID, title, report)
	case ChartBar:
		switch report := value.(type) {
		case CategoryReport:
			return r.renderBar(chartID, title, "Revenue", report.Items)
		case RegionReport:
			subtitle := "By " + report.Level
			return r.renderBar(chartID, title, subtitle, report.Items)
		}
		return "", unexpectedValue(def, value)
	case ChartForecast:
		report, ok := value.(ForecastReport)
		if !ok {
			return "", unexpectedValue(def, value)
		}
		return r.renderForecast(chartID, title, report)
	}
	return "", fmt.Errorf("dashboard: unsupported chart type %q", def.Chart)
}

func (r *EChartsRenderer) renderLine(chartID, title string, report TimeSeriesReport) (string, error) {
	line := charts.NewLine()
	line.SetGlobalOptions(r.globalChartOptions(chartID, title, "Revenue per "+report.Granularity)...)
	labels := make([]string, len(report.Points))
	data := make([]opts.LineData, len(report.Points))
	for i, point := range report.Points {
		labels[i] = point.Date
		data[i] = opts.LineData{Name: point.Date, Value: point.Value}
	}
	line.SetXAxis(labels)
	line.AddSeries("Revenue", data)
	line.SetSeriesOptions(charts.WithLineChartOpts(opts.LineChart{Smooth: opts.Bool(true)}))
	return renderChart(line)
}

func (r *EChartsRenderer) renderBar(chartID, title, subtitle string, items []BreakdownItem) (string, error) {
	bar := charts.NewBar()
	bar.SetGlobalOptions(r.globalChartOptions(chartID, title, subtitle)...)
	labels := make([]string, len(items))
	data := make([]opts.BarData, len(items))
	for i, item := range items {
		labels[i] = item.Name
		data[i] = opts.BarData{Name: item.Name, Value: item.Value}
	}
	bar.SetXAxis(labels)
	bar.AddSeries("Revenue", data)
	return renderChart(bar)
}

// renderForecast draws history and forecast on one axis. The forecast series
// starts at the last observed point so the two lines connect.
func (r *EChartsRenderer) renderForecast(chartID, title string, report ForecastReport) (string, error) {
	line := charts.NewLine()
	subtitle := fmt.Sprintf("%s model, %d periods ahead", report.Model, report.Horizon)
	line.SetGlobalOptions(r.globalChartOptions(chartID, title, subtitle)...)

	total := len(report.History) + len(report.Forecast)
	labels := make([]string, 0, total)
	history := make([]opts.LineData, 0, total)
	forecast := make([]opts.LineData, 0, total)
	for i, point := range report.History {
		labels = append(labels, point.Date)
		history = append(history, opts.LineData{Name: point.Date, Value: point.Value})
		if i == len(report.History)-1 {
			forecast = append(forecast, opts.LineData{Name: point.Date, Value: point.Value})
			continue
		}
		forecast = append(forecast, opts.LineData{Value: emptyPoint})
	}
	for _, point := range report.Forecast {
		labels = append(labels, point.Date)
		history = append(history, opts.LineData{Value: emptyPoint})
		forecast = append(forecast, opts.LineData{Name: point.Date, Value: point.Value})
	}
	line.SetXAxis(labels)
	line.AddSeries("History", history)
	line.AddSeries("Forecast", forecast, charts.WithLineStyleOpts(opts.LineStyle{Type: "dashed"}))
	return renderChart(line)
}

func renderChart(renderable interface{ Render(io.Writer) error }) (string, error) {
	var buf bytes.Buffer
	if err := renderable.Render(&buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func (r *EChartsRenderer) globalChartOptions(chartID, title, subtitle string) []charts.GlobalOpts {
	initOpts := opts.Initialization{
		ChartID: chartID,
		Theme:   r.theme,
		Width:   "100%",
		Height:  defaultChartHeight,
	}
	if r.assetsHost != "" {
		initOpts.AssetsHost = r.assetsHost
	}
	return []charts.GlobalOpts{
		charts.WithTitleOpts(opts.Title{Title: title, Subtitle: subtitle}),
		charts.WithInitializationOpts(initOpts),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithToolboxOpts(opts.Toolbox{Show: opts.Bool(true)}),
	}
}

func unexpectedValue(def FetcherDefinition, value any) error {
	return fmt.Errorf("dashboard: %s chart cannot draw %T from fetcher %s", def.Chart, value, def.Name)
}
