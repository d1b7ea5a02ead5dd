package analytics

import (
	"context"
	"sort"
	"sync"
	"time"

	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// Order is one sales row of the demo dataset.
type Order struct {
	Date     time.Time
	Category string
	State    string
	City     string
	Amount   float64
	Qty      int64
}

// MockClient implements Client over an in-memory order list. It backs local
// demos and tests.
type MockClient struct {
	mu       sync.RWMutex
	orders   []Order
	contacts []dashboard.ContactMessage
	err      error
}

var _ Client = (*MockClient)(nil)

// NewMockClient builds a mock client. With no orders it serves DemoOrders.
func NewMockClient(orders ...Order) *MockClient {
	if len(orders) == 0 {
		orders = DemoOrders()
	}
	return &MockClient{orders: append([]Order(nil), orders...)}
}

// FailWith makes every call return err until reset with nil.
func (c *MockClient) FailWith(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.err = err
}

// Contacts returns the messages received so far.
func (c *MockClient) Contacts() []dashboard.ContactMessage {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]dashboard.ContactMessage(nil), c.contacts...)
}

// FetchCatalog derives the filter catalog from the orders.
func (c *MockClient) FetchCatalog(context.Context) (dashboard.FilterCatalog, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return dashboard.FilterCatalog{}, c.err
	}
	catalog := dashboard.EmptyCatalog()
	categories, states, cities := map[string]struct{}{}, map[string]struct{}{}, map[string]struct{}{}
	byState := map[string]map[string]struct{}{}
	var minDate, maxDate time.Time
	for i, o := range c.orders {
		categories[o.Category] = struct{}{}
		states[o.State] = struct{}{}
		cities[o.City] = struct{}{}
		if byState[o.State] == nil {
			byState[o.State] = map[string]struct{}{}
		}
		byState[o.State][o.City] = struct{}{}
		if i == 0 || o.Date.Before(minDate) {
			minDate = o.Date
		}
		if i == 0 || o.Date.After(maxDate) {
			maxDate = o.Date
		}
	}
	catalog.Categories = sortedKeys(categories)
	catalog.States = sortedKeys(states)
	catalog.Cities = sortedKeys(cities)
	for state, set := range byState {
		catalog.CitiesByState[state] = sortedKeys(set)
	}
	if len(c.orders) > 0 {
		catalog.DateMin = minDate.Format(time.DateOnly)
		catalog.DateMax = maxDate.Format(time.DateOnly)
	}
	return catalog, nil
}

// FetchKPIs aggregates the headline metrics of the matching orders.
func (c *MockClient) FetchKPIs(_ context.Context, query dashboard.AnalyticsQuery) (dashboard.KPIReport, error) {
	orders, err := c.matching(query)
	if err != nil {
		return dashboard.KPIReport{}, err
	}
	var report dashboard.KPIReport
	for _, o := range orders {
		report.TotalRevenue += o.Amount
		report.TotalQuantity += o.Qty
	}
	report.TotalOrders = int64(len(orders))
	if report.TotalOrders > 0 {
		report.AvgOrderValue = report.TotalRevenue / float64(report.TotalOrders)
	}
	monthly := bucket(orders, dashboard.GranularityMonth)
	if n := len(monthly); n > 0 {
		report.LastMonthRevenue = monthly[n-1].Value
		prev := 0.0
		if n > 1 {
			prev = monthly[n-2].Value
		}
		report.MoMDelta = report.LastMonthRevenue - prev
		if prev != 0 {
			pct := report.MoMDelta / prev * 100
			report.MoMDeltaPct = &pct
		}
	}
	return report, nil
}

// FetchTimeSeries buckets revenue by day or month.
func (c *MockClient) FetchTimeSeries(_ context.Context, query dashboard.TimeSeriesQuery) (dashboard.TimeSeriesReport, error) {
	orders, err := c.matching(query.AnalyticsQuery)
	if err != nil {
		return dashboard.TimeSeriesReport{}, err
	}
	return dashboard.TimeSeriesReport{Granularity: query.Granularity, Points: bucket(orders, query.Granularity)}, nil
}

// FetchCategories sums revenue per category, largest first.
func (c *MockClient) FetchCategories(_ context.Context, query dashboard.AnalyticsQuery) (dashboard.CategoryReport, error) {
	orders, err := c.matching(query)
	if err != nil {
		return dashboard.CategoryReport{}, err
	}
	return dashboard.CategoryReport{Items: breakdown(orders, func(o Order) string { return o.Category })}, nil
}

// FetchRegions sums revenue per state or city, largest first.
func (c *MockClient) FetchRegions(_ context.Context, query dashboard.RegionQuery) (dashboard.RegionReport, error) {
	orders, err := c.matching(query.AnalyticsQuery)
	if err != nil {
		return dashboard.RegionReport{}, err
	}
	label := func(o Order) string { return o.State }
	if query.Level == dashboard.LevelCity {
		label = func(o Order) string { return o.City }
	}
	return dashboard.RegionReport{Level: query.Level, Items: breakdown(orders, label)}, nil
}

// FetchForecast returns monthly history and extends the last month-over-month
// step across the horizon. It is a placeholder for the API's model.
func (c *MockClient) FetchForecast(_ context.Context, query dashboard.ForecastQuery) (dashboard.ForecastReport, error) {
	orders, err := c.matching(query.AnalyticsQuery)
	if err != nil {
		return dashboard.ForecastReport{}, err
	}
	report := dashboard.ForecastReport{
		Horizon:  query.Horizon,
		Model:    query.Model,
		History:  bucket(orders, dashboard.GranularityMonth),
		Forecast: []dashboard.SeriesPoint{},
	}
	n := len(report.History)
	if n == 0 {
		return report, nil
	}
	last := report.History[n-1]
	step := 0.0
	if n > 1 {
		step = last.Value - report.History[n-2].Value
	}
	start, err := time.Parse(time.DateOnly, last.Date)
	if err != nil {
		return dashboard.ForecastReport{}, err
	}
	for i := 1; i <= query.Horizon; i++ {
		report.Forecast = append(report.Forecast, dashboard.SeriesPoint{
			Date:  start.AddDate(0, i, 0).Format(time.DateOnly),
			Value: last.Value + step*float64(i),
		})
	}
	return report, nil
}

// SendContact records the message.
func (c *MockClient) SendContact(_ context.Context, msg dashboard.ContactMessage) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.contacts = append(c.contacts, msg)
	return nil
}

// Health reports the configured failure, if any.
func (c *MockClient) Health(context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.err
}

func (c *MockClient) matching(query dashboard.AnalyticsQuery) ([]Order, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	categories := setOf(query.Filters.Values(dashboard.FacetCategories))
	states := setOf(query.Filters.Values(dashboard.FacetStates))
	cities := setOf(query.Filters.Values(dashboard.FacetCities))
	var start, end time.Time
	if query.StartDate != "" {
		start, _ = time.Parse(time.DateOnly, query.StartDate)
	}
	if query.EndDate != "" {
		end, _ = time.Parse(time.DateOnly, query.EndDate)
	}
	out := make([]Order, 0, len(c.orders))
	for _, o := range c.orders {
		if !allowed(categories, o.Category) || !allowed(states, o.State) || !allowed(cities, o.City) {
			continue
		}
		if !start.IsZero() && o.Date.Before(start) {
			continue
		}
		if !end.IsZero() && o.Date.After(end) {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

func bucket(orders []Order, granularity string) []dashboard.SeriesPoint {
	totals := map[string]float64{}
	for _, o := range orders {
		key := o.Date.Format(time.DateOnly)
		if granularity != dashboard.GranularityDay {
			key = time.Date(o.Date.Year(), o.Date.Month(), 1, 0, 0, 0, 0, time.UTC).Format(time.DateOnly)
		}
		totals[key] += o.Amount
	}
	points := make([]dashboard.SeriesPoint, 0, len(totals))
	for _, date := range sortedKeys(totals) {
		points = append(points, dashboard.SeriesPoint{Date: date, Value: totals[date]})
	}
	return points
}

func breakdown(orders []Order, label func(Order) string) []dashboard.BreakdownItem {
	totals := map[string]float64{}
	for _, o := range orders {
		totals[label(o)] += o.Amount
	}
	items := make([]dashboard.BreakdownItem, 0, len(totals))
	for name, value := range totals {
		items = append(items, dashboard.BreakdownItem{Name: name, Value: value})
	}
	sort.Slice(items, func(i, j int) bool {
		if items[i].Value != items[j].Value {
			return items[i].Value > items[j].Value
		}
		return items[i].Name < items[j].Name
	})
	return items
}

func setOf(values []string) map[string]struct{} {
	if len(values) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

// allowed treats an empty facet as no restriction.
func allowed(set map[string]struct{}, value string) bool {
	if set == nil {
		return true
	}
	_, ok := set[value]
	return ok
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// DemoOrders is a small deterministic dataset spread over six months.
func DemoOrders() []Order {
	type place struct{ state, city string }
	places := []place{
		{"CA", "Los Angeles"}, {"CA", "San Francisco"}, {"CA", "San Diego"},
		{"NY", "New York"}, {"NY", "Buffalo"},
		{"TX", "Austin"}, {"TX", "Houston"},
	}
	categories := []string{"Kurta", "Set", "Western Dress", "Top", "Saree"}
	base := time.Date(2022, time.January, 3, 0, 0, 0, 0, time.UTC)
	orders := make([]Order, 0, 180)
	for day := 0; day < 180; day++ {
		p := places[day%len(places)]
		category := categories[(day/2)%len(categories)]
		qty := int64(1 + day%3)
		orders = append(orders, Order{
			Date:     base.AddDate(0, 0, day),
			Category: category,
			State:    p.state,
			City:     p.city,
			Amount:   float64(qty) * float64(350+(day*37)%400),
			Qty:      qty,
		})
	}
	return orders
}
