package dashboard

import (
	"context"
	"time"
)

// ViewerContext identifies the authenticated user a view was opened for.
type ViewerContext struct {
	Subject string
	Token   string
	Locale  string
}

// ViewCode names a dashboard page.
type ViewCode string

const (
	ViewOverview   ViewCode = "overview"
	ViewCategories ViewCode = "categories"
	ViewRegions    ViewCode = "regions"
	ViewForecast   ViewCode = "forecast"
)

// Fetcher names used by the default view definitions.
const (
	FetcherSummary    = "summary"
	FetcherTimeSeries = "timeseries"
	FetcherCategories = "categories"
	FetcherRegions    = "regions"
	FetcherForecast   = "forecast"
)

// ViewStore keeps mounted view sessions between requests.
type ViewStore interface {
	Save(ctx context.Context, view *DashboardView) error
	Get(ctx context.Context, id string) (*DashboardView, bool)
	Delete(ctx context.Context, id string) (*DashboardView, bool)
	Expired(ctx context.Context, cutoff time.Time) []*DashboardView
}

// ViewRegistry stores view definitions discoverable via defaults or manifests.
type ViewRegistry interface {
	RegisterDefinition(def ViewDefinition) error
	Definition(code ViewCode) (ViewDefinition, bool)
	DefinitionByRoute(route string) (ViewDefinition, bool)
	Definitions() []ViewDefinition
}

// RefreshHook notifies transports (REST/WebSocket) about view changes.
type RefreshHook interface {
	ViewUpdated(ctx context.Context, event ViewEvent) error
}

// ViewEventKind classifies broadcast events.
type ViewEventKind string

const (
	ViewEventMounted   ViewEventKind = "mounted"
	ViewEventFilters   ViewEventKind = "filters"
	ViewEventFetch     ViewEventKind = "fetch"
	ViewEventUnmounted ViewEventKind = "unmounted"
)

// ViewEvent describes changes that transports might care about.
type ViewEvent struct {
	ViewID    string           `json:"view_id"`
	View      ViewCode         `json:"view"`
	Kind      ViewEventKind    `json:"kind"`
	URL       string           `json:"url,omitempty"`
	Selection *FilterSelection `json:"selection,omitempty"`
	Fetch     *FetchSnapshot   `json:"fetch,omitempty"`
}

type noopRefreshHook struct{}

func (noopRefreshHook) ViewUpdated(context.Context, ViewEvent) error {
	return nil
}
