package dashboard

import (
	"context"
	"errors"
	"sort"
)

// CatalogLoadWarning is shown inline when the filter catalog cannot be loaded.
const CatalogLoadWarning = "Failed to load filters"

// FilterCatalog is the read-only universe of selectable values for a view.
// It is loaded once per mount and never mutated afterwards.
type FilterCatalog struct {
	Categories    []string            `json:"categories"`
	States        []string            `json:"states"`
	Cities        []string            `json:"cities"`
	CitiesByState map[string][]string `json:"cities_by_state"`
	DateMin       string              `json:"date_min,omitempty"`
	DateMax       string              `json:"date_max,omitempty"`
}

// EmptyCatalog returns the catalog used when nothing is selectable.
func EmptyCatalog() FilterCatalog {
	return FilterCatalog{
		Categories:    []string{},
		States:        []string{},
		Cities:        []string{},
		CitiesByState: map[string][]string{},
	}
}

// Options returns the full option list for categories and states. Cities are
// derived from the selected states, see DeriveCityOptions.
func (c FilterCatalog) Options(facet Facet) []string {
	switch facet {
	case FacetCategories:
		return cloneStrings(c.Categories)
	case FacetStates:
		return cloneStrings(c.States)
	case FacetCities:
		return cloneStrings(c.Cities)
	}
	return []string{}
}

func (c FilterCatalog) normalized() FilterCatalog {
	out := FilterCatalog{
		Categories:    cloneStrings(c.Categories),
		States:        cloneStrings(c.States),
		Cities:        cloneStrings(c.Cities),
		CitiesByState: make(map[string][]string, len(c.CitiesByState)),
		DateMin:       c.DateMin,
		DateMax:       c.DateMax,
	}
	for state, cities := range c.CitiesByState {
		out.CitiesByState[state] = cloneStrings(cities)
	}
	return out
}

// DeriveCityOptions returns the cities reachable from the selected states.
// No states selected means no cities are offered, never the full universe.
func DeriveCityOptions(catalog FilterCatalog, states []string) []string {
	if len(states) == 0 {
		return []string{}
	}
	seen := map[string]struct{}{}
	out := []string{}
	for _, state := range states {
		for _, city := range catalog.CitiesByState[state] {
			if _, ok := seen[city]; ok {
				continue
			}
			seen[city] = struct{}{}
			out = append(out, city)
		}
	}
	sort.Strings(out)
	return out
}

// CatalogRepository loads the filter catalog from the analytics API.
type CatalogRepository interface {
	FetchCatalog(ctx context.Context) (FilterCatalog, error)
}

// CatalogStatus describes how a catalog load ended.
type CatalogStatus string

const (
	CatalogStatusOK     CatalogStatus = "ok"
	CatalogStatusFailed CatalogStatus = "failed"
)

// CatalogLoad is the outcome of LoadCatalog.
type CatalogLoad struct {
	Catalog FilterCatalog
	Status  CatalogStatus
	Warning string
	Err     error
}

// Failed reports whether the catalog degraded to the empty catalog.
func (l CatalogLoad) Failed() bool {
	return l.Status == CatalogStatusFailed
}

var errMissingCatalogRepository = errors.New("dashboard: catalog repository not configured")

// LoadCatalog fetches the catalog and never fails: on error the empty catalog is
// returned together with a warning for display.
func LoadCatalog(ctx context.Context, repo CatalogRepository, telemetry Telemetry) CatalogLoad {
	telemetry = normalizeTelemetry(telemetry)
	var (
		catalog FilterCatalog
		err     error
	)
	if repo == nil {
		err = errMissingCatalogRepository
	} else {
		catalog, err = repo.FetchCatalog(ctx)
	}
	if err != nil {
		telemetry.Record(ctx, "dashboard.catalog.failed", map[string]any{"error": err.Error()})
		return CatalogLoad{
			Catalog: EmptyCatalog(),
			Status:  CatalogStatusFailed,
			Warning: CatalogLoadWarning,
			Err:     err,
		}
	}
	catalog = catalog.normalized()
	telemetry.Record(ctx, "dashboard.catalog.loaded", map[string]any{
		"categories": len(catalog.Categories),
		"states":     len(catalog.States),
		"cities":     len(catalog.Cities),
	})
	return CatalogLoad{Catalog: catalog, Status: CatalogStatusOK}
}
