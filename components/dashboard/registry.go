package dashboard

import (
	"fmt"
	"sort"
	"sync"
)

// ChartKind selects how a fetcher result is drawn.
type ChartKind string

const (
	ChartKPI      ChartKind = "kpi"
	ChartLine     ChartKind = "line"
	ChartBar      ChartKind = "bar"
	ChartForecast ChartKind = "forecast"
)

// FetcherDefinition declares one fetcher composed into a view.
type FetcherDefinition struct {
	Name   string         `json:"name" yaml:"name"`
	Title  string         `json:"title,omitempty" yaml:"title,omitempty"`
	Chart  ChartKind      `json:"chart,omitempty" yaml:"chart,omitempty"`
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
	Schema map[string]any `json:"schema,omitempty" yaml:"schema,omitempty"`
}

// ViewDefinition describes a dashboard page: where it lives and which
// fetchers it composes.
type ViewDefinition struct {
	Code        ViewCode            `json:"code" yaml:"code"`
	Title       string              `json:"title" yaml:"title"`
	Route       string              `json:"route" yaml:"route"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Position    int                 `json:"position,omitempty" yaml:"position,omitempty"`
	Fetchers    []FetcherDefinition `json:"fetchers" yaml:"fetchers"`
}

// Fetcher looks up a fetcher definition by name.
func (d ViewDefinition) Fetcher(name string) (FetcherDefinition, bool) {
	for _, f := range d.Fetchers {
		if f.Name == name {
			return f, true
		}
	}
	return FetcherDefinition{}, false
}

// Registry implements ViewRegistry with defaults + manifest support.
type Registry struct {
	mu          sync.RWMutex
	definitions map[ViewCode]ViewDefinition
}

// NewRegistry builds a registry seeded with the default views.
func NewRegistry() *Registry {
	reg := &Registry{definitions: map[ViewCode]ViewDefinition{}}
	for _, def := range DefaultViewDefinitions() {
		_ = reg.RegisterDefinition(def)
	}
	return reg
}

// RegisterDefinition stores or replaces a view definition.
func (r *Registry) RegisterDefinition(def ViewDefinition) error {
	if def.Code == "" {
		return fmt.Errorf("dashboard: view definition code is required")
	}
	if def.Route == "" {
		return fmt.Errorf("dashboard: view %s route is required", def.Code)
	}
	seen := make(map[string]struct{}, len(def.Fetchers))
	for _, f := range def.Fetchers {
		if f.Name == "" {
			return fmt.Errorf("dashboard: view %s has a fetcher without name", def.Code)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("dashboard: view %s duplicates fetcher %s", def.Code, f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for code, existing := range r.definitions {
		if code != def.Code && existing.Route == def.Route {
			return fmt.Errorf("dashboard: route %s already served by view %s", def.Route, code)
		}
	}
	r.definitions[def.Code] = def
	return nil
}

// Definition fetches a view definition by code.
func (r *Registry) Definition(code ViewCode) (ViewDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.definitions[code]
	return def, ok
}

// DefinitionByRoute resolves the view served at route.
func (r *Registry) DefinitionByRoute(route string) (ViewDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, def := range r.definitions {
		if def.Route == route {
			return def, true
		}
	}
	return ViewDefinition{}, false
}

// Definitions returns all registered definitions ordered by position.
func (r *Registry) Definitions() []ViewDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	defs := make([]ViewDefinition, 0, len(r.definitions))
	for _, def := range r.definitions {
		defs = append(defs, def)
	}
	sort.SliceStable(defs, func(i, j int) bool {
		if defs[i].Position != defs[j].Position {
			return defs[i].Position < defs[j].Position
		}
		return defs[i].Code < defs[j].Code
	})
	return defs
}
