package dashboard

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// FilterAction names a selection mutation sent by the page.
type FilterAction string

const (
	FilterReplace   FilterAction = "replace"
	FilterToggle    FilterAction = "toggle"
	FilterSet       FilterAction = "set"
	FilterSelectAll FilterAction = "select_all"
	FilterClear     FilterAction = "clear"
	FilterReset     FilterAction = "reset"
)

// FilterMutation is one user edit of the selection.
type FilterMutation struct {
	Action    FilterAction     `json:"action"`
	Facet     string           `json:"facet,omitempty"`
	Value     string           `json:"value,omitempty"`
	Values    []string         `json:"values,omitempty"`
	Selection *FilterSelection `json:"selection,omitempty"`
}

// FacetState is what a filter dropdown needs to render.
type FacetState struct {
	Facet        Facet    `json:"facet"`
	Options      []string `json:"options"`
	Selected     []string `json:"selected"`
	CanSelectAll bool     `json:"can_select_all"`
	CanClear     bool     `json:"can_clear"`
}

// ViewSnapshot is the serializable state of a mounted view.
type ViewSnapshot struct {
	ID            string          `json:"id"`
	View          ViewCode        `json:"view"`
	Title         string          `json:"title"`
	Route         string          `json:"route"`
	URL           string          `json:"url"`
	Selection     FilterSelection `json:"selection"`
	Facets        []FacetState    `json:"facets"`
	CatalogStatus CatalogStatus   `json:"catalog_status"`
	Warning       string          `json:"warning,omitempty"`
	DateMin       string          `json:"date_min,omitempty"`
	DateMax       string          `json:"date_max,omitempty"`
	Fetchers      []FetchSnapshot `json:"fetchers"`
}

// Fetcher returns the named fetcher snapshot.
func (s ViewSnapshot) Fetcher(name string) (FetchSnapshot, bool) {
	for _, f := range s.Fetchers {
		if f.Name == name {
			return f, true
		}
	}
	return FetchSnapshot{}, false
}

// ViewConfig carries the collaborators of a single view.
type ViewConfig struct {
	ID           string
	Definition   ViewDefinition
	Viewer       ViewerContext
	Repositories Repositories
	Validator    ParamsValidator
	RefreshHook  RefreshHook
	Telemetry    Telemetry
	Now          func() time.Time
}

// DashboardView is one mounted page. It exclusively owns its catalog
// snapshot, filter controller and fetchers until Unmount.
type DashboardView struct {
	id        string
	def       ViewDefinition
	viewer    ViewerContext
	repos     Repositories
	validator ParamsValidator
	hook      RefreshHook
	telemetry Telemetry
	now       func() time.Time

	fetchers []ViewFetcher
	byName   map[string]ViewFetcher

	mu         sync.Mutex
	mounted    bool
	unmounted  bool
	ctx        context.Context
	cancel     context.CancelFunc
	catalog    CatalogLoad
	controller *FilterController
	cancels    []func()
	lastSeen   time.Time
}

// NewDashboardView builds the fetchers of the definition. Nothing is fetched
// until Mount.
func NewDashboardView(cfg ViewConfig) (*DashboardView, error) {
	if cfg.ID == "" {
		return nil, errMissingViewID
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Validator == nil {
		cfg.Validator = NewJSONSchemaValidator()
	}
	if cfg.RefreshHook == nil {
		cfg.RefreshHook = noopRefreshHook{}
	}
	v := &DashboardView{
		id:        cfg.ID,
		def:       cfg.Definition,
		viewer:    cfg.Viewer,
		repos:     cfg.Repositories,
		validator: cfg.Validator,
		hook:      cfg.RefreshHook,
		telemetry: normalizeTelemetry(cfg.Telemetry),
		now:       cfg.Now,
		byName:    map[string]ViewFetcher{},
		lastSeen:  cfg.Now(),
	}
	for _, fd := range cfg.Definition.Fetchers {
		f, err := cfg.Repositories.NewFetcher(fd.Name, fd.Params, v.telemetry)
		if err != nil {
			return nil, fmt.Errorf("dashboard: view %s: %w", cfg.Definition.Code, err)
		}
		v.fetchers = append(v.fetchers, f)
		v.byName[fd.Name] = f
	}
	return v, nil
}

// ID returns the view session id.
func (v *DashboardView) ID() string { return v.id }

// Definition returns the view definition.
func (v *DashboardView) Definition() ViewDefinition { return v.def }

// Viewer returns the viewer the view was opened for.
func (v *DashboardView) Viewer() ViewerContext { return v.viewer }

// Fetcher returns the named fetcher.
func (v *DashboardView) Fetcher(name string) (ViewFetcher, bool) {
	f, ok := v.byName[name]
	return f, ok
}

// Mount loads the catalog, seeds the selection from the page query and
// triggers every fetcher with the reconciled selection. The query is read
// here and never again.
func (v *DashboardView) Mount(ctx context.Context, query url.Values) error {
	v.mu.Lock()
	if v.mounted {
		v.mu.Unlock()
		return errViewMounted
	}
	v.mounted = true
	v.ctx, v.cancel = context.WithCancel(context.WithoutCancel(ctx))
	v.mu.Unlock()

	load := LoadCatalog(ctx, v.repos.Catalog, v.telemetry)
	controller := NewFilterController(load.Catalog, DecodeFromQuery(query))

	cancels := []func(){controller.Subscribe(v.selectionChanged)}
	for _, f := range v.fetchers {
		name := f.Name()
		cancels = append(cancels, f.Watch(func(snap FetchSnapshot) {
			v.fetchChanged(name, snap)
		}))
	}

	v.mu.Lock()
	viewCtx := v.ctx
	v.mu.Unlock()

	// Edits are rejected until the controller is stored, so the first
	// trigger cannot race a newer selection.
	selection := controller.Selection()
	for _, f := range v.fetchers {
		f.Update(viewCtx, selection)
	}

	v.mu.Lock()
	v.catalog = load
	v.controller = controller
	v.cancels = cancels
	v.mu.Unlock()
	v.telemetry.Record(ctx, "dashboard.view.mount", map[string]any{
		"view":    string(v.def.Code),
		"view_id": v.id,
		"catalog": string(load.Status),
	})
	v.publish(ViewEvent{Kind: ViewEventMounted, URL: PageURL(v.def.Route, selection), Selection: &selection})
	return nil
}

// Controller returns the filter controller, nil before Mount.
func (v *DashboardView) Controller() *FilterController {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.controller
}

// Catalog returns the catalog load result of the mount.
func (v *DashboardView) Catalog() CatalogLoad {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.catalog
}

// ApplyFilters applies a user edit. It reports whether the canonical
// selection changed; unchanged selections trigger no fetches.
func (v *DashboardView) ApplyFilters(ctx context.Context, m FilterMutation) (bool, error) {
	controller, err := v.liveController()
	if err != nil {
		return false, err
	}
	v.touch()
	facet := func() (Facet, error) {
		f, err := ParseFacet(m.Facet)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidMutation, err)
		}
		return f, nil
	}
	var changed bool
	switch m.Action {
	case FilterReplace:
		if m.Selection == nil {
			return false, fmt.Errorf("%w: replace requires a selection", ErrInvalidMutation)
		}
		changed = controller.Replace(*m.Selection)
	case FilterToggle:
		f, err := facet()
		if err != nil {
			return false, err
		}
		if m.Value == "" {
			return false, fmt.Errorf("%w: toggle requires a value", ErrInvalidMutation)
		}
		changed = controller.Toggle(f, m.Value)
	case FilterSet:
		f, err := facet()
		if err != nil {
			return false, err
		}
		changed = controller.SetFacet(f, m.Values)
	case FilterSelectAll:
		f, err := facet()
		if err != nil {
			return false, err
		}
		changed = controller.SelectAll(f)
	case FilterClear:
		f, err := facet()
		if err != nil {
			return false, err
		}
		changed = controller.Clear(f)
	case FilterReset:
		changed = controller.Reset()
	default:
		return false, fmt.Errorf("%w: unknown action %q", ErrInvalidMutation, m.Action)
	}
	v.telemetry.Record(ctx, "dashboard.view.filters", map[string]any{
		"view_id": v.id,
		"action":  string(m.Action),
		"facet":   m.Facet,
		"changed": changed,
	})
	return changed, nil
}

// SetParams merges raw into the named fetcher's params, validates the result
// against the fetcher schema and re-triggers only that fetcher.
func (v *DashboardView) SetParams(ctx context.Context, name string, raw json.RawMessage) (bool, error) {
	if _, err := v.liveController(); err != nil {
		return false, err
	}
	v.touch()
	f, ok := v.byName[name]
	if !ok {
		return false, fmt.Errorf("%w: view %s has no fetcher %q", ErrInvalidParams, v.def.Code, name)
	}
	merged, err := mergeParams(f.Snapshot().Params, raw)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if err := v.validator.Validate(v.def, name, merged); err != nil {
		return false, err
	}
	payload, err := json.Marshal(merged)
	if err != nil {
		return false, fmt.Errorf("dashboard: encode %s params: %w", name, err)
	}
	v.mu.Lock()
	viewCtx := v.ctx
	v.mu.Unlock()
	_, started, err := f.ApplyParams(viewCtx, payload)
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	v.telemetry.Record(ctx, "dashboard.view.params", map[string]any{
		"view_id": v.id,
		"fetcher": name,
		"changed": started,
	})
	return started, nil
}

// Snapshot returns the current state of the view.
func (v *DashboardView) Snapshot() ViewSnapshot {
	v.mu.Lock()
	controller := v.controller
	load := v.catalog
	v.mu.Unlock()

	snap := ViewSnapshot{
		ID:            v.id,
		View:          v.def.Code,
		Title:         v.def.Title,
		Route:         v.def.Route,
		URL:           v.def.Route,
		Selection:     NewFilterSelection(nil, nil, nil),
		CatalogStatus: load.Status,
		Warning:       load.Warning,
		DateMin:       load.Catalog.DateMin,
		DateMax:       load.Catalog.DateMax,
		Fetchers:      make([]FetchSnapshot, 0, len(v.fetchers)),
	}
	if controller != nil {
		snap.Selection = controller.Selection()
		snap.URL = PageURL(v.def.Route, snap.Selection)
		for _, facet := range Facets() {
			options := controller.Options(facet)
			selected := snap.Selection.Values(facet)
			snap.Facets = append(snap.Facets, FacetState{
				Facet:        facet,
				Options:      options,
				Selected:     selected,
				CanSelectAll: len(options) > 0 && !sameSet(options, selected),
				CanClear:     len(selected) > 0,
			})
		}
	}
	for _, f := range v.fetchers {
		snap.Fetchers = append(snap.Fetchers, f.Snapshot())
	}
	return snap
}

// Wait blocks until every fetcher of the view has settled.
func (v *DashboardView) Wait(ctx context.Context) error {
	group, gctx := errgroup.WithContext(ctx)
	for _, f := range v.fetchers {
		f := f
		group.Go(func() error {
			return f.Wait(gctx)
		})
	}
	return group.Wait()
}

// Unmount detaches the view: pending responses are dropped and the view
// stops accepting edits. It is safe to call more than once.
func (v *DashboardView) Unmount(ctx context.Context) {
	v.mu.Lock()
	if v.unmounted {
		v.mu.Unlock()
		return
	}
	v.unmounted = true
	cancels := v.cancels
	v.cancels = nil
	cancel := v.cancel
	v.mu.Unlock()

	for _, fn := range cancels {
		fn()
	}
	for _, f := range v.fetchers {
		f.Close()
	}
	if cancel != nil {
		cancel()
	}
	v.telemetry.Record(ctx, "dashboard.view.unmount", map[string]any{"view_id": v.id})
	v.publishWith(ctx, ViewEvent{Kind: ViewEventUnmounted})
}

// LastSeen reports the last time the view was read or edited.
func (v *DashboardView) LastSeen() time.Time {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.lastSeen
}

func (v *DashboardView) touch() {
	v.mu.Lock()
	v.lastSeen = v.now()
	v.mu.Unlock()
}

func (v *DashboardView) liveController() (*FilterController, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.unmounted {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, v.id)
	}
	if v.controller == nil {
		return nil, errViewNotMounted
	}
	return v.controller, nil
}

func (v *DashboardView) selectionChanged(selection FilterSelection) {
	v.mu.Lock()
	viewCtx := v.ctx
	v.mu.Unlock()
	for _, f := range v.fetchers {
		f.Update(viewCtx, selection)
	}
	v.publish(ViewEvent{
		Kind:      ViewEventFilters,
		URL:       PageURL(v.def.Route, selection),
		Selection: &selection,
	})
}

func (v *DashboardView) fetchChanged(_ string, snap FetchSnapshot) {
	v.publish(ViewEvent{Kind: ViewEventFetch, Fetch: &snap})
}

func (v *DashboardView) publish(event ViewEvent) {
	v.mu.Lock()
	ctx := v.ctx
	v.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	v.publishWith(ctx, event)
}

func (v *DashboardView) publishWith(ctx context.Context, event ViewEvent) {
	event.ViewID = v.id
	event.View = v.def.Code
	if err := v.hook.ViewUpdated(ctx, event); err != nil {
		v.telemetry.Record(ctx, "dashboard.view.broadcast_failed", map[string]any{
			"view_id": v.id,
			"kind":    string(event.Kind),
			"error":   err.Error(),
		})
	}
}

func mergeParams(current any, raw json.RawMessage) (map[string]any, error) {
	merged := map[string]any{}
	if current != nil {
		data, err := json.Marshal(current)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, &merged); err != nil {
			return nil, err
		}
	}
	if len(raw) == 0 {
		return merged, nil
	}
	var patch map[string]any
	if err := json.Unmarshal(raw, &patch); err != nil {
		return nil, fmt.Errorf("decode params: %w", err)
	}
	for k, val := range patch {
		if val == nil {
			delete(merged, k)
			continue
		}
		merged[k] = val
	}
	return merged, nil
}
