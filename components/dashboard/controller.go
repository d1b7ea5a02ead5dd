package dashboard

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"
)

// DefaultPageWait bounds how long a page render waits for the first fetches.
const DefaultPageWait = 3 * time.Second

// ControllerOptions wires the page controller.
type ControllerOptions struct {
	Renderer Renderer
	Charts   ChartRenderer
	Views    ViewRegistry
	Template string
	PageWait time.Duration
}

// Controller renders dashboard pages for mounted views.
type Controller struct {
	renderer Renderer
	charts   ChartRenderer
	views    ViewRegistry
	template string
	pageWait time.Duration
}

// NewController wires the renderer and chart renderer into a controller.
func NewController(opts ControllerOptions) *Controller {
	if opts.Charts == nil {
		opts.Charts = NewEChartsRenderer()
	}
	if opts.Views == nil {
		opts.Views = NewRegistry()
	}
	if opts.Template == "" {
		opts.Template = "dashboard"
	}
	if opts.PageWait <= 0 {
		opts.PageWait = DefaultPageWait
	}
	return &Controller{
		renderer: opts.Renderer,
		charts:   opts.Charts,
		views:    opts.Views,
		template: opts.Template,
		pageWait: opts.PageWait,
	}
}

// Panel is the template model of one fetcher.
type Panel struct {
	Name  string `json:"name"`
	Title string `json:"title"`
	Chart string `json:"chart"`
	State string `json:"state"`
	Error string `json:"error,omitempty"`
	HTML  string `json:"-"`
	Value any    `json:"value,omitempty"`
}

// NavItem links to a view.
type NavItem struct {
	Code   string `json:"code"`
	Title  string `json:"title"`
	URL    string `json:"url"`
	Active bool   `json:"active"`
}

// RenderView waits briefly for the view's first fetches and renders the page.
// Fetches still in flight render as pending and arrive over the event stream.
// The wait is bounded by the page wait alone, not by the client staying.
func (c *Controller) RenderView(ctx context.Context, view *DashboardView, out io.Writer) error {
	if c.renderer == nil {
		return errors.New("dashboard: renderer not configured")
	}
	waitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.pageWait)
	err := view.Wait(waitCtx)
	cancel()
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	payload, err := c.ViewPayload(view)
	if err != nil {
		return err
	}
	if _, err := c.renderer.Render(c.template, payload, out); err != nil {
		return fmt.Errorf("dashboard: render %s: %w", view.Definition().Code, err)
	}
	return nil
}

// ViewPayload builds the template model for the current view state.
func (c *Controller) ViewPayload(view *DashboardView) (map[string]any, error) {
	snap := view.Snapshot()
	def := view.Definition()

	panels := make([]Panel, 0, len(snap.Fetchers))
	var kpis any
	for _, fetch := range snap.Fetchers {
		fd, _ := def.Fetcher(fetch.Name)
		panel := Panel{
			Name:  fetch.Name,
			Title: fd.Title,
			Chart: string(fd.Chart),
			State: string(fetch.State),
			Error: fetch.Error,
			Value: fetch.Value,
		}
		html, err := c.charts.RenderChart(def.Code, fd, fetch)
		if err != nil {
			return nil, err
		}
		panel.HTML = html
		if fd.Chart == ChartKPI && fetch.State == FetchReady {
			kpis = fetch.Value
		}
		panels = append(panels, panel)
	}

	return map[string]any{
		"view":     snap,
		"title":    def.Title,
		"url":      snap.URL,
		"warning":  snap.Warning,
		"facets":   snap.Facets,
		"panels":   panels,
		"kpis":     kpis,
		"nav":      c.nav(def.Code, snap.Selection),
		"viewer":   view.Viewer().Subject,
		"view_id":  snap.ID,
		"date_min": snap.DateMin,
		"date_max": snap.DateMax,
	}, nil
}

// RenderPage renders a static page such as the landing or contact page.
func (c *Controller) RenderPage(name string, data map[string]any, out io.Writer) error {
	if c.renderer == nil {
		return errors.New("dashboard: renderer not configured")
	}
	if data == nil {
		data = map[string]any{}
	}
	if _, ok := data["nav"]; !ok {
		data["nav"] = c.nav("", FilterSelection{})
	}
	if _, err := c.renderer.Render(name, data, out); err != nil {
		return fmt.Errorf("dashboard: render page %s: %w", name, err)
	}
	return nil
}

// nav carries the selection across views so switching pages keeps filters.
func (c *Controller) nav(active ViewCode, selection FilterSelection) []NavItem {
	defs := c.views.Definitions()
	items := make([]NavItem, 0, len(defs))
	for _, def := range defs {
		items = append(items, NavItem{
			Code:   string(def.Code),
			Title:  def.Title,
			URL:    PageURL(def.Route, selection),
			Active: def.Code == active,
		})
	}
	return items
}

// PanelHTML renders the chart of a single fetcher of the view.
func (c *Controller) PanelHTML(view *DashboardView, name string) (string, error) {
	def := view.Definition()
	fd, ok := def.Fetcher(name)
	if !ok {
		return "", fmt.Errorf("%w: view %s has no fetcher %q", ErrInvalidParams, def.Code, name)
	}
	f, ok := view.Fetcher(name)
	if !ok {
		return "", fmt.Errorf("%w: view %s has no fetcher %q", ErrInvalidParams, def.Code, name)
	}
	return c.charts.RenderChart(def.Code, fd, f.Snapshot())
}
