package dashboard

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"
)

type stubRenderer struct {
	lastTemplate string
	lastPayload  map[string]any
	err          error
}

func (r *stubRenderer) Render(name string, data any, out ...io.Writer) (string, error) {
	r.lastTemplate = name
	if payload, ok := data.(map[string]any); ok {
		r.lastPayload = payload
	}
	if len(out) > 0 && out[0] != nil {
		out[0].Write([]byte("<html></html>"))
	}
	return "<html></html>", r.err
}

type stubCharts struct{}

func (stubCharts) RenderChart(view ViewCode, def FetcherDefinition, snap FetchSnapshot) (string, error) {
	if snap.State != FetchReady || def.Chart == ChartKPI {
		return "", nil
	}
	return "<div id=\"" + string(view) + "-" + def.Name + "\"></div>", nil
}

func openOverview(t *testing.T) (*Service, *DashboardView) {
	t.Helper()
	service := newTestService(newStubBackend(), Options{})
	view, err := service.OpenView(context.Background(), ViewerContext{Subject: "ana"}, ViewOverview, url.Values{"states": {"CA"}})
	if err != nil {
		t.Fatalf("OpenView returned error: %v", err)
	}
	t.Cleanup(func() { view.Unmount(context.Background()) })
	return service, view
}

func TestControllerRenderView(t *testing.T) {
	service, view := openOverview(t)
	renderer := &stubRenderer{}
	controller := NewController(ControllerOptions{
		Renderer: renderer,
		Charts:   stubCharts{},
		Views:    service.Views(),
	})

	var buf bytes.Buffer
	if err := controller.RenderView(context.Background(), view, &buf); err != nil {
		t.Fatalf("RenderView returned error: %v", err)
	}
	if renderer.lastTemplate != "dashboard" {
		t.Fatalf("expected dashboard template to render, got %s", renderer.lastTemplate)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected rendered output")
	}

	payload := renderer.lastPayload
	if payload["view_id"] != view.ID() {
		t.Fatalf("expected view id %s, got %v", view.ID(), payload["view_id"])
	}
	if payload["viewer"] != "ana" {
		t.Fatalf("expected viewer ana, got %v", payload["viewer"])
	}
	kpis, ok := payload["kpis"].(KPIReport)
	if !ok || kpis.TotalRevenue != 1200 {
		t.Fatalf("expected kpis in payload, got %#v", payload["kpis"])
	}
	panels := payload["panels"].([]Panel)
	if len(panels) != 2 {
		t.Fatalf("expected 2 panels, got %d", len(panels))
	}
	if panels[1].Name != FetcherTimeSeries || !strings.Contains(panels[1].HTML, "overview-timeseries") {
		t.Fatalf("expected rendered timeseries panel, got %#v", panels[1])
	}

	nav := payload["nav"].([]NavItem)
	if len(nav) != 4 || !nav[0].Active || nav[1].Active {
		t.Fatalf("unexpected nav %#v", nav)
	}
	if nav[2].URL != "/dashboard/regions?states=CA" {
		t.Fatalf("expected nav to carry the selection, got %s", nav[2].URL)
	}
}

func TestControllerRenderViewPropagatesRendererError(t *testing.T) {
	service, view := openOverview(t)
	controller := NewController(ControllerOptions{
		Renderer: &stubRenderer{err: errors.New("boom")},
		Charts:   stubCharts{},
		Views:    service.Views(),
		PageWait: 50 * time.Millisecond,
	})
	if err := controller.RenderView(context.Background(), view, io.Discard); err == nil {
		t.Fatalf("expected renderer error")
	}
}

func TestControllerRequiresRenderer(t *testing.T) {
	_, view := openOverview(t)
	controller := NewController(ControllerOptions{})
	if err := controller.RenderView(context.Background(), view, io.Discard); err == nil {
		t.Fatalf("expected missing renderer error")
	}
	if err := controller.RenderPage("page", nil, io.Discard); err == nil {
		t.Fatalf("expected missing renderer error")
	}
}

func TestControllerRenderPageAddsNav(t *testing.T) {
	renderer := &stubRenderer{}
	controller := NewController(ControllerOptions{Renderer: renderer})
	if err := controller.RenderPage("page", map[string]any{"page": "about"}, io.Discard); err != nil {
		t.Fatalf("RenderPage returned error: %v", err)
	}
	nav, ok := renderer.lastPayload["nav"].([]NavItem)
	if !ok || len(nav) != 4 {
		t.Fatalf("expected default nav, got %#v", renderer.lastPayload["nav"])
	}
	for _, item := range nav {
		if item.Active {
			t.Fatalf("no nav item should be active on static pages: %#v", item)
		}
	}
}

func TestControllerPanelHTML(t *testing.T) {
	_, view := openOverview(t)
	if err := view.Wait(context.Background()); err != nil {
		t.Fatalf("Wait returned error: %v", err)
	}
	controller := NewController(ControllerOptions{Charts: stubCharts{}})

	html, err := controller.PanelHTML(view, FetcherTimeSeries)
	if err != nil {
		t.Fatalf("PanelHTML returned error: %v", err)
	}
	if !strings.Contains(html, "overview-timeseries") {
		t.Fatalf("unexpected panel html %q", html)
	}
	if _, err := controller.PanelHTML(view, FetcherForecast); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

type slowSeriesBackend struct {
	*stubBackend
	release chan struct{}
}

func (b slowSeriesBackend) FetchTimeSeries(ctx context.Context, q TimeSeriesQuery) (TimeSeriesReport, error) {
	select {
	case <-b.release:
	case <-ctx.Done():
		return TimeSeriesReport{}, ctx.Err()
	}
	return b.stubBackend.FetchTimeSeries(ctx, q)
}

func TestControllerRenderViewIgnoresClientDisconnect(t *testing.T) {
	backend := slowSeriesBackend{stubBackend: newStubBackend(), release: make(chan struct{})}
	defer close(backend.release)
	service := NewService(Options{Repositories: RepositoriesFrom(backend)})
	view, err := service.OpenView(context.Background(), ViewerContext{Subject: "ana"}, ViewOverview, nil)
	if err != nil {
		t.Fatalf("OpenView returned error: %v", err)
	}
	t.Cleanup(func() { view.Unmount(context.Background()) })

	renderer := &stubRenderer{}
	controller := NewController(ControllerOptions{
		Renderer: renderer,
		Charts:   stubCharts{},
		Views:    service.Views(),
		PageWait: 30 * time.Millisecond,
	})
	reqCtx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := controller.RenderView(reqCtx, view, io.Discard); err != nil {
		t.Fatalf("expected render despite the cancelled request, got %v", err)
	}
	panels := renderer.lastPayload["panels"].([]Panel)
	if panels[1].Name != FetcherTimeSeries || panels[1].State != string(FetchPending) {
		t.Fatalf("expected the slow panel to render as pending, got %#v", panels[1])
	}
}
