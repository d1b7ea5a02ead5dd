package dashboard

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestService(backend *stubBackend, opts Options) *Service {
	opts.Repositories = RepositoriesFrom(backend)
	if opts.IDGenerator == nil {
		var n int
		var mu sync.Mutex
		opts.IDGenerator = func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("view-%d", n)
		}
	}
	return NewService(opts)
}

func TestOpenRouteMountsView(t *testing.T) {
	backend := newStubBackend()
	service := newTestService(backend, Options{})
	ctx := context.Background()

	view, err := service.OpenRoute(ctx, ViewerContext{Subject: "ana"}, "/dashboard/regions", url.Values{"states": {"NY"}})
	require.NoError(t, err)
	require.NoError(t, view.Wait(ctx))

	assert.Equal(t, "view-1", view.ID())
	assert.Equal(t, ViewRegions, view.Definition().Code)
	assert.Equal(t, "ana", view.Viewer().Subject)

	snap, err := service.Snapshot(ctx, view.ID())
	require.NoError(t, err)
	regions, ok := snap.Fetcher(FetcherRegions)
	require.True(t, ok)
	assert.Equal(t, FetchReady, regions.State)
	assert.Equal(t, []string{"NY"}, backend.Last(FetcherRegions).Filters.States)
}

func TestOpenUnknownView(t *testing.T) {
	service := newTestService(newStubBackend(), Options{})
	_, err := service.OpenRoute(context.Background(), ViewerContext{}, "/dashboard/nope", nil)
	assert.ErrorIs(t, err, ErrUnknownView)
	_, err = service.OpenView(context.Background(), ViewerContext{}, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownView)
}

func TestServiceViewForHidesOtherSubjectsViews(t *testing.T) {
	service := newTestService(newStubBackend(), Options{})
	ctx := context.Background()
	view, err := service.OpenView(ctx, ViewerContext{Subject: "ana"}, ViewOverview, nil)
	require.NoError(t, err)
	t.Cleanup(func() { view.Unmount(ctx) })

	owned, err := service.ViewFor(ctx, view.ID(), "ana")
	require.NoError(t, err)
	assert.Same(t, view, owned)

	_, err = service.ViewFor(ctx, view.ID(), "bo")
	assert.ErrorIs(t, err, ErrViewNotFound)
	_, err = service.ViewFor(ctx, view.ID(), "")
	assert.ErrorIs(t, err, ErrViewNotFound)
	_, err = service.ViewFor(ctx, "view-404", "ana")
	assert.ErrorIs(t, err, ErrViewNotFound)
}

func TestServiceEditsAndCloses(t *testing.T) {
	backend := newStubBackend()
	hook := &recordingHook{}
	service := newTestService(backend, Options{RefreshHook: hook})
	ctx := context.Background()

	view, err := service.OpenView(ctx, ViewerContext{}, ViewOverview, nil)
	require.NoError(t, err)

	snap, err := service.ApplyFilters(ctx, view.ID(), FilterMutation{Action: FilterSelectAll, Facet: "states"})
	require.NoError(t, err)
	assert.Equal(t, []string{"CA", "NY"}, snap.Selection.States)
	assert.Equal(t, "/dashboard?states=CA%2CNY", snap.URL)

	snap, err = service.SetParams(ctx, view.ID(), FetcherTimeSeries, []byte(`{"granularity":"day"}`))
	require.NoError(t, err)
	series, _ := snap.Fetcher(FetcherTimeSeries)
	assert.Equal(t, TimeSeriesParams{Granularity: GranularityDay}, series.Params)

	require.NoError(t, service.CloseView(ctx, view.ID()))
	assert.ErrorIs(t, service.CloseView(ctx, view.ID()), ErrViewNotFound)
	_, err = service.Snapshot(ctx, view.ID())
	assert.ErrorIs(t, err, ErrViewNotFound)
	_, err = service.ApplyFilters(ctx, view.ID(), FilterMutation{Action: FilterReset})
	assert.ErrorIs(t, err, ErrViewNotFound)
	assert.Contains(t, hook.Kinds(), ViewEventUnmounted)
}

func TestSweepIdleExpiresUntouchedViews(t *testing.T) {
	clock := &fakeClock{now: time.Date(2022, 6, 1, 12, 0, 0, 0, time.UTC)}
	store := NewInMemoryViewStore()
	service := newTestService(newStubBackend(), Options{
		Store:       store,
		IdleTimeout: 10 * time.Minute,
		Now:         clock.Now,
	})
	ctx := context.Background()

	stale, err := service.OpenView(ctx, ViewerContext{}, ViewOverview, nil)
	require.NoError(t, err)
	clock.Advance(8 * time.Minute)
	fresh, err := service.OpenView(ctx, ViewerContext{}, ViewForecast, nil)
	require.NoError(t, err)

	clock.Advance(5 * time.Minute)
	assert.Equal(t, 1, service.SweepIdle(ctx))
	assert.Equal(t, 1, store.Len())

	_, err = service.View(ctx, stale.ID())
	assert.ErrorIs(t, err, ErrViewNotFound)
	_, err = service.View(ctx, fresh.ID())
	assert.NoError(t, err)

	_, err = stale.ApplyFilters(ctx, FilterMutation{Action: FilterReset})
	assert.ErrorIs(t, err, ErrViewNotFound)
	fresh.Unmount(ctx)
}

func TestServiceLoadCatalog(t *testing.T) {
	backend := newStubBackend()
	service := newTestService(backend, Options{})
	load := service.LoadCatalog(context.Background())
	assert.False(t, load.Failed())
	assert.Equal(t, []string{"CA", "NY"}, load.Catalog.States)
}

func TestRunSweeperStopsWithContext(t *testing.T) {
	service := newTestService(newStubBackend(), Options{})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		service.RunSweeper(ctx, time.Millisecond)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("sweeper did not stop")
	}
}
