package dashboard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	core "github.com/goliatone/go-commerce-dashboard/components/dashboard"
	"github.com/goliatone/go-commerce-dashboard/pkg/analytics"
	"github.com/goliatone/go-commerce-dashboard/pkg/config"
)

func demoConfig() *config.Config {
	cfg := config.Default()
	cfg.Analytics.Demo = true
	return cfg
}

func TestNewServerDemoMode(t *testing.T) {
	srv, err := NewServer(demoConfig(), nil)
	require.NoError(t, err)
	assert.IsType(t, &analytics.MockClient{}, srv.Client)
	assert.IsType(t, core.PresenceVerifier{}, srv.Verifier)
	assert.Len(t, srv.Registry.Definitions(), 4)

	ctx := context.Background()
	view, err := srv.Service.OpenRoute(ctx, core.ViewerContext{Subject: "ana"}, "/dashboard", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Service.CloseView(ctx, view.ID()) })
	require.NoError(t, view.Wait(ctx))

	snap := view.Snapshot()
	assert.Equal(t, core.CatalogStatusOK, snap.CatalogStatus)
	summary, ok := snap.Fetcher(core.FetcherSummary)
	require.True(t, ok)
	assert.Equal(t, core.FetchReady, summary.State)
}

func TestNewServerUsesJWTWhenSecretSet(t *testing.T) {
	cfg := demoConfig()
	cfg.Auth.JWTSecret = "secret"
	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	assert.IsType(t, &core.JWTVerifier{}, srv.Verifier)
}

func TestNewServerAppliesManifest(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
version: "1"
views:
  - code: forecast
    title: Revenue Outlook
`), 0o644))
	cfg := demoConfig()
	cfg.Views.Manifest = path

	srv, err := NewServer(cfg, nil)
	require.NoError(t, err)
	def, ok := srv.Registry.Definition(core.ViewForecast)
	require.True(t, ok)
	assert.Equal(t, "Revenue Outlook", def.Title)
}

func TestNewServerRequiresConfig(t *testing.T) {
	_, err := NewServer(nil, nil)
	require.Error(t, err)
}

func TestPageURLReexport(t *testing.T) {
	sel := NewFilterSelection(nil, []string{"CA"}, nil)
	assert.Equal(t, "/dashboard/regions?states=CA", PageURL("/dashboard/regions", sel))
}
