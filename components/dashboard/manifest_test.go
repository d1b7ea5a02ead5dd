package dashboard

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeManifest(t *testing.T) {
	const payload = `
version: "1"
name: regional
views:
  - code: regions
    title: Cities
    position: 7
    fetchers:
      - name: regions
        title: Revenue by city
        params:
          level: city
`
	doc, err := DecodeManifest(strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "regional", doc.Name)
	require.Len(t, doc.Views, 1)

	view := doc.Views[0]
	assert.Equal(t, ViewRegions, view.Code)
	assert.Equal(t, "Cities", view.Title)
	require.NotNil(t, view.Position)
	assert.Equal(t, 7, *view.Position)
	require.Len(t, view.Fetchers, 1)
	assert.Equal(t, "city", view.Fetchers[0].Params["level"])
}

func TestDecodeManifestRejectsUnknownFields(t *testing.T) {
	_, err := DecodeManifest(strings.NewReader("views:\n  - code: overview\n    layout: grid\n"))
	require.Error(t, err)
}

func TestManifestDuplicateCodes(t *testing.T) {
	const payload = `
views:
  - code: overview
    title: First
  - code: overview
    title: Second
`
	_, err := DecodeManifest(strings.NewReader(payload))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicates view overview")
}

func TestManifestUnsupportedVersion(t *testing.T) {
	_, err := DecodeManifest(strings.NewReader("version: \"2\"\nviews: []\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported manifest version")
}

func TestRegistryLoadManifestDocumentMergesFetchers(t *testing.T) {
	reg := NewRegistry()
	doc := &ViewManifestDocument{
		Version: manifestVersionV1,
		Views: []ManifestView{
			{
				Code: ViewForecast,
				Fetchers: []FetcherDefinition{
					{Name: FetcherForecast, Title: "Outlook", Params: map[string]any{"h": 6}},
				},
			},
			{
				Code:  "weekly",
				Title: "Weekly",
				Route: "/dashboard/weekly",
				Fetchers: []FetcherDefinition{
					{Name: FetcherTimeSeries, Chart: ChartLine, Params: map[string]any{"granularity": "day"}},
				},
			},
		},
	}
	require.NoError(t, reg.LoadManifestDocument(doc))

	forecast, ok := reg.Definition(ViewForecast)
	require.True(t, ok)
	assert.Equal(t, "Forecast", forecast.Title)
	fd, ok := forecast.Fetcher(FetcherForecast)
	require.True(t, ok)
	assert.Equal(t, "Outlook", fd.Title)
	assert.Equal(t, ChartForecast, fd.Chart)
	assert.Equal(t, 6, fd.Params["h"])
	assert.Equal(t, ForecastModelLinear, fd.Params["model"])
	assert.NotEmpty(t, fd.Schema)

	weekly, ok := reg.DefinitionByRoute("/dashboard/weekly")
	require.True(t, ok)
	assert.Equal(t, ViewCode("weekly"), weekly.Code)
	assert.Len(t, reg.Definitions(), 5)
}

func TestRegistryRejectsRouteCollision(t *testing.T) {
	reg := NewRegistry()
	err := reg.LoadManifestDocument(&ViewManifestDocument{
		Version: manifestVersionV1,
		Views:   []ManifestView{{Code: "copy", Route: "/dashboard"}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already served by view overview")
}

func TestLoadManifestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "views.yaml")
	require.NoError(t, os.WriteFile(path, []byte("views:\n  - code: overview\n    title: Sales\n"), 0o600))

	reg := NewRegistry()
	doc, err := reg.LoadManifestFile(path)
	require.NoError(t, err)
	assert.Equal(t, path, doc.Source)
	def, _ := reg.Definition(ViewOverview)
	assert.Equal(t, "Sales", def.Title)

	_, err = reg.LoadManifestFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestDocsManifestsAreValid(t *testing.T) {
	dir := filepath.Join("..", "..", "docs", "manifests")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		reg := NewRegistry()
		_, err := reg.LoadManifestFile(path)
		require.NoErrorf(t, err, "manifest %s should load", path)
	}
}
