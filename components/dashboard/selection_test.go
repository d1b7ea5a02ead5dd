package dashboard

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewFilterSelectionDropsDuplicates(t *testing.T) {
	sel := NewFilterSelection([]string{"Set", "Kurta", "Set"}, nil, []string{"LA"})
	want := FilterSelection{Categories: []string{"Set", "Kurta"}, States: []string{}, Cities: []string{"LA"}}
	if diff := cmp.Diff(want, sel); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestSelectionToggleKeepsInsertionOrder(t *testing.T) {
	sel := NewFilterSelection(nil, []string{"CA"}, nil)
	sel = sel.Toggle(FacetStates, "NY").Toggle(FacetStates, "TX")
	assert.Equal(t, []string{"CA", "NY", "TX"}, sel.States)

	sel = sel.Toggle(FacetStates, "NY")
	assert.Equal(t, []string{"CA", "TX"}, sel.States)
}

func TestSelectionIsImmutable(t *testing.T) {
	base := NewFilterSelection([]string{"Set"}, nil, nil)
	next := base.With(FacetCategories, []string{"Kurta"})
	assert.Equal(t, []string{"Set"}, base.Categories)
	assert.Equal(t, []string{"Kurta"}, next.Categories)

	values := base.Values(FacetCategories)
	values[0] = "changed"
	assert.Equal(t, []string{"Set"}, base.Categories)
}

func TestSelectionEqualIgnoresOrder(t *testing.T) {
	a := NewFilterSelection([]string{"Set", "Kurta"}, []string{"CA"}, nil)
	b := NewFilterSelection([]string{"Kurta", "Set"}, []string{"CA"}, nil)
	assert.True(t, a.Equal(b))
	assert.Equal(t, a.Canonical(), b.Canonical())
	assert.False(t, a.Equal(b.Toggle(FacetStates, "NY")))
}

func TestSelectionIsEmpty(t *testing.T) {
	assert.True(t, FilterSelection{}.IsEmpty())
	assert.False(t, NewFilterSelection(nil, nil, []string{"LA"}).IsEmpty())
}

func TestParseFacet(t *testing.T) {
	facet, err := ParseFacet(" States ")
	require.NoError(t, err)
	assert.Equal(t, FacetStates, facet)

	_, err = ParseFacet("regions")
	require.Error(t, err)
}
