package dashboard

import (
	"net/url"
	"sync"
)

// Reconcile drops every selected city that is not reachable from the selected
// states. When nothing needs to change the input is returned as is and the
// second result is false.
func Reconcile(selection FilterSelection, catalog FilterCatalog) (FilterSelection, bool) {
	allowed := stringSet(DeriveCityOptions(catalog, selection.States))
	kept := make([]string, 0, len(selection.Cities))
	for _, city := range selection.Cities {
		if _, ok := allowed[city]; ok {
			kept = append(kept, city)
		}
	}
	if len(kept) == len(selection.Cities) {
		return selection, false
	}
	return selection.With(FacetCities, kept), true
}

// SelectionListener observes committed selections.
type SelectionListener func(FilterSelection)

// FilterController owns the selection of a single view. Every mutation builds
// a complete new selection and runs it through Reconcile before it becomes
// canonical; listeners only hear about selections that actually changed, in
// commit order. Listeners must not mutate the controller.
type FilterController struct {
	// notifyMu orders commits with their delivery.
	notifyMu sync.Mutex

	mu        sync.Mutex
	catalog   FilterCatalog
	selection FilterSelection
	listeners map[int]SelectionListener
	next      int
}

// NewFilterController seeds the controller with an initial selection, usually
// decoded from the page URL.
func NewFilterController(catalog FilterCatalog, initial FilterSelection) *FilterController {
	catalog = catalog.normalized()
	selection, _ := Reconcile(initial.normalized(), catalog)
	return &FilterController{
		catalog:   catalog,
		selection: selection,
		listeners: map[int]SelectionListener{},
	}
}

// Selection returns the canonical selection.
func (c *FilterController) Selection() FilterSelection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selection.normalized()
}

// Catalog returns the catalog the controller reconciles against.
func (c *FilterController) Catalog() FilterCatalog {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.catalog.normalized()
}

// Options returns the selectable values for a facet. Cities depend on the
// currently selected states.
func (c *FilterController) Options(facet Facet) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.optionsLocked(facet)
}

func (c *FilterController) optionsLocked(facet Facet) []string {
	return facetOptions(c.catalog, c.selection, facet)
}

func facetOptions(catalog FilterCatalog, selection FilterSelection, facet Facet) []string {
	if facet == FacetCities {
		return DeriveCityOptions(catalog, selection.States)
	}
	return catalog.Options(facet)
}

// Query encodes the selection for the page URL.
func (c *FilterController) Query() url.Values {
	return EncodeToQuery(c.Selection())
}

// Subscribe registers a listener and returns its cancel func.
func (c *FilterController) Subscribe(fn SelectionListener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.next
	c.next++
	c.listeners[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.listeners, id)
	}
}

// Replace swaps the whole selection.
func (c *FilterController) Replace(next FilterSelection) bool {
	return c.update(func(FilterSelection) FilterSelection { return next })
}

// SetFacet replaces the values of one facet.
func (c *FilterController) SetFacet(facet Facet, values []string) bool {
	return c.update(func(current FilterSelection) FilterSelection {
		return current.With(facet, values)
	})
}

// Toggle flips a single value of a facet.
func (c *FilterController) Toggle(facet Facet, value string) bool {
	return c.update(func(current FilterSelection) FilterSelection {
		return current.Toggle(facet, value)
	})
}

// SelectAll selects every current option of the facet. For cities that is the
// derived option list, not the global city universe. It is a no-op when the
// facet is already fully selected.
func (c *FilterController) SelectAll(facet Facet) bool {
	return c.update(func(current FilterSelection) FilterSelection {
		options := facetOptions(c.catalog, current, facet)
		if len(options) == 0 {
			return current
		}
		return current.With(facet, options)
	})
}

// Clear empties the facet. It is a no-op when nothing is selected.
func (c *FilterController) Clear(facet Facet) bool {
	return c.update(func(current FilterSelection) FilterSelection {
		return current.With(facet, nil)
	})
}

// Reset clears every facet.
func (c *FilterController) Reset() bool {
	return c.Replace(FilterSelection{})
}

// SetCatalog swaps the catalog and reconciles the selection against it.
func (c *FilterController) SetCatalog(catalog FilterCatalog) bool {
	catalog = catalog.normalized()
	return c.update(func(current FilterSelection) FilterSelection {
		c.catalog = catalog
		return current
	})
}

// update runs build with c.mu held and delivers the committed selection
// before the next update may commit.
func (c *FilterController) update(build func(FilterSelection) FilterSelection) bool {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	next := build(c.selection.normalized()).normalized()
	next, _ = Reconcile(next, c.catalog)
	if next.Equal(c.selection) {
		c.mu.Unlock()
		return false
	}
	c.selection = next
	listeners := make([]SelectionListener, 0, len(c.listeners))
	for _, fn := range c.listeners {
		listeners = append(listeners, fn)
	}
	committed := next.normalized()
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(committed)
	}
	return true
}
