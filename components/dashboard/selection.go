package dashboard

import (
	"fmt"
	"sort"
	"strings"
)

// Facet names one of the filterable dimensions of the dashboard.
type Facet string

const (
	FacetCategories Facet = "categories"
	FacetStates     Facet = "states"
	FacetCities     Facet = "cities"
)

// Facets lists every facet in display order.
func Facets() []Facet {
	return []Facet{FacetCategories, FacetStates, FacetCities}
}

// ParseFacet resolves a facet name, case-insensitively.
func ParseFacet(name string) (Facet, error) {
	switch Facet(strings.ToLower(strings.TrimSpace(name))) {
	case FacetCategories:
		return FacetCategories, nil
	case FacetStates:
		return FacetStates, nil
	case FacetCities:
		return FacetCities, nil
	}
	return "", fmt.Errorf("dashboard: unknown facet %q", name)
}

// FilterSelection is the canonical filter state of a view. Each facet is an
// ordered set: insertion order is kept, duplicates are dropped. Values are
// never mutated in place; every change builds a new selection.
type FilterSelection struct {
	Categories []string `json:"categories"`
	States     []string `json:"states"`
	Cities     []string `json:"cities"`
}

// NewFilterSelection builds a normalized selection.
func NewFilterSelection(categories, states, cities []string) FilterSelection {
	return FilterSelection{
		Categories: orderedSet(categories),
		States:     orderedSet(states),
		Cities:     orderedSet(cities),
	}
}

// Values returns a copy of the facet's members.
func (s FilterSelection) Values(facet Facet) []string {
	switch facet {
	case FacetCategories:
		return cloneStrings(s.Categories)
	case FacetStates:
		return cloneStrings(s.States)
	case FacetCities:
		return cloneStrings(s.Cities)
	}
	return []string{}
}

// With returns a new selection with the facet replaced by values.
func (s FilterSelection) With(facet Facet, values []string) FilterSelection {
	next := s.normalized()
	switch facet {
	case FacetCategories:
		next.Categories = orderedSet(values)
	case FacetStates:
		next.States = orderedSet(values)
	case FacetCities:
		next.Cities = orderedSet(values)
	}
	return next
}

// Toggle adds value to the facet when absent and removes it otherwise.
func (s FilterSelection) Toggle(facet Facet, value string) FilterSelection {
	current := s.Values(facet)
	out := make([]string, 0, len(current)+1)
	found := false
	for _, v := range current {
		if v == value {
			found = true
			continue
		}
		out = append(out, v)
	}
	if !found {
		out = append(out, value)
	}
	return s.With(facet, out)
}

// IsEmpty reports whether no facet has a selected value.
func (s FilterSelection) IsEmpty() bool {
	return len(s.Categories) == 0 && len(s.States) == 0 && len(s.Cities) == 0
}

// Equal compares selections as sets, ignoring order within a facet.
func (s FilterSelection) Equal(other FilterSelection) bool {
	return sameSet(s.Categories, other.Categories) &&
		sameSet(s.States, other.States) &&
		sameSet(s.Cities, other.Cities)
}

// Canonical returns the selection with every facet sorted. Two selections that
// are Equal share the same canonical form.
func (s FilterSelection) Canonical() FilterSelection {
	out := s.normalized()
	sort.Strings(out.Categories)
	sort.Strings(out.States)
	sort.Strings(out.Cities)
	return out
}

func (s FilterSelection) normalized() FilterSelection {
	return FilterSelection{
		Categories: orderedSet(s.Categories),
		States:     orderedSet(s.States),
		Cities:     orderedSet(s.Cities),
	}
}

func orderedSet(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sameSet(a, b []string) bool {
	left := stringSet(a)
	right := stringSet(b)
	if len(left) != len(right) {
		return false
	}
	for v := range left {
		if _, ok := right[v]; !ok {
			return false
		}
	}
	return true
}

func stringSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, v := range values {
		set[v] = struct{}{}
	}
	return set
}

func cloneStrings(values []string) []string {
	out := make([]string, len(values))
	copy(out, values)
	return out
}
