package dashboard

import (
	"net/url"
	"strings"
)

// EncodeToQuery serializes a selection for the page URL: one comma-joined
// parameter per non-empty facet, values in insertion order. Empty facets are
// omitted. The analytics API uses repeated keys instead, see pkg/analytics.
func EncodeToQuery(selection FilterSelection) url.Values {
	values := url.Values{}
	for _, facet := range Facets() {
		members := selection.Values(facet)
		if len(members) == 0 {
			continue
		}
		values.Set(string(facet), strings.Join(members, ","))
	}
	return values
}

// DecodeFromQuery reads a selection from page URL parameters. Empty tokens are
// dropped and absent parameters become empty facets. Identifiers are not
// checked against the catalog here.
func DecodeFromQuery(query url.Values) FilterSelection {
	read := func(facet Facet) []string {
		raw := query.Get(string(facet))
		if raw == "" {
			return nil
		}
		out := []string{}
		for _, token := range strings.Split(raw, ",") {
			if token == "" {
				continue
			}
			out = append(out, token)
		}
		return out
	}
	return NewFilterSelection(read(FacetCategories), read(FacetStates), read(FacetCities))
}

// PageURL joins a route with the encoded selection.
func PageURL(route string, selection FilterSelection) string {
	encoded := EncodeToQuery(selection).Encode()
	if encoded == "" {
		return route
	}
	return route + "?" + encoded
}
