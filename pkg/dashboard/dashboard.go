// Package dashboard is the public entry point of the commerce dashboard: it
// re-exports the core types and assembles a ready-to-serve Server from
// configuration.
package dashboard

import (
	core "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// Service exposes the underlying components/dashboard.Service type.
type Service = core.Service

// Options re-export for convenience.
type Options = core.Options

// FilterSelection re-export.
type FilterSelection = core.FilterSelection

// FilterCatalog re-export.
type FilterCatalog = core.FilterCatalog

// ViewCode re-export.
type ViewCode = core.ViewCode

// NewService proxies to the internal constructor.
func NewService(opts Options) *Service {
	return core.NewService(opts)
}

// PageURL encodes a selection onto a view route.
func PageURL(route string, selection FilterSelection) string {
	return core.PageURL(route, selection)
}

// NewFilterSelection proxies to the core constructor.
func NewFilterSelection(categories, states, cities []string) FilterSelection {
	return core.NewFilterSelection(categories, states, cities)
}
