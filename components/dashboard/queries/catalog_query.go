package queries

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// CatalogInput requests the filter catalog.
type CatalogInput struct{}

type catalogService interface {
	LoadCatalog(ctx context.Context) dashboard.CatalogLoad
}

// CatalogQuery loads the filter catalog outside of a view session. Failures
// are reported through CatalogLoad, never as an error.
type CatalogQuery struct {
	service catalogService
}

// NewCatalogQuery builds the query.
func NewCatalogQuery(service catalogService) *CatalogQuery {
	return &CatalogQuery{service: service}
}

var _ gocommand.Querier[CatalogInput, dashboard.CatalogLoad] = (*CatalogQuery)(nil)

// Query loads the catalog.
func (q *CatalogQuery) Query(ctx context.Context, _ CatalogInput) (dashboard.CatalogLoad, error) {
	return q.service.LoadCatalog(ctx), nil
}
