package queries

import (
	"context"

	gocommand "github.com/goliatone/go-command"
	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

// ViewSnapshotInput identifies a mounted view.
type ViewSnapshotInput struct {
	ViewID string
}

type snapshotService interface {
	Snapshot(ctx context.Context, id string) (dashboard.ViewSnapshot, error)
}

// ViewSnapshotQuery returns the current state of a view session.
type ViewSnapshotQuery struct {
	service snapshotService
}

// NewViewSnapshotQuery builds the query.
func NewViewSnapshotQuery(service snapshotService) *ViewSnapshotQuery {
	return &ViewSnapshotQuery{service: service}
}

var _ gocommand.Querier[ViewSnapshotInput, dashboard.ViewSnapshot] = (*ViewSnapshotQuery)(nil)

// Query resolves the snapshot.
func (q *ViewSnapshotQuery) Query(ctx context.Context, input ViewSnapshotInput) (dashboard.ViewSnapshot, error) {
	return q.service.Snapshot(ctx, input.ViewID)
}
