package queries

import (
	"context"
	"errors"
	"testing"

	dashboard "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

type stubSnapshotService struct {
	calls int
	err   error
}

func (s *stubSnapshotService) Snapshot(_ context.Context, id string) (dashboard.ViewSnapshot, error) {
	s.calls++
	return dashboard.ViewSnapshot{ID: id}, s.err
}

type stubCatalogService struct {
	load dashboard.CatalogLoad
}

func (s *stubCatalogService) LoadCatalog(context.Context) dashboard.CatalogLoad {
	return s.load
}

func TestViewSnapshotQuery(t *testing.T) {
	service := &stubSnapshotService{}
	query := NewViewSnapshotQuery(service)
	snap, err := query.Query(context.Background(), ViewSnapshotInput{ViewID: "v1"})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if service.calls != 1 || snap.ID != "v1" {
		t.Fatalf("expected snapshot for v1, got %#v", snap)
	}
}

func TestViewSnapshotQueryError(t *testing.T) {
	query := NewViewSnapshotQuery(&stubSnapshotService{err: dashboard.ErrViewNotFound})
	if _, err := query.Query(context.Background(), ViewSnapshotInput{ViewID: "x"}); !errors.Is(err, dashboard.ErrViewNotFound) {
		t.Fatalf("expected ErrViewNotFound, got %v", err)
	}
}

func TestCatalogQueryReportsFailureWithoutError(t *testing.T) {
	load := dashboard.CatalogLoad{
		Catalog: dashboard.EmptyCatalog(),
		Status:  dashboard.CatalogStatusFailed,
		Warning: dashboard.CatalogLoadWarning,
	}
	query := NewCatalogQuery(&stubCatalogService{load: load})
	got, err := query.Query(context.Background(), CatalogInput{})
	if err != nil {
		t.Fatalf("Query returned error: %v", err)
	}
	if !got.Failed() || got.Warning != dashboard.CatalogLoadWarning {
		t.Fatalf("expected failed load, got %#v", got)
	}
}
