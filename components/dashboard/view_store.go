package dashboard

import (
	"context"
	"sync"
	"time"
)

// InMemoryViewStore keeps mounted views in process memory.
type InMemoryViewStore struct {
	mu    sync.RWMutex
	views map[string]*DashboardView
}

// NewInMemoryViewStore creates an empty view store.
func NewInMemoryViewStore() *InMemoryViewStore {
	return &InMemoryViewStore{
		views: make(map[string]*DashboardView),
	}
}

// Save stores the view under its id.
func (s *InMemoryViewStore) Save(_ context.Context, view *DashboardView) error {
	if view == nil || view.ID() == "" {
		return errMissingViewID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.views[view.ID()] = view
	return nil
}

// Get returns the view and marks it as seen.
func (s *InMemoryViewStore) Get(_ context.Context, id string) (*DashboardView, bool) {
	s.mu.RLock()
	view, ok := s.views[id]
	s.mu.RUnlock()
	if ok {
		view.touch()
	}
	return view, ok
}

// Delete removes and returns the view.
func (s *InMemoryViewStore) Delete(_ context.Context, id string) (*DashboardView, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	view, ok := s.views[id]
	if ok {
		delete(s.views, id)
	}
	return view, ok
}

// Expired removes and returns every view not seen since cutoff.
func (s *InMemoryViewStore) Expired(_ context.Context, cutoff time.Time) []*DashboardView {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*DashboardView
	for id, view := range s.views {
		if view.LastSeen().Before(cutoff) {
			delete(s.views, id)
			out = append(out, view)
		}
	}
	return out
}

// Len reports how many views are mounted.
func (s *InMemoryViewStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.views)
}
