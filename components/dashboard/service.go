package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrViewNotFound is returned for unknown or expired view sessions.
	ErrViewNotFound = errors.New("dashboard: view not found")
	// ErrUnknownView is returned when no definition matches a code or route.
	ErrUnknownView = errors.New("dashboard: unknown view")
	// ErrInvalidParams wraps params that fail decoding or schema validation.
	ErrInvalidParams = errors.New("dashboard: invalid params")
	// ErrInvalidMutation wraps malformed filter edits.
	ErrInvalidMutation = errors.New("dashboard: invalid filter mutation")

	errMissingViewID  = errors.New("dashboard: view id is required")
	errViewMounted    = errors.New("dashboard: view already mounted")
	errViewNotMounted = errors.New("dashboard: view not mounted")
)

// DefaultIdleTimeout is how long an untouched view session stays mounted.
const DefaultIdleTimeout = 30 * time.Minute

// Options configures the dashboard Service. Every collaborator is provided via
// interface so applications can swap implementations.
type Options struct {
	Repositories    Repositories
	Views           ViewRegistry
	Store           ViewStore
	ParamsValidator ParamsValidator
	RefreshHook     RefreshHook
	Telemetry       Telemetry
	IdleTimeout     time.Duration
	IDGenerator     func() string
	Now             func() time.Time
}

// Service orchestrates view sessions on top of the analytics repositories.
type Service struct {
	opts Options
}

// NewService builds a Service instance with safe defaults.
func NewService(opts Options) *Service {
	if opts.Views == nil {
		opts.Views = NewRegistry()
	}
	if opts.Store == nil {
		opts.Store = NewInMemoryViewStore()
	}
	if opts.ParamsValidator == nil {
		opts.ParamsValidator = NewJSONSchemaValidator()
	}
	if opts.RefreshHook == nil {
		opts.RefreshHook = noopRefreshHook{}
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = DefaultIdleTimeout
	}
	if opts.IDGenerator == nil {
		opts.IDGenerator = func() string { return uuid.NewString() }
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	opts.Telemetry = normalizeTelemetry(opts.Telemetry)
	return &Service{opts: opts}
}

// Views exposes the view registry.
func (s *Service) Views() ViewRegistry {
	return s.opts.Views
}

// OpenView mounts a new session of the view for the viewer, seeded from the
// page query.
func (s *Service) OpenView(ctx context.Context, viewer ViewerContext, code ViewCode, query url.Values) (*DashboardView, error) {
	def, ok := s.opts.Views.Definition(code)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownView, code)
	}
	view, err := NewDashboardView(ViewConfig{
		ID:           s.opts.IDGenerator(),
		Definition:   def,
		Viewer:       viewer,
		Repositories: s.opts.Repositories,
		Validator:    s.opts.ParamsValidator,
		RefreshHook:  s.opts.RefreshHook,
		Telemetry:    s.opts.Telemetry,
		Now:          s.opts.Now,
	})
	if err != nil {
		return nil, err
	}
	if err := view.Mount(ctx, query); err != nil {
		return nil, err
	}
	if err := s.opts.Store.Save(ctx, view); err != nil {
		view.Unmount(ctx)
		return nil, err
	}
	s.recordTelemetry(ctx, "dashboard.view.open", map[string]any{
		"view":    string(code),
		"view_id": view.ID(),
		"viewer":  viewer.Subject,
	})
	return view, nil
}

// OpenRoute mounts the view served at route.
func (s *Service) OpenRoute(ctx context.Context, viewer ViewerContext, route string, query url.Values) (*DashboardView, error) {
	def, ok := s.opts.Views.DefinitionByRoute(route)
	if !ok {
		return nil, fmt.Errorf("%w: route %s", ErrUnknownView, route)
	}
	return s.OpenView(ctx, viewer, def.Code, query)
}

// View returns a mounted view session.
func (s *Service) View(ctx context.Context, id string) (*DashboardView, error) {
	view, ok := s.opts.Store.Get(ctx, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return view, nil
}

// ViewFor returns a view only to the subject that opened it. A view opened
// by someone else reads as missing.
func (s *Service) ViewFor(ctx context.Context, id, subject string) (*DashboardView, error) {
	view, err := s.View(ctx, id)
	if err != nil {
		return nil, err
	}
	if view.Viewer().Subject != subject {
		s.recordTelemetry(ctx, "dashboard.view.denied", map[string]any{"view_id": id})
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	return view, nil
}

// Snapshot returns the current state of a view session.
func (s *Service) Snapshot(ctx context.Context, id string) (ViewSnapshot, error) {
	view, err := s.View(ctx, id)
	if err != nil {
		return ViewSnapshot{}, err
	}
	return view.Snapshot(), nil
}

// ApplyFilters applies a selection edit to a view and returns its new state.
func (s *Service) ApplyFilters(ctx context.Context, id string, mutation FilterMutation) (ViewSnapshot, error) {
	view, err := s.View(ctx, id)
	if err != nil {
		return ViewSnapshot{}, err
	}
	if _, err := view.ApplyFilters(ctx, mutation); err != nil {
		return ViewSnapshot{}, err
	}
	return view.Snapshot(), nil
}

// SetParams updates the params of one fetcher of a view.
func (s *Service) SetParams(ctx context.Context, id, fetcher string, params json.RawMessage) (ViewSnapshot, error) {
	view, err := s.View(ctx, id)
	if err != nil {
		return ViewSnapshot{}, err
	}
	if _, err := view.SetParams(ctx, fetcher, params); err != nil {
		return ViewSnapshot{}, err
	}
	return view.Snapshot(), nil
}

// CloseView unmounts a view session.
func (s *Service) CloseView(ctx context.Context, id string) error {
	view, ok := s.opts.Store.Delete(ctx, id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrViewNotFound, id)
	}
	view.Unmount(ctx)
	s.recordTelemetry(ctx, "dashboard.view.close", map[string]any{"view_id": id})
	return nil
}

// SweepIdle unmounts every view not seen within the idle timeout.
func (s *Service) SweepIdle(ctx context.Context) int {
	cutoff := s.opts.Now().Add(-s.opts.IdleTimeout)
	expired := s.opts.Store.Expired(ctx, cutoff)
	for _, view := range expired {
		view.Unmount(ctx)
	}
	if len(expired) > 0 {
		s.recordTelemetry(ctx, "dashboard.view.expire", map[string]any{"count": len(expired)})
	}
	return len(expired)
}

// RunSweeper calls SweepIdle on every tick until ctx is done.
func (s *Service) RunSweeper(ctx context.Context, every time.Duration) {
	if every <= 0 {
		every = s.opts.IdleTimeout / 2
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.SweepIdle(ctx)
		}
	}
}

// LoadCatalog loads the filter catalog outside of a view session.
func (s *Service) LoadCatalog(ctx context.Context) CatalogLoad {
	return LoadCatalog(ctx, s.opts.Repositories.Catalog, s.opts.Telemetry)
}

func (s *Service) recordTelemetry(ctx context.Context, event string, payload map[string]any) {
	s.opts.Telemetry.Record(ctx, event, payload)
}
