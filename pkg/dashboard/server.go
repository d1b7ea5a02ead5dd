package dashboard

import (
	"context"
	"fmt"

	router "github.com/goliatone/go-router"
	"go.uber.org/zap"

	core "github.com/goliatone/go-commerce-dashboard/components/dashboard"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard/gorouter"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard/httpapi"
	"github.com/goliatone/go-commerce-dashboard/pkg/analytics"
	"github.com/goliatone/go-commerce-dashboard/pkg/config"
)

// Server bundles every collaborator the HTTP surface needs.
type Server struct {
	Config     *config.Config
	Client     analytics.Client
	Registry   *core.Registry
	Service    *core.Service
	Broadcast  *core.BroadcastHook
	Controller *core.Controller
	Executor   *httpapi.CommandExecutor
	Verifier   core.TokenVerifier

	logger *zap.Logger
}

// NewServer wires the analytics client, view registry, service and page
// controller from cfg. A nil logger logs nothing.
func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("dashboard: config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	telemetry := core.NewZapTelemetry(logger)

	client, err := NewClient(cfg)
	if err != nil {
		return nil, err
	}

	registry := core.NewRegistry()
	if cfg.Views.Manifest != "" {
		doc, err := registry.LoadManifestFile(cfg.Views.Manifest)
		if err != nil {
			return nil, err
		}
		logger.Info("view manifest loaded", zap.String("path", cfg.Views.Manifest), zap.Int("views", len(doc.Views)))
	}

	verifier, err := NewVerifier(cfg)
	if err != nil {
		return nil, err
	}

	broadcast := core.NewBroadcastHook()
	service := core.NewService(core.Options{
		Repositories: analytics.NewRepositories(client, cfg.Analytics.CatalogTTL),
		Views:        registry,
		RefreshHook:  broadcast,
		Telemetry:    telemetry,
		IdleTimeout:  cfg.Views.IdleTimeout,
	})

	renderer, err := core.NewTemplateRenderer()
	if err != nil {
		return nil, fmt.Errorf("dashboard: templates: %w", err)
	}
	controller := core.NewController(core.ControllerOptions{
		Renderer: renderer,
		Charts: core.NewEChartsRenderer(
			core.WithChartTheme(cfg.Charts.Theme),
			core.WithChartAssetsHost(cfg.Charts.AssetsHost),
		),
		Views:    registry,
		PageWait: cfg.Views.PageWait,
	})

	return &Server{
		Config:     cfg,
		Client:     client,
		Registry:   registry,
		Service:    service,
		Broadcast:  broadcast,
		Controller: controller,
		Executor:   httpapi.NewCommandExecutor(service, client, telemetry),
		Verifier:   verifier,
		logger:     logger,
	}, nil
}

// NewClient returns the HTTP analytics client, or the demo dataset when no
// base url is configured and demo mode is on.
func NewClient(cfg *config.Config) (analytics.Client, error) {
	if cfg.Analytics.BaseURL == "" && cfg.Analytics.Demo {
		return analytics.NewMockClient(), nil
	}
	return analytics.NewHTTPClient(analytics.HTTPConfig{
		BaseURL: cfg.Analytics.BaseURL,
		APIKey:  cfg.Analytics.APIKey,
		Timeout: cfg.Analytics.Timeout,
	})
}

// NewVerifier picks JWT verification when a secret is configured.
func NewVerifier(cfg *config.Config) (core.TokenVerifier, error) {
	if cfg.Auth.JWTSecret == "" {
		return core.PresenceVerifier{}, nil
	}
	return core.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
}

// Register mounts the dashboard routes on r.
func Register[T any](s *Server, r router.Router[T]) error {
	return gorouter.Register(gorouter.Config[T]{
		Router:        r,
		Service:       s.Service,
		Controller:    s.Controller,
		API:           s.Executor,
		Broadcast:     s.Broadcast,
		Verifier:      s.Verifier,
		Health:        s.Client.Health,
		RememberFor:   s.Config.Auth.RememberFor,
		SecureCookies: s.Config.Auth.SecureCookies,
	})
}

// Run sweeps idle view sessions until ctx is done.
func (s *Server) Run(ctx context.Context) {
	s.logger.Info("view sweeper started", zap.Duration("every", s.Config.Views.SweepEvery), zap.Duration("idle_timeout", s.Config.Views.IdleTimeout))
	s.Service.RunSweeper(ctx, s.Config.Views.SweepEvery)
}
