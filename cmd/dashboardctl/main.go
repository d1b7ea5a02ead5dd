package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/gofiber/fiber/v2"
	router "github.com/goliatone/go-router"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	core "github.com/goliatone/go-commerce-dashboard/components/dashboard"
	"github.com/goliatone/go-commerce-dashboard/components/dashboard/queries"
	dashboardpkg "github.com/goliatone/go-commerce-dashboard/pkg/dashboard"
	"github.com/goliatone/go-commerce-dashboard/pkg/config"
)

type globals struct {
	Config string `short:"c" type:"path" default:"dashboard.yaml" help:"Path to the YAML configuration file."`
	Env    string `type:"path" default:".env" help:"Path to an optional .env file."`
	Demo   bool   `help:"Serve the built-in demo dataset instead of the analytics API."`
}

type cli struct {
	globals

	Serve    serveCmd    `cmd:"" help:"Run the dashboard web server."`
	Catalog  catalogCmd  `cmd:"" help:"Print the filter catalog served by the analytics API."`
	Link     linkCmd     `cmd:"" help:"Print a dashboard page URL for a filter selection."`
	Token    tokenCmd    `cmd:"" help:"Sign a development session token with the configured JWT secret."`
	Manifest manifestCmd `cmd:"" help:"Edit and check view manifests."`
}

func main() {
	var app cli
	ctx := kong.Parse(&app,
		kong.Name("dashboardctl"),
		kong.Description("Commerce analytics dashboard server and tooling."),
		kong.UsageOnError(),
	)
	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx.BindTo(runCtx, (*context.Context)(nil))
	err := ctx.Run(&app.globals)
	ctx.FatalIfErrorf(err)
}

func (g *globals) load() (*config.Config, error) {
	if g.Demo {
		if err := os.Setenv(config.EnvPrefix+"DEMO", "true"); err != nil {
			return nil, err
		}
	}
	return config.Load(g.Config, g.Env)
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	if cfg.Level != "" {
		level, err := zap.ParseAtomicLevel(cfg.Level)
		if err != nil {
			return nil, fmt.Errorf("dashboardctl: log level: %w", err)
		}
		zcfg.Level = level
	}
	return zcfg.Build()
}

type serveCmd struct {
	Listen string `help:"Override the listen address."`
}

func (cmd *serveCmd) Run(ctx context.Context, g *globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	if cmd.Listen != "" {
		cfg.Listen = cmd.Listen
	}
	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	srv, err := dashboardpkg.NewServer(cfg, logger)
	if err != nil {
		return err
	}
	if err := srv.Client.Health(ctx); err != nil {
		logger.Warn("analytics api unhealthy at startup", zap.Error(err))
	}

	server := router.NewFiberAdapter()
	if err := dashboardpkg.Register[*fiber.App](srv, server.Router()); err != nil {
		return fmt.Errorf("dashboardctl: register routes: %w", err)
	}

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		srv.Run(gctx)
		return nil
	})
	group.Go(func() error {
		logger.Info("dashboard listening", zap.String("addr", cfg.Listen), zap.Bool("demo", cfg.Analytics.Demo))
		return server.Serve(cfg.Listen)
	})
	group.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		logger.Info("shutting down")
		return server.Shutdown(shutdownCtx)
	})
	if err := group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

type catalogCmd struct {
	Pretty bool `default:"true" negatable:"" help:"Indent the JSON output."`
}

func (cmd *catalogCmd) Run(ctx context.Context, g *globals) error {
	cfg, err := g.load()
	if err != nil {
		return err
	}
	client, err := dashboardpkg.NewClient(cfg)
	if err != nil {
		return err
	}
	service := core.NewService(core.Options{Repositories: core.RepositoriesFrom(client)})
	load, err := queries.NewCatalogQuery(service).Query(ctx, queries.CatalogInput{})
	if err != nil {
		return err
	}
	if load.Failed() {
		fmt.Fprintln(os.Stderr, load.Warning+":", load.Err)
	}
	return writeJSON(os.Stdout, load.Catalog, cmd.Pretty)
}

type linkCmd struct {
	View       string   `default:"overview" enum:"overview,categories,regions,forecast" help:"View to link to."`
	Base       string   `help:"Optional scheme and host prepended to the path."`
	Categories []string `help:"Selected categories." sep:","`
	States     []string `help:"Selected states." sep:","`
	Cities     []string `help:"Selected cities." sep:","`
}

func (cmd *linkCmd) Run(g *globals) error {
	registry := core.NewRegistry()
	if _, err := os.Stat(g.Config); err == nil {
		cfg, err := config.Load(g.Config, "")
		if err == nil && cfg.Views.Manifest != "" {
			if _, err := registry.LoadManifestFile(cfg.Views.Manifest); err != nil {
				return err
			}
		}
	}
	def, ok := registry.Definition(core.ViewCode(cmd.View))
	if !ok {
		return fmt.Errorf("dashboardctl: unknown view %q", cmd.View)
	}
	selection := core.NewFilterSelection(cmd.Categories, cmd.States, cmd.Cities)
	fmt.Fprintln(os.Stdout, cmd.Base+core.PageURL(def.Route, selection))
	return nil
}

type tokenCmd struct {
	Subject string        `arg:"" help:"Subject (user id) to embed in the token."`
	TTL     time.Duration `default:"24h" help:"Token lifetime."`
}

func (cmd *tokenCmd) Run(g *globals) error {
	cfg := config.Default()
	loaded, err := config.Load(g.Config, g.Env)
	if err == nil {
		cfg = loaded
	} else if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return err
	}
	if cfg.Auth.JWTSecret == "" {
		return fmt.Errorf("dashboardctl: set %sJWT_SECRET to sign tokens", config.EnvPrefix)
	}
	verifier, err := core.NewJWTVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
	if err != nil {
		return err
	}
	token, err := verifier.Sign(cmd.Subject, cmd.TTL)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, token)
	return nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
