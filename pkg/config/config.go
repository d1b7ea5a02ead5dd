// Package config loads dashboardctl settings from a YAML file, an optional
// .env file and DASHBOARD_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "DASHBOARD_"

// Config is the runtime configuration of the dashboard server.
type Config struct {
	Listen    string          `yaml:"listen"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Auth      AuthConfig      `yaml:"auth"`
	Views     ViewsConfig     `yaml:"views"`
	Charts    ChartsConfig    `yaml:"charts"`
	Log       LogConfig       `yaml:"log"`
}

// AnalyticsConfig points at the analytics REST API. An empty BaseURL with
// Demo set serves the built-in dataset.
type AnalyticsConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIKey     string        `yaml:"api_key"`
	Timeout    time.Duration `yaml:"timeout"`
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
	Demo       bool          `yaml:"demo"`
}

// AuthConfig selects the token verifier. Without a secret any non-empty
// token is accepted.
type AuthConfig struct {
	JWTSecret     string        `yaml:"jwt_secret"`
	JWTIssuer     string        `yaml:"jwt_issuer"`
	RememberFor   time.Duration `yaml:"remember_for"`
	SecureCookies bool          `yaml:"secure_cookies"`
}

// ViewsConfig tunes the view sessions.
type ViewsConfig struct {
	Manifest    string        `yaml:"manifest"`
	IdleTimeout time.Duration `yaml:"idle_timeout"`
	SweepEvery  time.Duration `yaml:"sweep_every"`
	PageWait    time.Duration `yaml:"page_wait"`
}

// ChartsConfig configures go-echarts output.
type ChartsConfig struct {
	Theme      string `yaml:"theme"`
	AssetsHost string `yaml:"assets_host"`
}

// LogConfig configures zap.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Listen: ":8080",
		Analytics: AnalyticsConfig{
			Timeout:    15 * time.Second,
			CatalogTTL: 5 * time.Minute,
		},
		Auth: AuthConfig{
			RememberFor: 30 * 24 * time.Hour,
		},
		Views: ViewsConfig{
			IdleTimeout: 30 * time.Minute,
			SweepEvery:  time.Minute,
			PageWait:    3 * time.Second,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads path (missing files fall back to defaults), then envFile, then
// the process environment.
func Load(path, envFile string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		}
	}
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("config: load %s: %w", envFile, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

// ApplyEnv overrides fields from DASHBOARD_* variables.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	var errs []error
	dur := func(name string, dst *time.Duration) {
		if v, ok := lookup(EnvPrefix + name); ok {
			d, err := time.ParseDuration(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = d
		}
	}
	flag := func(name string, dst *bool) {
		if v, ok := lookup(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(strings.TrimSpace(v))
			if err != nil {
				errs = append(errs, fmt.Errorf("config: %s%s: %w", EnvPrefix, name, err))
				return
			}
			*dst = b
		}
	}

	str("LISTEN", &c.Listen)
	str("API_BASE_URL", &c.Analytics.BaseURL)
	str("API_KEY", &c.Analytics.APIKey)
	dur("API_TIMEOUT", &c.Analytics.Timeout)
	dur("CATALOG_TTL", &c.Analytics.CatalogTTL)
	flag("DEMO", &c.Analytics.Demo)
	str("JWT_SECRET", &c.Auth.JWTSecret)
	str("JWT_ISSUER", &c.Auth.JWTIssuer)
	dur("REMEMBER_FOR", &c.Auth.RememberFor)
	flag("SECURE_COOKIES", &c.Auth.SecureCookies)
	str("MANIFEST", &c.Views.Manifest)
	dur("IDLE_TIMEOUT", &c.Views.IdleTimeout)
	dur("SWEEP_EVERY", &c.Views.SweepEvery)
	dur("PAGE_WAIT", &c.Views.PageWait)
	str("CHART_THEME", &c.Charts.Theme)
	str("CHART_ASSETS_HOST", &c.Charts.AssetsHost)
	str("LOG_LEVEL", &c.Log.Level)
	flag("LOG_DEVELOPMENT", &c.Log.Development)
	return errors.Join(errs...)
}

// Validate checks that an analytics source is configured.
func (c *Config) Validate() error {
	if c.Analytics.BaseURL == "" && !c.Analytics.Demo {
		return fmt.Errorf("config: analytics base url is required (set %sAPI_BASE_URL or enable demo)", EnvPrefix)
	}
	if c.Listen == "" {
		return errors.New("config: listen address is required")
	}
	return nil
}
