package dashboard

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	manifestVersionV1 = "1"
	// ManifestVersion exposes the current manifest format version for tooling.
	ManifestVersion = manifestVersionV1
)

// ViewManifestDocument models a YAML manifest that adds views or overrides the
// built-in ones.
type ViewManifestDocument struct {
	Version string         `json:"version" yaml:"version"`
	Name    string         `json:"name,omitempty" yaml:"name,omitempty"`
	Views   []ManifestView `json:"views" yaml:"views"`
	Source  string         `json:"-" yaml:"-"`
}

// ManifestView overrides a view. Empty fields keep the registered value;
// fetcher entries are matched by name and their params merged.
type ManifestView struct {
	Code        ViewCode            `json:"code" yaml:"code"`
	Title       string              `json:"title,omitempty" yaml:"title,omitempty"`
	Route       string              `json:"route,omitempty" yaml:"route,omitempty"`
	Description string              `json:"description,omitempty" yaml:"description,omitempty"`
	Position    *int                `json:"position,omitempty" yaml:"position,omitempty"`
	Fetchers    []FetcherDefinition `json:"fetchers,omitempty" yaml:"fetchers,omitempty"`
}

// LoadManifestFile reads a manifest from disk and applies it to the registry.
func (r *Registry) LoadManifestFile(path string) (*ViewManifestDocument, error) {
	doc, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	if err := r.LoadManifestDocument(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadManifestDocument merges the manifest views into the registry.
func (r *Registry) LoadManifestDocument(doc *ViewManifestDocument) error {
	if doc == nil {
		return errors.New("dashboard: manifest document is nil")
	}
	for _, view := range doc.Views {
		def, _ := r.Definition(view.Code)
		merged := view.apply(def)
		if err := r.RegisterDefinition(merged); err != nil {
			return fmt.Errorf("dashboard: register view %s from %s: %w", view.Code, doc.Source, err)
		}
	}
	return nil
}

// ReadManifest loads a manifest file from disk without applying it.
func ReadManifest(path string) (*ViewManifestDocument, error) {
	f, err := os.Open(path) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("dashboard: open manifest %s: %w", path, err)
	}
	defer f.Close()
	doc, err := DecodeManifest(f)
	if err != nil {
		return nil, fmt.Errorf("dashboard: decode manifest %s: %w", path, err)
	}
	doc.Source = path
	return doc, nil
}

// DecodeManifest reads a manifest from any reader.
func DecodeManifest(r io.Reader) (*ViewManifestDocument, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	var doc ViewManifestDocument
	if err := decoder.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dashboard: manifest is empty")
		}
		return nil, fmt.Errorf("dashboard: parse manifest: %w", err)
	}
	if doc.Version == "" {
		doc.Version = manifestVersionV1
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Validate ensures the manifest satisfies required fields.
func (doc *ViewManifestDocument) Validate() error {
	if doc.Version != manifestVersionV1 {
		return fmt.Errorf("dashboard: unsupported manifest version %q", doc.Version)
	}
	seen := make(map[ViewCode]struct{}, len(doc.Views))
	for idx, view := range doc.Views {
		if view.Code == "" {
			return fmt.Errorf("dashboard: manifest view at index %d is missing code", idx)
		}
		if _, exists := seen[view.Code]; exists {
			return fmt.Errorf("dashboard: manifest duplicates view %s", view.Code)
		}
		seen[view.Code] = struct{}{}
	}
	return nil
}

func (v ManifestView) apply(def ViewDefinition) ViewDefinition {
	def.Code = v.Code
	if v.Title != "" {
		def.Title = v.Title
	}
	if v.Route != "" {
		def.Route = v.Route
	}
	if v.Description != "" {
		def.Description = v.Description
	}
	if v.Position != nil {
		def.Position = *v.Position
	}
	fetchers := append([]FetcherDefinition(nil), def.Fetchers...)
	for _, override := range v.Fetchers {
		idx := -1
		for i, existing := range fetchers {
			if existing.Name == override.Name {
				idx = i
				break
			}
		}
		if idx < 0 {
			fetchers = append(fetchers, override)
			continue
		}
		fetchers[idx] = mergeFetcher(fetchers[idx], override)
	}
	def.Fetchers = fetchers
	return def
}

func mergeFetcher(base, override FetcherDefinition) FetcherDefinition {
	if override.Title != "" {
		base.Title = override.Title
	}
	if override.Chart != "" {
		base.Chart = override.Chart
	}
	if len(override.Schema) > 0 {
		base.Schema = override.Schema
	}
	if len(override.Params) > 0 {
		params := make(map[string]any, len(base.Params)+len(override.Params))
		for k, val := range base.Params {
			params[k] = val
		}
		for k, val := range override.Params {
			params[k] = val
		}
		base.Params = params
	}
	return base
}
