package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ettle/strcase"
	"gopkg.in/yaml.v3"

	core "github.com/goliatone/go-commerce-dashboard/components/dashboard"
)

type manifestCmd struct {
	Add   manifestAddCmd   `cmd:"" help:"Add or override a view in a manifest file."`
	Check manifestCheckCmd `cmd:"" help:"Apply a manifest to the built-in views and print the result."`
}

type manifestAddCmd struct {
	Path      string   `arg:"" type:"path" help:"Manifest YAML file to create or update."`
	Title     string   `required:"" help:"View title shown in the navigation."`
	Code      string   `help:"View code (defaults to the kebab-cased title)."`
	Route     string   `help:"Page route (defaults to /dashboard/<code>)."`
	Position  int      `default:"-1" help:"Navigation position (negative keeps the default)."`
	Fetcher   []string `help:"Fetchers composed into the view (summary, timeseries, categories, regions, forecast)." sep:","`
	Param     []string `help:"Fetcher param as fetcher.key=value (repeatable)."`
	Overwrite bool     `help:"Replace an existing entry for the same code."`
}

func (cmd *manifestAddCmd) Run() error {
	code := cmd.Code
	if code == "" {
		code = strcase.ToKebab(cmd.Title)
	}
	if code == "" {
		return errors.New("dashboardctl: view code is required")
	}
	route := cmd.Route
	if route == "" {
		route = "/dashboard/" + code
	}

	fetchers, err := cmd.fetchers()
	if err != nil {
		return err
	}
	doc, err := loadOrInitManifest(cmd.Path)
	if err != nil {
		return err
	}
	entry := core.ManifestView{
		Code:     core.ViewCode(code),
		Title:    cmd.Title,
		Route:    route,
		Fetchers: fetchers,
	}
	if cmd.Position >= 0 {
		position := cmd.Position
		entry.Position = &position
	}
	replaced := false
	for i := range doc.Views {
		if doc.Views[i].Code != entry.Code {
			continue
		}
		if !cmd.Overwrite {
			return fmt.Errorf("dashboardctl: manifest already defines view %s (use --overwrite to replace)", code)
		}
		doc.Views[i] = entry
		replaced = true
	}
	if !replaced {
		doc.Views = append(doc.Views, entry)
	}
	sort.SliceStable(doc.Views, func(i, j int) bool { return doc.Views[i].Code < doc.Views[j].Code })

	// Refuse to write a manifest the server would reject.
	if err := core.NewRegistry().LoadManifestDocument(doc); err != nil {
		return err
	}
	if err := writeManifest(cmd.Path, doc); err != nil {
		return err
	}
	fmt.Fprintf(os.Stdout, "added view %s at %s to %s\n", code, route, cmd.Path)
	return nil
}

func (cmd *manifestAddCmd) fetchers() ([]core.FetcherDefinition, error) {
	params := map[string]map[string]any{}
	for _, raw := range cmd.Param {
		key, value, ok := strings.Cut(raw, "=")
		fetcher, name, dotted := strings.Cut(key, ".")
		if !ok || !dotted || fetcher == "" || name == "" {
			return nil, fmt.Errorf("dashboardctl: param %q must look like fetcher.key=value", raw)
		}
		if params[fetcher] == nil {
			params[fetcher] = map[string]any{}
		}
		params[fetcher][name] = parseParamValue(value)
	}

	out := make([]core.FetcherDefinition, 0, len(cmd.Fetcher))
	for _, name := range cmd.Fetcher {
		name = strings.TrimSpace(name)
		// A fetcher built without repositories only decodes its params.
		if _, err := (core.Repositories{}).NewFetcher(name, params[name], nil); err != nil {
			return nil, err
		}
		out = append(out, core.FetcherDefinition{Name: name, Params: params[name]})
		delete(params, name)
	}
	for fetcher := range params {
		return nil, fmt.Errorf("dashboardctl: param given for fetcher %s that is not part of the view", fetcher)
	}
	return out, nil
}

// parseParamValue keeps YAML scalar typing so h=6 stays an integer.
func parseParamValue(raw string) any {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil || value == nil {
		return raw
	}
	return value
}

type manifestCheckCmd struct {
	Path   string `arg:"" type:"existingfile" help:"Manifest YAML file to check."`
	Pretty bool   `default:"true" negatable:"" help:"Indent the JSON output."`
}

func (cmd *manifestCheckCmd) Run() error {
	registry := core.NewRegistry()
	if _, err := registry.LoadManifestFile(cmd.Path); err != nil {
		return err
	}
	return writeJSON(os.Stdout, registry.Definitions(), cmd.Pretty)
}

func loadOrInitManifest(path string) (*core.ViewManifestDocument, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &core.ViewManifestDocument{
				Version: core.ManifestVersion,
				Views:   []core.ManifestView{},
				Source:  path,
			}, nil
		}
		return nil, fmt.Errorf("dashboardctl: stat manifest: %w", err)
	}
	return core.ReadManifest(path)
}

func writeManifest(path string, doc *core.ViewManifestDocument) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("dashboardctl: mkdir %s: %w", filepath.Dir(path), err)
	}
	file, err := os.Create(path) //nolint:gosec
	if err != nil {
		return fmt.Errorf("dashboardctl: create manifest %s: %w", path, err)
	}
	defer file.Close()

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(2)
	defer encoder.Close()
	if err := encoder.Encode(doc); err != nil {
		return fmt.Errorf("dashboardctl: write manifest: %w", err)
	}
	return nil
}
