package dashboard

import (
	"errors"
	"testing"
)

func TestJSONSchemaValidatorRejectsInvalidParams(t *testing.T) {
	validator := NewJSONSchemaValidator()
	def, _ := NewRegistry().Definition(ViewForecast)

	if err := validator.Validate(def, FetcherForecast, map[string]any{"h": 6, "model": "linear"}); err != nil {
		t.Fatalf("expected valid params, got %v", err)
	}
	for _, params := range []map[string]any{
		{"h": 0},
		{"h": 13},
		{"h": 2.5},
		{"model": "arima"},
		{"start_date": "2022/01/01"},
		{"color": "red"},
	} {
		err := validator.Validate(def, FetcherForecast, params)
		if !errors.Is(err, ErrInvalidParams) {
			t.Fatalf("expected ErrInvalidParams for %v, got %v", params, err)
		}
	}
}

func TestJSONSchemaValidatorUnknownFetcher(t *testing.T) {
	validator := NewJSONSchemaValidator()
	def, _ := NewRegistry().Definition(ViewOverview)
	if err := validator.Validate(def, FetcherForecast, nil); !errors.Is(err, ErrInvalidParams) {
		t.Fatalf("expected ErrInvalidParams, got %v", err)
	}
}

func TestJSONSchemaValidatorCachesCompiledSchemas(t *testing.T) {
	validator := NewJSONSchemaValidator()
	def := ViewDefinition{
		Code:     "cache",
		Fetchers: []FetcherDefinition{{Name: "summary", Schema: map[string]any{"type": "object"}}},
	}
	if err := validator.Validate(def, "summary", nil); err != nil {
		t.Fatalf("unexpected error validating params: %v", err)
	}
	if len(validator.compiled) != 1 {
		t.Fatalf("expected schema cache to contain 1 entry, got %d", len(validator.compiled))
	}
	if err := validator.Validate(def, "summary", map[string]any{}); err != nil {
		t.Fatalf("unexpected error on cached validation: %v", err)
	}
	if len(validator.compiled) != 1 {
		t.Fatalf("expected schema cache to remain 1 entry, got %d", len(validator.compiled))
	}
}

func TestJSONSchemaValidatorSkipsSchemalessFetchers(t *testing.T) {
	validator := NewJSONSchemaValidator()
	def := ViewDefinition{Code: "loose", Fetchers: []FetcherDefinition{{Name: "summary"}}}
	if err := validator.Validate(def, "summary", map[string]any{"anything": true}); err != nil {
		t.Fatalf("expected schemaless fetcher to accept params, got %v", err)
	}
	if len(validator.compiled) != 0 {
		t.Fatalf("expected no compiled schemas, got %d", len(validator.compiled))
	}
}
