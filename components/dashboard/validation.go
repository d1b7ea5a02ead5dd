package dashboard

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ParamsValidator validates fetcher params against the view definition.
type ParamsValidator interface {
	Validate(def ViewDefinition, fetcher string, params map[string]any) error
}

// JSONSchemaValidator compiles fetcher schemas and validates params maps.
type JSONSchemaValidator struct {
	mu       sync.RWMutex
	compiled map[string]*jsonschema.Schema
}

// NewJSONSchemaValidator builds a validator backed by jsonschema v5.
func NewJSONSchemaValidator() *JSONSchemaValidator {
	return &JSONSchemaValidator{
		compiled: make(map[string]*jsonschema.Schema),
	}
}

// Validate ensures params satisfy the schema of the named fetcher.
func (v *JSONSchemaValidator) Validate(def ViewDefinition, fetcher string, params map[string]any) error {
	fd, ok := def.Fetcher(fetcher)
	if !ok {
		return fmt.Errorf("%w: view %s has no fetcher %q", ErrInvalidParams, def.Code, fetcher)
	}
	if len(fd.Schema) == 0 {
		return nil
	}
	schema, err := v.schemaFor(def.Code, fd)
	if err != nil {
		return err
	}
	if params == nil {
		params = map[string]any{}
	}
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("dashboard: marshal params for %s.%s: %w", def.Code, fetcher, err)
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var payload any
	if err := decoder.Decode(&payload); err != nil {
		return fmt.Errorf("dashboard: normalize params for %s.%s: %w", def.Code, fetcher, err)
	}
	if err := schema.Validate(payload); err != nil {
		return fmt.Errorf("%w: %s.%s: %v", ErrInvalidParams, def.Code, fetcher, err)
	}
	return nil
}

func (v *JSONSchemaValidator) schemaFor(code ViewCode, fd FetcherDefinition) (*jsonschema.Schema, error) {
	data, err := json.Marshal(fd.Schema)
	if err != nil {
		return nil, fmt.Errorf("dashboard: marshal schema %s.%s: %w", code, fd.Name, err)
	}
	key := string(code) + "." + fd.Name + ":" + contentHash(fd.Schema)

	v.mu.RLock()
	schema, ok := v.compiled[key]
	v.mu.RUnlock()
	if ok {
		return schema, nil
	}
	compiler := jsonschema.NewCompiler()
	name := string(code) + "." + fd.Name + ".json"
	if err := compiler.AddResource(name, bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("dashboard: load schema %s: %w", name, err)
	}
	compiled, err := compiler.Compile(name)
	if err != nil {
		return nil, fmt.Errorf("dashboard: compile schema %s: %w", name, err)
	}
	v.mu.Lock()
	v.compiled[key] = compiled
	v.mu.Unlock()
	return compiled, nil
}
