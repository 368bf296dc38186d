// Package schema reflects JSON schemas for the documents operators and
// plugin authors write by hand.
package schema

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/invopop/jsonschema"

	"neocore/internal/app"
	"neocore/internal/services"
)

// Document names accepted by Build.
const (
	DocumentDescribe = "describe"
	DocumentConfig   = "config"
)

// Documents lists the schema names Build accepts, sorted.
func Documents() []string {
	names := make([]string, 0, len(builders))
	for name := range builders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var builders = map[string]func() *jsonschema.Schema{
	DocumentDescribe: describeSchema,
	DocumentConfig:   configSchema,
}

// Build reflects the named document schema.
func Build(name string) (*jsonschema.Schema, error) {
	build, ok := builders[name]
	if !ok {
		return nil, fmt.Errorf("schema: unknown document %q", name)
	}
	return build(), nil
}

func describeSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: true,
	}
	schema := reflector.Reflect(new(services.Description))
	schema.Title = "neocore service description"
	schema.Description = "Document returned by a service's Describe method, including optional console commands"
	return schema
}

func configSchema() *jsonschema.Schema {
	reflector := jsonschema.Reflector{}
	schema := reflector.Reflect(new(app.Config))
	schema.Title = "neocore host configuration"
	schema.Description = "Validates neocore.yaml; per-module settings under modules are free-form"
	return schema
}

// Write encodes schema as indented JSON and replaces outPath atomically.
func Write(outPath string, schema *jsonschema.Schema) error {
	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create schema directory: %w", err)
	}

	tmpPath := outPath + ".tmp"
	if err := os.WriteFile(tmpPath, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write temp schema: %w", err)
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		return fmt.Errorf("replace schema: %w", err)
	}

	return nil
}
