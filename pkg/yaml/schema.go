package yaml

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// SchemaGenerator generates a JSON schema for a configuration type using
// [github.com/invopop/jsonschema].
type SchemaGenerator struct {
	reflector *jsonschema.Reflector
	v         any
	pkgs      []string
}

// NewSchemaGenerator creates a [SchemaGenerator] for v. Go doc comments from
// the given packages are used as schema descriptions.
func NewSchemaGenerator(v any, pkgs ...string) *SchemaGenerator {
	return &SchemaGenerator{
		reflector: &jsonschema.Reflector{
			ExpandedStruct:             true,
			DoNotReference:             true,
			AllowAdditionalProperties:  false,
			RequiredFromJSONSchemaTags: true,
		},
		v:    v,
		pkgs: pkgs,
	}
}

// Generate returns the indented JSON schema.
func (g *SchemaGenerator) Generate() ([]byte, error) {
	for _, pkg := range g.pkgs {
		err := g.reflector.AddGoComments(pkg, "./")
		if err != nil {
			return nil, fmt.Errorf("add go comments for %q: %w", pkg, err)
		}
	}

	js := g.reflector.Reflect(g.v)

	b, err := json.MarshalIndent(js, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal schema: %w", err)
	}

	return b, nil
}
