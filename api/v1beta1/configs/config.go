// Package configs provides the Configuration type for prodmatch.
package configs

import (
	"fmt"

	"github.com/invopop/jsonschema"

	_ "embed"

	"github.com/macropower/prodmatch/api"
	"github.com/macropower/prodmatch/api/v1beta1"
	"github.com/macropower/prodmatch/pkg/classify"
	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/match"
	"github.com/macropower/prodmatch/pkg/mcp"
	"github.com/macropower/prodmatch/pkg/notify"
	"github.com/macropower/prodmatch/pkg/oracle"
	"github.com/macropower/prodmatch/pkg/pipeline"
	"github.com/macropower/prodmatch/pkg/result"
	"github.com/macropower/prodmatch/pkg/yaml"
)

//go:generate go run ../../../internal/schemagen/main.go -o configs.v1beta1.json

var (
	//go:embed config.yaml
	defaultConfigYAML []byte

	//go:embed configs.v1beta1.json
	schemaJSON []byte

	// ValidKinds contains the valid kind values for configurations.
	ValidKinds = []string{"Configuration"}

	// DefaultValidator validates configuration against the JSON schema.
	DefaultValidator = yaml.MustNewValidator("/configs.v1beta1.json", schemaJSON)

	// Compile-time interface checks.
	_ v1beta1.Object = (*Config)(nil)
)

// Config represents the prodmatch configuration.
//
//nolint:recvcheck // Must satisfy the jsonschema interface.
type Config struct {
	// Inputs locates the product and guideline datasets.
	Inputs *dataset.Config `json:"inputs,omitempty" jsonschema:"title=Inputs"`
	// Output locates the result artifacts.
	Output *result.Config `json:"output,omitempty" jsonschema:"title=Output"`
	// Oracle configures the LLM backend.
	Oracle *oracle.Config `json:"oracle,omitempty" jsonschema:"title=Oracle"`
	// Classifier decides whether an oracle answer is a match.
	Classifier *classify.Config `json:"classifier,omitempty" jsonschema:"title=Classifier"`
	// Engine configures cycle error handling.
	Engine *match.Config `json:"engine,omitempty" jsonschema:"title=Engine"`
	// Watch configures which file changes start a cycle.
	Watch *pipeline.Config `json:"watch,omitempty" jsonschema:"title=Watch"`
	// Notify configures cycle completion notifications.
	Notify *notify.Config `json:"notify,omitempty" jsonschema:"title=Notify"`
	// MCP configures the MCP server.
	MCP              *mcp.Config `json:"mcp,omitempty" jsonschema:"title=MCP"`
	v1beta1.TypeMeta `json:",inline"`
}

// New creates a new [Config] with default values.
func New() *Config {
	c := &Config{
		TypeMeta: v1beta1.TypeMeta{
			APIVersion: v1beta1.APIVersion,
			Kind:       "Configuration",
		},
	}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults initializes nil fields to their default values.
func (c *Config) EnsureDefaults() {
	c.Inputs = ensure(c.Inputs, dataset.NewConfig)
	c.Output = ensure(c.Output, result.NewConfig)
	c.Oracle = ensure(c.Oracle, oracle.NewConfig)
	c.Classifier = ensure(c.Classifier, classify.NewConfig)
	c.Engine = ensure(c.Engine, match.NewConfig)
	c.Watch = ensure(c.Watch, pipeline.NewConfig)
	c.Notify = ensure(c.Notify, notify.NewConfig)
	c.MCP = ensure(c.MCP, mcp.NewConfig)
}

type defaulter interface {
	EnsureDefaults()
}

func ensure[T defaulter](v T, newFunc func() T) T {
	var zero T
	if any(v) == any(zero) {
		return newFunc()
	}

	v.EnsureDefaults()

	return v
}

// Validate validates the configuration. Defaults must already be applied,
// as they are by [New] and by the config loader.
func (c *Config) Validate() error {
	sections := []struct {
		v    interface{ Validate() error }
		name string
	}{
		{name: "inputs", v: c.Inputs},
		{name: "output", v: c.Output},
		{name: "oracle", v: c.Oracle},
		{name: "classifier", v: c.Classifier},
		{name: "engine", v: c.Engine},
		{name: "watch", v: c.Watch},
		{name: "notify", v: c.Notify},
		{name: "mcp", v: c.MCP},
	}

	for _, s := range sections {
		err := s.v.Validate()
		if err != nil {
			return fmt.Errorf("validate %s config: %w", s.name, err)
		}
	}

	return nil
}

func (c Config) JSONSchemaExtend(jss *jsonschema.Schema) {
	v1beta1.ExtendSchemaWithEnums(jss, v1beta1.ValidAPIVersions, ValidKinds)
}

// MarshalYAML serializes the config to YAML.
func (c Config) MarshalYAML() ([]byte, error) {
	type alias Config

	b, err := api.MarshalYAML(alias(c))
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	return b, nil
}

// WriteDefault writes the embedded default config.yaml to the specified path.
func WriteDefault(path string, force bool) error {
	err := api.WriteDefaultFile(path, defaultConfigYAML, force, "configuration")
	if err != nil {
		return fmt.Errorf("write default config: %w", err)
	}

	return nil
}

// GetPath returns the path to the user configuration file.
func GetPath() string {
	return api.GetConfigPath("config.yaml")
}
