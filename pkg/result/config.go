package result

import (
	"errors"

	"github.com/macropower/prodmatch/pkg/yaml"
)

// DefaultDir is the default output directory.
const DefaultDir = "output"

// Config configures where results are written.
type Config struct {
	// Dir is the output directory. Relative paths are resolved against the
	// working directory.
	Dir string `json:"dir,omitempty" jsonschema:"title=Directory"`
}

func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {
	if c.Dir == "" {
		c.Dir = DefaultDir
	}
}

func (c *Config) Validate() error {
	if c.Dir == "" {
		return yaml.NewError(errors.New("output directory is required"),
			yaml.WithPath(yaml.NewPathBuilder().Root().Child("output").Child("dir").Build()),
		)
	}

	return nil
}
