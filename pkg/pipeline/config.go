package pipeline

import (
	"github.com/macropower/prodmatch/pkg/yaml"
)

// Config configures the watch loop.
type Config struct {
	// Reload is a CEL expression deciding which file events trigger a
	// cycle. Variables: `file` (string) and `fs.event` (int).
	Reload string `json:"reload,omitempty" jsonschema:"title=Reload Expression"`
}

func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {
	if c.Reload == "" {
		c.Reload = DefaultReload
	}
}

func (c *Config) Validate() error {
	_, err := NewFilter(c.Reload)
	if err != nil {
		return yaml.NewError(err,
			yaml.WithPath(yaml.NewPathBuilder().Root().Child("watch").Child("reload").Build()),
		)
	}

	return nil
}
