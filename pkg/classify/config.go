package classify

import (
	"fmt"

	"github.com/macropower/prodmatch/pkg/yaml"
)

// Config selects the classification policy. When Expression is set it
// takes precedence over Keyword.
type Config struct {
	// Keyword is matched case-insensitively anywhere in the verdict.
	Keyword string `json:"keyword,omitempty" jsonschema:"title=Keyword"`
	// Expression is a CEL expression over `verdict` returning a bool.
	Expression string `json:"expression,omitempty" jsonschema:"title=Expression"`
}

func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {
	if c.Keyword == "" {
		c.Keyword = DefaultKeyword
	}
}

func (c *Config) Validate() error {
	_, err := c.Policy()
	if err != nil {
		return yaml.NewError(err,
			yaml.WithPath(yaml.NewPathBuilder().Root().Child("classifier").Child("expression").Build()),
		)
	}

	return nil
}

// Policy builds the configured [Policy].
//
//nolint:ireturn // Returns the selected policy.
func (c *Config) Policy() (Policy, error) {
	if c.Expression != "" {
		p, err := NewExpression(c.Expression)
		if err != nil {
			return nil, fmt.Errorf("classifier %w", err)
		}

		return p, nil
	}

	return NewSubstring(c.Keyword), nil
}
