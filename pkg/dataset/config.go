package dataset

import (
	"errors"
	"path/filepath"

	"github.com/macropower/prodmatch/pkg/yaml"
)

const (
	DefaultProductsPath   = "orders/products.json"
	DefaultGuidelinesPath = "guidelines/guidelines.json"
)

// Config locates the input datasets.
type Config struct {
	// Products is the path of the product dataset.
	Products string `json:"products,omitempty" jsonschema:"title=Products"`
	// Guidelines is the path of the guideline dataset.
	Guidelines string `json:"guidelines,omitempty" jsonschema:"title=Guidelines"`
}

func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {
	if c.Products == "" {
		c.Products = DefaultProductsPath
	}

	if c.Guidelines == "" {
		c.Guidelines = DefaultGuidelinesPath
	}
}

func (c *Config) Validate() error {
	pb := yaml.NewPathBuilder()

	if c.Products == "" {
		return yaml.NewError(errors.New("products path is required"),
			yaml.WithPath(pb.Root().Child("inputs").Child("products").Build()))
	}

	if c.Guidelines == "" {
		return yaml.NewError(errors.New("guidelines path is required"),
			yaml.WithPath(pb.Root().Child("inputs").Child("guidelines").Build()))
	}

	return nil
}

// WatchDirs returns the directories containing the datasets.
func (c *Config) WatchDirs() []string {
	return []string{filepath.Dir(c.Products), filepath.Dir(c.Guidelines)}
}
