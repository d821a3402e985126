package mcp

import (
	"errors"
	"net"

	"github.com/macropower/prodmatch/pkg/yaml"
)

// Config configures the MCP server.
type Config struct {
	// Enabled starts the MCP server alongside the watcher.
	Enabled bool `json:"enabled,omitempty" jsonschema:"title=Enabled"`
	// Address is the host:port to serve streamable HTTP on. When empty, the
	// server uses stdio.
	Address string `json:"address,omitempty" jsonschema:"title=Address"`
}

func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {}

func (c *Config) Validate() error {
	if c.Address == "" {
		return nil
	}

	_, _, err := net.SplitHostPort(c.Address)
	if err != nil {
		return yaml.NewError(errors.New("address must be host:port"),
			yaml.WithPath(yaml.NewPathBuilder().Root().Child("mcp").Child("address").Build()))
	}

	return nil
}
