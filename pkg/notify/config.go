package notify

import (
	"errors"

	"github.com/macropower/prodmatch/pkg/yaml"
)

// DefaultChannel is the default pub/sub channel.
const DefaultChannel = "prodmatch:cycles"

// Config configures cycle notifications. Notifications are disabled
// unless Address is set.
type Config struct {
	// Address is the Redis server address, host:port.
	Address string `json:"address,omitempty" jsonschema:"title=Address"`
	// Channel is the pub/sub channel that summaries are published to.
	Channel string `json:"channel,omitempty" jsonschema:"title=Channel"`
	// PasswordEnv names the environment variable holding the password.
	PasswordEnv string `json:"passwordEnv,omitempty" jsonschema:"title=Password Environment Variable"`
	// DB is the Redis database number.
	DB int `json:"db,omitempty" jsonschema:"title=Database,minimum=0"`
}

func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

func (c *Config) EnsureDefaults() {
	if c.Channel == "" {
		c.Channel = DefaultChannel
	}
}

func (c *Config) Validate() error {
	if c.DB < 0 {
		return yaml.NewError(errors.New("db must not be negative"),
			yaml.WithPath(yaml.NewPathBuilder().Root().Child("notify").Child("db").Build()))
	}

	return nil
}

// Enabled reports whether notifications are configured.
func (c *Config) Enabled() bool {
	return c.Address != ""
}
