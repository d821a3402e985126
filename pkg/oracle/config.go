package oracle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/macropower/prodmatch/pkg/execs"
	"github.com/macropower/prodmatch/pkg/yaml"
)

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
	ProviderExec   = "exec"

	DefaultTimeout = 2 * time.Minute
)

var (
	// ErrUnknownProvider is returned for an unsupported provider name.
	ErrUnknownProvider = errors.New("unknown provider")

	// ErrMissingCredential is returned when the API key variable is unset.
	ErrMissingCredential = errors.New("missing credential")

	// AllProviders lists the supported provider names.
	AllProviders = []string{ProviderOpenAI, ProviderGemini, ProviderExec}

	providerDefaults = map[string]Config{
		ProviderOpenAI: {
			Model:     "gpt-4o-mini",
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		ProviderGemini: {
			Model:     "gemini-2.5-flash",
			APIKeyEnv: "GEMINI_API_KEY",
		},
	}
)

// Config selects and configures the oracle backend.
type Config struct {
	// Exec is the command used by the exec provider. It receives the prompt
	// on stdin and writes the verdict to stdout.
	Exec *execs.Command `json:"exec,omitempty" jsonschema:"title=Exec"`
	// Provider is one of openai, gemini or exec.
	Provider string `json:"provider,omitempty" jsonschema:"title=Provider,enum=openai,enum=gemini,enum=exec"`
	// Model is the model name passed to the provider.
	Model string `json:"model,omitempty" jsonschema:"title=Model"`
	// BaseURL overrides the provider endpoint.
	BaseURL string `json:"baseURL,omitempty" jsonschema:"title=Base URL"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `json:"apiKeyEnv,omitempty" jsonschema:"title=API Key Environment Variable"`
	// Timeout bounds each oracle call, as a Go duration string.
	Timeout string `json:"timeout,omitempty" jsonschema:"title=Timeout"`
}

// NewConfig returns a [Config] for the openai provider with defaults.
func NewConfig() *Config {
	c := &Config{}
	c.EnsureDefaults()

	return c
}

// EnsureDefaults fills unset fields with the provider's defaults.
func (c *Config) EnsureDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderOpenAI
	}

	if d, ok := providerDefaults[c.Provider]; ok {
		if c.Model == "" {
			c.Model = d.Model
		}

		if c.BaseURL == "" {
			c.BaseURL = d.BaseURL
		}

		if c.APIKeyEnv == "" {
			c.APIKeyEnv = d.APIKeyEnv
		}
	}

	if c.Timeout == "" {
		c.Timeout = DefaultTimeout.String()
	}
}

// Validate validates the configuration. Errors carry the YAML path of the
// offending field, relative to the document root.
func (c *Config) Validate() error {
	pb := yaml.NewPathBuilder()

	switch c.Provider {
	case ProviderOpenAI, ProviderGemini:
	case ProviderExec:
		if c.Exec == nil || c.Exec.Command == "" {
			return yaml.NewError(
				errors.New("exec provider requires a command"),
				yaml.WithPath(pb.Root().Child("oracle").Child("exec").Child("command").Build()),
			)
		}

		err := c.Exec.CompilePatterns()
		if err != nil {
			return yaml.NewError(err,
				yaml.WithPath(pb.Root().Child("oracle").Child("exec").Build()),
			)
		}
	default:
		return yaml.NewError(
			fmt.Errorf("%w %q, expected one of: %s", ErrUnknownProvider, c.Provider, strings.Join(AllProviders, ", ")),
			yaml.WithPath(pb.Root().Child("oracle").Child("provider").Build()),
		)
	}

	_, err := c.TimeoutDuration()
	if err != nil {
		return yaml.NewError(err,
			yaml.WithPath(pb.Root().Child("oracle").Child("timeout").Build()),
		)
	}

	return nil
}

// TimeoutDuration parses Timeout. An empty Timeout is [DefaultTimeout].
func (c *Config) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return DefaultTimeout, nil
	}

	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("parse timeout: %w", err)
	}

	return d, nil
}

// New constructs the configured [Oracle]. environ is the process
// environment as KEY=VALUE pairs; the API key and the exec command's
// environment are taken from it.
//
//nolint:ireturn // Returns the selected backend.
func New(ctx context.Context, c *Config, environ []string) (Oracle, error) {
	switch c.Provider {
	case ProviderOpenAI:
		key, err := lookupKey(c.APIKeyEnv, environ)
		if err != nil {
			return nil, err
		}

		return NewOpenAI(c.BaseURL, key, c.Model), nil

	case ProviderGemini:
		key, err := lookupKey(c.APIKeyEnv, environ)
		if err != nil {
			return nil, err
		}

		return NewGemini(ctx, c.BaseURL, key, c.Model)

	case ProviderExec:
		if c.Exec == nil {
			return nil, errors.New("exec provider requires a command")
		}

		c.Exec.SetBaseEnv(environ)

		err := c.Exec.CompilePatterns()
		if err != nil {
			return nil, fmt.Errorf("exec command: %w", err)
		}

		return NewExec(c.Exec), nil
	}

	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, c.Provider)
}

func lookupKey(name string, environ []string) (string, error) {
	for _, kv := range environ {
		k, v, ok := strings.Cut(kv, "=")
		if ok && k == name && v != "" {
			return v, nil
		}
	}

	return "", fmt.Errorf("%w: environment variable %s is not set", ErrMissingCredential, name)
}
