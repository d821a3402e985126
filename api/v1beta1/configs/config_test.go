package configs_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/prodmatch/api/v1beta1/configs"
	"github.com/macropower/prodmatch/pkg/classify"
	"github.com/macropower/prodmatch/pkg/config"
	"github.com/macropower/prodmatch/pkg/match"
	"github.com/macropower/prodmatch/pkg/notify"
	"github.com/macropower/prodmatch/pkg/pipeline"
	"github.com/macropower/prodmatch/pkg/result"
)

func TestNew(t *testing.T) {
	t.Parallel()

	cfg := configs.New()

	assert.Equal(t, "prodmatch.jacobcolvin.com/v1beta1", cfg.GetAPIVersion())
	assert.Equal(t, "Configuration", cfg.GetKind())
	assert.NotNil(t, cfg.Inputs)
	assert.NotNil(t, cfg.Output)
	assert.NotNil(t, cfg.Oracle)
	assert.NotNil(t, cfg.Classifier)
	assert.NotNil(t, cfg.Engine)
	assert.NotNil(t, cfg.Watch)
	assert.NotNil(t, cfg.Notify)
	assert.NotNil(t, cfg.MCP)
	require.NoError(t, cfg.Validate())
}

func TestConfig_EnsureDefaults(t *testing.T) {
	t.Parallel()

	cfg := &configs.Config{
		Output: &result.Config{Dir: "custom"},
		Notify: &notify.Config{Address: "redis:6379"},
	}

	assert.Nil(t, cfg.Inputs)

	cfg.EnsureDefaults()

	assert.NotNil(t, cfg.Inputs)
	assert.Equal(t, "custom", cfg.Output.Dir)
	assert.Equal(t, "redis:6379", cfg.Notify.Address)
	assert.Equal(t, notify.DefaultChannel, cfg.Notify.Channel)
	assert.Equal(t, classify.DefaultKeyword, cfg.Classifier.Keyword)
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		mutate func(c *configs.Config)
		errMsg string
	}{
		"defaults": {
			mutate: func(*configs.Config) {},
		},
		"bad engine policy": {
			mutate: func(c *configs.Config) { c.Engine.OnOracleError = "retry" },
			errMsg: "validate engine config",
		},
		"bad classifier expression": {
			mutate: func(c *configs.Config) { c.Classifier.Expression = "verdict +" },
			errMsg: "validate classifier config",
		},
		"bad reload expression": {
			mutate: func(c *configs.Config) { c.Watch.Reload = "1 +" },
			errMsg: "validate watch config",
		},
		"bad mcp address": {
			mutate: func(c *configs.Config) { c.MCP.Address = "nope" },
			errMsg: "validate mcp config",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			cfg := configs.New()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.errMsg)

				return
			}

			require.NoError(t, err)
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, configs.WriteDefault(path, false))

	cfg, err := config.Load(path, false)
	require.NoError(t, err)

	want := configs.New()
	assert.Equal(t, want.Inputs, cfg.Inputs)
	assert.Equal(t, want.Output, cfg.Output)
	assert.Equal(t, want.Engine, cfg.Engine)
	assert.Equal(t, match.ErrorPolicyIsolate, cfg.Engine.OnOracleError)
	assert.Equal(t, pipeline.DefaultReload, cfg.Watch.Reload)
	assert.Equal(t, want.Oracle.Provider, cfg.Oracle.Provider)
	assert.Equal(t, want.Oracle.Model, cfg.Oracle.Model)
	assert.Equal(t, want.Notify, cfg.Notify)
	assert.False(t, cfg.MCP.Enabled)
}

func TestWriteDefault(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "subdir", "config.yaml")

	require.NoError(t, configs.WriteDefault(path, false))
	assert.FileExists(t, path)

	// An existing file is kept.
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o600))
	require.NoError(t, configs.WriteDefault(path, false))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))

	// Forcing backs up the existing file.
	require.NoError(t, configs.WriteDefault(path, true))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestConfig_MarshalYAML(t *testing.T) {
	t.Parallel()

	cfg := configs.New()
	cfg.Output.Dir = "marshaled"

	b, err := cfg.MarshalYAML()
	require.NoError(t, err)
	assert.Contains(t, string(b), "apiVersion: prodmatch.jacobcolvin.com/v1beta1")

	got, err := config.LoadBytes(b)
	require.NoError(t, err)
	assert.Equal(t, "marshaled", got.Output.Dir)
}

func TestGetPath(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "config.yaml", filepath.Base(configs.GetPath()))
}
