package oracle_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/prodmatch/pkg/execs"
	"github.com/macropower/prodmatch/pkg/oracle"
	"github.com/macropower/prodmatch/pkg/yaml"
)

func TestConfig_EnsureDefaults(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input *oracle.Config
		want  *oracle.Config
	}{
		"empty is openai": {
			input: &oracle.Config{},
			want: &oracle.Config{
				Provider:  oracle.ProviderOpenAI,
				Model:     "gpt-4o-mini",
				BaseURL:   "https://api.openai.com/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Timeout:   "2m0s",
			},
		},
		"gemini": {
			input: &oracle.Config{Provider: oracle.ProviderGemini, Timeout: "30s"},
			want: &oracle.Config{
				Provider:  oracle.ProviderGemini,
				Model:     "gemini-2.5-flash",
				APIKeyEnv: "GEMINI_API_KEY",
				Timeout:   "30s",
			},
		},
		"explicit values kept": {
			input: &oracle.Config{Provider: oracle.ProviderOpenAI, Model: "local", BaseURL: "http://llm:8080/v1"},
			want: &oracle.Config{
				Provider:  oracle.ProviderOpenAI,
				Model:     "local",
				BaseURL:   "http://llm:8080/v1",
				APIKeyEnv: "OPENAI_API_KEY",
				Timeout:   "2m0s",
			},
		},
		"exec has no model defaults": {
			input: &oracle.Config{Provider: oracle.ProviderExec},
			want:  &oracle.Config{Provider: oracle.ProviderExec, Timeout: "2m0s"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			tc.input.EnsureDefaults()
			assert.Equal(t, tc.want, tc.input)
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		cfg      *oracle.Config
		wantPath string
	}{
		"default": {
			cfg: oracle.NewConfig(),
		},
		"unknown provider": {
			cfg:      &oracle.Config{Provider: "anthropic"},
			wantPath: "$.oracle.provider",
		},
		"exec without command": {
			cfg:      &oracle.Config{Provider: oracle.ProviderExec},
			wantPath: "$.oracle.exec.command",
		},
		"exec with command": {
			cfg: &oracle.Config{Provider: oracle.ProviderExec, Exec: &execs.Command{Command: "llm"}},
		},
		"exec with bad pattern": {
			cfg: &oracle.Config{Provider: oracle.ProviderExec, Exec: &execs.Command{
				Command: "llm",
				EnvFrom: []execs.EnvFromSource{{CallerRef: &execs.CallerRef{Pattern: "("}}},
			}},
			wantPath: "$.oracle.exec",
		},
		"bad timeout": {
			cfg:      &oracle.Config{Provider: oracle.ProviderOpenAI, Timeout: "soon"},
			wantPath: "$.oracle.timeout",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			err := tc.cfg.Validate()
			if tc.wantPath == "" {
				require.NoError(t, err)

				return
			}

			var yamlErr *yaml.Error
			require.ErrorAs(t, err, &yamlErr)
			assert.Equal(t, tc.wantPath, yamlErr.Path.String())
		})
	}
}

func TestConfig_TimeoutDuration(t *testing.T) {
	t.Parallel()

	d, err := (&oracle.Config{}).TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, oracle.DefaultTimeout, d)

	d, err = (&oracle.Config{Timeout: "45s"}).TimeoutDuration()
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)
}

func TestNew(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		cfg     *oracle.Config
		environ []string
		wantErr error
	}{
		"openai with key": {
			cfg:     oracle.NewConfig(),
			environ: []string{"OPENAI_API_KEY=sk-1"},
		},
		"openai without key": {
			cfg:     oracle.NewConfig(),
			environ: []string{"OTHER=1"},
			wantErr: oracle.ErrMissingCredential,
		},
		"openai with empty key": {
			cfg:     oracle.NewConfig(),
			environ: []string{"OPENAI_API_KEY="},
			wantErr: oracle.ErrMissingCredential,
		},
		"gemini with key": {
			cfg:     &oracle.Config{Provider: oracle.ProviderGemini, Model: "m", APIKeyEnv: "GEMINI_API_KEY"},
			environ: []string{"GEMINI_API_KEY=g-1"},
		},
		"exec": {
			cfg: &oracle.Config{Provider: oracle.ProviderExec, Exec: &execs.Command{Command: "llm"}},
		},
		"unknown": {
			cfg:     &oracle.Config{Provider: "other"},
			wantErr: oracle.ErrUnknownProvider,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			o, err := oracle.New(t.Context(), tc.cfg, tc.environ)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)

				return
			}

			require.NoError(t, err)
			assert.NotNil(t, o)
		})
	}
}
