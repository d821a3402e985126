package yaml_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	goccyyaml "github.com/goccy/go-yaml"

	"github.com/macropower/prodmatch/pkg/yaml"
)

type outputSection struct {
	Dir    string `json:"dir"`
	Indent int    `json:"indent,omitempty"`
}

func TestDecoder_Decode(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		want    outputSection
		input   string
		errMsg  string
		opts    []goccyyaml.DecodeOption
		wantErr bool
	}{
		"valid": {
			input: "dir: out\nindent: 4\n",
			want:  outputSection{Dir: "out", Indent: 4},
		},
		"syntax error": {
			input:   "dir: [out\n",
			wantErr: true,
			errMsg:  "[1:",
		},
		"unknown field allowed by default": {
			input: "dir: out\nextra: true\n",
			want:  outputSection{Dir: "out"},
		},
		"unknown field rejected": {
			input:   "dir: out\nextra: true\n",
			opts:    []goccyyaml.DecodeOption{goccyyaml.DisallowUnknownField()},
			wantErr: true,
			errMsg:  "extra",
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var got outputSection

			err := yaml.NewDecoder(strings.NewReader(tc.input), tc.opts...).Decode(&got)
			if tc.wantErr {
				require.ErrorContains(t, err, tc.errMsg)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
