package cli_test

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/charmbracelet/fang"
	"github.com/stretchr/testify/assert"

	"github.com/macropower/prodmatch/internal/cli"
	"github.com/macropower/prodmatch/pkg/config"
	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/oracle"
)

func TestErrorHandler(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		err      error
		want     []string
		wantNone []string
	}{
		"usage error": {
			err:  errors.New("unknown flag: --product"),
			want: []string{"unknown flag: --product", "--help", "for usage."},
		},
		"missing input": {
			err:  fmt.Errorf("cycle c1: %w: orders/products.json", dataset.ErrMissingInput),
			want: []string{"missing input", "--products", "create the missing files."},
		},
		"malformed input": {
			err:  fmt.Errorf("cycle c1: %w", dataset.ErrMalformedInput),
			want: []string{"--products", "JSON arrays of objects."},
		},
		"missing credential": {
			err:  fmt.Errorf("create oracle: %w", oracle.ErrMissingCredential),
			want: []string{"missing credential", "--oracle-command", "to use a local model."},
		},
		"invalid config": {
			err:  fmt.Errorf("load %q: %w", "config.yaml", config.ErrInvalid),
			want: []string{"invalid config", "--config", "to use another one."},
		},
		"no hint": {
			err:      errors.New("disk full"),
			want:     []string{"disk full"},
			wantNone: []string{"--help", "--products", "--oracle-command", "--config"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var buf bytes.Buffer

			cli.ErrorHandler(&buf, fang.Styles{}, tc.err)

			for _, s := range tc.want {
				assert.Contains(t, buf.String(), s)
			}

			for _, s := range tc.wantNone {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}
