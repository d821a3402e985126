package mcp_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/prodmatch/pkg/mcp"
)

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		address string
		wantErr bool
	}{
		"stdio":        {},
		"host port":    {address: "127.0.0.1:8080"},
		"port only":    {address: ":8080"},
		"missing port": {address: "localhost", wantErr: true},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			c := mcp.NewConfig()
			c.Address = tc.address

			err := c.Validate()
			if tc.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "$.mcp.address")

				return
			}

			require.NoError(t, err)
		})
	}
}
