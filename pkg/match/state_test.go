package match_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/prodmatch/pkg/match"
)

func TestState_String(t *testing.T) {
	t.Parallel()

	tcs := map[match.State]struct {
		want     string
		terminal bool
	}{
		match.StateNotStarted:  {want: "not started"},
		match.StateLoading:     {want: "loading"},
		match.StateIndexing:    {want: "indexing"},
		match.StateClassifying: {want: "classifying"},
		match.StatePartitioned: {want: "partitioned"},
		match.StateDone:        {want: "done", terminal: true},
		match.StateAborted:     {want: "aborted", terminal: true},
		match.State(42):        {want: "state(42)"},
	}

	for s, tc := range tcs {
		t.Run(tc.want, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, s.String())
			assert.Equal(t, tc.terminal, s.Terminal())
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	require.NoError(t, match.NewConfig().Validate())
	assert.Equal(t, match.ErrorPolicyIsolate, match.NewConfig().OnOracleError)
	require.NoError(t, (&match.Config{OnOracleError: match.ErrorPolicyAbort}).Validate())
	require.ErrorContains(t, (&match.Config{OnOracleError: "retry"}).Validate(), `invalid error policy "retry"`)
}
