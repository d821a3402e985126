package mcp_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/log"
	"github.com/macropower/prodmatch/pkg/match"
	"github.com/macropower/prodmatch/pkg/mcp"
	"github.com/macropower/prodmatch/pkg/oracle"
	"github.com/macropower/prodmatch/pkg/pipeline"
	"github.com/macropower/prodmatch/pkg/result"
)

const (
	testProducts   = `[{"Name":"Lamp","Category":"lighting"},{"Name":"Sofa","Category":"furniture"}]`
	testGuidelines = `[{"Category":"lighting","Rule":"must be LED"}]`
)

type busyRunner struct{}

func (busyRunner) Subscribe(chan<- pipeline.Event) {}

func (busyRunner) TryRunCycle(_ context.Context, trigger pipeline.Trigger) pipeline.Output {
	return pipeline.Output{Trigger: trigger, Error: pipeline.ErrBusy}
}

func (busyRunner) Last() *pipeline.Output { return nil }

func newPipeline(t *testing.T, writeInputs bool) (*pipeline.Pipeline, string) {
	t.Helper()

	dir := t.TempDir()
	productsPath := filepath.Join(dir, "orders", "products.json")
	guidelinesPath := filepath.Join(dir, "guidelines", "guidelines.json")

	if writeInputs {
		require.NoError(t, os.MkdirAll(filepath.Dir(productsPath), 0o755))
		require.NoError(t, os.MkdirAll(filepath.Dir(guidelinesPath), 0o755))
		require.NoError(t, os.WriteFile(productsPath, []byte(testProducts), 0o600))
		require.NoError(t, os.WriteFile(guidelinesPath, []byte(testGuidelines), 0o600))
	}

	client := oracle.NewClient(oracle.Func(func(context.Context, string) (string, error) {
		return "Yes, it is LED.", nil
	}))

	engine := match.NewEngine(dataset.NewLoader(productsPath, guidelinesPath), client)
	outDir := filepath.Join(dir, "output")

	return pipeline.New(engine, result.NewWriter(outDir)), outDir
}

func connect(t *testing.T, srv *mcp.Server) *sdk.ClientSession {
	t.Helper()

	ctx := t.Context()
	t1, t2 := sdk.NewInMemoryTransports()

	serverSession, err := srv.Server().Connect(ctx, t1, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test-client", Version: "v0.0.1"}, nil)

	session, err := client.Connect(ctx, t2, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func callTool(t *testing.T, session *sdk.ClientSession, name string, args map[string]any, out any) *sdk.CallToolResult {
	t.Helper()

	res, err := session.CallTool(t.Context(), &sdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)

	if res.IsError || out == nil {
		return res
	}

	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			require.NoError(t, json.Unmarshal([]byte(tc.Text), out))

			return res
		}
	}

	require.Fail(t, "no text content in tool result")

	return res
}

func errorText(res *sdk.CallToolResult) string {
	for _, c := range res.Content {
		if tc, ok := c.(*sdk.TextContent); ok {
			return tc.Text
		}
	}

	return ""
}

func TestServer_ListTools(t *testing.T) {
	t.Parallel()

	p, outDir := newPipeline(t, true)
	srv := mcp.NewServer("", p, outDir)
	t.Cleanup(srv.Close)

	session := connect(t, srv)

	res, err := session.ListTools(t.Context(), &sdk.ListToolsParams{})
	require.NoError(t, err)

	names := []string{}
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}

	assert.ElementsMatch(t, []string{"get_status", "get_results", "run_cycle", "get_logs"}, names)
}

func TestServer_RunCycle(t *testing.T) {
	t.Parallel()

	p, outDir := newPipeline(t, true)
	srv := mcp.NewServer("", p, outDir)
	t.Cleanup(srv.Close)

	session := connect(t, srv)

	var status mcp.StatusResult
	callTool(t, session, "get_status", map[string]any{}, &status)
	assert.Equal(t, string(mcp.StatusIdle), status.Status)
	assert.Nil(t, status.LastSummary)

	var run mcp.RunCycleResult
	res := callTool(t, session, "run_cycle", map[string]any{}, &run)
	require.False(t, res.IsError, errorText(res))

	assert.NotEmpty(t, run.CycleID)
	assert.Empty(t, run.Error)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 1, run.Summary.Matched)
	assert.Equal(t, 1, run.Summary.Unmatched)

	assert.Eventually(t, func() bool {
		st := srv.State()

		return st.Status == mcp.StatusCompleted && st.CompletionCount == 1
	}, time.Second, 10*time.Millisecond)

	callTool(t, session, "get_status", map[string]any{}, &status)
	assert.Equal(t, string(mcp.StatusCompleted), status.Status)
	assert.Equal(t, run.CycleID, status.CycleID)
	assert.Equal(t, string(pipeline.TriggerManual), status.Trigger)
	require.NotNil(t, status.LastSummary)
	assert.Equal(t, 1, status.LastSummary.Matched)

	var results mcp.ResultsResult
	callTool(t, session, "get_results", map[string]any{}, &results)

	assert.Equal(t, 1, results.MatchedCount)
	assert.Equal(t, 1, results.UnmatchedCount)
	assert.False(t, results.Truncated)
	require.Len(t, results.Matched, 1)
	assert.Equal(t, "Lamp", results.Matched[0]["Name"])
	require.Len(t, results.Unmatched, 1)
	assert.Equal(t, "Sofa", results.Unmatched[0].Product["Name"])
	assert.Equal(t, "Sofa: "+match.ReasonCategoryNotFound, results.Unmatched[0].Reason)

	callTool(t, session, "get_results", map[string]any{"limit": 1}, &results)
	assert.False(t, results.Truncated)
}

func TestServer_StatusAfterEarlierCycle(t *testing.T) {
	t.Parallel()

	p, outDir := newPipeline(t, true)

	out := p.RunCycle(t.Context(), pipeline.TriggerWatch)
	require.NoError(t, out.Error)

	srv := mcp.NewServer("", p, outDir)
	t.Cleanup(srv.Close)

	st := srv.State()
	assert.Equal(t, mcp.StatusCompleted, st.Status)
	assert.Equal(t, out.CycleID, st.CycleID)
	assert.Equal(t, pipeline.TriggerWatch, st.Trigger)
	assert.Equal(t, int64(1), st.CompletionCount)

	session := connect(t, srv)

	var status mcp.StatusResult
	callTool(t, session, "get_status", map[string]any{}, &status)
	assert.Equal(t, string(mcp.StatusCompleted), status.Status)
	require.NotNil(t, status.LastSummary)
	assert.Equal(t, 1, status.LastSummary.Matched)
	assert.Equal(t, 1, status.LastSummary.Unmatched)
}

func TestServer_RunCycleMissingInputs(t *testing.T) {
	t.Parallel()

	p, outDir := newPipeline(t, false)
	srv := mcp.NewServer("", p, outDir)
	t.Cleanup(srv.Close)

	session := connect(t, srv)

	var run mcp.RunCycleResult
	res := callTool(t, session, "run_cycle", map[string]any{}, &run)
	require.False(t, res.IsError, errorText(res))
	assert.Contains(t, run.Error, dataset.ErrMissingInput.Error())
	assert.Nil(t, run.Summary)

	assert.Eventually(t, func() bool {
		return srv.State().Status == mcp.StatusError
	}, time.Second, 10*time.Millisecond)

	res = callTool(t, session, "get_results", map[string]any{}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, errorText(res), result.ErrNoResults.Error())
}

func TestServer_RunCycleBusy(t *testing.T) {
	t.Parallel()

	srv := mcp.NewServer("", busyRunner{}, t.TempDir())
	t.Cleanup(srv.Close)

	session := connect(t, srv)

	res := callTool(t, session, "run_cycle", map[string]any{}, nil)
	assert.True(t, res.IsError)
	assert.Contains(t, errorText(res), pipeline.ErrBusy.Error())
}

func TestServer_GetLogs(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		logs    *log.CircularBuffer
		args    map[string]any
		want    []string
		wantErr bool
	}{
		"no buffer": {
			args:    map[string]any{},
			wantErr: true,
		},
		"default lines": {
			logs: func() *log.CircularBuffer {
				b := log.NewCircularBuffer(10)
				_, _ = b.Write([]byte("first\n"))
				_, _ = b.Write([]byte("second\n"))

				return b
			}(),
			args: map[string]any{},
			want: []string{"first", "second"},
		},
		"tail": {
			logs: func() *log.CircularBuffer {
				b := log.NewCircularBuffer(10)
				_, _ = b.Write([]byte("first\n"))
				_, _ = b.Write([]byte("second\n"))

				return b
			}(),
			args: map[string]any{"lines": 1},
			want: []string{"second"},
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var opts []mcp.ServerOpt
			if tc.logs != nil {
				opts = append(opts, mcp.WithLogs(tc.logs))
			}

			srv := mcp.NewServer("", busyRunner{}, t.TempDir(), opts...)
			t.Cleanup(srv.Close)

			session := connect(t, srv)

			var out mcp.LogsResult
			res := callTool(t, session, "get_logs", tc.args, &out)

			if tc.wantErr {
				assert.True(t, res.IsError)
				assert.Contains(t, errorText(res), mcp.ErrNoLogs.Error())

				return
			}

			require.False(t, res.IsError, errorText(res))
			assert.Equal(t, tc.want, out.Lines)
		})
	}
}
