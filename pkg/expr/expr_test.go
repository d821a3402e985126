package expr_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fsnotify/fsnotify"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/traits"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/prodmatch/pkg/expr"
)

func watchEnv(t *testing.T) *expr.Environment {
	t.Helper()

	env, err := expr.NewEnvironment(
		cel.Variable("file", cel.StringType),
		cel.Variable("fs.event", cel.IntType),
	)
	require.NoError(t, err)

	return env
}

func TestLazyProgram_EvalBool(t *testing.T) {
	t.Parallel()

	env := watchEnv(t)

	tcs := map[string]struct {
		expression string
		file       string
		op         fsnotify.Op
		want       bool
		wantErr    bool
	}{
		"write json": {
			expression: `fs.event.has(fs.WRITE) && pathExt(file) in [".json"]`,
			file:       "/data/orders/products.json",
			op:         fsnotify.Write,
			want:       true,
		},
		"write other extension": {
			expression: `fs.event.has(fs.WRITE) && pathExt(file) in [".json"]`,
			file:       "/data/orders/products.json.swp",
			op:         fsnotify.Write,
			want:       false,
		},
		"chmod ignored": {
			expression: `fs.event.has(fs.WRITE)`,
			file:       "/data/orders/products.json",
			op:         fsnotify.Chmod,
			want:       false,
		},
		"any of several flags": {
			expression: `fs.event.has(fs.WRITE, fs.CREATE, fs.RENAME)`,
			file:       "/data/guidelines/guidelines.json",
			op:         fsnotify.Create,
			want:       true,
		},
		"combined op": {
			expression: `fs.event.has(fs.WRITE)`,
			file:       "/data/a.json",
			op:         fsnotify.Create | fsnotify.Write,
			want:       true,
		},
		"path helpers": {
			expression: `pathBase(file) == "guidelines.json" && pathDir(file).endsWith("/guidelines")`,
			file:       "/data/guidelines/guidelines.json",
			op:         fsnotify.Write,
			want:       true,
		},
		"non-boolean result": {
			expression: `pathExt(file)`,
			file:       "/data/a.json",
			op:         fsnotify.Write,
			wantErr:    true,
		},
		"compile error": {
			expression: `fs.event.has()`,
			file:       "/data/a.json",
			op:         fsnotify.Write,
			wantErr:    true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			p := expr.NewLazyProgram(tc.expression, env)
			assert.Equal(t, tc.expression, p.Expression())

			got, err := p.EvalBool(map[string]any{
				"file":     tc.file,
				"fs.event": int64(tc.op),
			})
			if tc.wantErr {
				require.Error(t, err)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestLazyProgram_CachesCompileError(t *testing.T) {
	t.Parallel()

	p := expr.NewLazyProgram(`undefined_var == 1`, watchEnv(t))

	_, err1 := p.Get()
	_, err2 := p.Get()

	require.Error(t, err1)
	assert.Same(t, err1, err2)
}

func TestDocPath(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	products := filepath.Join(dir, "products.json")
	require.NoError(t, os.WriteFile(products,
		[]byte(`[{"name": "A", "category": "Electronics", "stock": 3}]`), 0o600))

	env := watchEnv(t)

	tcs := map[string]struct {
		expression string
		file       string
		want       bool
	}{
		"string value": {
			expression: `docPath(file, "$[0].category") == "Electronics"`,
			file:       products,
			want:       true,
		},
		"numeric value": {
			expression: `docPath(file, "$[0].stock") == 3`,
			file:       products,
			want:       true,
		},
		"missing value is null": {
			expression: `docPath(file, "$[5].category") == null`,
			file:       products,
			want:       true,
		},
		"missing file is null": {
			expression: `docPath(file, "$[0].category") == null`,
			file:       filepath.Join(dir, "absent.json"),
			want:       true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			got, err := expr.NewLazyProgram(tc.expression, env).EvalBool(map[string]any{
				"file":     tc.file,
				"fs.event": int64(fsnotify.Write),
			})
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestConvertToCELValue(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		input any
		want  any
	}{
		"nil":       {input: nil, want: types.NullValue},
		"string":    {input: "x", want: types.String("x")},
		"uint64":    {input: uint64(7), want: types.Int(7)},
		"float":     {input: 1.5, want: types.Double(1.5)},
		"bool":      {input: true, want: types.True},
		"unhandled": {input: struct{}{}, want: types.NullValue},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tc.want, expr.ConvertToCELValue(tc.input))
		})
	}

	list, ok := expr.ConvertToCELValue([]any{"a", uint64(1)}).(traits.Lister)
	require.True(t, ok)
	assert.Equal(t, types.Int(2), list.Size())
	assert.Equal(t, types.Int(1), list.Get(types.Int(1)))
}
