package expr

import (
	"bytes"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/goccy/go-yaml"
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/ast"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
	"github.com/google/cel-go/ext"
)

type lib struct{}

func (lib) CompileOptions() []cel.EnvOption {
	return []cel.EnvOption{
		ext.Math(),
		ext.Strings(),
		ext.Lists(),

		cel.Constant("fs.CREATE", types.IntType, types.Int(fsnotify.Create)),
		cel.Constant("fs.REMOVE", types.IntType, types.Int(fsnotify.Remove)),
		cel.Constant("fs.WRITE", types.IntType, types.Int(fsnotify.Write)),
		cel.Constant("fs.RENAME", types.IntType, types.Int(fsnotify.Rename)),
		cel.Constant("fs.CHMOD", types.IntType, types.Int(fsnotify.Chmod)),

		// `has` reports whether an event carries any of the given flags.
		// Example: fs.event.has(fs.WRITE, fs.CREATE).
		cel.Macros(
			cel.ReceiverVarArgMacro("has", hasVarArgMacro),
		),
		cel.Function("@has",
			cel.Overload("@has_int_int", []*cel.Type{cel.IntType, cel.IntType}, cel.BoolType,
				cel.BinaryBinding(func(event, flag ref.Val) ref.Val {
					op, errVal := toOp(event)
					if errVal != nil {
						return errVal
					}

					mask, errVal := toOp(flag)
					if errVal != nil {
						return errVal
					}

					return types.Bool(op.Has(mask))
				}),
			),
			cel.Overload("@has_int_list_int", []*cel.Type{cel.IntType, cel.ListType(cel.IntType)}, cel.BoolType,
				cel.BinaryBinding(func(event, flags ref.Val) ref.Val {
					op, errVal := toOp(event)
					if errVal != nil {
						return errVal
					}

					list, ok := flags.(traits.Lister)
					if !ok {
						return types.NewErr("has: invalid flags list")
					}

					it := list.Iterator()
					for it.HasNext() == types.True {
						mask, errVal := toOp(it.Next())
						if errVal != nil {
							return errVal
						}

						if op.Has(mask) {
							return types.True
						}
					}

					return types.False
				}),
			),
		),

		// Example: pathBase(file) == "products.json".
		cel.Function("pathBase",
			cel.Overload("path_base", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathBase", filepath.Base)),
			),
		),

		// Example: pathDir(file).endsWith("/orders").
		cel.Function("pathDir",
			cel.Overload("path_dir", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathDir", filepath.Dir)),
			),
		),

		// Example: pathExt(file) in [".json"].
		cel.Function("pathExt",
			cel.Overload("path_ext", []*cel.Type{cel.StringType}, cel.StringType,
				cel.UnaryBinding(stringFunc("pathExt", filepath.Ext)),
			),
		),

		// `docPath` reads a JSON or YAML file and returns the value at a
		// YAML path, or null when the file or value is unavailable.
		// Example: docPath(file, "$[0].category") == "Electronics".
		cel.Function("docPath",
			cel.Overload("doc_path", []*cel.Type{cel.StringType, cel.StringType}, cel.DynType,
				cel.BinaryBinding(docPath),
			),
		),
	}
}

func (lib) ProgramOptions() []cel.ProgramOption {
	return []cel.ProgramOption{}
}

//nolint:ireturn // Following CEL's function signature.
func hasVarArgMacro(meh cel.MacroExprFactory, target ast.Expr, args []ast.Expr) (ast.Expr, *cel.Error) {
	switch len(args) {
	case 0:
		return nil, meh.NewError(target.ID(), "has() requires at least one argument")
	case 1:
		return meh.NewCall("@has", target, args[0]), nil
	default:
		return meh.NewCall("@has", target, meh.NewList(args...)), nil
	}
}

//nolint:ireturn // Following CEL's function signature.
func toOp(v ref.Val) (fsnotify.Op, ref.Val) {
	i, ok := v.Value().(int64)
	if !ok {
		return 0, types.NewErr("has: invalid flag value")
	}

	if i < 0 || i > math.MaxUint32 {
		return 0, types.NewErr("has: flag value out of range")
	}

	return fsnotify.Op(i), nil //nolint:gosec // G115: range checked above.
}

func stringFunc(name string, fn func(string) string) func(ref.Val) ref.Val {
	return func(v ref.Val) ref.Val {
		s, ok := v.Value().(string)
		if !ok {
			return types.NewErr("%s: invalid string value", name)
		}

		return types.String(fn(s))
	}
}

//nolint:ireturn // Following CEL's function signature.
func docPath(filePath, pathExpr ref.Val) ref.Val {
	file, ok := filePath.Value().(string)
	if !ok {
		return types.NewErr("docPath: invalid file path")
	}

	expr, ok := pathExpr.Value().(string)
	if !ok {
		return types.NewErr("docPath: invalid path")
	}

	logger := slog.With(
		slog.String("file", file),
		slog.String("path", expr),
	)

	//nolint:gosec // G304: Potential file inclusion via variable.
	content, err := os.ReadFile(file)
	if err != nil {
		logger.Debug("read document, returning null", slog.Any("error", err))

		return types.NullValue
	}

	path, err := yaml.PathString(expr)
	if err != nil {
		logger.Debug("invalid document path, returning null", slog.Any("error", err))

		return types.NullValue
	}

	var value any

	err = path.Read(bytes.NewReader(content), &value)
	if err != nil {
		logger.Debug("extract value, returning null", slog.Any("error", err))

		return types.NullValue
	}

	return ConvertToCELValue(value)
}

// ConvertToCELValue converts a decoded document value to a CEL value.
// Unsupported types become null.
//
//nolint:ireturn // Following CEL's function signature.
func ConvertToCELValue(value any) ref.Val {
	switch v := value.(type) {
	case nil:
		return types.NullValue
	case uint64:
		if v > math.MaxInt64 {
			return types.Double(float64(v))
		}

		return types.Int(int64(v))
	case []any:
		vals := make([]ref.Val, len(v))
		for i, item := range v {
			vals[i] = ConvertToCELValue(item)
		}

		return types.NewDynamicList(types.DefaultTypeAdapter, vals)
	case map[string]any:
		m := make(map[ref.Val]ref.Val, len(v))
		for key, val := range v {
			m[types.String(key)] = ConvertToCELValue(val)
		}

		return types.NewDynamicMap(types.DefaultTypeAdapter, m)
	case bool, string, int, int64, float64:
		return types.DefaultTypeAdapter.NativeToValue(v)
	}

	return types.NullValue
}
