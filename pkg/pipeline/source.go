package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/fsnotify/fsnotify"
	"github.com/google/cel-go/cel"

	"github.com/macropower/prodmatch/pkg/expr"
	"github.com/macropower/prodmatch/pkg/log"
)

// DefaultReload accepts writes to JSON files.
const DefaultReload = `fs.event.has(fs.WRITE) && pathExt(file) in [".json"]`

// ErrSourceClosed is returned by [EventSource.Next] once the source will
// not deliver further changes.
var ErrSourceClosed = errors.New("event source closed")

// Change is a relevant modification of a watched file.
type Change struct {
	Path string
	Op   fsnotify.Op
}

func (c Change) String() string {
	return fmt.Sprintf("%s %s", c.Op, c.Path)
}

// EventSource delivers changes that should trigger a cycle.
type EventSource interface {
	// Next blocks until the next relevant change, ctx is done, or the
	// source is closed.
	Next(ctx context.Context) (Change, error)
}

// ChanSource is an [EventSource] fed by a channel, for manual triggers.
// Closing the channel closes the source.
type ChanSource <-chan Change

func (s ChanSource) Next(ctx context.Context) (Change, error) {
	select {
	case <-ctx.Done():
		return Change{}, ctx.Err()
	case c, ok := <-s:
		if !ok {
			return Change{}, ErrSourceClosed
		}

		return c, nil
	}
}

// Filter decides whether a file event is relevant, using a CEL expression
// over `file` (string) and `fs.event` (int).
//
// Examples:
//   - `fs.event.has(fs.WRITE) && pathExt(file) in [".json"]`
//   - `fs.event.has(fs.WRITE, fs.CREATE, fs.RENAME) && pathBase(file) != "draft.json"`
type Filter struct {
	program *expr.LazyProgram
}

// NewFilter compiles expression. An empty expression uses [DefaultReload].
func NewFilter(expression string) (*Filter, error) {
	if expression == "" {
		expression = DefaultReload
	}

	env, err := expr.NewEnvironment(
		cel.Variable("file", cel.StringType),
		cel.Variable("fs.event", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	f := &Filter{program: expr.NewLazyProgram(expression, env)}

	_, err = f.program.Get()
	if err != nil {
		return nil, fmt.Errorf("reload expression: %w", err)
	}

	return f, nil
}

// Match reports whether c should trigger a cycle.
func (f *Filter) Match(c Change) (bool, error) {
	ok, err := f.program.EvalBool(map[string]any{
		"file":     c.Path,
		"fs.event": int64(c.Op),
	})
	if err != nil {
		return false, fmt.Errorf("reload expression: %w", err)
	}

	return ok, nil
}

// WatchSource is an [EventSource] backed by filesystem notifications. It
// watches directories non-recursively, ignores events for directories and
// passes the remainder through a [Filter].
type WatchSource struct {
	watcher *fsnotify.Watcher
	filter  *Filter
	dirs    []string
}

// NewWatchSource starts watching dirs. Duplicate directories are watched
// once.
func NewWatchSource(dirs []string, filter *Filter) (*WatchSource, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}

	ws := &WatchSource{watcher: watcher, filter: filter}

	for _, dir := range dirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			_ = watcher.Close() //nolint:errcheck // Returning the original error.

			return nil, fmt.Errorf("resolve %q: %w", dir, err)
		}

		if slices.Contains(ws.dirs, abs) {
			continue
		}

		err = watcher.Add(abs)
		if err != nil {
			_ = watcher.Close() //nolint:errcheck // Returning the original error.

			return nil, fmt.Errorf("watch %q: %w", abs, err)
		}

		ws.dirs = append(ws.dirs, abs)
	}

	return ws, nil
}

// Dirs returns the watched directories as absolute paths.
func (ws *WatchSource) Dirs() []string {
	return slices.Clone(ws.dirs)
}

func (ws *WatchSource) Next(ctx context.Context) (Change, error) {
	logger := log.WithContext(ctx)

	for {
		select {
		case <-ctx.Done():
			return Change{}, ctx.Err()

		case evt, ok := <-ws.watcher.Events:
			if !ok {
				return Change{}, ErrSourceClosed
			}

			if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
				continue
			}

			c := Change{Path: evt.Name, Op: evt.Op}

			matched, err := ws.filter.Match(c)
			if err != nil {
				logger.ErrorContext(ctx, "match file event",
					slog.String("event", evt.String()),
					slog.Any("error", err),
				)

				continue
			}

			if !matched {
				logger.DebugContext(ctx, "ignoring file event", slog.String("event", evt.String()))

				continue
			}

			return c, nil

		case err, ok := <-ws.watcher.Errors:
			if !ok {
				return Change{}, ErrSourceClosed
			}

			logger.ErrorContext(ctx, "watcher error", slog.Any("error", err))
		}
	}
}

// Close stops watching.
func (ws *WatchSource) Close() error {
	err := ws.watcher.Close()
	if err != nil {
		return fmt.Errorf("close watcher: %w", err)
	}

	return nil
}
