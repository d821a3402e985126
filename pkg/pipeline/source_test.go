package pipeline_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/macropower/prodmatch/pkg/pipeline"
)

func TestFilter_Match(t *testing.T) {
	t.Parallel()

	tcs := map[string]struct {
		expression string
		change     pipeline.Change
		want       bool
	}{
		"default json write": {
			change: pipeline.Change{Path: "/data/orders/products.json", Op: fsnotify.Write},
			want:   true,
		},
		"default other extension": {
			change: pipeline.Change{Path: "/data/orders/notes.txt", Op: fsnotify.Write},
		},
		"default json create": {
			change: pipeline.Change{Path: "/data/orders/products.json", Op: fsnotify.Create},
		},
		"default json chmod": {
			change: pipeline.Change{Path: "/data/orders/products.json", Op: fsnotify.Chmod},
		},
		"custom create or rename": {
			expression: `fs.event.has(fs.CREATE, fs.RENAME) && pathBase(file) == "products.json"`,
			change:     pipeline.Change{Path: "/data/orders/products.json", Op: fsnotify.Rename},
			want:       true,
		},
	}

	for name, tc := range tcs {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			f, err := pipeline.NewFilter(tc.expression)
			require.NoError(t, err)

			got, err := f.Match(tc.change)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestNewFilter_Invalid(t *testing.T) {
	t.Parallel()

	_, err := pipeline.NewFilter(`fs.event.has(`)
	require.Error(t, err)

	err = (&pipeline.Config{Reload: `pathExt(files)`}).Validate()
	require.ErrorContains(t, err, "$.watch.reload")

	require.NoError(t, pipeline.NewConfig().Validate())
	assert.Equal(t, pipeline.DefaultReload, pipeline.NewConfig().Reload)
}

func TestChanSource_Next(t *testing.T) {
	t.Parallel()

	ch := make(chan pipeline.Change, 1)
	src := pipeline.ChanSource(ch)

	ch <- pipeline.Change{Path: "a.json", Op: fsnotify.Write}

	got, err := src.Next(t.Context())
	require.NoError(t, err)
	assert.Equal(t, "a.json", got.Path)
	assert.Equal(t, "WRITE a.json", got.String())

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Millisecond)
	defer cancel()

	_, err = src.Next(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	close(ch)

	_, err = src.Next(t.Context())
	require.ErrorIs(t, err, pipeline.ErrSourceClosed)
}

func TestWatchSource(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	orders := filepath.Join(dir, "orders")
	guidelines := filepath.Join(dir, "guidelines")
	require.NoError(t, os.MkdirAll(orders, 0o750))
	require.NoError(t, os.MkdirAll(guidelines, 0o750))

	filter, err := pipeline.NewFilter("")
	require.NoError(t, err)

	src, err := pipeline.NewWatchSource([]string{orders, guidelines, orders}, filter)
	require.NoError(t, err)

	defer func() {
		require.NoError(t, src.Close())
	}()

	assert.Len(t, src.Dirs(), 2)

	next := func(d time.Duration) (pipeline.Change, error) {
		ctx, cancel := context.WithTimeout(t.Context(), d)
		defer cancel()

		return src.Next(ctx)
	}

	// Unrecognized extensions and directories never trigger.
	require.NoError(t, os.WriteFile(filepath.Join(orders, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(orders, "archive.json"), 0o750))

	_, err = next(200 * time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// Files in subdirectories are not watched.
	require.NoError(t, os.WriteFile(filepath.Join(orders, "archive.json", "old.json"), []byte("[]"), 0o600))

	_, err = next(200 * time.Millisecond)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	target := filepath.Join(guidelines, "guidelines.json")
	require.NoError(t, os.WriteFile(target, []byte("[]"), 0o600))

	got, err := next(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, target, got.Path)
	assert.True(t, got.Op.Has(fsnotify.Write))
}

func TestNewWatchSource_MissingDir(t *testing.T) {
	t.Parallel()

	filter, err := pipeline.NewFilter("")
	require.NoError(t, err)

	_, err = pipeline.NewWatchSource([]string{filepath.Join(t.TempDir(), "absent")}, filter)
	require.Error(t, err)
}
