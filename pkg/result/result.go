// Package result persists matching partitions.
//
// The layout under the output directory is fixed:
//
//	Matching/matched_products.json
//	Unmatching/unmatched_products.json
//	Unmatching/unmatched_reasons.txt
//
// JSON artifacts are arrays indented with four spaces. The reasons ledger
// has one "<Name>: <Reason>" line per unmatched product.
package result

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aymanbagabas/go-udiff"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/log"
	"github.com/macropower/prodmatch/pkg/match"
)

const (
	MatchedDir   = "Matching"
	UnmatchedDir = "Unmatching"

	MatchedFile   = "matched_products.json"
	UnmatchedFile = "unmatched_products.json"
	ReasonsFile   = "unmatched_reasons.txt"

	indent = "    "
)

// ErrWrite wraps failures to persist a partition.
var ErrWrite = errors.New("write results")

// Paths are the artifact locations for an output directory.
type Paths struct {
	Matched   string `json:"matched"`
	Unmatched string `json:"unmatched"`
	Reasons   string `json:"reasons"`
}

// NewPaths returns the [Paths] under dir.
func NewPaths(dir string) Paths {
	return Paths{
		Matched:   filepath.Join(dir, MatchedDir, MatchedFile),
		Unmatched: filepath.Join(dir, UnmatchedDir, UnmatchedFile),
		Reasons:   filepath.Join(dir, UnmatchedDir, ReasonsFile),
	}
}

// Summary describes a completed cycle.
type Summary struct {
	CompletedAt time.Time `json:"completedAt"`
	Paths       Paths     `json:"paths"`
	CycleID     string    `json:"cycleID"`
	Matched     int       `json:"matched"`
	Unmatched   int       `json:"unmatched"`
}

// Writer writes partitions to an output directory.
type Writer struct {
	tracer trace.Tracer
	now    func() time.Time
	dir    string
	paths  Paths
}

// WriterOpt is a functional option for [Writer].
type WriterOpt func(*Writer)

// WithClock sets the time source used for summaries.
func WithClock(now func() time.Time) WriterOpt {
	return func(w *Writer) {
		w.now = now
	}
}

// NewWriter creates a new [Writer] for dir.
func NewWriter(dir string, opts ...WriterOpt) *Writer {
	w := &Writer{
		tracer: otel.Tracer("result"),
		now:    time.Now,
		dir:    dir,
		paths:  NewPaths(dir),
	}
	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// Paths returns the artifact locations.
func (w *Writer) Paths() Paths {
	return w.paths
}

// Summarize builds the [Summary] for a partition written by w.
func (w *Writer) Summarize(cycleID string, p *match.Partition) Summary {
	return Summary{
		CycleID:     cycleID,
		Matched:     len(p.Matched),
		Unmatched:   len(p.Unmatched),
		Paths:       w.paths,
		CompletedAt: w.now().UTC(),
	}
}

type artifact struct {
	path string
	tmp  string
	data []byte
}

// Write replaces all three artifacts with the contents of p. Each artifact
// is first written to a temporary file next to its destination; only when
// all three are staged are they renamed into place. If staging fails,
// the existing artifacts are left untouched.
func (w *Writer) Write(ctx context.Context, p *match.Partition) error {
	ctx, span := w.tracer.Start(ctx, "write results", trace.WithAttributes(
		attribute.String("dir", w.dir),
	))
	defer span.End()

	logger := log.WithContext(ctx)

	matched, err := EncodeRecords(p.Matched)
	if err != nil {
		return fmt.Errorf("%w: encode matched: %w", ErrWrite, err)
	}

	unmatched, err := EncodeRecords(p.UnmatchedProducts())
	if err != nil {
		return fmt.Errorf("%w: encode unmatched: %w", ErrWrite, err)
	}

	reasons := Ledger(p.Unmatched)

	for _, dir := range []string{filepath.Dir(w.paths.Matched), filepath.Dir(w.paths.Unmatched)} {
		err := os.MkdirAll(dir, 0o750)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}

	previous, err := os.ReadFile(w.paths.Reasons)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.DebugContext(ctx, "read previous reasons", slog.Any("error", err))
	}

	artifacts := []*artifact{
		{path: w.paths.Matched, data: matched},
		{path: w.paths.Unmatched, data: unmatched},
		{path: w.paths.Reasons, data: reasons},
	}

	defer func() {
		for _, a := range artifacts {
			if a.tmp != "" {
				_ = os.Remove(a.tmp) //nolint:errcheck // Best-effort cleanup.
			}
		}
	}()

	for _, a := range artifacts {
		a.tmp, err = stage(a.path, a.data)
		if err != nil {
			span.RecordError(err)

			return fmt.Errorf("%w: %w", ErrWrite, err)
		}
	}

	for _, a := range artifacts {
		err := os.Rename(a.tmp, a.path)
		if err != nil {
			span.RecordError(err)

			return fmt.Errorf("%w: %w", ErrWrite, err)
		}

		a.tmp = ""
	}

	if diff := udiff.Unified(w.paths.Reasons+".previous", w.paths.Reasons, string(previous), string(reasons)); diff != "" {
		logger.DebugContext(ctx, "reasons ledger changed", slog.String("diff", diff))
	}

	logger.InfoContext(ctx, "results saved",
		slog.String("dir", w.dir),
		slog.Int("matched", len(p.Matched)),
		slog.Int("unmatched", len(p.Unmatched)),
	)

	return nil
}

func stage(path string, data []byte) (string, error) {
	f, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}

	_, err = f.Write(data)
	if err != nil {
		_ = f.Close() //nolint:errcheck // Write error takes precedence.

		return f.Name(), fmt.Errorf("write %s: %w", f.Name(), err)
	}

	err = f.Close()
	if err != nil {
		return f.Name(), fmt.Errorf("close %s: %w", f.Name(), err)
	}

	err = os.Chmod(f.Name(), 0o644) //nolint:gosec // G302: outputs are meant to be shared.
	if err != nil {
		return f.Name(), fmt.Errorf("chmod %s: %w", f.Name(), err)
	}

	return f.Name(), nil
}

// EncodeRecords renders records as a JSON array indented with four spaces
// and followed by a newline. HTML characters are not escaped.
func EncodeRecords(records []dataset.Record) ([]byte, error) {
	if records == nil {
		records = []dataset.Record{}
	}

	var buf bytes.Buffer

	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)

	err := enc.Encode(records)
	if err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}

	return buf.Bytes(), nil
}

// Ledger renders one "<Name>: <Reason>" line per rejection. Line breaks
// inside a name or reason are collapsed to single spaces so that every
// product occupies exactly one line.
func Ledger(rejections []match.Rejection) []byte {
	var buf bytes.Buffer

	for _, r := range rejections {
		buf.WriteString(singleLine(r.Product.DisplayName()))
		buf.WriteString(": ")
		buf.WriteString(singleLine(r.Reason))
		buf.WriteByte('\n')
	}

	return buf.Bytes()
}

func singleLine(s string) string {
	if !strings.ContainsAny(s, "\r\n") {
		return s
	}

	return strings.Join(strings.Fields(s), " ")
}
