package dataset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/dustin/go-humanize"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/prodmatch/pkg/log"
)

var (
	// ErrMissingInput indicates that a dataset file does not exist.
	ErrMissingInput = errors.New("missing input")

	// ErrMalformedInput indicates that a dataset file exists but cannot be
	// parsed as a JSON array of objects.
	ErrMalformedInput = errors.New("malformed input")
)

// Datasets holds the records read for one cycle, in input order.
type Datasets struct {
	Products   []Record
	Guidelines []Record
}

// Loader reads the product and guideline datasets from fixed paths.
type Loader struct {
	tracer         trace.Tracer
	productsPath   string
	guidelinesPath string
}

// NewLoader creates a new [Loader].
func NewLoader(productsPath, guidelinesPath string) *Loader {
	return &Loader{
		tracer:         otel.Tracer("dataset"),
		productsPath:   productsPath,
		guidelinesPath: guidelinesPath,
	}
}

// Paths returns the product and guideline dataset paths.
func (l *Loader) Paths() (string, string) {
	return l.productsPath, l.guidelinesPath
}

// Load reads both datasets. Both files are checked for existence before
// either is read; if one is missing, [ErrMissingInput] is returned.
func (l *Loader) Load(ctx context.Context) (*Datasets, error) {
	ctx, span := l.tracer.Start(ctx, "load datasets", trace.WithAttributes(
		attribute.String("products", l.productsPath),
		attribute.String("guidelines", l.guidelinesPath),
	))
	defer span.End()

	logger := log.WithContext(ctx)

	var missing []string
	for _, path := range []string{l.productsPath, l.guidelinesPath} {
		_, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			missing = append(missing, path)
		}
	}

	if len(missing) > 0 {
		logger.ErrorContext(ctx, "one or both input files are missing",
			slog.Any("missing", missing),
		)

		return nil, fmt.Errorf("%w: %v", ErrMissingInput, missing)
	}

	products, err := readRecords(ctx, l.productsPath)
	if err != nil {
		span.RecordError(err)

		return nil, err
	}

	guidelines, err := readRecords(ctx, l.guidelinesPath)
	if err != nil {
		span.RecordError(err)

		return nil, err
	}

	span.SetAttributes(
		attribute.Int("products.count", len(products)),
		attribute.Int("guidelines.count", len(guidelines)),
	)

	return &Datasets{Products: products, Guidelines: guidelines}, nil
}

func readRecords(ctx context.Context, path string) ([]Record, error) {
	//nolint:gosec // G304: path is user configuration.
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrMissingInput, path)
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	records, err := ParseRecords(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMalformedInput, path, err)
	}

	log.WithContext(ctx).DebugContext(ctx, "loaded dataset",
		slog.String("path", path),
		slog.String("size", humanize.Bytes(uint64(len(data)))),
		slog.Int("records", len(records)),
	)

	return records, nil
}

// ParseRecords decodes a JSON array of objects. A JSON null is an empty
// dataset.
func ParseRecords(data []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	var records []Record

	err := dec.Decode(&records)
	if err != nil {
		return nil, fmt.Errorf("decode: %w", err)
	}

	if dec.More() {
		return nil, errors.New("unexpected data after top-level array")
	}

	if records == nil {
		records = []Record{}
	}

	return records, nil
}
