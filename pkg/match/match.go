// Package match partitions products into matched and unmatched sets.
//
// An [Engine] runs one cycle at a time: it loads both datasets, indexes
// guidelines by category, asks the oracle about every product whose
// category has a guideline, classifies each verdict and hands the
// resulting [Partition] to a [Sink]. Products keep their input order in
// both halves of the partition.
package match

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/prodmatch/pkg/classify"
	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/log"
)

const (
	// ReasonCategoryNotFound is the reason recorded for products whose
	// category has no guideline.
	ReasonCategoryNotFound = "Category not found in guidelines"

	reasonOracleErrorPrefix     = "Oracle error: "
	reasonClassifierErrorPrefix = "Classifier error: "
)

// ErrAborted is returned when a cycle stops before completion.
var ErrAborted = errors.New("cycle aborted")

// Loader provides the datasets for a cycle.
type Loader interface {
	Load(ctx context.Context) (*dataset.Datasets, error)
}

// Querier asks the oracle about one product and its guideline.
type Querier interface {
	Query(ctx context.Context, product, guideline dataset.Record) (string, error)
}

// Sink persists a completed partition.
type Sink interface {
	Write(ctx context.Context, p *Partition) error
}

// Rejection is an unmatched product with the reason it was rejected.
type Rejection struct {
	Product dataset.Record
	Reason  string
}

// Partition is the result of one cycle. Every input product is in
// exactly one of Matched or Unmatched, in input order.
type Partition struct {
	Matched   []dataset.Record
	Unmatched []Rejection
}

// NewPartition returns an empty [Partition] with non-nil slices.
func NewPartition() *Partition {
	return &Partition{
		Matched:   []dataset.Record{},
		Unmatched: []Rejection{},
	}
}

// UnmatchedProducts returns the unmatched products without reasons.
func (p *Partition) UnmatchedProducts() []dataset.Record {
	out := make([]dataset.Record, 0, len(p.Unmatched))
	for _, r := range p.Unmatched {
		out = append(out, r.Product)
	}

	return out
}

// Len returns the total number of products in the partition.
func (p *Partition) Len() int {
	return len(p.Matched) + len(p.Unmatched)
}

// Engine runs matching cycles.
type Engine struct {
	loader   Loader
	querier  Querier
	policy   classify.Policy
	tracer   trace.Tracer
	observer func(State)
	onError  ErrorPolicy
	state    atomic.Int32
}

// EngineOpt is a functional option for [Engine].
type EngineOpt func(*Engine)

// WithErrorPolicy sets how oracle and classifier failures are handled.
func WithErrorPolicy(p ErrorPolicy) EngineOpt {
	return func(e *Engine) {
		e.onError = p
	}
}

// WithPolicy sets the classification policy. The default is
// [classify.NewSubstring] with [classify.DefaultKeyword].
func WithPolicy(p classify.Policy) EngineOpt {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithObserver registers fn to be called on every state transition.
func WithObserver(fn func(State)) EngineOpt {
	return func(e *Engine) {
		e.observer = fn
	}
}

// NewEngine creates a new [Engine].
func NewEngine(loader Loader, querier Querier, opts ...EngineOpt) *Engine {
	e := &Engine{
		loader:  loader,
		querier: querier,
		policy:  classify.NewSubstring(classify.DefaultKeyword),
		tracer:  otel.Tracer("match"),
		onError: ErrorPolicyIsolate,
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// State returns the state of the current or most recent cycle.
func (e *Engine) State() State {
	return State(e.state.Load())
}

func (e *Engine) setState(ctx context.Context, s State) {
	e.state.Store(int32(s))
	trace.SpanFromContext(ctx).AddEvent(s.String())

	if e.observer != nil {
		e.observer(s)
	}
}

// Run executes one full cycle and writes the partition to sink. On failure
// the state ends in [StateAborted] and nothing is written.
func (e *Engine) Run(ctx context.Context, sink Sink) (*Partition, error) {
	ctx, span := e.tracer.Start(ctx, "cycle")
	defer span.End()

	logger := log.WithContext(ctx)
	start := time.Now()

	abort := func(err error) (*Partition, error) {
		span.SetStatus(codes.Error, err.Error())
		e.setState(ctx, StateAborted)

		return nil, err
	}

	e.setState(ctx, StateNotStarted)
	e.setState(ctx, StateLoading)

	ds, err := e.loader.Load(ctx)
	if err != nil {
		return abort(fmt.Errorf("load: %w", err))
	}

	e.setState(ctx, StateIndexing)

	idx := dataset.NewIndex(ds.Guidelines)

	logger.DebugContext(ctx, "indexed guidelines",
		slog.Int("guidelines", len(ds.Guidelines)),
		slog.Int("categories", idx.Len()),
	)

	e.setState(ctx, StateClassifying)

	p, err := e.Partition(ctx, ds.Products, idx)
	if err != nil {
		return abort(err)
	}

	e.setState(ctx, StatePartitioned)

	if sink != nil {
		err = sink.Write(ctx, p)
		if err != nil {
			return abort(fmt.Errorf("write: %w", err))
		}
	}

	e.setState(ctx, StateDone)

	span.SetAttributes(
		attribute.Int("matched", len(p.Matched)),
		attribute.Int("unmatched", len(p.Unmatched)),
	)

	logger.InfoContext(ctx, "processing completed",
		slog.Int("matched", len(p.Matched)),
		slog.Int("unmatched", len(p.Unmatched)),
		slog.Duration("duration", time.Since(start)),
	)

	return p, nil
}

// Partition classifies products against idx. The oracle is queried once
// per product that has a guideline, sequentially and in input order.
func (e *Engine) Partition(ctx context.Context, products []dataset.Record, idx *dataset.Index) (*Partition, error) {
	logger := log.WithContext(ctx)
	p := NewPartition()

	for i, product := range products {
		err := ctx.Err()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrAborted, err)
		}

		guideline, ok := lookup(idx, product)
		if !ok {
			p.Unmatched = append(p.Unmatched, Rejection{Product: product, Reason: ReasonCategoryNotFound})

			continue
		}

		decision, err := e.classify(ctx, product, guideline)
		if err != nil {
			if e.onError == ErrorPolicyAbort {
				return nil, fmt.Errorf("%w: product %d (%s): %w", ErrAborted, i, product.DisplayName(), err)
			}

			logger.WarnContext(ctx, "product isolated after error",
				slog.String("product", product.DisplayName()),
				slog.Any("error", err),
			)

			p.Unmatched = append(p.Unmatched, Rejection{Product: product, Reason: errorReason(err)})

			continue
		}

		if decision.Matched {
			p.Matched = append(p.Matched, product)
		} else {
			p.Unmatched = append(p.Unmatched, Rejection{Product: product, Reason: decision.Reason})
		}
	}

	return p, nil
}

func (e *Engine) classify(ctx context.Context, product, guideline dataset.Record) (classify.Decision, error) {
	verdict, err := e.querier.Query(ctx, product, guideline)
	if err != nil {
		return classify.Decision{}, err
	}

	d, err := e.policy.Classify(verdict)
	if err != nil {
		return classify.Decision{}, err
	}

	return d, nil
}

func lookup(idx *dataset.Index, product dataset.Record) (dataset.Record, bool) {
	category, ok := product.Category()
	if !ok {
		return dataset.Record{}, false
	}

	return idx.Lookup(category)
}

func errorReason(err error) string {
	if errors.Is(err, classify.ErrClassify) {
		return reasonClassifierErrorPrefix + err.Error()
	}

	return reasonOracleErrorPrefix + err.Error()
}
