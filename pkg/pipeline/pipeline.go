// Package pipeline runs matching cycles in response to input changes.
//
// A [Pipeline] owns a single run slot: at most one cycle is in flight at a
// time, whether it was started by a file change from an [EventSource] or
// by a manual trigger. Cycles that have started always run to completion,
// even when the context that started them is canceled.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/log"
	"github.com/macropower/prodmatch/pkg/match"
	"github.com/macropower/prodmatch/pkg/result"
)

// ErrBusy is returned by [Pipeline.TryRunCycle] when a cycle is in flight.
var ErrBusy = errors.New("a cycle is already running")

// Notifier is told about every completed cycle. Failures are logged and
// do not affect the cycle.
type Notifier interface {
	Notify(ctx context.Context, s result.Summary) error
}

// Pipeline connects a [match.Engine] to a [result.Writer].
type Pipeline struct {
	engine    *match.Engine
	writer    *result.Writer
	notifiers []Notifier
	tracer    trace.Tracer
	slot      chan struct{}
	newID     func() string
	last      *Output
	listeners []chan<- Event
	mu        sync.RWMutex
	state     atomic.Int32
}

// State is the phase of the watch loop.
type State int32

const (
	StateIdle State = iota
	StateWatching
	StateTriggered
	StateRunning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatching:
		return "watching"
	case StateTriggered:
		return "triggered"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}

	return fmt.Sprintf("state(%d)", int32(s))
}

// State returns the phase of the watch loop.
func (p *Pipeline) State() State {
	return State(p.state.Load())
}

// Opt is a functional option for [Pipeline].
type Opt func(*Pipeline)

// WithNotifier adds a [Notifier].
func WithNotifier(n Notifier) Opt {
	return func(p *Pipeline) {
		p.notifiers = append(p.notifiers, n)
	}
}

// WithIDGenerator overrides how cycle IDs are generated.
func WithIDGenerator(fn func() string) Opt {
	return func(p *Pipeline) {
		p.newID = fn
	}
}

// New creates a new [Pipeline].
func New(engine *match.Engine, writer *result.Writer, opts ...Opt) *Pipeline {
	p := &Pipeline{
		engine: engine,
		writer: writer,
		tracer: otel.Tracer("pipeline"),
		slot:   make(chan struct{}, 1),
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Subscribe registers ch to receive cycle events. Sends do not block: an
// event is dropped for a listener whose channel is full.
func (p *Pipeline) Subscribe(ch chan<- Event) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.listeners = append(p.listeners, ch)
}

func (p *Pipeline) broadcast(ctx context.Context, evt Event) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	for _, ch := range p.listeners {
		select {
		case ch <- evt:
		default:
			log.WithContext(ctx).WarnContext(ctx, "listener busy, dropping event",
				slog.String("event", fmt.Sprintf("%T", evt)),
			)
		}
	}
}

// Last returns the output of the most recent cycle, or nil.
func (p *Pipeline) Last() *Output {
	p.mu.RLock()
	defer p.mu.RUnlock()

	return p.last
}

// RunCycle waits for the run slot and then runs one cycle. It returns
// early only if ctx is done while waiting.
func (p *Pipeline) RunCycle(ctx context.Context, trigger Trigger) Output {
	select {
	case p.slot <- struct{}{}:
	case <-ctx.Done():
		return Output{Timestamp: time.Now(), Trigger: trigger, Error: ctx.Err()}
	}

	defer func() { <-p.slot }()

	return p.run(ctx, trigger)
}

// TryRunCycle runs one cycle if none is in flight, and returns [ErrBusy]
// otherwise.
func (p *Pipeline) TryRunCycle(ctx context.Context, trigger Trigger) Output {
	select {
	case p.slot <- struct{}{}:
	default:
		return Output{Timestamp: time.Now(), Trigger: trigger, Error: ErrBusy}
	}

	defer func() { <-p.slot }()

	return p.run(ctx, trigger)
}

func (p *Pipeline) run(ctx context.Context, trigger Trigger) Output {
	ctx = context.WithoutCancel(ctx)
	id := p.newID()

	ctx, span := p.tracer.Start(ctx, "run cycle", trace.WithAttributes(
		attribute.String("cycle.id", id),
		attribute.String("cycle.trigger", string(trigger)),
	))
	defer span.End()

	logger := log.WithContext(ctx).With(slog.String("cycle", id))
	ctx = log.NewContext(ctx, logger)

	p.broadcast(ctx, EventStart{CycleID: id, Trigger: trigger})

	out := Output{CycleID: id, Trigger: trigger}

	partition, err := p.engine.Run(ctx, p.writer)
	out.Timestamp = time.Now()

	switch {
	case errors.Is(err, dataset.ErrMissingInput):
		logger.ErrorContext(ctx, "processing aborted due to missing files", slog.Any("error", err))

		out.Error = err

	case err != nil:
		span.RecordError(err)
		logger.ErrorContext(ctx, "error processing files", slog.Any("error", err))

		out.Error = err

	default:
		summary := p.writer.Summarize(id, partition)
		out.Summary = &summary
		out.Partition = partition

		p.notify(ctx, summary)
	}

	p.mu.Lock()
	p.last = &out
	p.mu.Unlock()

	p.broadcast(ctx, EventEnd(out))

	return out
}

func (p *Pipeline) notify(ctx context.Context, s result.Summary) {
	for _, n := range p.notifiers {
		err := n.Notify(ctx, s)
		if err != nil {
			log.WithContext(ctx).WarnContext(ctx, "notify cycle completion", slog.Any("error", err))
		}
	}
}

// Watch runs one cycle for every change delivered by src, until ctx is
// done or src is closed. Cycle failures are logged and watching
// continues. A cycle in progress when ctx is canceled completes before
// Watch returns.
func (p *Pipeline) Watch(ctx context.Context, src EventSource) error {
	logger := log.WithContext(ctx)

	logger.InfoContext(ctx, "started, listening for file changes")

	defer func() {
		p.state.Store(int32(StateStopped))
		logger.InfoContext(ctx, "stopped")
	}()

	for {
		p.state.Store(int32(StateWatching))

		change, err := src.Next(ctx)
		if ctx.Err() != nil || errors.Is(err, ErrSourceClosed) {
			return nil
		} else if err != nil {
			return fmt.Errorf("next event: %w", err)
		}

		p.state.Store(int32(StateTriggered))

		logger.InfoContext(ctx, "file change detected",
			slog.String("file", change.Path),
			slog.String("op", change.Op.String()),
		)

		p.state.Store(int32(StateRunning))
		p.RunCycle(ctx, TriggerWatch)
	}
}
