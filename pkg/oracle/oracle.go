// Package oracle asks a language model whether a product conforms to the
// guideline of its category.
//
// A [Client] formats one product and guideline into a prompt and passes it
// to an [Oracle] backend: an OpenAI-compatible HTTP API ([OpenAI]), Google
// Gemini ([Gemini]), or a local command ([Exec]). Each call is synchronous,
// with no retries or caching.
package oracle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/log"
)

// ErrOracle wraps every failure returned by [Client.Query].
var ErrOracle = errors.New("oracle")

// Oracle completes a single prompt and returns the model's text.
type Oracle interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Func adapts a function to the [Oracle] interface.
type Func func(ctx context.Context, prompt string) (string, error)

func (f Func) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Client queries an [Oracle] with product and guideline pairs.
type Client struct {
	oracle  Oracle
	tracer  trace.Tracer
	timeout time.Duration
}

// ClientOpt is a functional option for [Client].
type ClientOpt func(*Client)

// WithTimeout bounds each call. Zero means no per-call timeout.
func WithTimeout(d time.Duration) ClientOpt {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a new [Client].
func NewClient(o Oracle, opts ...ClientOpt) *Client {
	c := &Client{
		oracle: o,
		tracer: otel.Tracer("oracle"),
	}
	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Prompt builds the query for one product and guideline.
func Prompt(product, guideline dataset.Record) string {
	var sb strings.Builder

	sb.WriteString("Product: ")
	sb.Write(product.Raw())
	sb.WriteString("\nGuideline: ")
	sb.Write(guideline.Raw())
	sb.WriteString("\nDoes this product match the guideline? Provide a yes/no answer and explain why.")

	return sb.String()
}

// Query returns the oracle's verdict for product against guideline, with
// surrounding whitespace removed.
func (c *Client) Query(ctx context.Context, product, guideline dataset.Record) (string, error) {
	ctx, span := c.tracer.Start(ctx, "query oracle", trace.WithAttributes(
		attribute.String("product", product.DisplayName()),
	))
	defer span.End()

	if c.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()

	verdict, err := c.oracle.Complete(ctx, Prompt(product, guideline))
	if err != nil {
		span.SetStatus(codes.Error, err.Error())

		return "", fmt.Errorf("%w: %w", ErrOracle, err)
	}

	verdict = strings.TrimSpace(verdict)

	log.WithContext(ctx).DebugContext(ctx, "oracle answered",
		slog.String("product", product.DisplayName()),
		slog.Duration("duration", time.Since(start)),
		slog.Int("length", len(verdict)),
	)

	return verdict, nil
}
