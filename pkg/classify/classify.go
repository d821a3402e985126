// Package classify turns an oracle verdict into a match decision.
//
// A [Policy] is swappable: [Substring] is the default keyword policy and
// [Expression] evaluates a CEL expression over the verdict text.
package classify

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/macropower/prodmatch/pkg/expr"
)

// DefaultKeyword is the keyword used by the default [Substring] policy.
const DefaultKeyword = "yes"

// ErrClassify wraps policy evaluation failures.
var ErrClassify = errors.New("classify")

// Decision is the outcome of classifying one verdict.
type Decision struct {
	// Reason explains an unmatched decision. It is empty when Matched.
	Reason  string
	Matched bool
}

// Match returns a matched [Decision].
func Match() Decision {
	return Decision{Matched: true}
}

// Reject returns an unmatched [Decision] with reason.
func Reject(reason string) Decision {
	return Decision{Reason: reason}
}

// Policy classifies an oracle verdict.
type Policy interface {
	Name() string
	Classify(verdict string) (Decision, error)
}

// Substring matches when the lower-cased verdict contains a keyword.
// Otherwise the verdict itself is the reason. A verdict containing both
// "yes" and "no" matches.
type Substring struct {
	keyword string
}

// NewSubstring creates a [Substring] policy for keyword, which is compared
// in lower case. An empty keyword uses [DefaultKeyword].
func NewSubstring(keyword string) *Substring {
	if keyword == "" {
		keyword = DefaultKeyword
	}

	return &Substring{keyword: strings.ToLower(keyword)}
}

func (s *Substring) Name() string {
	return fmt.Sprintf("substring(%q)", s.keyword)
}

func (s *Substring) Classify(verdict string) (Decision, error) {
	if strings.Contains(strings.ToLower(verdict), s.keyword) {
		return Match(), nil
	}

	return Reject(verdict), nil
}

// Expression matches when a CEL expression over `verdict` (string)
// evaluates to true. Otherwise the verdict itself is the reason.
//
// Example: verdict.lowerAscii().startsWith("yes").
type Expression struct {
	program *expr.LazyProgram
}

// NewExpression compiles expression into an [Expression] policy.
func NewExpression(expression string) (*Expression, error) {
	env, err := expr.NewEnvironment(
		cel.Variable("verdict", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}

	p := &Expression{program: expr.NewLazyProgram(expression, env)}

	_, err = p.program.Get()
	if err != nil {
		return nil, fmt.Errorf("expression: %w", err)
	}

	return p, nil
}

func (e *Expression) Name() string {
	return fmt.Sprintf("expression(%q)", e.program.Expression())
}

func (e *Expression) Classify(verdict string) (Decision, error) {
	ok, err := e.program.EvalBool(map[string]any{"verdict": verdict})
	if err != nil {
		return Decision{}, fmt.Errorf("%w: %w", ErrClassify, err)
	}

	if ok {
		return Match(), nil
	}

	return Reject(verdict), nil
}
