package expr

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// ErrNotBool is returned by [LazyProgram.EvalBool] when an expression does
// not produce a boolean.
var ErrNotBool = errors.New("expression did not return a boolean value")

// Protect CEL environment creation and compilation from concurrent access.
var celMutex sync.Mutex

// Environment provides a thread-safe wrapper around a [*cel.Env].
type Environment struct {
	env *cel.Env
}

// NewEnvironment creates a new [Environment] with the prodmatch library and
// any additional options, typically variable declarations.
func NewEnvironment(opts ...cel.EnvOption) (*Environment, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	opts = append(opts, cel.Lib(&lib{}))

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("create CEL environment: %w", err)
	}

	return &Environment{env: env}, nil
}

// Compile compiles a CEL expression and returns a program.
//
//nolint:ireturn // Following CEL's function signature.
func (e *Environment) Compile(expression string) (cel.Program, error) {
	celMutex.Lock()
	defer celMutex.Unlock()

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile expression: %w", issues.Err())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("create program: %w", err)
	}

	return program, nil
}

// LazyProgram compiles an expression on first use and caches the result,
// including a compilation error.
type LazyProgram struct {
	env        *Environment
	program    cel.Program
	err        error
	expression string
	once       sync.Once
}

// NewLazyProgram creates a [LazyProgram] for expression in env.
func NewLazyProgram(expression string, env *Environment) *LazyProgram {
	return &LazyProgram{expression: expression, env: env}
}

// Expression returns the source expression.
func (p *LazyProgram) Expression() string {
	return p.expression
}

// Get returns the compiled program.
//
//nolint:ireturn // Following CEL's function signature.
func (p *LazyProgram) Get() (cel.Program, error) {
	p.once.Do(func() {
		p.program, p.err = p.env.Compile(p.expression)
	})

	return p.program, p.err
}

// EvalBool evaluates the program with vars and returns its boolean result.
func (p *LazyProgram) EvalBool(vars map[string]any) (bool, error) {
	program, err := p.Get()
	if err != nil {
		return false, err
	}

	result, _, err := program.Eval(vars)
	if err != nil {
		return false, fmt.Errorf("evaluate expression: %w", err)
	}

	b, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("%w: got %s", ErrNotBool, result.Type().TypeName())
	}

	return b, nil
}
