package execs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/prodmatch/pkg/log"
)

var (
	// ErrCommandExecution is returned when command execution fails.
	ErrCommandExecution = errors.New("run")

	// ErrEmptyCommand is returned when a command is empty.
	ErrEmptyCommand = errors.New("empty command")

	essentialVars = []string{"PATH", "HOME", "USER", "TMPDIR"}
)

// Result represents the result of a command execution.
type Result struct {
	Stdout string
	Stderr string
}

// EnvFromSource represents a source for inheriting environment variables.
type EnvFromSource struct {
	// CallerRef specifies how to inherit environment variables from the caller process.
	CallerRef *CallerRef `json:"callerRef,omitempty" jsonschema:"title=Caller Reference"`
}

// CallerRef references environment variables of the caller process.
type CallerRef struct {
	compiled *regexp.Regexp

	// Pattern is a regex pattern for matching environment variable names.
	Pattern string `json:"pattern,omitempty" jsonschema:"title=Pattern,format=regex"`
	// Name is the specific environment variable name to inherit.
	Name string `json:"name,omitempty" jsonschema:"title=Name"`
}

// EnvVar represents an environment variable definition.
type EnvVar struct {
	// ValueFrom specifies a source for the environment variable value.
	ValueFrom *EnvVarSource `json:"valueFrom,omitempty" jsonschema:"title=Value From"`
	// Name is the environment variable name.
	Name string `json:"name" jsonschema:"title=Name"`
	// Value is the environment variable value.
	Value string `json:"value,omitempty" jsonschema:"title=Value"`
}

// EnvVarSource represents a source for an environment variable value.
type EnvVarSource struct {
	// CallerRef specifies how to get the value from the caller process environment.
	CallerRef *CallerRef `json:"callerRef,omitempty" jsonschema:"title=Caller Reference"`
}

// Command describes an external program invocation.
type Command struct {
	baseEnv map[string]string

	// Command is the program to execute.
	Command string `json:"command" jsonschema:"title=Command,pattern=^\\S+$"`
	// Args contains the command line arguments.
	Args []string `json:"args,omitempty" jsonschema:"title=Arguments" yaml:"args,flow,omitempty"`
	// Env contains environment variable definitions.
	Env []EnvVar `json:"env,omitempty" jsonschema:"title=Environment Variables"`
	// EnvFrom contains sources for inheriting environment variables.
	EnvFrom []EnvFromSource `json:"envFrom,omitempty" jsonschema:"title=Environment Variables From"`
}

// NewCommand creates a [Command] for name and args. baseEnv is the caller
// environment, usually [os.Environ].
func NewCommand(baseEnv []string, name string, args ...string) *Command {
	c := &Command{
		Command: name,
		Args:    args,
	}
	c.SetBaseEnv(baseEnv)

	return c
}

// SetBaseEnv replaces the caller environment, given as KEY=VALUE pairs.
func (c *Command) SetBaseEnv(baseEnv []string) {
	c.baseEnv = make(map[string]string, len(baseEnv))
	for _, kv := range baseEnv {
		key, value, ok := strings.Cut(kv, "=")
		if ok {
			c.baseEnv[key] = value
		}
	}
}

// CompilePatterns compiles every envFrom pattern.
func (c *Command) CompilePatterns() error {
	for i, src := range c.EnvFrom {
		ref := src.CallerRef
		if ref == nil || ref.Pattern == "" || ref.compiled != nil {
			continue
		}

		re, err := regexp.Compile(ref.Pattern)
		if err != nil {
			return fmt.Errorf("envFrom[%d]: compile pattern %q: %w", i, ref.Pattern, err)
		}

		ref.compiled = re
	}

	return nil
}

// GetEnv builds the environment for the command: essential variables from
// the caller, then envFrom, then env. The result is sorted.
func (c *Command) GetEnv() []string {
	envMap := make(map[string]string)

	for key, value := range c.baseEnv {
		if slices.Contains(essentialVars, key) {
			envMap[key] = value
		}
	}

	for _, src := range c.EnvFrom {
		ref := src.CallerRef
		if ref == nil {
			continue
		}

		if ref.compiled != nil {
			for key, value := range c.baseEnv {
				if ref.compiled.MatchString(key) {
					envMap[key] = value
				}
			}
		}

		if value, ok := c.baseEnv[ref.Name]; ok && ref.Name != "" {
			envMap[ref.Name] = value
		}
	}

	for _, ev := range c.Env {
		switch {
		case ev.Name == "":
		case ev.Value != "":
			envMap[ev.Name] = ev.Value
		case ev.ValueFrom != nil && ev.ValueFrom.CallerRef != nil:
			if value, ok := c.baseEnv[ev.ValueFrom.CallerRef.Name]; ok {
				envMap[ev.Name] = value
			}
		}
	}

	env := make([]string, 0, len(envMap))
	for key, value := range envMap {
		env = append(env, key+"="+value)
	}

	slices.Sort(env)

	return env
}

// Exec runs the command in dir, writing stdin to its standard input.
// When the command fails after producing output, the [*Result] is returned
// alongside the error.
func (c *Command) Exec(ctx context.Context, dir string, stdin []byte) (*Result, error) {
	ctx, span := otel.Tracer("execs").Start(ctx, "exec", trace.WithAttributes(
		attribute.String("command", c.String()),
	))
	defer span.End()

	if c.Command == "" {
		return nil, ErrEmptyCommand
	}

	logger := log.WithContext(ctx).With(slog.String("command", c.String()))
	start := time.Now()

	//nolint:gosec // G204: Subprocess launched with a potential tainted input or cmd arguments.
	cmd := exec.CommandContext(ctx, c.Command, c.Args...)
	cmd.Dir = dir
	cmd.Env = c.GetEnv()
	cmd.Stdin = bytes.NewReader(stdin)

	var stdout, stderr bytes.Buffer

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := &Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		span.RecordError(err)
		logger.DebugContext(ctx, "command failed",
			slog.Duration("duration", time.Since(start)),
			slog.Any("error", err),
		)

		if stdout.Len() > 0 || stderr.Len() > 0 {
			return result, fmt.Errorf("%w: %w", ErrCommandExecution, err)
		}

		return nil, fmt.Errorf("%w: %w", ErrCommandExecution, err)
	}

	logger.DebugContext(ctx, "command executed",
		slog.Duration("duration", time.Since(start)),
	)

	return result, nil
}

func (c *Command) String() string {
	return strings.TrimSpace(c.Command + " " + strings.Join(c.Args, " "))
}
