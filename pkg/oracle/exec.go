package oracle

import (
	"context"
	"fmt"
	"strings"

	"github.com/macropower/prodmatch/pkg/execs"
)

// Exec is an [Oracle] that runs a local command, writing the prompt to its
// stdin and reading the verdict from its stdout.
type Exec struct {
	cmd *execs.Command
}

// NewExec creates a new [Exec] oracle.
func NewExec(cmd *execs.Command) *Exec {
	return &Exec{cmd: cmd}
}

func (e *Exec) Complete(ctx context.Context, prompt string) (string, error) {
	result, err := e.cmd.Exec(ctx, "", []byte(prompt))
	if err != nil {
		if result != nil && result.Stderr != "" {
			return "", fmt.Errorf("%w: %s", err, strings.TrimSpace(result.Stderr))
		}

		return "", fmt.Errorf("%s: %w", e.cmd, err)
	}

	return result.Stdout, nil
}
