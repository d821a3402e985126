package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/macropower/prodmatch/pkg/log"
)

const (
	cmdName = "prodmatch"
	cmdDesc = `Match products against category guidelines whenever the input files change.`
)

type RootArgs struct {
	logs          *log.CircularBuffer
	closers       []func(context.Context) error
	LogLevel      string
	LogFormat     string
	LogFile       string
	OTLPEndpoint  string
	OTLPInsecure  bool
	LogBufferSize int
}

func NewRootArgs() *RootArgs {
	return &RootArgs{}
}

func (ra *RootArgs) AddFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().
		StringVar(&ra.LogLevel, "log-level", "info", fmt.Sprintf("Log level, one of: %s", log.AllLevels))
	cmd.PersistentFlags().
		StringVar(&ra.LogFormat, "log-format", "text", fmt.Sprintf("Log format, one of: %s", log.AllFormats))
	cmd.PersistentFlags().
		StringVar(&ra.LogFile, "log-file", "", "Also append logs to this file")
	cmd.PersistentFlags().
		IntVar(&ra.LogBufferSize, "log-buffer", 500, "Number of recent log records kept for the MCP get_logs tool")
	cmd.PersistentFlags().
		StringVar(&ra.OTLPEndpoint, "otlp-endpoint", "", "Export traces to this OTLP/gRPC endpoint (host:port)")
	cmd.PersistentFlags().
		BoolVar(&ra.OTLPInsecure, "otlp-insecure", false, "Disable TLS for the OTLP exporter")

	var err error

	err = cmd.RegisterFlagCompletionFunc("log-format",
		cobra.FixedCompletions(log.AllFormats, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}

	err = cmd.RegisterFlagCompletionFunc("log-level",
		cobra.FixedCompletions(log.AllLevels, cobra.ShellCompDirectiveNoFileComp),
	)
	if err != nil {
		panic(err)
	}
}

// Logs returns the buffer of recent log records, once logging is set up.
func (ra *RootArgs) Logs() *log.CircularBuffer {
	return ra.logs
}

func NewRootCmd() *cobra.Command {
	args := NewRootArgs()
	runArgs := NewRunArgs(args)

	watchCmd := NewWatchCmd(runArgs)
	cmd := &cobra.Command{
		Use:               cmdName,
		Short:             cmdDesc,
		Example:           cmdExamples,
		PersistentPreRunE: setup(args),
		Args:              watchCmd.Args,
		RunE:              watchCmd.RunE,
	}

	args.AddFlags(cmd)
	runArgs.AddFlags(cmd)
	cmd.AddCommand(watchCmd, NewOnceCmd(runArgs))

	bindEnvVars(cmd)

	return cmd
}

func setup(ra *RootArgs) func(cmd *cobra.Command, _ []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		ra.logs = log.NewCircularBuffer(ra.LogBufferSize)

		// Captured copies go to a separate handler so they never carry colours.
		captures := []io.Writer{ra.logs}

		if ra.LogFile != "" {
			f, err := log.OpenFile(ra.LogFile)
			if err != nil {
				return fmt.Errorf("open log file: %w", err)
			}

			captures = append(captures, f)
			ra.closers = append(ra.closers, func(context.Context) error { return f.Close() })
		}

		termHandler, err := log.CreateHandlerWithStrings(cmd.ErrOrStderr(), ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		captureHandler, err := log.CreateHandlerWithStrings(io.MultiWriter(captures...), ra.LogLevel, ra.LogFormat)
		if err != nil {
			return fmt.Errorf("create log handler: %w", err)
		}

		slog.SetDefault(slog.New(log.NewMultiHandler(termHandler, captureHandler)))

		shutdown, err := setupTracing(cmd.Context(), ra.OTLPEndpoint, ra.OTLPInsecure)
		if err != nil {
			return fmt.Errorf("setup tracing: %w", err)
		}

		ra.closers = append(ra.closers, shutdown)

		return nil
	}
}

// Close releases what [setup] acquired: it flushes traces and closes the
// log file.
func (ra *RootArgs) Close(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)

	var errs []error

	for i := len(ra.closers) - 1; i >= 0; i-- {
		errs = append(errs, ra.closers[i](ctx))
	}

	ra.closers = nil

	err := errors.Join(errs...)
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	return nil
}
