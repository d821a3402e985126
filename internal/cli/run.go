package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/macropower/prodmatch/api/v1beta1/configs"
	"github.com/macropower/prodmatch/pkg/config"
	"github.com/macropower/prodmatch/pkg/dataset"
	"github.com/macropower/prodmatch/pkg/execs"
	"github.com/macropower/prodmatch/pkg/match"
	"github.com/macropower/prodmatch/pkg/mcp"
	"github.com/macropower/prodmatch/pkg/notify"
	"github.com/macropower/prodmatch/pkg/oracle"
	"github.com/macropower/prodmatch/pkg/pipeline"
	"github.com/macropower/prodmatch/pkg/result"
)

const (
	cmdExamples = `  # Watch orders/ and guidelines/ and match on every change:
  prodmatch

  # Run a single cycle and print a summary:
  prodmatch once

  # Use a local model through any command that reads the prompt on stdin:
  prodmatch --oracle-command "ollama run llama3.2"

  # Serve results to MCP clients over HTTP while watching:
  prodmatch --serve-mcp 127.0.0.1:8080

  # Write the default configuration file and exit:
  prodmatch --write-config`

	// mcpStdio selects the stdio transport for --serve-mcp.
	mcpStdio = "stdio"
)

// errExit stops a command early without reporting an error.
var errExit = errors.New("exit")

type RunArgs struct {
	*RootArgs

	ConfigPath    string
	Products      string
	Guidelines    string
	OutputDir     string
	OracleCommand string
	ServeMCP      string
	WriteConfig   bool
	ShowConfig    bool
}

func NewRunArgs(rootArgs *RootArgs) *RunArgs {
	return &RunArgs{
		RootArgs: rootArgs,
	}
}

func (ra *RunArgs) AddFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&ra.ConfigPath, "config", "", "Path to the prodmatch configuration file")
	cmd.Flags().StringVar(&ra.Products, "products", "", "Path to the product dataset, overrides inputs.products")
	cmd.Flags().StringVar(&ra.Guidelines, "guidelines", "", "Path to the guideline dataset, overrides inputs.guidelines")
	cmd.Flags().StringVar(&ra.OutputDir, "output", "", "Output directory, overrides output.dir")
	cmd.Flags().StringVar(&ra.OracleCommand, "oracle-command", "",
		"Command line of an exec oracle, overrides the oracle provider")
	cmd.Flags().StringVar(&ra.ServeMCP, "serve-mcp", "",
		fmt.Sprintf("Serve the MCP server at the specified address, or %q", mcpStdio))
	cmd.Flags().BoolVar(&ra.WriteConfig, "write-config", false, "Write the default configuration file and exit")
	cmd.Flags().BoolVar(&ra.ShowConfig, "show-config", false, "Print the active configuration and exit")

	err := cmd.MarkFlagFilename("config", "yaml", "yml")
	if err != nil {
		panic(fmt.Errorf("mark config flag: %w", err))
	}

	err = cmd.MarkFlagFilename("products", "json")
	if err != nil {
		panic(fmt.Errorf("mark products flag: %w", err))
	}

	err = cmd.MarkFlagFilename("guidelines", "json")
	if err != nil {
		panic(fmt.Errorf("mark guidelines flag: %w", err))
	}
}

func NewWatchCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Default command, watch the input directories and run a cycle on every change",
		Example: cmdExamples,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClose(cmd, ra, watch)
		},
	}
	ra.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func NewOnceCmd(ra *RunArgs) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withClose(cmd, ra, once)
		},
	}
	ra.AddFlags(cmd)

	bindEnvVars(cmd)

	return cmd
}

func withClose(cmd *cobra.Command, ra *RunArgs, fn func(*cobra.Command, *RunArgs) error) error {
	err := fn(cmd, ra)

	closeErr := ra.Close(cmd.Context())
	if closeErr != nil {
		slog.WarnContext(cmd.Context(), "release resources", slog.Any("error", closeErr))
	}

	if errors.Is(err, errExit) {
		return nil
	}

	return err
}

// loadConfig loads the configuration file, writing the default first if
// none exists, and applies flag overrides.
func loadConfig(cmd *cobra.Command, ra *RunArgs) (*configs.Config, error) {
	configPath := ra.ConfigPath
	if configPath == "" {
		configPath = configs.GetPath()
	}

	err := configs.WriteDefault(configPath, false)
	if err != nil {
		slog.Error("write default config", slog.Any("error", err))
	}
	if ra.WriteConfig {
		// Exit early after writing the default config.
		// Also, if there was an error, it should be fatal.
		if err != nil {
			return nil, err //nolint:wrapcheck // Already wrapped.
		}

		return nil, errExit
	}

	cfg, err := config.Load(configPath, false)
	if errors.Is(err, config.ErrRead) {
		slog.Warn("could not read config, using defaults", slog.Any("error", err))

		cfg = configs.New()
	} else if err != nil {
		return nil, fmt.Errorf("load %q: %w", configPath, err)
	}

	err = applyOverrides(cfg, ra, os.Environ())
	if err != nil {
		return nil, err
	}

	err = cfg.Validate()
	if err != nil {
		return nil, fmt.Errorf("invalid flags: %w", err)
	}

	if ra.ShowConfig {
		slog.Info("active configuration", slog.String("path", configPath))

		b, err := cfg.MarshalYAML()
		if err != nil {
			return nil, fmt.Errorf("marshal config yaml: %w", err)
		}

		_, err = cmd.OutOrStdout().Write(b)
		if err != nil {
			return nil, fmt.Errorf("write config: %w", err)
		}

		return nil, errExit
	}

	return cfg, nil
}

// applyOverrides applies command line flags on top of cfg.
func applyOverrides(cfg *configs.Config, ra *RunArgs, environ []string) error {
	if ra.Products != "" {
		cfg.Inputs.Products = ra.Products
	}

	if ra.Guidelines != "" {
		cfg.Inputs.Guidelines = ra.Guidelines
	}

	if ra.OutputDir != "" {
		cfg.Output.Dir = ra.OutputDir
	}

	if ra.OracleCommand != "" {
		words, err := shellwords.Parse(ra.OracleCommand)
		if err != nil {
			return fmt.Errorf("parse --oracle-command: %w", err)
		}
		if len(words) == 0 {
			return fmt.Errorf("parse --oracle-command: %w", execs.ErrEmptyCommand)
		}

		cfg.Oracle.Provider = oracle.ProviderExec
		cfg.Oracle.Exec = execs.NewCommand(environ, words[0], words[1:]...)
	}

	switch ra.ServeMCP {
	case "":
	case mcpStdio:
		cfg.MCP.Enabled = true
		cfg.MCP.Address = ""
	default:
		cfg.MCP.Enabled = true
		cfg.MCP.Address = ra.ServeMCP
	}

	return nil
}

// app holds the components built from a configuration.
type app struct {
	pipeline *pipeline.Pipeline
	notifier *notify.Redis
}

func newApp(ctx context.Context, cfg *configs.Config, environ []string) (*app, error) {
	o, err := oracle.New(ctx, cfg.Oracle, environ)
	if err != nil {
		return nil, fmt.Errorf("create oracle: %w", err)
	}

	timeout, err := cfg.Oracle.TimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("oracle timeout: %w", err)
	}

	policy, err := cfg.Classifier.Policy()
	if err != nil {
		return nil, fmt.Errorf("create classifier: %w", err)
	}

	engine := match.NewEngine(
		dataset.NewLoader(cfg.Inputs.Products, cfg.Inputs.Guidelines),
		oracle.NewClient(o, oracle.WithTimeout(timeout)),
		match.WithErrorPolicy(cfg.Engine.OnOracleError),
		match.WithPolicy(policy),
	)

	a := &app{}

	var opts []pipeline.Opt

	if cfg.Notify.Enabled() {
		a.notifier = notify.Dial(cfg.Notify, lookupEnv(environ, cfg.Notify.PasswordEnv))
		opts = append(opts, pipeline.WithNotifier(a.notifier))
	}

	a.pipeline = pipeline.New(engine, result.NewWriter(cfg.Output.Dir), opts...)

	return a, nil
}

func (a *app) Close() {
	if a.notifier == nil {
		return
	}

	err := a.notifier.Close()
	if err != nil {
		slog.Warn("close notifier", slog.Any("error", err))
	}
}

func lookupEnv(environ []string, name string) string {
	if name == "" {
		return ""
	}

	prefix := name + "="
	for i := len(environ) - 1; i >= 0; i-- {
		if v, ok := strings.CutPrefix(environ[i], prefix); ok {
			return v
		}
	}

	return ""
}

func watch(cmd *cobra.Command, ra *RunArgs) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, ra)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, os.Environ())
	if err != nil {
		return err
	}
	defer a.Close()

	for _, dir := range cfg.Inputs.WatchDirs() {
		err = os.MkdirAll(dir, 0o750)
		if err != nil {
			return fmt.Errorf("create input directory: %w", err)
		}
	}

	filter, err := pipeline.NewFilter(cfg.Watch.Reload)
	if err != nil {
		return fmt.Errorf("create reload filter: %w", err)
	}

	src, err := pipeline.NewWatchSource(cfg.Inputs.WatchDirs(), filter)
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	defer func() {
		err := src.Close()
		if err != nil {
			slog.Warn("close watcher", slog.Any("error", err))
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.MCP.Enabled {
		srv := mcp.NewServer(cfg.MCP.Address, a.pipeline, cfg.Output.Dir, mcp.WithLogs(ra.Logs()))
		defer srv.Close()

		g.Go(func() error {
			return srv.Serve(gctx)
		})
	}

	g.Go(func() error {
		defer cancel()

		return a.pipeline.Watch(gctx, src)
	})

	err = g.Wait()
	if err != nil {
		return fmt.Errorf("watch: %w", err)
	}

	return nil
}

func once(cmd *cobra.Command, ra *RunArgs) error {
	ctx := cmd.Context()

	cfg, err := loadConfig(cmd, ra)
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg, os.Environ())
	if err != nil {
		return err
	}
	defer a.Close()

	out := a.pipeline.RunCycle(ctx, pipeline.TriggerManual)
	if out.Error != nil {
		return fmt.Errorf("cycle %s: %w", out.CycleID, out.Error)
	}

	return writeSummary(cmd.OutOrStdout(), *out.Summary)
}

// writeSummary prints s for humans on a terminal and as JSON otherwise.
func writeSummary(w io.Writer, s result.Summary) error {
	if !isTerminal(w) {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		err := enc.Encode(s)
		if err != nil {
			return fmt.Errorf("write summary: %w", err)
		}

		return nil
	}

	_, err := fmt.Fprintf(w, "Matched %d, unmatched %d (cycle %s)\n  matched:   %s\n  unmatched: %s\n  reasons:   %s\n",
		s.Matched, s.Unmatched, s.CycleID, s.Paths.Matched, s.Paths.Unmatched, s.Paths.Reasons)
	if err != nil {
		return fmt.Errorf("write summary: %w", err)
	}

	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)

	return ok && term.IsTerminal(int(f.Fd())) //nolint:gosec // G115: Fd fits in int.
}
