package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/macropower/prodmatch/pkg/log"
	"github.com/macropower/prodmatch/pkg/pipeline"
	"github.com/macropower/prodmatch/pkg/result"
	"github.com/macropower/prodmatch/pkg/version"
)

// ErrNoLogs is returned by the get_logs tool when no log buffer is attached.
var ErrNoLogs = errors.New("log buffer not configured")

// ExecutionStatus represents the current state of cycle execution.
type ExecutionStatus string

const (
	// StatusIdle indicates no cycle has run yet.
	StatusIdle ExecutionStatus = "idle"
	// StatusRunning indicates a cycle is currently executing.
	StatusRunning ExecutionStatus = "running"
	// StatusCompleted indicates the last cycle completed successfully.
	StatusCompleted ExecutionStatus = "completed"
	// StatusError indicates the last cycle completed with an error.
	StatusError ExecutionStatus = "error"
)

// ExecutionState tracks the current state of cycle execution.
type ExecutionState struct {
	Error           error
	Summary         *result.Summary
	Status          ExecutionStatus
	CycleID         string
	Trigger         pipeline.Trigger
	CompletionCount int64
}

// CycleRunner runs matching cycles. It is implemented by [pipeline.Pipeline].
type CycleRunner interface {
	Subscribe(ch chan<- pipeline.Event)
	TryRunCycle(ctx context.Context, trigger pipeline.Trigger) pipeline.Output
	Last() *pipeline.Output
}

// LogSource returns recent log lines. It is implemented by
// [log.CircularBuffer].
type LogSource interface {
	Tail(n int) []string
}

// Server implements the MCP server for prodmatch.
type Server struct {
	runner     CycleRunner
	logs       LogSource
	server     *mcp.Server
	tracer     trace.Tracer
	eventCh    chan pipeline.Event
	done       chan struct{}
	address    string
	resultsDir string
	state      ExecutionState
	closeOnce  sync.Once
	mu         sync.RWMutex
}

// ServerOpt configures a [Server].
type ServerOpt func(*Server)

// WithLogs attaches a log source for the get_logs tool.
func WithLogs(logs LogSource) ServerOpt {
	return func(s *Server) {
		s.logs = logs
	}
}

// NewServer creates a new MCP server instance. An empty address serves
// over stdio.
func NewServer(address string, runner CycleRunner, resultsDir string, opts ...ServerOpt) *Server {
	impl := &mcp.Implementation{
		Name:    name,
		Version: version.GetVersion(),
	}

	s := &Server{
		address:    address,
		server:     mcp.NewServer(impl, &mcp.ServerOptions{Instructions: instructions}),
		tracer:     otel.Tracer("mcp"),
		runner:     runner,
		resultsDir: resultsDir,
		eventCh:    make(chan pipeline.Event, 100),
		done:       make(chan struct{}),
		state: ExecutionState{
			Status: StatusIdle,
		},
	}

	for _, opt := range opts {
		opt(s)
	}

	// Cycles may have run before the server was attached.
	if last := runner.Last(); last != nil {
		s.applyEvent(pipeline.EventEnd(*last))
	}

	runner.Subscribe(s.eventCh)

	s.registerTools()

	go s.processEvents()

	return s
}

// registerTools registers all available tools with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_status",
		Description: "Get the status of the matching pipeline and a summary of the most recent cycle.",
	}, WithTracing(s.tracer, "get_status", s.handleGetStatus))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_results",
		Description: "Get the matched and unmatched products currently written to the output directory, with the reason for every unmatched product.",
	}, WithTracing(s.tracer, "get_results", s.handleGetResults))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "run_cycle",
		Description: "Run one matching cycle now and wait for it to finish. Fails if a cycle is already running.",
	}, WithTracing(s.tracer, "run_cycle", s.handleRunCycle))

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "get_logs",
		Description: "Get the most recent log lines.",
	}, WithTracing(s.tracer, "get_logs", s.handleGetLogs))
}

// processEvents processes cycle events in a separate goroutine.
func (s *Server) processEvents() {
	for {
		select {
		case <-s.done:
			return
		case event := <-s.eventCh:
			s.applyEvent(event)
		}
	}
}

func (s *Server) applyEvent(event pipeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := event.(type) {
	case pipeline.EventStart:
		s.state.Status = StatusRunning
		s.state.CycleID = e.CycleID
		s.state.Trigger = e.Trigger
		s.state.Error = nil

	case pipeline.EventEnd:
		s.state.CompletionCount++
		s.state.CycleID = e.CycleID
		s.state.Trigger = e.Trigger
		s.state.Summary = e.Summary

		if e.Error != nil {
			s.state.Status = StatusError
			s.state.Error = e.Error
		} else {
			s.state.Status = StatusCompleted
			s.state.Error = nil
		}
	}
}

// State returns a copy of the current execution state.
func (s *Server) State() ExecutionState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state
}

type (
	getStatusParams struct{}

	// CycleSummary describes a completed cycle.
	CycleSummary struct {
		CompletedAt string       `json:"completedAt"`
		Paths       result.Paths `json:"paths"`
		Matched     int          `json:"matched"`
		Unmatched   int          `json:"unmatched"`
	}

	// StatusResult is the output of the get_status tool.
	StatusResult struct {
		LastSummary *CycleSummary `json:"lastSummary,omitempty" jsonschema:"summary of the last successful cycle"`
		Status      string        `json:"status" jsonschema:"one of idle, running, completed, error"`
		CycleID     string        `json:"cycleID,omitempty"`
		Trigger     string        `json:"trigger,omitempty"`
		Error       string        `json:"error,omitempty"`
		Completions int64         `json:"completions"`
	}
)

func newCycleSummary(s *result.Summary) *CycleSummary {
	if s == nil {
		return nil
	}

	return &CycleSummary{
		CompletedAt: s.CompletedAt.Format(time.RFC3339),
		Paths:       s.Paths,
		Matched:     s.Matched,
		Unmatched:   s.Unmatched,
	}
}

func (s *Server) handleGetStatus(
	_ context.Context,
	_ *mcp.CallToolRequest,
	_ getStatusParams,
) (*mcp.CallToolResult, StatusResult, error) {
	st := s.State()

	out := StatusResult{
		Status:      string(st.Status),
		CycleID:     st.CycleID,
		Trigger:     string(st.Trigger),
		Completions: st.CompletionCount,
		LastSummary: newCycleSummary(st.Summary),
	}

	if st.Error != nil {
		out.Error = st.Error.Error()
	}

	return nil, out, nil
}

type (
	getResultsParams struct {
		Limit int `json:"limit,omitempty" jsonschema:"maximum number of products to return from each list, 0 for all"`
	}

	// UnmatchedProduct is a product with the reason it was rejected.
	UnmatchedProduct struct {
		Product map[string]any `json:"product"`
		Reason  string         `json:"reason"`
	}

	// ResultsResult is the output of the get_results tool.
	ResultsResult struct {
		Matched        []map[string]any   `json:"matched"`
		Unmatched      []UnmatchedProduct `json:"unmatched"`
		MatchedCount   int                `json:"matchedCount"`
		UnmatchedCount int                `json:"unmatchedCount"`
		Truncated      bool               `json:"truncated"`
	}
)

func (s *Server) handleGetResults(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	params getResultsParams,
) (*mcp.CallToolResult, ResultsResult, error) {
	snap, err := result.Read(s.resultsDir)
	if err != nil {
		return nil, ResultsResult{}, fmt.Errorf("read results: %w", err)
	}

	out := ResultsResult{
		Matched:        []map[string]any{},
		Unmatched:      []UnmatchedProduct{},
		MatchedCount:   len(snap.Matched),
		UnmatchedCount: len(snap.Unmatched),
	}

	matched := limit(snap.Matched, params.Limit)
	unmatched := limit(snap.Unmatched, params.Limit)
	out.Truncated = len(matched) < len(snap.Matched) || len(unmatched) < len(snap.Unmatched)

	for _, raw := range matched {
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, ResultsResult{}, err
		}

		out.Matched = append(out.Matched, obj)
	}

	for i, raw := range unmatched {
		obj, err := decodeObject(raw)
		if err != nil {
			return nil, ResultsResult{}, err
		}

		u := UnmatchedProduct{Product: obj}
		if i < len(snap.Reasons) {
			u.Reason = truncateString(snap.Reasons[i], maxReasonLen)
		}

		out.Unmatched = append(out.Unmatched, u)
	}

	log.WithContext(ctx).DebugContext(ctx, "get_results completed",
		slog.Int("matched", out.MatchedCount),
		slog.Int("unmatched", out.UnmatchedCount),
	)

	return nil, out, nil
}

func limit[T any](s []T, n int) []T {
	if n <= 0 || n >= len(s) {
		return s
	}

	return s[:n]
}

func decodeObject(raw json.RawMessage) (map[string]any, error) {
	obj := map[string]any{}

	err := json.Unmarshal(raw, &obj)
	if err != nil {
		return nil, fmt.Errorf("decode product: %w", err)
	}

	return obj, nil
}

type (
	runCycleParams struct{}

	// RunCycleResult is the output of the run_cycle tool.
	RunCycleResult struct {
		Summary *CycleSummary `json:"summary,omitempty"`
		CycleID string        `json:"cycleID"`
		Error   string        `json:"error,omitempty" jsonschema:"set when the cycle failed, for example because an input file is missing"`
	}
)

func (s *Server) handleRunCycle(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ runCycleParams,
) (*mcp.CallToolResult, RunCycleResult, error) {
	startTime := time.Now()

	res := s.runner.TryRunCycle(ctx, pipeline.TriggerManual)
	if errors.Is(res.Error, pipeline.ErrBusy) {
		return nil, RunCycleResult{}, fmt.Errorf("run cycle: %w", res.Error)
	}

	out := RunCycleResult{
		CycleID: res.CycleID,
		Summary: newCycleSummary(res.Summary),
	}

	if res.Error != nil {
		out.Error = res.Error.Error()
	}

	log.WithContext(ctx).DebugContext(ctx, "run_cycle completed",
		slog.String("cycle", res.CycleID),
		slog.Duration("duration", time.Since(startTime)),
	)

	return nil, out, nil
}

type (
	getLogsParams struct {
		Lines int `json:"lines,omitempty" jsonschema:"number of lines to return, defaults to 50"`
	}

	// LogsResult is the output of the get_logs tool.
	LogsResult struct {
		Lines []string `json:"lines"`
	}
)

func (s *Server) handleGetLogs(
	_ context.Context,
	_ *mcp.CallToolRequest,
	params getLogsParams,
) (*mcp.CallToolResult, LogsResult, error) {
	if s.logs == nil {
		return nil, LogsResult{}, ErrNoLogs
	}

	n := params.Lines
	if n <= 0 {
		n = defaultLines
	}

	lines := s.logs.Tail(n)
	if lines == nil {
		lines = []string{}
	}

	return nil, LogsResult{Lines: lines}, nil
}

func (s *Server) Server() *mcp.Server {
	return s.server
}

// Close stops event processing.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

// Serve starts the MCP server and blocks until ctx is done.
func (s *Server) Serve(ctx context.Context) error {
	log.WithContext(ctx).InfoContext(ctx, "starting MCP server", slog.String("address", s.address))

	if s.address == "" {
		err := s.serveStdio(ctx)
		if err != nil {
			return fmt.Errorf("serve Stdio: %w", err)
		}

		return nil
	}

	err := s.serveHTTP(ctx)
	if err != nil {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	return nil
}

func (s *Server) serveHTTP(ctx context.Context) error {
	handler := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)

	server := &http.Server{
		Addr:    s.address,
		Handler: handler,

		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		//nolint:contextcheck // Shutdown must outlive the canceled ctx.
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			log.WithContext(ctx).WarnContext(ctx, "shutdown MCP server", slog.Any("error", err))
		}
	}()

	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}

func (s *Server) serveStdio(ctx context.Context) error {
	err := s.server.Run(ctx, &mcp.StdioTransport{})
	if err != nil && ctx.Err() == nil {
		return fmt.Errorf("MCP server failed: %w", err)
	}

	return nil
}
