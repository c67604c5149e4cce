package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/internal/compiler"
	"github.com/weftlang/weft/internal/engine"
	"github.com/weftlang/weft/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string

	// TokenGenerator overrides batch token generation (for testing).
	TokenGenerator engine.BatchTokenGenerator
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <program.cue>",
		Short: "Run a program with durable state",
		Long: `Run a weft program under the tick loop.

The program compiles from CUE, durable state opens at --db (created if
absent), and every accepted input event is appended to the input log
so the run can be replayed deterministically.

Example:
  weft run --db ./app.db ./app.cue
  weft run --db /tmp/test.db ./counter.cue --verbose`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

func runProgram(opts *RunOptions, programPath string, cmd *cobra.Command) error {
	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))
	slog.SetDefault(logger)

	slog.Info("compiling program", "path", programPath)
	program, err := compiler.CompileFile(programPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile program", err)
	}
	slog.Info("program compiled", "bindings", len(program.Bindings), "expressions", program.ExprCount())

	slog.Info("opening database", "path", opts.Database)
	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	engOpts := []engine.EngineOption{engine.WithLogger(logger)}
	if opts.TokenGenerator != nil {
		engOpts = append(engOpts, engine.WithTokenGenerator(opts.TokenGenerator))
	}
	snap, err := st.LoadLatestSnapshot(cmd.Context())
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load snapshot", err)
	}
	if snap != nil {
		slog.Info("restoring snapshot", "tick", snap.Tick)
		engOpts = append(engOpts, engine.WithSnapshot(snap))
	}

	eng, err := engine.New(program, engOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to create engine", err)
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parentCtx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	slog.Info("engine running", "db", opts.Database)
	if err := runLoop(ctx, eng, st); err != nil && err != context.Canceled {
		return WrapExitError(ExitFailure, "engine stopped", err)
	}

	slog.Info("persisting snapshot")
	if err := st.SaveSnapshot(context.Background(), eng.TakeSnapshot()); err != nil {
		return WrapExitError(ExitCommandError, "failed to save snapshot", err)
	}
	return nil
}

// runLoop drives ticks, logging each tick's ingested batch before
// results become externally visible on the next tick.
func runLoop(ctx context.Context, eng *engine.Engine, st *store.Store) error {
	for {
		report, err := eng.Tick()
		if err != nil {
			if engine.IsInvariantError(err) {
				return err
			}
			slog.Warn("tick error", "tick", report.Tick, "error", err)
		}
		for _, ev := range report.Ingested {
			if logErr := st.AppendInput(ctx, report.Tick, ev); logErr != nil {
				return fmt.Errorf("input log: %w", logErr)
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-eng.Wait():
		}
	}
}
