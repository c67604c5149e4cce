package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/internal/compiler"
	"github.com/weftlang/weft/internal/engine"
	"github.com/weftlang/weft/internal/store"
	"github.com/weftlang/weft/internal/value"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <program.cue>",
		Short: "Replay the input log deterministically",
		Long: `Rebuild engine state by replaying the persisted input log.

Starts from the latest snapshot when one exists, then re-runs every
logged tick with its original batch token. Prints the final top-level
binding values.

Example:
  weft replay --db ./app.db ./app.cue`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return replayProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

type replaySummary struct {
	Ticks    int               `json:"ticks"`
	Events   int               `json:"events"`
	FromTick uint64            `json:"from_tick"`
	Bindings map[string]string `json:"bindings"`
}

func replayProgram(opts *ReplayOptions, programPath string, cmd *cobra.Command) error {
	program, err := compiler.CompileFile(programPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to compile program", err)
	}

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	res, err := st.Replay(cmd.Context(), program, engine.WithLogger(quiet))
	if err != nil {
		return WrapExitError(ExitFailure, "replay failed", err)
	}

	summary := replaySummary{
		Ticks:    res.Ticks,
		Events:   res.Events,
		FromTick: res.FromTick,
		Bindings: make(map[string]string),
	}
	for _, b := range program.Bindings {
		rep, ok := res.Engine.Inspect(engine.RootSlot(b.Expr.ID))
		if !ok || rep.Value == nil || value.IsSkip(rep.Value) {
			continue
		}
		data, err := value.MarshalCanonical(rep.Value)
		if err != nil {
			continue
		}
		summary.Bindings[b.Name] = string(data)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}
	return f.Emit(summary, func(w io.Writer) error {
		fmt.Fprintf(w, "replayed %d ticks (%d events, from tick %d)\n",
			summary.Ticks, summary.Events, summary.FromTick)
		for _, b := range program.Bindings {
			if v, ok := summary.Bindings[b.Name]; ok {
				fmt.Fprintf(w, "  %s = %s\n", b.Name, v)
			}
		}
		return nil
	})
}
