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

// InspectOptions holds flags for the inspect command.
type InspectOptions struct {
	*RootOptions
	Database string
}

// NewInspectCommand creates the inspect command.
func NewInspectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InspectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "inspect <program.cue>",
		Short: "Inspect per-cell state after replay",
		Long: `Replay the input log, then print every live cell: address,
current value, version, and the cause of its last change.

Example:
  weft inspect --db ./app.db ./app.cue --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectProgram(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")

	return cmd
}

type slotReport struct {
	Slot       string `json:"slot"`
	Name       string `json:"name,omitempty"`
	Value      string `json:"value"`
	Version    uint64 `json:"version"`
	Cause      string `json:"cause"`
	Diagnostic string `json:"diagnostic,omitempty"`
}

func inspectProgram(opts *InspectOptions, programPath string, cmd *cobra.Command) error {
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

	var reports []slotReport
	for _, rep := range res.Engine.InspectAll() {
		sr := slotReport{
			Slot:    rep.Slot.String(),
			Name:    rep.Name,
			Version: rep.Version,
			Cause:   string(rep.Cause.Kind),
		}
		if rep.Value != nil {
			if data, err := value.MarshalCanonical(rep.Value); err == nil {
				sr.Value = string(data)
			}
		}
		if rep.Diagnostic != nil {
			sr.Diagnostic = rep.Diagnostic.Error()
		}
		reports = append(reports, sr)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}
	return f.Emit(reports, func(w io.Writer) error {
		for _, sr := range reports {
			label := sr.Slot
			if sr.Name != "" {
				label = fmt.Sprintf("%s (%s)", sr.Slot, sr.Name)
			}
			fmt.Fprintf(w, "%s v%d [%s] %s\n", label, sr.Version, sr.Cause, sr.Value)
			if sr.Diagnostic != "" {
				fmt.Fprintf(w, "    diagnostic: %s\n", sr.Diagnostic)
			}
		}
		return nil
	})
}
