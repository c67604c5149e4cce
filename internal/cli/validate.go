package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/weftlang/weft/internal/compiler"
)

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <program.cue>...",
		Short: "Compile and statically check programs",
		Long: `Compile each program and run static validation: unresolved
references, empty merges, invalid bind targets.

Exit code 0 when all programs validate, 1 otherwise.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return validatePrograms(opts, args)
		},
	}
	return cmd
}

type validationResult struct {
	Path     string `json:"path"`
	Valid    bool   `json:"valid"`
	Bindings int    `json:"bindings,omitempty"`
	Error    string `json:"error,omitempty"`
}

func validatePrograms(opts *ValidateOptions, paths []string) error {
	var results []validationResult
	failed := false
	for _, path := range paths {
		r := validationResult{Path: path}
		program, err := compiler.CompileFile(path)
		if err != nil {
			r.Error = err.Error()
			failed = true
		} else {
			r.Valid = true
			r.Bindings = len(program.Bindings)
		}
		results = append(results, r)
	}

	f := &OutputFormatter{Format: opts.Format, Writer: os.Stdout}
	if err := f.Emit(results, func(w io.Writer) error {
		for _, r := range results {
			if r.Valid {
				fmt.Fprintf(w, "ok   %s (%d bindings)\n", r.Path, r.Bindings)
			} else {
				fmt.Fprintf(w, "FAIL %s: %s\n", r.Path, r.Error)
			}
		}
		return nil
	}); err != nil {
		return err
	}

	if failed {
		return NewExitError(ExitFailure, "validation failed")
	}
	return nil
}
