package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/script"
)

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool            `json:"valid"`
	Script   string          `json:"script,omitempty"`
	Steps    int             `json:"steps,omitempty"`
	Visuals  int             `json:"visuals,omitempty"`
	Duration string          `json:"duration,omitempty"`
	Errors   []ScriptProblem `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <script.yaml>",
		Short: "Check a script without playing it",
		Long: `Check a script against the schema and the step rules without playing it.

Exit codes:
  0 - Script is valid
  1 - Script is invalid
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	rep := newReporter(cmd, opts)

	rep.Note("Validating %s", path)
	s, err := script.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rep.Fail(Failure{Code: ErrCodeNotFound, Message: fmt.Sprintf("script not found: %s", path), Err: err}, nil, nil)
		}
		return reportProblems(rep, []ScriptProblem{describeScriptError(err)})
	}

	result := ValidationResult{
		Valid:    true,
		Script:   s.Name,
		Steps:    len(s.Steps),
		Duration: s.Duration().String(),
	}
	for _, step := range s.Steps {
		if step.Kind() == script.KindShow {
			result.Visuals++
		}
	}

	return rep.OK(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ Script %q valid\n", s.Name)
		if s.Description != "" {
			fmt.Fprintf(w, "  %s\n", s.Description)
		}
		fmt.Fprintf(w, "  %d steps, %d visualizations, at least %s\n",
			result.Steps, result.Visuals, result.Duration)
	})
}

// reportProblems reports why a script was rejected. The first problem sets
// the error code.
func reportProblems(rep *Reporter, errs []ScriptProblem) error {
	f := Failure{
		Code:    errs[0].Code,
		Message: fmt.Sprintf("validation failed with %d error(s)", len(errs)),
		Details: errs[0].Message,
	}
	return rep.Fail(f, ValidationResult{Valid: false, Errors: errs}, func(w io.Writer) {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)

		for _, p := range errs {
			switch {
			case p.Line > 0:
				fmt.Fprintf(w, "line %d\n", p.Line)
			case p.Step != nil:
				fmt.Fprintf(w, "step %d\n", *p.Step)
			}
			if p.Field != "" {
				fmt.Fprintf(w, "  %s: %s: %s\n\n", p.Code, p.Field, p.Message)
			} else {
				fmt.Fprintf(w, "  %s: %s\n\n", p.Code, p.Message)
			}
		}
	})
}
