package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/narration"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	NoAudio bool
	Update  bool
}

// ReplayResult holds the outcome of comparing a script against a saved trace.
type ReplayResult struct {
	Script    string          `json:"script"`
	Events    int             `json:"events"`
	Expected  int             `json:"expected"`
	Matches   bool            `json:"matches"`
	FirstDiff *int            `json:"first_diff,omitempty"`
	Want      json.RawMessage `json:"want,omitempty"`
	Got       json.RawMessage `json:"got,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay <script.yaml> <trace.json>",
		Short: "Re-trace a script and compare it with a saved trace",
		Long: `Play a script headless, exactly like 'narrator trace', and compare the
result with a trace saved earlier.

Exit codes:
  0 - Traces match
  1 - Traces differ (the first differing event is reported)
  2 - Command error (file not found, etc.)

Examples:
  narrator replay examples/sr-demo.yaml sr-demo.trace.json
  narrator replay examples/sr-demo.yaml sr-demo.trace.json --update`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, args[0], args[1], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoAudio, "no-audio", false, "trace with narration disabled")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "overwrite the saved trace with the new one")

	return cmd
}

// savedTrace is the shape of a canonical trace snapshot.
type savedTrace struct {
	Name   string            `json:"name"`
	Events []json.RawMessage `json:"events"`
}

func runReplay(opts *ReplayOptions, scriptPath, tracePath string, cmd *cobra.Command) error {
	rep := newReporter(cmd, opts.RootOptions)

	cfg, err := loadConfig(opts.RootOptions, "")
	if err != nil {
		return err
	}
	s, err := loadScript(scriptPath)
	if err != nil {
		return err
	}

	got, err := recordTrace(cmd.Context(), s, traceSettings{
		timing:  cfg.Timing,
		audio:   !opts.NoAudio,
		perWord: narration.DefaultWordDuration,
		logger:  newLogger(rep.Diag, opts.Verbose),
	})
	if err != nil {
		return WrapExitError(ExitFailure, "trace failed", err)
	}

	if opts.Update {
		if err := os.WriteFile(tracePath, got, 0o644); err != nil {
			return WrapExitError(ErrCodeWrite.Exit(), fmt.Sprintf("failed to write %s", tracePath), err)
		}
		rep.Note("Updated %s", tracePath)
		return rep.OK(ReplayResult{Script: s.Name, Matches: true}, func(w io.Writer) {
			fmt.Fprintf(w, "✓ Updated %s\n", tracePath)
		})
	}

	wantData, err := os.ReadFile(tracePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return rep.Fail(Failure{Code: ErrCodeNotFound, Message: fmt.Sprintf("trace not found: %s", tracePath), Err: err}, nil, nil)
		}
		return WrapExitError(ExitCommandError, "failed to read trace", err)
	}

	result, err := compareTraces(s.Name, wantData, got)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to parse saved trace", err)
	}

	if result.Matches {
		return rep.OK(result, func(w io.Writer) {
			fmt.Fprintf(w, "✓ %s: %d events match\n", s.Name, result.Events)
		})
	}
	return rep.Fail(Failure{Code: ErrCodeTraceMismatch, Message: "trace differs"}, result, func(w io.Writer) {
		fmt.Fprintf(w, "✗ %s: trace differs\n", s.Name)
		fmt.Fprintf(w, "  events: got %d, want %d\n", result.Events, result.Expected)
		if result.FirstDiff != nil {
			fmt.Fprintf(w, "  first difference at event %d\n", *result.FirstDiff)
			fmt.Fprintf(w, "  want: %s\n", orNone(result.Want))
			fmt.Fprintf(w, "  got:  %s\n", orNone(result.Got))
		}
	})
}

// compareTraces compares two canonical traces event by event.
func compareTraces(name string, want, got []byte) (ReplayResult, error) {
	var w, g savedTrace
	if err := json.Unmarshal(want, &w); err != nil {
		return ReplayResult{}, err
	}
	if err := json.Unmarshal(got, &g); err != nil {
		return ReplayResult{}, fmt.Errorf("decoding new trace: %w", err)
	}

	result := ReplayResult{
		Script:   name,
		Events:   len(g.Events),
		Expected: len(w.Events),
		Matches:  w.Name == g.Name && len(w.Events) == len(g.Events),
	}

	n := max(len(w.Events), len(g.Events))
	for i := 0; i < n; i++ {
		var we, ge json.RawMessage
		if i < len(w.Events) {
			we = w.Events[i]
		}
		if i < len(g.Events) {
			ge = g.Events[i]
		}
		if !bytes.Equal(bytes.TrimSpace(we), bytes.TrimSpace(ge)) {
			idx := i
			result.Matches = false
			result.FirstDiff = &idx
			result.Want = we
			result.Got = ge
			break
		}
	}
	return result, nil
}

func orNone(raw json.RawMessage) string {
	if len(raw) == 0 {
		return "(none)"
	}
	return string(raw)
}
