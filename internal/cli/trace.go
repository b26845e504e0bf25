package cli

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/config"
	"github.com/roach88/narrator/internal/narration"
	"github.com/roach88/narrator/internal/script"
	"github.com/roach88/narrator/internal/sequencer"
	"github.com/roach88/narrator/internal/trace"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Output  string
	NoAudio bool
	PerWord time.Duration
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <script.yaml>",
		Short: "Play a script headless and print its trace",
		Long: `Play a script on a virtual clock and print the canonical JSON trace.

Nothing is drawn or spoken: narration is simulated at a fixed time per word
and every wait passes instantly, so the same script always produces the
same trace. Save it and check it later with 'narrator replay'.

Example:
  narrator trace examples/sr-demo.yaml -o sr-demo.trace.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVarP(&opts.Output, "output", "o", "", "write the trace to a file instead of stdout")
	cmd.Flags().BoolVar(&opts.NoAudio, "no-audio", false, "trace with narration disabled")
	cmd.Flags().DurationVar(&opts.PerWord, "per-word", narration.DefaultWordDuration, "simulated speaking time per word")

	return cmd
}

func runTrace(opts *TraceOptions, path string, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, "")
	if err != nil {
		return err
	}
	s, err := loadScript(path)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), opts.Verbose)
	out, err := recordTrace(cmd.Context(), s, traceSettings{
		timing:  cfg.Timing,
		audio:   !opts.NoAudio,
		perWord: opts.PerWord,
		logger:  logger,
	})
	if err != nil {
		return WrapExitError(ExitFailure, "trace failed", err)
	}

	// The trace is JSON in both formats, printed bare so it can be saved as is.
	if err := writeOutput(cmd.OutOrStdout(), opts.Output, out); err != nil {
		return err
	}
	if opts.Output != "" && opts.Output != "-" {
		logger.Info("trace written", "path", opts.Output, "bytes", len(out))
	}
	return nil
}

type traceSettings struct {
	timing  config.Timing
	audio   bool
	perWord time.Duration
	logger  *slog.Logger
}

// recordTrace plays s on a virtual clock with simulated narration and
// returns the canonical trace.
func recordTrace(ctx context.Context, s *script.Script, ts traceSettings) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if ts.logger == nil {
		ts.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	driver := script.NewVirtualDriver(nil)
	rec := trace.NewRecorder(driver.Clock())
	sim := &narration.Simulated{Clock: driver.Clock(), PerWord: ts.perWord}

	p := script.NewPlayer(driver,
		script.WithCapability(sim),
		script.WithAudio(ts.audio),
		script.WithRecorder(rec),
		script.WithRunIDGenerator(sequencer.NewSequentialGenerator("run")),
		script.WithLogger(ts.logger),
		script.WithTiming(script.Timing{
			Settle:    ts.timing.Settle,
			Narration: ts.timing.Narration,
			Fallback:  ts.timing.Fallback,
		}),
	)
	if err := p.Play(ctx, s); err != nil {
		return nil, err
	}
	return rec.Snapshot(s.Name).MarshalCanonical()
}
