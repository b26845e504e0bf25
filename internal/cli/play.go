package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/muesli/termenv"
	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/render"
	"github.com/roach88/narrator/internal/script"
	"github.com/roach88/narrator/internal/trace"
)

// PlayOptions holds flags for the play command.
type PlayOptions struct {
	*RootOptions
	NoAudio  bool
	Provider string
	Width    int
	Trace    string
}

// PlayResult summarises a finished playback.
type PlayResult struct {
	Script   string `json:"script"`
	Steps    int    `json:"steps"`
	Provider string `json:"provider"`
	Elapsed  string `json:"elapsed"`
	Trace    string `json:"trace,omitempty"`
}

// NewPlayCommand creates the play command.
func NewPlayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PlayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "play <script.yaml>",
		Short: "Play a script in the terminal",
		Long: `Play a script in real time: visualizations are drawn in the terminal and
their items are revealed one at a time, each narrated through the configured
provider before the next appears.

Press Ctrl-C to stop.

Examples:
  narrator play examples/sr-demo.yaml
  narrator play examples/sr-demo.yaml --no-audio
  narrator play examples/sr-demo.yaml --provider cloud --trace run.json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(opts, args[0], cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.NoAudio, "no-audio", false, "reveal items without narration")
	cmd.Flags().StringVar(&opts.Provider, "provider", "", "narration provider (device|cloud|none), overrides the config")
	cmd.Flags().IntVar(&opts.Width, "width", 0, "render width (default: terminal width)")
	cmd.Flags().StringVar(&opts.Trace, "trace", "", "also record the playback trace to this file")

	return cmd
}

func runPlay(opts *PlayOptions, path string, cmd *cobra.Command) error {
	rep := newReporter(cmd, opts.RootOptions)
	logger := newLogger(rep.Diag, opts.Verbose)

	cfg, err := loadConfig(opts.RootOptions, opts.Provider)
	if err != nil {
		return err
	}
	s, err := loadScript(path)
	if err != nil {
		return err
	}

	providers, err := cfg.Build(logger)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to set up narration", err)
	}
	defer func() {
		if err := providers.Close(); err != nil {
			logger.Error("error closing narration provider", "error", err)
		}
	}()

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	driver := script.NewRealDriver(ctx)
	playerOpts := []script.PlayerOption{
		script.WithCapability(providers.Capability),
		script.WithAudio(cfg.Narration.Enabled && !opts.NoAudio),
		script.WithLogger(logger),
		script.WithTiming(script.Timing{
			Settle:    cfg.Timing.Settle,
			Narration: cfg.Timing.Narration,
			Fallback:  cfg.Timing.Fallback,
		}),
	}
	playerOpts = append(playerOpts, outputOptions(rep, opts.Width)...)

	var rec *trace.Recorder
	if opts.Trace != "" {
		rec = trace.NewRecorder(driver.Clock())
		playerOpts = append(playerOpts, script.WithRecorder(rec))
	}

	started := time.Now()
	err = script.NewPlayer(driver, playerOpts...).Play(ctx, s)
	elapsed := time.Since(started).Round(time.Millisecond)

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		logger.Info("playback interrupted", "script", s.Name, "elapsed", elapsed)
	default:
		return WrapExitError(ExitFailure, "playback failed", err)
	}

	if rec != nil {
		data, err := rec.Snapshot(s.Name).MarshalCanonical()
		if err != nil {
			return WrapExitError(ExitFailure, "failed to encode trace", err)
		}
		if err := os.WriteFile(opts.Trace, data, 0o644); err != nil {
			return WrapExitError(ErrCodeWrite.Exit(), fmt.Sprintf("failed to write %s", opts.Trace), err)
		}
	}

	rep.Note("Played %q in %s", s.Name, elapsed)
	if !rep.JSON {
		// The script already drew itself.
		return nil
	}
	return rep.OK(PlayResult{
		Script:   s.Name,
		Steps:    len(s.Steps),
		Provider: providers.Capability.Name(),
		Elapsed:  elapsed.String(),
		Trace:    opts.Trace,
	}, nil)
}

// outputOptions draws into the command's output: colour and in-place redraw
// on a terminal, plain text otherwise, nothing in JSON mode.
func outputOptions(rep *Reporter, width int) []script.PlayerOption {
	if rep.JSON {
		return nil
	}

	f, ok := rep.Out.(*os.File)
	if !ok || !render.IsTerminal(f) {
		if width <= 0 {
			width = render.DefaultWidth
		}
		return []script.PlayerOption{script.WithOutput(rep.Out, render.NewStyle(nil), width)}
	}

	if width <= 0 {
		width = render.TerminalWidth(f)
	}
	out := termenv.NewOutput(f)
	return []script.PlayerOption{
		script.WithOutput(out, render.NewStyle(out), width),
		script.WithRedraw(out),
	}
}
