package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/narrator/internal/narration"
)

// SayOptions holds flags for the say command.
type SayOptions struct {
	*RootOptions
	Provider string

	// Capability overrides the configured provider (for testing).
	Capability narration.Capability
}

// SayResult reports how one line was spoken.
type SayResult struct {
	Provider   string `json:"provider"`
	Outcome    string `json:"outcome"`
	DurationMS int64  `json:"duration_ms"`
}

// NewSayCommand creates the say command.
func NewSayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "say <text>...",
		Short: "Speak one line through the configured provider",
		Long: `Speak one line through the configured narration provider and wait for it
to finish. Useful to check a voice or an API key before playing a script.

Example:
  narrator say "UPI SR is less than last month"
  narrator say --provider cloud hello`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSay(opts, strings.Join(args, " "), cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Provider, "provider", "", "narration provider (device|cloud|none), overrides the config")

	return cmd
}

func runSay(opts *SayOptions, text string, cmd *cobra.Command) error {
	rep := newReporter(cmd, opts.RootOptions)

	capability := opts.Capability
	if capability == nil {
		logger := newLogger(rep.Diag, opts.Verbose)
		cfg, err := loadConfig(opts.RootOptions, opts.Provider)
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
		capability = providers.Capability
	}

	if !capability.Supported() {
		return rep.Fail(Failure{
			Code:    ErrCodeProvider,
			Message: fmt.Sprintf("narration provider %q is not available", capability.Name()),
		}, nil, nil)
	}

	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep.Note("Speaking %d characters with %s", len(text), capability.Name())
	r := narration.SpeakSync(ctx, capability, text)

	result := SayResult{
		Provider:   capability.Name(),
		Outcome:    r.Outcome.String(),
		DurationMS: r.Duration.Milliseconds(),
	}
	if r.Outcome == narration.OutcomeFailed {
		return rep.Fail(Failure{
			Code:    ErrCodeNarration,
			Message: fmt.Sprintf("narration failed: %v", r.Err),
			Details: result,
			Err:     r.Err,
		}, nil, nil)
	}

	return rep.OK(result, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %s (%s)\n", result.Outcome, result.Provider)
	})
}
