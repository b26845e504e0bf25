package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/roach88/narrator/internal/config"
	"github.com/roach88/narrator/internal/script"
)

// ScriptProblem describes why a script was rejected.
type ScriptProblem struct {
	Code    ErrorCode `json:"code"`
	Field   string    `json:"field,omitempty"`
	Step    *int      `json:"step,omitempty"`
	Line    int       `json:"line,omitempty"`
	Message string    `json:"message"`
}

// describeScriptError classifies a script.Load error.
func describeScriptError(err error) ScriptProblem {
	var verr *script.ValidationError
	if errors.As(err, &verr) {
		p := ScriptProblem{Code: ErrCodeScript, Field: verr.Field, Message: verr.Message}
		if verr.Step >= 0 {
			step := verr.Step
			p.Step = &step
		}
		return p
	}

	var serr *script.SchemaError
	if errors.As(err, &serr) {
		p := ScriptProblem{Code: ErrCodeSchema, Field: serr.Path, Message: serr.Message}
		if serr.Pos.IsValid() {
			p.Line = serr.Pos.Line()
		}
		return p
	}

	if errors.Is(err, os.ErrNotExist) {
		return ScriptProblem{Code: ErrCodeNotFound, Message: err.Error()}
	}
	return ScriptProblem{Code: ErrCodeYAML, Message: err.Error()}
}

// loadScript loads path, mapping failures to exit codes: a missing file is
// a command error, a bad script is a failure.
func loadScript(path string) (*script.Script, error) {
	s, err := script.Load(path)
	if err == nil {
		return s, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return nil, WrapExitError(ErrCodeNotFound.Exit(), "script not found", err)
	}
	return nil, WrapExitError(ExitFailure, "invalid script", err)
}

// loadConfig loads the configuration named by --config, optionally forcing
// the narration provider.
func loadConfig(opts *RootOptions, provider string) (*config.Config, error) {
	cfg, err := config.Load(opts.Config)
	if err != nil {
		return nil, WrapExitError(ErrCodeConfig.Exit(), "failed to load config", err)
	}
	if provider != "" {
		cfg.Narration.Provider = provider
		if err := cfg.Validate(); err != nil {
			return nil, WrapExitError(ErrCodeConfig.Exit(), "invalid --provider", err)
		}
	}
	return cfg, nil
}

// newLogger writes text logs to w: info and up, or debug with --verbose.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// writeOutput writes data to path, or to w when path is empty or "-".
func writeOutput(w io.Writer, path string, data []byte) error {
	if path == "" || path == "-" {
		if _, err := w.Write(data); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w)
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return WrapExitError(ErrCodeWrite.Exit(), fmt.Sprintf("failed to write %s", path), err)
	}
	return nil
}
