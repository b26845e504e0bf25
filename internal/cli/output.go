package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
)

// Exit codes. A script that is rejected or a run that goes wrong exits
// ExitFailure; a command that never got as far as loading a script or
// reaching a provider exits ExitCommandError.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// ErrorCode classifies a failure in command output. The family is in the
// hundreds digit: E0xx setup, E1xx script, E2xx run.
type ErrorCode string

const (
	ErrCodeGeneric  ErrorCode = "E001"
	ErrCodeNotFound ErrorCode = "E002" // script, config or trace file missing
	ErrCodeConfig   ErrorCode = "E003"
	ErrCodeProvider ErrorCode = "E004" // narration provider unavailable
	ErrCodeWrite    ErrorCode = "E005"

	ErrCodeSchema ErrorCode = "E101"
	ErrCodeScript ErrorCode = "E102" // a step breaks a rule the schema cannot express
	ErrCodeYAML   ErrorCode = "E103"

	ErrCodeTraceMismatch ErrorCode = "E201"
	ErrCodeNarration     ErrorCode = "E202"
)

// Exit returns the process exit code for a failure of class c.
func (c ErrorCode) Exit() int {
	if c != ErrCodeGeneric && strings.HasPrefix(string(c), "E0") {
		return ExitCommandError
	}
	return ExitFailure
}

// ExitError carries the exit code a failed command ends with.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the exit code carried by err, or ExitFailure.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// Envelope is the JSON shape of every command result in --format json.
type Envelope struct {
	Status string   `json:"status"` // "ok" or "error"
	Data   any      `json:"data,omitempty"`
	Error  *Failure `json:"error,omitempty"`
}

// Failure is the error half of an Envelope.
type Failure struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`

	Err error `json:"-"`
}

// Reporter writes command results as text or as an Envelope. Notes and logs
// go to Diag so they never interleave with JSON on Out.
type Reporter struct {
	JSON    bool
	Out     io.Writer
	Diag    io.Writer
	Verbose bool
}

func newReporter(cmd *cobra.Command, opts *RootOptions) *Reporter {
	return &Reporter{
		JSON:    opts.Format == "json",
		Out:     cmd.OutOrStdout(),
		Diag:    cmd.ErrOrStderr(),
		Verbose: opts.Verbose,
	}
}

// OK reports a successful result: data in JSON mode, text otherwise. A nil
// text prints data with its default format.
func (r *Reporter) OK(data any, text func(w io.Writer)) error {
	if r.JSON {
		return r.encode(Envelope{Status: "ok", Data: data})
	}
	if text == nil {
		fmt.Fprintln(r.Out, data)
		return nil
	}
	text(r.Out)
	return nil
}

// Fail reports f and returns the ExitError for its code. data rides along in
// the JSON envelope; text, if set, replaces the one-line "Error [code]" form.
func (r *Reporter) Fail(f Failure, data any, text func(w io.Writer)) error {
	switch {
	case r.JSON:
		if err := r.encode(Envelope{Status: "error", Data: data, Error: &f}); err != nil {
			return WrapExitError(ExitCommandError, "failed to write output", err)
		}
	case text != nil:
		text(r.Out)
	default:
		fmt.Fprintf(r.Out, "Error [%s]: %s\n", f.Code, f.Message)
		if r.Verbose && f.Details != nil {
			fmt.Fprintf(r.Out, "Details: %v\n", f.Details)
		}
	}
	return &ExitError{Code: f.Code.Exit(), Message: f.Message, Err: f.Err}
}

// Note prints a progress line on Diag in verbose mode.
func (r *Reporter) Note(format string, args ...any) {
	if !r.Verbose {
		return
	}
	fmt.Fprintf(r.diag(), format+"\n", args...)
}

func (r *Reporter) diag() io.Writer {
	if r.Diag != nil {
		return r.Diag
	}
	return r.Out
}

func (r *Reporter) encode(e Envelope) error {
	return json.NewEncoder(r.Out).Encode(e)
}
