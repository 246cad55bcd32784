package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	verrors "github.com/dshills/planproof/internal/errors"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Successful execution
	ExitFailure      = 1 // Queries not proven equivalent, or no rewrite selected
	ExitCommandError = 2 // Command error (unreadable input, bad SQL, bad config, etc.)
)

// ExitError represents an error with a specific exit code.
type ExitError struct {
	Code    int    // Exit code (use ExitFailure or ExitCommandError)
	Message string // Error message
	Err     error  // Underlying error (optional)

	// Reported is set when the error was already written to the command
	// output and must not be printed again.
	Reported bool
}

func (e *ExitError) Error() string {
	switch {
	case e.Message == "" && e.Err != nil:
		return e.Err.Error()
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// IsReported reports whether err was already written by a command.
func IsReported(err error) bool {
	var exitErr *ExitError
	return errors.As(err, &exitErr) && exitErr.Reported
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string      `json:"status"`          // "ok", "failed" or "error"
	Data   interface{} `json:"data,omitempty"`  // payload
	Error  *CLIError   `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"` // SQLSTATE-style code
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
	Hint    string `json:"hint,omitempty"`
}

// Success outputs a result. text renders the human-readable form.
func (f *OutputFormatter) Success(data interface{}, text func(io.Writer)) error {
	return f.emit("ok", data, text)
}

// Failed outputs a result that completed but did not pass, such as a pair
// of queries that could not be proven equivalent.
func (f *OutputFormatter) Failed(data interface{}, text func(io.Writer)) error {
	return f.emit("failed", data, text)
}

func (f *OutputFormatter) emit(status string, data interface{}, text func(io.Writer)) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{Status: status, Data: data})
	}
	text(f.Writer)
	return nil
}

// Error outputs a coded error in the configured format.
func (f *OutputFormatter) Error(e *verrors.Error) error {
	if f.Format == "json" {
		return f.encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    e.Code,
				Message: e.Message,
				Detail:  e.Detail,
				Hint:    e.Hint,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", e.Code, e.Message)
	if e.Detail != "" {
		fmt.Fprintf(f.Writer, "Detail: %s\n", e.Detail)
	}
	if e.Hint != "" {
		fmt.Fprintf(f.Writer, "Hint: %s\n", e.Hint)
	}
	return nil
}

// Fail writes err and returns it as a reported command error.
func (f *OutputFormatter) Fail(err error) error {
	if werr := f.Error(verrors.GetError(err)); werr != nil {
		return WrapExitError(ExitCommandError, "writing output", werr)
	}
	return &ExitError{Code: ExitCommandError, Err: err, Reported: true}
}

func (f *OutputFormatter) encode(resp CLIResponse) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	return enc.Encode(resp)
}
