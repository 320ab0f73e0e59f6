package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/roach88/initiative/internal/entity"
	"github.com/roach88/initiative/internal/medium"
	"github.com/roach88/initiative/internal/queue"
)

// Exit codes for CLI commands.
const (
	ExitSuccess       = 0 // Successful execution
	ExitFailure       = 1 // Operation refused (validation, not found, conflict, failed scenarios)
	ExitCommandError  = 2 // Command error (bad flags, unreadable config, storage unavailable)
	ExitQuotaExceeded = 3 // Durable storage is full; the write did not happen
)

// Error codes reported for failures that carry no domain code.
const (
	ErrCodeGeneric = "ERROR"
	ErrCodeConfig  = "CONFIG"
	ErrCodeUsage   = "USAGE"
	ErrCodeRemote  = "REMOTE"
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
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
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// classify maps a store or queue error to its reported code and exit code.
func classify(err error) (string, int) {
	if medium.IsQuotaExceeded(err) {
		return string(entity.ErrCodeQuotaExceeded), ExitQuotaExceeded
	}

	var ee *entity.Error
	if errors.As(err, &ee) {
		if ee.Code == entity.ErrCodeStorage {
			return string(ee.Code), ExitCommandError
		}
		return string(ee.Code), ExitFailure
	}

	var qe *queue.Error
	if errors.As(err, &qe) {
		if qe.Code == queue.ErrCodeStorage {
			return string(qe.Code), ExitCommandError
		}
		return string(qe.Code), ExitFailure
	}

	return ErrCodeGeneric, ExitCommandError
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for verbose/diagnostic output (defaults to Writer)
	Verbose   bool
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "QUOTA_EXCEEDED", "NOT_FOUND", ...
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Fail reports err under message and returns the ExitError the command
// should return. Quota exhaustion gets its own exit code and a hint.
func (f *OutputFormatter) Fail(message string, err error) error {
	code, exit := classify(err)
	var details any
	if exit == ExitQuotaExceeded {
		details = "local storage is full: clear synced data or raise storage.capacity_bytes"
	}
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	if exit == ExitQuotaExceeded && f.Format != "json" && !f.Verbose {
		fmt.Fprintf(f.GetErrWriter(), "%v\n", details)
	}
	return WrapExitError(exit, message, err)
}

// VerboseLog outputs a message only if verbose mode is enabled.
// When format is JSON, verbose logs go to ErrWriter to avoid corrupting JSON output.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
