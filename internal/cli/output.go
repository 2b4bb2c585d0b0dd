package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Process exit codes. 1 means the command ran and the operation was refused
// or failed; 2 means the command could not run at all.
const (
	ExitSuccess      = 0
	ExitFailure      = 1
	ExitCommandError = 2
)

// Codes carried in CLIError.Code. Scripts match on these rather than on
// message text.
const (
	ErrCodeGeneric          = "E001"
	ErrCodeNotFound         = "E002" // project, peer or file
	ErrCodeInvalidInput     = "E003"
	ErrCodeStore            = "E004"
	ErrCodePermission       = "E005" // not the leader, or no project permission
	ErrCodeSequence         = "E006"
	ErrCodePeer             = "E007"
	ErrCodeResolve          = "E008"
	ErrCodeAlreadyExists    = "E009"
	ErrCodeLogInconsistent  = "E010"
	ErrCodeScenarioFailures = "E011"
)

// CLIResponse is the envelope every --format json command writes: status is
// "ok" with Data, or "error" with Error.
type CLIResponse struct {
	Status string    `json:"status"`
	Data   any       `json:"data,omitempty"`
	Error  *CLIError `json:"error,omitempty"`
}

type CLIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ExitError carries the process exit code out of a RunE.
type ExitError struct {
	Code    int
	Message string
	Err     error
	// Reported is set once an OutputFormatter has shown the error, so main
	// does not print it again.
	Reported bool
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *ExitError) Unwrap() error { return e.Err }

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode returns the code of the ExitError in err's chain, and
// ExitFailure for any other error.
func GetExitCode(err error) int {
	if exitErr, ok := asExitError(err); ok {
		return exitErr.Code
	}
	return ExitFailure
}

// Reported reports whether err has already been shown to the user.
func Reported(err error) bool {
	exitErr, ok := asExitError(err)
	return ok && exitErr.Reported
}

func asExitError(err error) (*ExitError, bool) {
	var exitErr *ExitError
	ok := errors.As(err, &exitErr)
	return exitErr, ok
}

// OutputFormatter writes command results as text or as a CLIResponse.
// Diagnostics go to ErrWriter when it is set, keeping JSON on Writer clean.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
	Verbose   bool
}

func (f *OutputFormatter) isJSON() bool { return f.Format == "json" }

// Success writes data. In text mode data is printed with its String method
// when it has one.
func (f *OutputFormatter) Success(data any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{Status: "ok", Data: data})
	}
	_, err := fmt.Fprintln(f.Writer, data)
	return err
}

// Error writes an error envelope. Text mode prints details only with
// --verbose.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.isJSON() {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error:  &CLIError{Code: code, Message: message, Details: details},
		})
	}
	if _, err := fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message); err != nil {
		return err
	}
	if f.Verbose && details != nil {
		_, err := fmt.Fprintf(f.Writer, "Details: %v\n", details)
		return err
	}
	return nil
}

// Fail writes err and returns it as a Reported ExitError, ready to return
// from RunE.
func (f *OutputFormatter) Fail(exitCode int, code, message string, err error) error {
	var details any
	if err != nil {
		details = err.Error()
	}
	if writeErr := f.Error(code, message, details); writeErr != nil {
		return writeErr
	}
	exitErr := WrapExitError(exitCode, message, err)
	exitErr.Reported = true
	return exitErr
}

// VerboseLog prints a diagnostic line when --verbose is set.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if f.Verbose {
		fmt.Fprintf(f.diagnostics(), format+"\n", args...)
	}
}

func (f *OutputFormatter) diagnostics() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}
