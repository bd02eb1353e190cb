// Package errors provides centralized error definitions and error handling
// utilities for tosh. It defines the sentinel errors of the process
// orchestration core, typed errors carrying pipeline context, and
// classification helpers.
//
// # Error Taxonomy
//
// The orchestration core distinguishes four failure classes:
//   - SpawnError: a pipe or process could not be created. Fatal to that
//     pipeline attempt only; the shell continues.
//   - ExecError: a child could not replace its image with the stage's
//     program. Raised inside the child, which reports and exits non-zero.
//   - WaitError: a wait call failed for a reason other than "no such child".
//     Reported, never fatal.
//   - Signal-terminated children are outcomes, not errors, and have no type
//     here.
//
// # Usage
//
//	err := errors.NewSpawnError("fork failed", cause).WithStage(2).WithProgram("sort")
//
//	if errors.Is(err, errors.ErrSpawn) { ... }
//
//	var spawnErr *errors.SpawnError
//	if errors.As(err, &spawnErr) { ... }
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity represents the severity level of an error.
type Severity int

const (
	// SeverityDebug is for errors that are useful for debugging but not critical.
	SeverityDebug Severity = iota
	// SeverityInfo is for informational errors that don't indicate a problem.
	SeverityInfo
	// SeverityWarning is for errors that might indicate a problem but aren't critical.
	SeverityWarning
	// SeverityError is for errors that indicate a real problem.
	SeverityError
	// SeverityCritical is for errors that require immediate attention.
	SeverityCritical
)

// String returns the string representation of the severity level.
func (s Severity) String() string {
	switch s {
	case SeverityDebug:
		return "debug"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Pipeline construction sentinel errors
var (
	// ErrEmptyPipeline indicates a pipeline with zero stages.
	ErrEmptyPipeline = New("pipeline has no stages")
	// ErrEmptyStage indicates a stage without a program name.
	ErrEmptyStage = New("pipeline stage has no program")
	// ErrDanglingPipe indicates a pipe symbol with no command on one side.
	ErrDanglingPipe = New("pipe without a command on both sides")
)

// Spawn-related sentinel errors
var (
	// ErrPipeCreate indicates that a pipe could not be created.
	ErrPipeCreate = New("cannot create pipe")
	// ErrSpawn indicates that a child process could not be created.
	ErrSpawn = New("cannot create process")
)

// Exec-related sentinel errors
var (
	// ErrExecNotFound indicates that the stage's program does not exist.
	ErrExecNotFound = New("program not found")
	// ErrExecPermission indicates that the stage's program could not be executed.
	ErrExecPermission = New("program not executable")
)

// Wait-related sentinel errors
var (
	// ErrNoSuchChild indicates that the process was already reaped or never
	// belonged to this shell.
	ErrNoSuchChild = New("no such child process")
)

// Shell-related sentinel errors
var (
	// ErrExitRequested is returned by the dispatcher when the user asked the
	// shell to terminate.
	ErrExitRequested = New("exit requested")
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
)

// -----------------------------------------------------------------------------
// Base Error Interface
// -----------------------------------------------------------------------------

// ToshError is the base interface for all tosh errors.
type ToshError interface {
	error

	// Unwrap returns the underlying error, if any.
	Unwrap() error

	// Is reports whether this error matches the target error.
	Is(target error) bool

	// Severity returns the severity level of this error.
	Severity() Severity
}

// baseError provides common functionality for all error types.
type baseError struct {
	message  string
	cause    error
	severity Severity
}

// Error returns the error message.
func (e *baseError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.message, e.cause)
	}
	return e.message
}

// Unwrap returns the underlying error.
func (e *baseError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *baseError) Is(target error) bool {
	if e.cause != nil {
		return errors.Is(e.cause, target)
	}
	return false
}

// Severity returns the error severity.
func (e *baseError) Severity() Severity {
	return e.severity
}

func formatWithContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// -----------------------------------------------------------------------------
// Domain-Specific Errors
// -----------------------------------------------------------------------------

// SpawnError represents a failure to create the pipes or processes of a
// pipeline. Stage is -1 when the failure is not tied to a single stage.
//
// Example:
//
//	err := errors.NewSpawnError("fork failed", errors.ErrSpawn).WithStage(1).WithProgram("sort")
//	fmt.Println(err) // "spawn error [stage=1, program=sort]: fork failed: cannot create process"
type SpawnError struct {
	baseError
	Stage   int
	Program string
}

// NewSpawnError creates a new SpawnError.
func NewSpawnError(message string, cause error) *SpawnError {
	return &SpawnError{
		baseError: baseError{
			message:  message,
			cause:    cause,
			severity: SeverityError,
		},
		Stage: -1,
	}
}

// WithStage adds the failing stage's index to the error context.
func (e *SpawnError) WithStage(index int) *SpawnError {
	e.Stage = index
	return e
}

// WithProgram adds the failing stage's program name to the error context.
func (e *SpawnError) WithProgram(program string) *SpawnError {
	e.Program = program
	return e
}

// Error returns the formatted error message.
func (e *SpawnError) Error() string {
	var parts []string
	if e.Stage >= 0 {
		parts = append(parts, fmt.Sprintf("stage=%d", e.Stage))
	}
	if e.Program != "" {
		parts = append(parts, fmt.Sprintf("program=%s", e.Program))
	}
	return formatWithContext("spawn error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *SpawnError) Is(target error) bool {
	if _, ok := target.(*SpawnError); ok {
		return true
	}
	if target == ErrSpawn {
		return true
	}
	return e.baseError.Is(target)
}

// ExecError represents a failure to replace a child's image with the stage's
// program. It only ever exists inside the child.
type ExecError struct {
	baseError
	Program string
}

// NewExecError creates a new ExecError.
func NewExecError(program string, cause error) *ExecError {
	return &ExecError{
		baseError: baseError{
			message:  "could not run program",
			cause:    cause,
			severity: SeverityError,
		},
		Program: program,
	}
}

// Error returns the formatted error message.
func (e *ExecError) Error() string {
	var parts []string
	if e.Program != "" {
		parts = append(parts, fmt.Sprintf("program=%s", e.Program))
	}
	return formatWithContext("exec error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ExecError) Is(target error) bool {
	if _, ok := target.(*ExecError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// ExitCode returns the status the child terminates with: 127 when the
// program does not exist, 126 for every other exec failure.
func (e *ExecError) ExitCode() int {
	if errors.Is(e.cause, ErrExecNotFound) {
		return 127
	}
	return 126
}

// WaitError represents an anomaly while collecting a child's status.
type WaitError struct {
	baseError
	PID int
}

// NewWaitError creates a new WaitError. Wait anomalies are warnings: the
// shell reports them and carries on.
func NewWaitError(pid int, cause error) *WaitError {
	return &WaitError{
		baseError: baseError{
			message:  "wait for process failed",
			cause:    cause,
			severity: SeverityWarning,
		},
		PID: pid,
	}
}

// Error returns the formatted error message.
func (e *WaitError) Error() string {
	return formatWithContext("wait error", []string{fmt.Sprintf("pid=%d", e.PID)}, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *WaitError) Is(target error) bool {
	if _, ok := target.(*WaitError); ok {
		return true
	}
	return e.baseError.Is(target)
}

// -----------------------------------------------------------------------------
// Semantic Errors
// -----------------------------------------------------------------------------

// ValidationError represents invalid user input or configuration.
type ValidationError struct {
	Field   string
	Value   any
	Message string
	cause   error
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// WithField sets the field that failed validation.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue sets the invalid value.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// WithCause sets the underlying cause.
func (e *ValidationError) WithCause(cause error) *ValidationError {
	e.cause = cause
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("validation error")
	if e.Field != "" {
		sb.WriteString(fmt.Sprintf(" [field=%s]", e.Field))
	}
	sb.WriteString(": ")
	sb.WriteString(e.Message)
	if e.Value != nil {
		sb.WriteString(fmt.Sprintf(" (got: %v)", e.Value))
	}
	if e.cause != nil {
		sb.WriteString(fmt.Sprintf(": %v", e.cause))
	}
	return sb.String()
}

// Unwrap returns the underlying error.
func (e *ValidationError) Unwrap() error {
	return e.cause
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.cause != nil && errors.Is(e.cause, target)
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement ToshError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var toshErr ToshError
	if As(err, &toshErr) {
		return toshErr.Severity()
	}

	return SeverityError
}

// Wrap wraps an error with additional context.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}
