// Package errors provides centralized error definitions and error handling utilities
// for bundlr. It defines the orchestrator's failure taxonomy, typed errors with
// context, and classification helpers so that calling layers can tell a broken
// build apart from a missing file or an I/O problem.
//
// # Error Types
//
// Domain-specific errors represent failures from a specific subsystem:
//   - BuildError: a build cycle for a platform failed or its builder died
//   - AssetError: a requested asset is absent from the last successful build,
//     or its companion source map is missing
//   - SourceError: reading a non-bundle source file from the project failed
//
// Semantic errors represent common error conditions:
//   - ValidationError: invalid input or state
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewBuildError("compilation failed", cause).WithPlatform("ios")
//	err := errors.NewAssetNotFoundError("index.bundle", "android")
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrNotFoundInCache) { ... }
//
//	var buildErr *errors.BuildError
//	if errors.As(err, &buildErr) { ... }
//
//	switch errors.Classify(err) {
//	case errors.KindBuildFailure: // show compiler output
//	case errors.KindNotFound:     // 404
//	}
package errors

import (
	"errors"
	"fmt"
	"strings"
)

// Standard library helpers, so callers need only this package.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// Severity ranks how loudly an error should be surfaced.
type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
	// SeverityCritical marks a dead builder process.
	SeverityCritical
)

var severityNames = [...]string{"debug", "info", "warning", "error", "critical"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "unknown"
	}
	return severityNames[s]
}

// Build cycle failures.
var (
	// ErrBuildFailure matches every failed build cycle.
	ErrBuildFailure = New("build failed")
	// ErrProcessTerminated matches a builder that exited, or whose transport
	// closed, while requests were outstanding.
	ErrProcessTerminated = New("builder process terminated")
	// ErrCompilerClosed is returned once the compiler has been shut down.
	ErrCompilerClosed = New("compiler closed")
)

// Lookup failures.
var (
	// ErrNotFoundInCache means the last successful build did not produce the
	// file.
	ErrNotFoundInCache = New("not found in compilation assets")
	// ErrSourceMapMissing means an asset has no source map reference.
	ErrSourceMapMissing = New("source map missing")
	// ErrUnsupportedScheme rejects request schemes other than plain files.
	ErrUnsupportedScheme = New("unsupported scheme")
)

var (
	ErrIO           = New("i/o error")
	ErrInvalidInput = New("invalid input")
)

// BundlrError is implemented by every typed error in this package.
type BundlrError interface {
	error
	Unwrap() error
	Is(target error) bool
	Severity() Severity
	// IsRetryable reports whether repeating the request may succeed, for
	// example after the builder has been restarted.
	IsRetryable() bool
	// IsUserFacing reports whether the message can be shown as-is.
	IsUserFacing() bool
}

// baseError carries the fields shared by the typed errors.
type baseError struct {
	message    string
	cause      error
	severity   Severity
	retryable  bool
	userFacing bool
}

func (e *baseError) Error() string {
	if e.cause == nil {
		return e.message
	}
	return e.message + ": " + e.cause.Error()
}

func (e *baseError) Unwrap() error { return e.cause }

func (e *baseError) Is(target error) bool {
	return e.cause != nil && errors.Is(e.cause, target)
}

func (e *baseError) Severity() Severity { return e.severity }
func (e *baseError) IsRetryable() bool  { return e.retryable }
func (e *baseError) IsUserFacing() bool { return e.userFacing }

// formatContext renders "<kind> [k=v, ...]: message[: cause]".
func formatContext(kind string, parts []string, message string, cause error) string {
	prefix := kind
	if len(parts) > 0 {
		prefix = fmt.Sprintf("%s [%s]", kind, strings.Join(parts, ", "))
	}
	if cause != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, message, cause)
	}
	return fmt.Sprintf("%s: %s", prefix, message)
}

// BuildError represents a failed build cycle for a platform. Every consumer
// queued on that cycle receives the same BuildError.
//
// Example:
//
//	err := errors.NewBuildError("module not found: ./App", nil).WithPlatform("ios")
//	fmt.Println(err) // "build error [platform=ios]: module not found: ./App"
type BuildError struct {
	baseError
	Platform   string
	ExitCode   int    // Exit code of a terminated builder, -1 when unknown
	Stack      string // Stack trace reported by the builder, if any
	terminated bool
}

// NewBuildError creates a new BuildError. The error always matches
// ErrBuildFailure.
func NewBuildError(message string, cause error) *BuildError {
	return &BuildError{
		baseError: baseError{
			message:    message,
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		ExitCode: -1,
	}
}

// NewProcessTerminatedError creates the BuildError synthesized when a builder
// process exits unexpectedly. It matches both ErrProcessTerminated and
// ErrBuildFailure.
func NewProcessTerminatedError(exitCode int, cause error) *BuildError {
	e := NewBuildError(fmt.Sprintf("builder stopped with exit code %d", exitCode), cause)
	e.ExitCode = exitCode
	e.terminated = true
	e.severity = SeverityCritical
	return e
}

// WithPlatform adds a platform to the error context.
func (e *BuildError) WithPlatform(platform string) *BuildError {
	e.Platform = platform
	return e
}

// WithStack attaches a stack trace reported by the builder.
func (e *BuildError) WithStack(stack string) *BuildError {
	e.Stack = stack
	return e
}

// Terminated reports whether the error was synthesized from a builder exit.
func (e *BuildError) Terminated() bool {
	return e.terminated
}

// Error returns the formatted error message.
func (e *BuildError) Error() string {
	var parts []string
	if e.Platform != "" {
		parts = append(parts, fmt.Sprintf("platform=%s", e.Platform))
	}
	if e.terminated {
		parts = append(parts, "terminated")
	}
	return formatContext("build error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *BuildError) Is(target error) bool {
	if _, ok := target.(*BuildError); ok {
		return true
	}
	if target == ErrBuildFailure {
		return true
	}
	if target == ErrProcessTerminated && e.terminated {
		return true
	}
	return e.baseError.Is(target)
}

// AssetError represents a request for an asset that the last successful
// build did not produce, or whose source map reference is absent.
//
// Example:
//
//	err := errors.NewAssetNotFoundError("main.jsbundle", "ios")
//	fmt.Println(err) // "asset error [platform=ios, file=main.jsbundle]: file main.jsbundle for ios not found in compilation assets"
type AssetError struct {
	baseError
	Filename string
	Platform string
	kind     error
}

// NewAssetNotFoundError creates an AssetError matching ErrNotFoundInCache.
func NewAssetNotFoundError(filename, platform string) *AssetError {
	return &AssetError{
		baseError: baseError{
			message:    fmt.Sprintf("file %s for %s %s", filename, platform, ErrNotFoundInCache),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Filename: filename,
		Platform: platform,
		kind:     ErrNotFoundInCache,
	}
}

// NewSourceMapMissingError creates an AssetError matching ErrSourceMapMissing.
func NewSourceMapMissingError(filename, platform string) *AssetError {
	return &AssetError{
		baseError: baseError{
			message:    fmt.Sprintf("source map for %s for %s is missing", filename, platform),
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
		Filename: filename,
		Platform: platform,
		kind:     ErrSourceMapMissing,
	}
}

// Error returns the formatted error message.
func (e *AssetError) Error() string {
	var parts []string
	if e.Platform != "" {
		parts = append(parts, fmt.Sprintf("platform=%s", e.Platform))
	}
	if e.Filename != "" {
		parts = append(parts, fmt.Sprintf("file=%s", e.Filename))
	}
	return formatContext("asset error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *AssetError) Is(target error) bool {
	if _, ok := target.(*AssetError); ok {
		return true
	}
	if e.kind != nil && target == e.kind {
		return true
	}
	return e.baseError.Is(target)
}

// SourceError represents a failure reading a non-bundle source file straight
// from the project root.
//
// Example:
//
//	err := errors.NewSourceError("src/App.js", fs.ErrNotExist)
type SourceError struct {
	baseError
	Path string
}

// NewSourceError creates a new SourceError. The error always matches ErrIO.
func NewSourceError(path string, cause error) *SourceError {
	return &SourceError{
		baseError: baseError{
			message:    "failed to read source",
			cause:      cause,
			severity:   SeverityError,
			retryable:  false,
			userFacing: true,
		},
		Path: path,
	}
}

// Error returns the formatted error message.
func (e *SourceError) Error() string {
	var parts []string
	if e.Path != "" {
		parts = append(parts, fmt.Sprintf("path=%s", e.Path))
	}
	return formatContext("source error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *SourceError) Is(target error) bool {
	if _, ok := target.(*SourceError); ok {
		return true
	}
	if target == ErrIO {
		return true
	}
	return e.baseError.Is(target)
}

// ValidationError represents invalid input or state.
//
// Example:
//
//	err := errors.NewValidationError("platform cannot be empty").WithField("platform")
type ValidationError struct {
	baseError
	Field string
	Value any
}

// NewValidationError creates a new ValidationError.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{
		baseError: baseError{
			message:    message,
			severity:   SeverityWarning,
			retryable:  false,
			userFacing: true,
		},
	}
}

// WithField adds a field name to the error context.
func (e *ValidationError) WithField(field string) *ValidationError {
	e.Field = field
	return e
}

// WithValue adds the invalid value to the error context.
func (e *ValidationError) WithValue(value any) *ValidationError {
	e.Value = value
	return e
}

// Error returns the formatted error message.
func (e *ValidationError) Error() string {
	var parts []string
	if e.Field != "" {
		parts = append(parts, fmt.Sprintf("field=%s", e.Field))
	}
	if e.Value != nil {
		parts = append(parts, fmt.Sprintf("value=%v", e.Value))
	}
	return formatContext("validation error", parts, e.message, e.cause)
}

// Is checks if this error matches the target.
func (e *ValidationError) Is(target error) bool {
	if _, ok := target.(*ValidationError); ok {
		return true
	}
	if target == ErrInvalidInput {
		return true
	}
	return e.baseError.Is(target)
}

// Kind is the coarse category a calling layer renders an error by.
type Kind int

const (
	// KindUnknown is any error outside the taxonomy.
	KindUnknown Kind = iota
	// KindBuildFailure means the build is broken: show compiler output.
	KindBuildFailure
	// KindNotFound means the file does not exist in this build: 404.
	KindNotFound
	// KindSourceMapMissing means the asset exists but has no source map.
	KindSourceMapMissing
	// KindIO means reading a non-bundle file failed.
	KindIO
	// KindUnsupportedScheme means the request cannot be served at all.
	KindUnsupportedScheme
	// KindInvalidInput means the request itself was malformed.
	KindInvalidInput
	// KindClosed means the orchestrator is shutting down.
	KindClosed
)

// String returns a short name for the kind.
func (k Kind) String() string {
	switch k {
	case KindBuildFailure:
		return "build_failure"
	case KindNotFound:
		return "not_found"
	case KindSourceMapMissing:
		return "source_map_missing"
	case KindIO:
		return "io"
	case KindUnsupportedScheme:
		return "unsupported_scheme"
	case KindInvalidInput:
		return "invalid_input"
	case KindClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Classify maps err onto the taxonomy. Process termination classifies as a
// build failure.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return KindUnknown
	case Is(err, ErrCompilerClosed):
		return KindClosed
	case Is(err, ErrBuildFailure):
		return KindBuildFailure
	case Is(err, ErrNotFoundInCache):
		return KindNotFound
	case Is(err, ErrSourceMapMissing):
		return KindSourceMapMissing
	case Is(err, ErrIO):
		return KindIO
	case Is(err, ErrUnsupportedScheme):
		return KindUnsupportedScheme
	case Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindUnknown
	}
}

// IsNotFound reports whether err means the file is absent from the last build.
func IsNotFound(err error) bool {
	return Is(err, ErrNotFoundInCache)
}

// IsBuildFailure reports whether err came from a failed or terminated build.
func IsBuildFailure(err error) bool {
	return Is(err, ErrBuildFailure)
}

// IsIOError reports whether err came from a passthrough source read.
func IsIOError(err error) bool {
	return Is(err, ErrIO)
}

// IsRetryable returns true if the error represents a transient condition
// that may succeed on retry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var bundlrErr BundlrError
	if As(err, &bundlrErr) {
		return bundlrErr.IsRetryable()
	}

	return false
}

// IsUserFacing returns true if the error message is safe to display to end users.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}

	var bundlrErr BundlrError
	if As(err, &bundlrErr) {
		return bundlrErr.IsUserFacing()
	}

	return false
}

// GetSeverity returns the severity level of the error.
// Returns SeverityError for errors that don't implement BundlrError.
func GetSeverity(err error) Severity {
	if err == nil {
		return SeverityDebug
	}

	var bundlrErr BundlrError
	if As(err, &bundlrErr) {
		return bundlrErr.Severity()
	}

	return SeverityError
}

// Wrap wraps an error with additional context message.
// Unlike fmt.Errorf with %w, this preserves the BundlrError interface.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with a formatted context message.
func Wrapf(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}
