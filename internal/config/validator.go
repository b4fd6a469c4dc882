package config

import (
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/gobwas/glob"
)

// ValidationError represents a single validation failure
type ValidationError struct {
	Field   string // The config field path (e.g., "build.command.debounce_ms")
	Value   any    // The invalid value
	Message string // Human-readable error description
}

// Error implements the error interface for ValidationError
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s (got: %v)", e.Field, e.Message, e.Value)
}

// ValidationErrors is a collection of validation errors
type ValidationErrors []ValidationError

// Error implements the error interface for ValidationErrors
func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	if len(e) == 1 {
		return e[0].Error()
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d validation errors:\n", len(e))
	for i, err := range e {
		fmt.Fprintf(&sb, "  %d. %s\n", i+1, err.Error())
	}
	return sb.String()
}

// platformRegex restricts platform names to what is safe inside paths and
// shell placeholders.
var platformRegex = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)

// ValidLogLevels returns the list of valid log levels
func ValidLogLevels() []string {
	return []string{"debug", "info", "warn", "error"}
}

// ValidModes returns the list of valid build modes
func ValidModes() []string {
	return []string{ModeWorker, ModeCommand}
}

// ValidCodecs returns the list of valid worker codecs
func ValidCodecs() []string {
	return []string{CodecJSON, CodecCBOR}
}

// Validate checks the Config for invalid values and returns all validation errors found
func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	errors = append(errors, c.validateProject()...)
	errors = append(errors, c.validateBuild()...)
	errors = append(errors, c.validateLogging()...)

	return errors
}

func (c *Config) validateProject() []ValidationError {
	var errors []ValidationError

	if strings.TrimSpace(c.Project.Root) == "" {
		errors = append(errors, ValidationError{
			Field:   "project.root",
			Value:   c.Project.Root,
			Message: "must not be empty",
		})
	}
	if strings.TrimSpace(c.Project.Entry) == "" {
		errors = append(errors, ValidationError{
			Field:   "project.entry",
			Value:   c.Project.Entry,
			Message: "must not be empty",
		})
	}

	return errors
}

func (c *Config) validateBuild() []ValidationError {
	var errors []ValidationError

	seen := make(map[string]bool)
	for i, p := range c.Build.Platforms {
		field := fmt.Sprintf("build.platforms[%d]", i)
		if !platformRegex.MatchString(p) {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   p,
				Message: "must start with a lowercase letter and contain only lowercase letters, digits, hyphens, or underscores",
			})
			continue
		}
		if seen[p] {
			errors = append(errors, ValidationError{
				Field:   field,
				Value:   p,
				Message: "duplicate platform",
			})
		}
		seen[p] = true
	}

	if !slices.Contains(ValidModes(), c.Build.Mode) {
		errors = append(errors, ValidationError{
			Field:   "build.mode",
			Value:   c.Build.Mode,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidModes(), ", ")),
		})
	}

	if c.Build.Worker.Codec != "" && !slices.Contains(ValidCodecs(), c.Build.Worker.Codec) {
		errors = append(errors, ValidationError{
			Field:   "build.worker.codec",
			Value:   c.Build.Worker.Codec,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidCodecs(), ", ")),
		})
	}

	if c.Build.Command.DebounceMs < 0 {
		errors = append(errors, ValidationError{
			Field:   "build.command.debounce_ms",
			Value:   c.Build.Command.DebounceMs,
			Message: "must be non-negative",
		})
	}

	const maxDebounceMs = 60_000
	if c.Build.Command.DebounceMs > maxDebounceMs {
		errors = append(errors, ValidationError{
			Field:   "build.command.debounce_ms",
			Value:   c.Build.Command.DebounceMs,
			Message: fmt.Sprintf("exceeds maximum of %dms", maxDebounceMs),
		})
	}

	if c.Build.Command.Run != "" && strings.TrimSpace(c.Build.Command.OutputDir) == "" {
		errors = append(errors, ValidationError{
			Field:   "build.command.output_dir",
			Value:   c.Build.Command.OutputDir,
			Message: "must be set when build.command.run is set",
		})
	}

	for i, pattern := range c.Build.Command.Ignore {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			errors = append(errors, ValidationError{
				Field:   fmt.Sprintf("build.command.ignore[%d]", i),
				Value:   pattern,
				Message: fmt.Sprintf("invalid glob: %v", err),
			})
		}
	}

	return errors
}

func (c *Config) validateLogging() []ValidationError {
	var errors []ValidationError

	if c.Logging.Level != "" && !slices.Contains(ValidLogLevels(), c.Logging.Level) {
		errors = append(errors, ValidationError{
			Field:   "logging.level",
			Value:   c.Logging.Level,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(ValidLogLevels(), ", ")),
		})
	}

	if c.Logging.MaxSizeMB <= 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: "must be positive",
		})
	}

	const maxLogSizeMB = 1000
	if c.Logging.MaxSizeMB > maxLogSizeMB {
		errors = append(errors, ValidationError{
			Field:   "logging.max_size_mb",
			Value:   c.Logging.MaxSizeMB,
			Message: fmt.Sprintf("exceeds maximum of %dMB", maxLogSizeMB),
		})
	}

	if c.Logging.MaxBackups < 0 {
		errors = append(errors, ValidationError{
			Field:   "logging.max_backups",
			Value:   c.Logging.MaxBackups,
			Message: "must be non-negative",
		})
	}

	return errors
}

// ReadyFor reports what is missing before a builder can be started in the
// configured mode. It returns nil when the build section is usable.
func (c *Config) ReadyFor() error {
	switch c.Build.Mode {
	case ModeWorker:
		if c.Build.Worker.Command == "" {
			return ValidationError{Field: "build.worker.command", Value: "", Message: "must be set in worker mode"}
		}
	case ModeCommand:
		if c.Build.Command.Run == "" {
			return ValidationError{Field: "build.command.run", Value: "", Message: "must be set in command mode"}
		}
	}
	return nil
}
